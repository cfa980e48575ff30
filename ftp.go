package bridge

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"
)

// ftpConn is the subset of *ftp.ServerConn the backend drives.
type ftpConn interface {
	Login(user, password string) error
	Passive() error
	ChangeDir(path string) error
	CurrentDir() (string, error)
	Retr(path string) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	NameList(path string) ([]string, error)
	Delete(path string) error
	Rename(from, to string) error
	MakeDir(path string) error
	RemoveDir(path string) error
	Quit() error
}

// serverConn adapts *ftp.ServerConn to ftpConn. Tests swap dialFTP for a
// fake, so this adapter only runs against a live server.
type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	return c.ServerConn.Retr(path)
}

// Passive is a no-op: jlaffaye/ftp only transfers in passive mode, trying
// EPSV first and falling back to PASV.
func (c serverConn) Passive() error { return nil }

var dialFTP = func(addr string, options ...ftp.DialOption) (ftpConn, error) {
	c, err := ftp.Dial(addr, options...)
	if err != nil {
		return nil, err
	}
	return serverConn{c}, nil
}

type FTPFactory struct{}

func (f *FTPFactory) Name() string { return "ftp" }

func (f *FTPFactory) Protocols() []string { return []string{"ftp", "ftps"} }

func (f *FTPFactory) Available() error {
	if !ftpSupport {
		return errors.New("ftp support was not compiled in (built with bridge_noftp)")
	}
	return nil
}

func (f *FTPFactory) OptionNames() []string { return optionNames(FTPConfig{}) }

func (f *FTPFactory) Create(u *url.URL, opts Options, logger zerolog.Logger) (Backend, error) {
	cfg := FTPConfig{Passive: true, Logger: logger}
	if err := decodeOptions(opts, &cfg, logger.With().Str("backend", f.Name()).Logger()); err != nil {
		return nil, err
	}
	return NewFTP(u, cfg)
}

// FTPConfig holds the options understood by the FTP backend.
type FTPConfig struct {
	Passive            bool `option:"passive"`
	DisableEPSV        bool `option:"disableepsv"`
	InsecureSkipVerify bool `option:"insecureskipverify"`

	Logger zerolog.Logger `option:"-"`
}

// FTPBackend serves ftp:// and ftps:// URLs. The working directory is the
// server's.
type FTPBackend struct {
	conn   ftpConn
	host   string
	logger zerolog.Logger
}

// NewFTP connects and logs in to the host in u, anonymously unless u carries
// a user. ftps:// negotiates TLS on the control channel with AUTH TLS.
func NewFTP(u *url.URL, cfg FTPConfig) (*FTPBackend, error) {
	host := u.Hostname()
	if host == "" {
		return nil, newError("connect", u.String(), ErrConfig, errors.New("host missing"))
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(host, "21")
	}
	logger := cfg.Logger.With().Str("backend", "ftp").Str("host", addr).Logger()

	var options []ftp.DialOption
	if u.Scheme == "ftps" {
		options = append(options, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         host,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}))
	}
	if cfg.DisableEPSV {
		options = append(options, ftp.DialWithDisabledEPSV(true))
	}

	c, err := dialFTP(addr, options...)
	if err != nil {
		return nil, newError("connect", u.Scheme+"://"+addr, ErrConnection, err)
	}

	user := "anonymous"
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	pass, _ := u.User.Password()

	if err := c.Login(user, pass); err != nil {
		c.Quit()
		return nil, newError("login", host, ErrAuthentication, fmt.Errorf("as '%s': %w", user, err))
	}
	logger.Debug().Str("user", user).Msg("logged in")

	// firewall friendly passive mode
	if !cfg.Passive {
		logger.Warn().Msg("active mode is not supported, using passive mode")
	}
	if err := c.Passive(); err != nil {
		logger.Warn().Err(err).Msg("passive mode failed")
	}

	b := &FTPBackend{conn: c, host: host, logger: logger}

	if u.Path != "" {
		dir := strings.TrimRight(u.Path, "/") + "/"
		if err := b.Cd(dir); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

// closedConn stands in for the connection after Close.
type closedConn struct{}

func (closedConn) Login(string, string) error         { return errClosed }
func (closedConn) Passive() error                     { return errClosed }
func (closedConn) ChangeDir(string) error             { return errClosed }
func (closedConn) CurrentDir() (string, error)        { return "", errClosed }
func (closedConn) Retr(string) (io.ReadCloser, error) { return nil, errClosed }
func (closedConn) Stor(string, io.Reader) error       { return errClosed }
func (closedConn) NameList(string) ([]string, error)  { return nil, errClosed }
func (closedConn) Delete(string) error                { return errClosed }
func (closedConn) Rename(string, string) error        { return errClosed }
func (closedConn) MakeDir(string) error               { return errClosed }
func (closedConn) RemoveDir(string) error             { return errClosed }
func (closedConn) Quit() error                        { return nil }

func (f *FTPBackend) Cd(directory string) error {
	if err := f.conn.ChangeDir(directory); err != nil {
		return newError("cd", directory, ErrChangeDirectory, err)
	}
	return nil
}

func (f *FTPBackend) Pwd() (string, error) {
	dir, err := f.conn.CurrentDir()
	if err != nil {
		return "", newError("pwd", f.host, ErrWorkingDirectory, err)
	}
	return dir, nil
}

func (f *FTPBackend) Get(remoteFile string) ([]byte, error) {
	r, err := f.conn.Retr(remoteFile)
	if err != nil {
		return nil, newError("get", remoteFile, ErrDownload, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newError("get", remoteFile, ErrDownload, err)
	}
	return data, nil
}

func (f *FTPBackend) Put(data []byte, remoteFile string) error {
	if err := f.conn.Stor(remoteFile, bytes.NewReader(data)); err != nil {
		return newError("put", remoteFile, ErrUpload, err)
	}
	return nil
}

// Ls returns names in the order the server sent them.
func (f *FTPBackend) Ls() ([]string, error) {
	names, err := f.conn.NameList(".")
	if err != nil {
		return nil, newError("ls", ".", ErrList, err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Exists reports false when the listing is empty or fails for any reason.
func (f *FTPBackend) Exists(path string) (bool, error) {
	names, err := f.conn.NameList(path)
	if err != nil {
		f.logger.Debug().Err(err).Str("path", path).Msg("exists check failed")
		return false, nil
	}
	return len(names) > 0, nil
}

func (f *FTPBackend) Rm(remoteFile string) error {
	if err := f.conn.Delete(remoteFile); err != nil {
		return newError("rm", remoteFile, ErrDelete, err)
	}
	return nil
}

func (f *FTPBackend) Mv(remoteFile, newName string) error {
	if err := f.conn.Rename(remoteFile, newName); err != nil {
		return newError("mv", remoteFile, ErrRename, fmt.Errorf("as '%s': %w", newName, err))
	}
	return nil
}

func (f *FTPBackend) Mkdir(dirName string) error {
	if err := f.conn.MakeDir(dirName); err != nil {
		return newError("mkdir", dirName, ErrDirectoryOp, err)
	}
	return nil
}

func (f *FTPBackend) Rmdir(dirName string) error {
	if err := f.conn.RemoveDir(dirName); err != nil {
		return newError("rmdir", dirName, ErrDirectoryOp, err)
	}
	return nil
}

func (f *FTPBackend) Close() error {
	if _, closed := f.conn.(closedConn); closed {
		return nil
	}
	err := f.conn.Quit()
	f.conn = closedConn{}
	f.logger.Debug().Msg("disconnected")
	return err
}
