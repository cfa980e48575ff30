package bridge

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	transferSFTP = "sftp"
	transferSCP  = "scp"
)

type SFTPFactory struct{}

func (f *SFTPFactory) Name() string { return "sftp" }

func (f *SFTPFactory) Protocols() []string { return []string{"ssh", "scp", "sftp"} }

func (f *SFTPFactory) Available() error {
	if !sshSupport {
		return errors.New("ssh support was not compiled in (built with bridge_nossh)")
	}
	return nil
}

func (f *SFTPFactory) OptionNames() []string { return optionNames(SFTPConfig{}) }

func (f *SFTPFactory) Create(u *url.URL, opts Options, logger zerolog.Logger) (Backend, error) {
	cfg := SFTPConfig{Logger: logger}
	if err := decodeOptions(opts, &cfg, logger.With().Str("backend", f.Name()).Logger()); err != nil {
		return nil, err
	}
	return NewSFTP(u, cfg)
}

// PubKey selects public key authentication.
type PubKey struct {
	User        string `option:"user"`
	PubKeyFile  string `option:"pubkeyfile"`
	PrivKeyFile string `option:"privkeyfile"`
	Passphrase  string `option:"passphrase"`
}

// SFTPConfig holds the options understood by the SSH family backend.
type SFTPConfig struct {
	// Fingerprint is the expected host key fingerprint, either OpenSSH
	// "SHA256:..." or MD5 hex with or without colons.
	Fingerprint    string  `option:"fingerprint"`
	PubKey         *PubKey `option:"pubkey"`
	KnownHostsFile string  `option:"knownhostsfile"`
	Agent          bool    `option:"agent"`
	// Transfer is "sftp" (default) or "scp" for Get and Put.
	Transfer string `option:"transfer"`

	Logger zerolog.Logger `option:"-"`
}

// SFTPBackend serves ssh://, scp:// and sftp:// URLs. The working directory
// is tracked on the client and never validated against the server.
type SFTPBackend struct {
	ssh      *ssh.Client
	sftp     *sftp.Client
	hostKey  ssh.PublicKey
	dir      string
	host     string
	transfer string
	logger   zerolog.Logger
}

// NewSFTP connects and authenticates to the host in u. When u carries a path
// it becomes the working directory.
func NewSFTP(u *url.URL, cfg SFTPConfig) (*SFTPBackend, error) {
	host := u.Hostname()
	if host == "" {
		return nil, newError("connect", u.String(), ErrConfig, errors.New("host missing"))
	}
	port := u.Port()
	if port == "" {
		port = "22"
	}
	addr := net.JoinHostPort(host, port)

	transfer := strings.ToLower(cfg.Transfer)
	switch transfer {
	case "":
		transfer = transferSFTP
	case transferSFTP, transferSCP:
	default:
		return nil, newError("connect", host, ErrConfig, fmt.Errorf("unknown transfer mode %q", cfg.Transfer))
	}

	logger := cfg.Logger.With().Str("backend", "sftp").Str("host", addr).Logger()

	user := u.User.Username()
	auth, err := authMethods(u, &cfg, &user)
	if err != nil {
		return nil, newError("connect", host, ErrConfig, err)
	}

	hostKey, mismatch, err := hostKeyCallback(&cfg)
	if err != nil {
		return nil, newError("connect", host, ErrConfig, err)
	}

	// keyAccepted is set once the host key passes; any later handshake
	// failure happened during user authentication.
	var serverKey ssh.PublicKey
	var keyAccepted bool
	config := &ssh.ClientConfig{
		User: user,
		Auth: auth,
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			serverKey = key
			if err := hostKey(hostname, remote, key); err != nil {
				return err
			}
			keyAccepted = true
			return nil
		},
	}

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		if *mismatch || keyAccepted {
			return nil, newError("connect", host, ErrAuthentication, err)
		}
		return nil, newError("connect", addr, ErrConnection, err)
	}
	logger.Debug().Str("user", user).Msg("connected")

	b := &SFTPBackend{
		ssh:      client,
		hostKey:  serverKey,
		host:     host,
		transfer: transfer,
		logger:   logger,
	}

	if u.Path != "" {
		if err := b.Cd(u.Path); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

func authMethods(u *url.URL, cfg *SFTPConfig, user *string) ([]ssh.AuthMethod, error) {
	var auth []ssh.AuthMethod

	if cfg.PubKey != nil {
		signer, err := loadSigner(cfg.PubKey)
		if err != nil {
			return nil, err
		}
		if cfg.PubKey.User != "" {
			*user = cfg.PubKey.User
		}
		return append(auth, ssh.PublicKeys(signer)), nil
	}

	if cfg.Agent {
		agentClient, _, err := sshagent.New()
		if err != nil {
			return nil, fmt.Errorf("couldn't connect to ssh-agent: %w", err)
		}
		signers, err := agentClient.Signers()
		if err != nil {
			return nil, fmt.Errorf("couldn't read ssh agent signers: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signers...))
	}

	if pass, ok := u.User.Password(); ok && *user != "" {
		auth = append(auth,
			ssh.Password(pass),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = pass
				}
				return answers, nil
			}),
		)
	}
	return auth, nil
}

func loadSigner(pk *PubKey) (ssh.Signer, error) {
	if pk.PrivKeyFile == "" {
		return nil, errors.New("pubkey: privkeyfile is required")
	}
	key, err := os.ReadFile(pk.PrivKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	var signer ssh.Signer
	if pk.Passphrase == "" {
		signer, err = ssh.ParsePrivateKey(key)
	} else {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(pk.Passphrase))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key file: %w", err)
	}

	if pk.PubKeyFile == "" {
		return signer, nil
	}
	pubBytes, err := os.ReadFile(pk.PubKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key file: %w", err)
	}
	if cert, ok := pub.(*ssh.Certificate); ok {
		return ssh.NewCertSigner(cert, signer)
	}
	if !bytes.Equal(pub.Marshal(), signer.PublicKey().Marshal()) {
		return nil, fmt.Errorf("public key %s does not match private key %s", pk.PubKeyFile, pk.PrivKeyFile)
	}
	return signer, nil
}

// hostKeyCallback verifies the server key against the configured
// fingerprint or known_hosts file. The returned flag is set when the
// fingerprint check rejects the server.
func hostKeyCallback(cfg *SFTPConfig) (ssh.HostKeyCallback, *bool, error) {
	mismatch := new(bool)

	if cfg.Fingerprint != "" {
		expected := cfg.Fingerprint
		return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if !fingerprintMatches(expected, key) {
				*mismatch = true
				return fmt.Errorf("server fingerprint '%s' does not match", ssh.FingerprintSHA256(key))
			}
			return nil
		}, mismatch, nil
	}

	if cfg.KnownHostsFile != "" {
		callback, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't parse known_hosts_file: %w", err)
		}
		return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if err := callback(hostname, remote, key); err != nil {
				*mismatch = true
				return err
			}
			return nil
		}, mismatch, nil
	}

	return ssh.InsecureIgnoreHostKey(), mismatch, nil
}

func fingerprintMatches(expected string, key ssh.PublicKey) bool {
	if strings.HasPrefix(expected, "SHA256:") {
		return expected == ssh.FingerprintSHA256(key)
	}
	sum := md5.Sum(key.Marshal())
	want := strings.ToLower(strings.ReplaceAll(expected, ":", ""))
	return want == hex.EncodeToString(sum[:])
}

// Fingerprint returns the server host key fingerprint in OpenSSH SHA256 form.
func (s *SFTPBackend) Fingerprint() string {
	return ssh.FingerprintSHA256(s.hostKey)
}

// client opens the SFTP subsystem on first use.
func (s *SFTPBackend) client() (*sftp.Client, error) {
	if s.ssh == nil {
		return nil, errClosed
	}
	if s.sftp == nil {
		c, err := sftp.NewClient(s.ssh)
		if err != nil {
			return nil, fmt.Errorf("could not initialize SFTP subsystem: %w", err)
		}
		s.sftp = c
	}
	return s.sftp, nil
}

// filename resolves name against the working directory.
func (s *SFTPBackend) filename(name string) string {
	if s.dir != "" {
		return s.dir + "/" + name
	}
	return "/" + name
}

func (s *SFTPBackend) Cd(directory string) error {
	s.dir = directory
	return nil
}

func (s *SFTPBackend) Pwd() (string, error) {
	return s.dir, nil
}

func (s *SFTPBackend) Get(remoteFile string) ([]byte, error) {
	file := s.filename(remoteFile)
	if s.transfer == transferSCP && s.ssh != nil {
		data, err := scpReceive(s.ssh, file)
		if err != nil {
			return nil, newError("get", file, ErrDownload, err)
		}
		return data, nil
	}

	c, err := s.client()
	if err != nil {
		return nil, newError("get", file, ErrDownload, err)
	}
	f, err := c.Open(file)
	if err != nil {
		return nil, newError("get", file, ErrDownload, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, newError("get", file, ErrDownload, err)
	}
	return data, nil
}

func (s *SFTPBackend) Put(data []byte, remoteFile string) error {
	file := s.filename(remoteFile)
	if s.transfer == transferSCP && s.ssh != nil {
		if err := scpSend(s.ssh, file, data); err != nil {
			return newError("put", file, ErrUpload, err)
		}
		return nil
	}

	c, err := s.client()
	if err != nil {
		return newError("put", file, ErrUpload, err)
	}
	f, err := c.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return newError("put", file, ErrUpload, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return newError("put", file, ErrUpload, err)
	}
	if err := f.Close(); err != nil {
		return newError("put", file, ErrUpload, err)
	}
	return nil
}

func (s *SFTPBackend) Ls() ([]string, error) {
	// Listings are always rooted, even after a relative Cd.
	dir := "/" + strings.TrimPrefix(s.dir, "/")
	c, err := s.client()
	if err != nil {
		return nil, newError("ls", dir, ErrList, err)
	}
	entries, err := c.ReadDir(dir)
	if err != nil {
		return nil, newError("ls", dir, ErrList, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == "." || e.Name() == ".." {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports false for any failure, not only a missing path.
func (s *SFTPBackend) Exists(path string) (bool, error) {
	file := s.filename(path)
	c, err := s.client()
	if err != nil {
		s.logger.Debug().Err(err).Str("path", file).Msg("exists check failed")
		return false, nil
	}
	if _, err := c.Stat(file); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug().Err(err).Str("path", file).Msg("exists check failed")
		}
		return false, nil
	}
	return true, nil
}

func (s *SFTPBackend) Rm(remoteFile string) error {
	file := s.filename(remoteFile)
	c, err := s.client()
	if err != nil {
		return newError("rm", file, ErrDelete, err)
	}
	if err := c.Remove(file); err != nil {
		return newError("rm", file, ErrDelete, err)
	}
	return nil
}

func (s *SFTPBackend) Mv(remoteFile, newName string) error {
	from := s.filename(remoteFile)
	to := s.filename(newName)
	c, err := s.client()
	if err != nil {
		return newError("mv", from, ErrRename, err)
	}
	if err := c.Rename(from, to); err != nil {
		return newError("mv", from, ErrRename, fmt.Errorf("as '%s': %w", to, err))
	}
	return nil
}

func (s *SFTPBackend) Mkdir(dirName string) error {
	dir := s.filename(dirName)
	c, err := s.client()
	if err != nil {
		return newError("mkdir", dir, ErrDirectoryOp, err)
	}
	if err := c.Mkdir(dir); err != nil {
		return newError("mkdir", dir, ErrDirectoryOp, err)
	}
	return nil
}

func (s *SFTPBackend) Rmdir(dirName string) error {
	dir := s.filename(dirName)
	c, err := s.client()
	if err != nil {
		return newError("rmdir", dir, ErrDirectoryOp, err)
	}
	if err := c.RemoveDirectory(dir); err != nil {
		return newError("rmdir", dir, ErrDirectoryOp, err)
	}
	return nil
}

func (s *SFTPBackend) Close() error {
	var result *multierror.Error
	if s.sftp != nil {
		if err := s.sftp.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		s.sftp = nil
	}
	if s.ssh != nil {
		if err := s.ssh.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
		s.ssh = nil
		s.logger.Debug().Msg("disconnected")
	}
	return result.ErrorOrNil()
}
