package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/rs/zerolog"
)

// DefaultUserAgent is sent by the HTTP backend unless overridden.
const DefaultUserAgent = "bridge/1.0 (+net/http)"

type HTTPFactory struct{}

func (f *HTTPFactory) Name() string { return "http" }

// Protocols lists the schemes net/http's default transport speaks.
func (f *HTTPFactory) Protocols() []string { return []string{"http", "https"} }

func (f *HTTPFactory) Available() error { return nil }

func (f *HTTPFactory) OptionNames() []string { return optionNames(HTTPConfig{}) }

func (f *HTTPFactory) Create(u *url.URL, opts Options, logger zerolog.Logger) (Backend, error) {
	cfg := HTTPConfig{Logger: logger}
	if err := decodeOptions(opts, &cfg, logger.With().Str("backend", f.Name()).Logger()); err != nil {
		return nil, err
	}
	return NewHTTP(u, cfg)
}

// HTTPConfig holds the options understood by the HTTP backend.
type HTTPConfig struct {
	UserAgent string `option:"useragent"`
	// Proxy is the forward proxy URL. Without it the environment's proxy
	// settings apply.
	Proxy string `option:"proxy"`
	// CookieFile is loaded at construction and rewritten on Close, in
	// Netscape cookie file format.
	CookieFile string `option:"cookiefile"`
	// GetHeaders prefixes Get results with the status line and headers.
	GetHeaders bool `option:"getheaders"`

	Logger zerolog.Logger `option:"-"`
}

// HTTPBackend downloads and uploads whole files relative to a base URL. It
// has no working directory and cannot list, delete or rename.
type HTTPBackend struct {
	client     *http.Client
	jar        *cookieFile
	base       url.URL
	user       *url.Userinfo
	userAgent  string
	getHeaders bool
	logger     zerolog.Logger
}

func NewHTTP(u *url.URL, cfg HTTPConfig) (*HTTPBackend, error) {
	if u.Host == "" {
		return nil, newError("connect", u.String(), ErrConfig, errors.New("host missing"))
	}
	logger := cfg.Logger.With().Str("backend", "http").Str("host", u.Host).Logger()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxy, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, newError("connect", cfg.Proxy, ErrConfig, fmt.Errorf("invalid proxy: %w", err))
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	jar, err := openCookieFile(cfg.CookieFile)
	if err != nil {
		return nil, newError("connect", cfg.CookieFile, ErrConfig, err)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	base := *u
	base.User = nil
	base.RawQuery = ""
	base.Fragment = ""

	client := &http.Client{Transport: transport}
	if jar != nil {
		client.Jar = jar
	}

	return &HTTPBackend{
		client:     client,
		jar:        jar,
		base:       base,
		user:       u.User,
		userAgent:  userAgent,
		getHeaders: cfg.GetHeaders,
		logger:     logger,
	}, nil
}

// fileURL returns the absolute URL of name below the base URL.
func (h *HTTPBackend) fileURL(name string) string {
	u := h.base
	u.Path = path.Join("/", h.base.Path, name)
	u.RawPath = ""
	return u.String()
}

func (h *HTTPBackend) do(method, target string, body io.Reader) (*http.Response, error) {
	if h.client == nil {
		return nil, errClosed
	}
	req, err := http.NewRequest(method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", h.userAgent)
	if h.user != nil && h.user.Username() != "" {
		pass, _ := h.user.Password()
		req.SetBasicAuth(h.user.Username(), pass)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	h.logger.Debug().Str("method", method).Str("url", target).Int("status", resp.StatusCode).Msg("request")
	return resp, nil
}

func (h *HTTPBackend) Get(remoteFile string) ([]byte, error) {
	target := h.fileURL(remoteFile)
	resp, err := h.do(http.MethodGet, target, nil)
	if err != nil {
		return nil, newError("get", target, ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newError("get", target, ErrDownload, errors.New(resp.Status))
	}

	buf := bytes.NewBuffer(make([]byte, 0, 512))
	if h.getHeaders {
		fmt.Fprintf(buf, "%s %s\r\n", resp.Proto, resp.Status)
		if err := resp.Header.Write(buf); err != nil {
			return nil, newError("get", target, ErrDownload, err)
		}
		buf.WriteString("\r\n")
	}
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, newError("get", target, ErrDownload, err)
	}
	return buf.Bytes(), nil
}

func (h *HTTPBackend) Put(data []byte, remoteFile string) error {
	target := h.fileURL(remoteFile)
	resp, err := h.do(http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return newError("put", target, ErrUpload, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return newError("put", target, ErrUpload, errors.New(resp.Status))
	}
	return nil
}

func (h *HTTPBackend) Cd(directory string) error {
	return notSupported("cd", ErrChangeDirectory, "http")
}

func (h *HTTPBackend) Pwd() (string, error) {
	return "", notSupported("pwd", ErrWorkingDirectory, "http")
}

func (h *HTTPBackend) Ls() ([]string, error) {
	return nil, notSupported("ls", ErrList, "http")
}

func (h *HTTPBackend) Exists(path string) (bool, error) {
	return false, newError("exists", path, ErrNotSupported, nil)
}

func (h *HTTPBackend) Rm(remoteFile string) error {
	return notSupported("rm", ErrDelete, "http")
}

func (h *HTTPBackend) Mv(remoteFile, newName string) error {
	return notSupported("mv", ErrRename, "http")
}

func (h *HTTPBackend) Mkdir(dirName string) error {
	return notSupported("mkdir", ErrDirectoryOp, "http")
}

func (h *HTTPBackend) Rmdir(dirName string) error {
	return notSupported("rmdir", ErrDirectoryOp, "http")
}

// Close writes the cookie file, if any, and drops idle connections.
func (h *HTTPBackend) Close() error {
	if h.client == nil {
		return nil
	}
	h.client.CloseIdleConnections()
	h.client = nil
	if err := h.jar.save(); err != nil {
		return fmt.Errorf("saving cookie file: %w", err)
	}
	return nil
}
