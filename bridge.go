package bridge

import (
	"fmt"
	"net/url"
	"strings"
)

// Bridge forwards every filesystem call to the one backend selected for its
// URL. A Bridge must not be used from several goroutines at once.
type Bridge struct {
	backend Backend
	name    string
}

// New connects to rawURL with DefaultRegistry.
func New(rawURL string, opts Options) (*Bridge, error) {
	return DefaultRegistry.Open(rawURL, opts)
}

// Open parses rawURL, selects the first factory advertising its scheme and
// constructs the backend. A matching factory that is unavailable in this
// build is an error; lower priority factories are not tried.
func (r *Registry) Open(rawURL string, opts Options) (*Bridge, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, newError("open", rawURL, ErrConfig, err)
	}
	// "host:21" parses with scheme "host"; only "scheme://" names a protocol.
	if u.Scheme == "" || !strings.Contains(rawURL, "://") {
		return nil, newError("open", rawURL, ErrConfig, fmt.Errorf("scheme not defined"))
	}

	scheme := strings.ToLower(u.Scheme)
	u.Scheme = scheme

	factory := r.lookup(scheme)
	if factory == nil {
		return nil, newError("open", scheme, ErrUnsupportedProtocol, nil)
	}
	if err := factory.Available(); err != nil {
		return nil, newError("open", factory.Name(), ErrUnsupportedBackend, err)
	}

	r.Logger.Debug().Str("backend", factory.Name()).Str("host", u.Host).Msg("selected backend")

	backend, err := factory.Create(u, opts, r.Logger)
	if err != nil {
		return nil, err
	}
	return &Bridge{backend: backend, name: factory.Name()}, nil
}

// Backend returns the name of the selected backend.
func (b *Bridge) Backend() string { return b.name }

func (b *Bridge) Cd(directory string) error { return b.backend.Cd(directory) }

func (b *Bridge) Pwd() (string, error) { return b.backend.Pwd() }

func (b *Bridge) Get(remoteFile string) ([]byte, error) { return b.backend.Get(remoteFile) }

func (b *Bridge) Put(data []byte, remoteFile string) error { return b.backend.Put(data, remoteFile) }

func (b *Bridge) Ls() ([]string, error) { return b.backend.Ls() }

func (b *Bridge) Exists(path string) (bool, error) { return b.backend.Exists(path) }

func (b *Bridge) Rm(remoteFile string) error { return b.backend.Rm(remoteFile) }

func (b *Bridge) Mv(remoteFile, newName string) error { return b.backend.Mv(remoteFile, newName) }

func (b *Bridge) Mkdir(dirName string) error { return b.backend.Mkdir(dirName) }

func (b *Bridge) Rmdir(dirName string) error { return b.backend.Rmdir(dirName) }

func (b *Bridge) Close() error { return b.backend.Close() }
