package bridge

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileServer stores PUT bodies and serves them back on GET.
type fileServer struct {
	mu       sync.Mutex
	files    map[string][]byte
	lastUA   string
	lastAuth string
}

func newFileServer(t *testing.T) (*fileServer, *httptest.Server) {
	fs := &fileServer{files: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.lastUA = r.UserAgent()
		if user, pass, ok := r.BasicAuth(); ok {
			fs.lastAuth = user + ":" + pass
		}

		switch {
		case r.URL.Path == "/login":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123", Path: "/", MaxAge: 3600})
			fmt.Fprint(w, "welcome")
		case r.URL.Path == "/whoami":
			c, err := r.Cookie("session")
			if err != nil {
				http.Error(w, "no session", http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, c.Value)
		case r.URL.Path == "/readonly" && r.Method == http.MethodPut:
			http.Error(w, "read only", http.StatusForbidden)
		case r.Method == http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			fs.files[r.URL.Path] = data
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet:
			data, ok := fs.files[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("X-Test", "yes")
			w.Write(data)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return fs, srv
}

func openHTTP(t *testing.T, rawURL string, opts Options) *Bridge {
	t.Helper()
	logger, _ := testLogger()
	r := &Registry{Factories: []Factory{&HTTPFactory{}}, Logger: logger}
	b, err := r.Open(rawURL, opts)
	require.NoError(t, err)
	return b
}

func TestHTTPRoundTrip(t *testing.T) {
	fs, srv := newFileServer(t)
	b := openHTTP(t, srv.URL+"/files/?token=x#frag", nil)
	defer b.Close()
	assert.Equal(t, "http", b.Backend())

	require.NoError(t, b.Put([]byte("payload\x00"), "sub/a.bin"))
	fs.mu.Lock()
	assert.Equal(t, []byte("payload\x00"), fs.files["/files/sub/a.bin"])
	assert.Equal(t, DefaultUserAgent, fs.lastUA)
	fs.mu.Unlock()

	got, err := b.Get("sub/a.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload\x00"), got)

	require.NoError(t, b.Put([]byte{}, "empty"))
	got, err = b.Get("empty")
	require.NoError(t, err)
	assert.Equal(t, []byte{}, got)
}

func TestHTTPUserAgentAndBasicAuth(t *testing.T) {
	fs, srv := newFileServer(t)
	u := strings.Replace(srv.URL, "http://", "http://alice:s3cret@", 1)
	b := openHTTP(t, u, Options{"UserAgent": "fetcher/2"})
	defer b.Close()

	require.NoError(t, b.Put([]byte("x"), "x"))
	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, "fetcher/2", fs.lastUA)
	assert.Equal(t, "alice:s3cret", fs.lastAuth)
}

func TestHTTPErrorStatus(t *testing.T) {
	_, srv := newFileServer(t)
	b := openHTTP(t, srv.URL, nil)
	defer b.Close()

	_, err := b.Get("nope.txt")
	require.ErrorIs(t, err, ErrDownload)
	assert.Contains(t, err.Error(), "404")

	err = b.Put([]byte("x"), "readonly")
	require.ErrorIs(t, err, ErrUpload)
	assert.Contains(t, err.Error(), "403")
}

func TestHTTPGetHeaders(t *testing.T) {
	fs, srv := newFileServer(t)
	fs.files["/page"] = []byte("body")
	b := openHTTP(t, srv.URL, Options{"getheaders": true})
	defer b.Close()

	got, err := b.Get("page")
	require.NoError(t, err)
	out := string(got)
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"), out)
	assert.Contains(t, out, "X-Test: yes\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\nbody"), out)
}

func TestHTTPProxy(t *testing.T) {
	requested := make(chan string, 1)
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested <- r.URL.String()
		fmt.Fprint(w, "via proxy")
	}))
	defer proxy.Close()

	b := openHTTP(t, "http://files.example.invalid/base", Options{"proxy": proxy.URL})
	defer b.Close()

	got, err := b.Get("f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("via proxy"), got)
	assert.Equal(t, "http://files.example.invalid/base/f.txt", <-requested)
}

func TestHTTPUnsupportedOperations(t *testing.T) {
	_, srv := newFileServer(t)
	b := openHTTP(t, srv.URL, nil)
	defer b.Close()

	_, lsErr := b.Ls()
	_, pwdErr := b.Pwd()
	checks := []struct {
		kind error
		err  error
	}{
		{ErrChangeDirectory, b.Cd("/x")},
		{ErrList, lsErr},
		{ErrWorkingDirectory, pwdErr},
		{ErrDelete, b.Rm("x")},
		{ErrRename, b.Mv("x", "y")},
	}
	for _, c := range checks {
		assert.ErrorIs(t, c.err, c.kind)
		assert.ErrorIs(t, c.err, ErrNotSupported)
	}
	assert.ErrorIs(t, b.Mkdir("d"), ErrDirectoryOp)
	assert.ErrorIs(t, b.Rmdir("d"), ErrNotSupported)

	ok, err := b.Exists("x")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestHTTPCookieFilePersists(t *testing.T) {
	_, srv := newFileServer(t)
	cookies := filepath.Join(t.TempDir(), "cookies.txt")

	b := openHTTP(t, srv.URL, Options{"cookiefile": cookies})
	_, err := b.Get("whoami")
	assert.ErrorIs(t, err, ErrDownload)
	_, err = b.Get("login")
	require.NoError(t, err)
	got, err := b.Get("whoami")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc123"), got)
	require.NoError(t, b.Close())

	saved, err := os.ReadFile(cookies)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(saved), "# Netscape HTTP Cookie File\n"))
	assert.Contains(t, string(saved), "\tsession\tabc123\n")

	b = openHTTP(t, srv.URL, Options{"cookiefile": cookies})
	defer b.Close()
	got, err = b.Get("whoami")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc123"), got)
}

func TestOpenCookieFile(t *testing.T) {
	c, err := openCookieFile("")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, c.save())

	path := filepath.Join(t.TempDir(), "jar.txt")
	c, err = openCookieFile(path)
	require.NoError(t, err)
	assert.Empty(t, c.entries)

	future := time.Now().Add(time.Hour).Unix()
	content := strings.Join([]string{
		"# Netscape HTTP Cookie File",
		"",
		fmt.Sprintf(".example.com\tTRUE\t/\tFALSE\t%d\tlang\ten", future),
		fmt.Sprintf("#HttpOnly_example.com\tFALSE\t/app\tTRUE\t%d\tsid\tq1", future),
		"example.com\tFALSE\t/\tFALSE\t1\told\tgone",
		"example.com\tFALSE\t/\tFALSE\t0\tsess\t1",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err = openCookieFile(path)
	require.NoError(t, err)
	assert.Len(t, c.entries, 3)
	assert.True(t, c.entries["example.com\t/app\tsid"].httpOnly)

	require.NoError(t, c.save())
	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(saved), "#HttpOnly_example.com\tFALSE\t/app\tTRUE\t")
	assert.NotContains(t, string(saved), "old\tgone")

	require.NoError(t, os.WriteFile(path, []byte("bad line\n"), 0o600))
	_, err = openCookieFile(path)
	assert.Error(t, err)
}

func TestHTTPCloseIsIdempotent(t *testing.T) {
	fs, srv := newFileServer(t)
	fs.files["/f"] = []byte("x")
	b := openHTTP(t, srv.URL, nil)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	_, err := b.Get("f")
	assert.ErrorIs(t, err, ErrDownload)
}

func TestHTTPConfigErrors(t *testing.T) {
	logger, _ := testLogger()
	r := &Registry{Factories: []Factory{&HTTPFactory{}}, Logger: logger}

	_, err := r.Open("http:///nohost", nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = r.Open("http://example.com", Options{"proxy": "http://[::1"})
	assert.ErrorIs(t, err, ErrConfig)
}
