package bridge

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const httpOnlyPrefix = "#HttpOnly_"

// cookieFile is a cookie jar backed by a Netscape format cookie file, the
// format curl reads and writes.
type cookieFile struct {
	path string
	jar  *cookiejar.Jar

	mu      sync.Mutex
	entries map[string]cookieEntry
}

type cookieEntry struct {
	domain     string
	subdomains bool
	path       string
	secure     bool
	httpOnly   bool
	expires    int64
	name       string
	value      string
}

func (e cookieEntry) key() string {
	return e.domain + "\t" + e.path + "\t" + e.name
}

// openCookieFile returns nil when path is empty. A missing file is an empty
// jar.
func openCookieFile(path string) (*cookieFile, error) {
	if path == "" {
		return nil, nil
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &cookieFile{path: path, jar: jar, entries: make(map[string]cookieEntry)}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening cookie file: %w", err)
	}
	defer f.Close()

	now := time.Now().Unix()
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("cookie file %s line %d: expected 7 fields, got %d", path, lineNum, len(fields))
		}
		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cookie file %s line %d: invalid expiry: %w", path, lineNum, err)
		}
		if expires != 0 && expires < now {
			continue
		}
		entry := cookieEntry{
			domain:     fields[0],
			subdomains: strings.EqualFold(fields[1], "TRUE"),
			path:       fields[2],
			secure:     strings.EqualFold(fields[3], "TRUE"),
			httpOnly:   httpOnly,
			expires:    expires,
			name:       fields[5],
			value:      fields[6],
		}
		c.load(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading cookie file: %w", err)
	}
	return c, nil
}

func (c *cookieFile) load(e cookieEntry) {
	host := strings.TrimPrefix(e.domain, ".")
	scheme := "http"
	if e.secure {
		scheme = "https"
	}
	cookie := &http.Cookie{
		Name:     e.name,
		Value:    e.value,
		Path:     e.path,
		Secure:   e.secure,
		HttpOnly: e.httpOnly,
	}
	if e.subdomains {
		cookie.Domain = host
	}
	if e.expires != 0 {
		cookie.Expires = time.Unix(e.expires, 0)
	}
	c.jar.SetCookies(&url.URL{Scheme: scheme, Host: host, Path: e.path}, []*http.Cookie{cookie})
	c.entries[e.key()] = e
}

func (c *cookieFile) SetCookies(u *url.URL, cookies []*http.Cookie) {
	c.jar.SetCookies(u, cookies)

	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for _, cookie := range cookies {
		e := cookieEntry{
			domain:   u.Hostname(),
			path:     cookie.Path,
			secure:   cookie.Secure,
			httpOnly: cookie.HttpOnly,
			name:     cookie.Name,
			value:    cookie.Value,
		}
		if cookie.Domain != "" {
			e.domain = "." + strings.TrimPrefix(cookie.Domain, ".")
			e.subdomains = true
		}
		if e.path == "" {
			e.path = "/"
		}

		switch {
		case cookie.MaxAge < 0:
			delete(c.entries, e.key())
			continue
		case cookie.MaxAge > 0:
			e.expires = now.Add(time.Duration(cookie.MaxAge) * time.Second).Unix()
		case !cookie.Expires.IsZero():
			if cookie.Expires.Before(now) {
				delete(c.entries, e.key())
				continue
			}
			e.expires = cookie.Expires.Unix()
		}
		c.entries[e.key()] = e
	}
}

func (c *cookieFile) Cookies(u *url.URL) []*http.Cookie {
	return c.jar.Cookies(u)
}

// save rewrites the cookie file with every live cookie.
func (c *cookieFile) save() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# Netscape HTTP Cookie File\n")
	for _, k := range keys {
		e := c.entries[k]
		domain := e.domain
		if e.httpOnly {
			domain = httpOnlyPrefix + domain
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			domain, netscapeBool(e.subdomains), e.path, netscapeBool(e.secure), e.expires, e.name, e.value)
	}
	return os.WriteFile(c.path, []byte(b.String()), 0o600)
}

func netscapeBool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}
