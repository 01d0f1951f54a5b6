// Package cookies extracts authentication cookies from installed browsers.
//
// Chromium-family browsers (Chrome, Edge) keep cookies in an SQLite database
// with per-OS value encryption; Firefox stores them in plaintext. Extraction
// is read-only and skips expired rows.
package cookies

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	// Import modernc.org/sqlite as a blank import to register the driver
	_ "modernc.org/sqlite"

	"github.com/j-veylop/quotabar/internal/logger"
	"github.com/j-veylop/quotabar/internal/secrets"
)

// Browser identifies a supported cookie source.
type Browser string

const (
	Chrome  Browser = "chrome"
	Edge    Browser = "edge"
	Firefox Browser = "firefox"
)

var (
	// ErrBrowserNotFound means no cookie database exists for the browser.
	ErrBrowserNotFound = errors.New("browser cookie database not found")
	// ErrNoMatchingCookie means the database held no live cookie for the
	// requested domain and name.
	ErrNoMatchingCookie = errors.New("no matching cookie")
	// ErrDecryptionFailed means matching cookies exist but none could be
	// decrypted.
	ErrDecryptionFailed = errors.New("cookie decryption failed")
)

// Cookie is one decrypted browser cookie.
type Cookie struct {
	Name     string
	Value    string
	Host     string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
}

// Expired reports whether the cookie's expiry has passed. Session cookies
// carry a zero expiry and never expire here.
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && c.Expires.Before(now)
}

// FormatCookieHeader renders cookies as a Cookie request header value.
func FormatCookieHeader(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// chromiumEpochOffset is the number of seconds between the Windows FILETIME
// epoch (1601-01-01) and the Unix epoch.
const chromiumEpochOffset = 11644473600

// chromiumTime converts a Chromium expires_utc value (microseconds since
// 1601) to a time.Time. Zero means a session cookie.
func chromiumTime(microseconds int64) time.Time {
	if microseconds == 0 {
		return time.Time{}
	}
	return time.Unix(microseconds/1e6-chromiumEpochOffset, 0).UTC()
}

// Extractor reads cookie databases out of browser profile directories.
type Extractor struct {
	home       string
	getenv     func(string) string
	keyringGet func(service, user string) (string, error)
}

// NewExtractor returns an extractor rooted at the current user's home.
func NewExtractor() *Extractor {
	home, _ := os.UserHomeDir()
	return &Extractor{
		home:       home,
		getenv:     os.Getenv,
		keyringGet: keyring.Get,
	}
}

// Extract returns the value of the first live cookie matching name on the
// domain, wrapped as a secret.
func (e *Extractor) Extract(browser Browser, domain, name string) (*secrets.Secret, error) {
	all, err := e.ExtractAll(browser, domain)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.Name == name {
			return secrets.FromString(c.Value), nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrNoMatchingCookie, name, domain)
}

// ExtractAll returns every live cookie for the domain.
func (e *Extractor) ExtractAll(browser Browser, domain string) ([]Cookie, error) {
	switch browser {
	case Firefox:
		return e.firefoxCookies(domain)
	case Chrome, Edge:
		return e.chromiumCookies(browser, domain)
	default:
		return nil, fmt.Errorf("%w: %q", ErrBrowserNotFound, browser)
	}
}

// ExtractAny tries Chrome, Edge, then Firefox and returns the first hit.
func (e *Extractor) ExtractAny(domain, name string) (*secrets.Secret, error) {
	var firstErr error
	for _, browser := range []Browser{Chrome, Edge, Firefox} {
		secret, err := e.Extract(browser, domain, name)
		if err == nil {
			return secret, nil
		}
		if firstErr == nil && !errors.Is(err, ErrBrowserNotFound) {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrNoMatchingCookie, name, domain)
}

// chromiumProfile locates a Chromium-family browser's cookie database and
// its Local State file.
type chromiumProfile struct {
	cookieDB   string
	localState string
}

func (e *Extractor) chromiumProfile(browser Browser) (chromiumProfile, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		local := e.getenv("LOCALAPPDATA")
		if local == "" {
			return chromiumProfile{}, fmt.Errorf("%w: %s", ErrBrowserNotFound, browser)
		}
		if browser == Edge {
			base = filepath.Join(local, "Microsoft", "Edge", "User Data")
		} else {
			base = filepath.Join(local, "Google", "Chrome", "User Data")
		}
	case "darwin":
		if browser == Edge {
			base = filepath.Join(e.home, "Library", "Application Support", "Microsoft Edge")
		} else {
			base = filepath.Join(e.home, "Library", "Application Support", "Google", "Chrome")
		}
	default:
		if browser == Edge {
			base = filepath.Join(e.home, ".config", "microsoft-edge")
		} else {
			base = filepath.Join(e.home, ".config", "google-chrome")
		}
	}

	candidates := []string{
		filepath.Join(base, "Default", "Network", "Cookies"),
		filepath.Join(base, "Default", "Cookies"),
	}
	for _, p := range candidates {
		if fileExists(p) {
			return chromiumProfile{
				cookieDB:   p,
				localState: filepath.Join(base, "Local State"),
			}, nil
		}
	}
	return chromiumProfile{}, fmt.Errorf("%w: %s", ErrBrowserNotFound, browser)
}

func (e *Extractor) firefoxCookieDB() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		appData := e.getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("%w: firefox", ErrBrowserNotFound)
		}
		base = filepath.Join(appData, "Mozilla", "Firefox", "Profiles")
	case "darwin":
		base = filepath.Join(e.home, "Library", "Application Support", "Firefox", "Profiles")
	default:
		base = filepath.Join(e.home, ".mozilla", "firefox")
	}

	profiles, _ := filepath.Glob(filepath.Join(base, "*.default*"))
	for _, profile := range profiles {
		db := filepath.Join(profile, "cookies.sqlite")
		if fileExists(db) {
			return db, nil
		}
	}
	return "", fmt.Errorf("%w: firefox", ErrBrowserNotFound)
}

func (e *Extractor) chromiumCookies(browser Browser, domain string) ([]Cookie, error) {
	profile, err := e.chromiumProfile(browser)
	if err != nil {
		return nil, err
	}
	keys, keyErr := e.chromiumKeySet(browser, profile)
	if keyErr != nil {
		logger.Debug("cookie decryption key unavailable", "browser", string(browser), "error", keyErr)
	}
	return queryWithSnapshot(profile.cookieDB, func(path string) ([]Cookie, error) {
		return readChromiumDB(path, domain, keys)
	})
}

func (e *Extractor) firefoxCookies(domain string) ([]Cookie, error) {
	path, err := e.firefoxCookieDB()
	if err != nil {
		return nil, err
	}
	return queryWithSnapshot(path, func(path string) ([]Cookie, error) {
		return readFirefoxDB(path, domain)
	})
}

// queryWithSnapshot runs query against the live database and, on failure,
// against a temp copy. Browsers hold their cookie database locked while
// running.
func queryWithSnapshot(path string, query func(path string) ([]Cookie, error)) ([]Cookie, error) {
	cookies, err := query(path)
	if err == nil || errors.Is(err, ErrDecryptionFailed) {
		return cookies, err
	}

	snapshot, copyErr := copyToTemp(path)
	if copyErr != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(snapshot) }()
	return query(snapshot)
}

func readChromiumDB(path, domain string, keys *chromiumKeySet) ([]Cookie, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie database: %w", err)
	}
	defer func() { _ = db.Close() }()

	query := `
		SELECT name, encrypted_value, host_key, path, expires_utc, is_secure, is_httponly
		FROM cookies
		WHERE host_key LIKE ? OR host_key LIKE ?
	`
	rows, err := db.QueryContext(context.Background(), query, "%"+domain, "."+domain)
	if err != nil {
		return nil, fmt.Errorf("failed to query cookies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		cookies    []Cookie
		now        = time.Now()
		decryptErr error
	)
	for rows.Next() {
		var (
			c         Cookie
			encrypted []byte
			expires   int64
			secure    int
			httpOnly  int
		)
		if err := rows.Scan(&c.Name, &encrypted, &c.Host, &c.Path, &expires, &secure, &httpOnly); err != nil {
			return nil, fmt.Errorf("failed to scan cookie row: %w", err)
		}

		value, err := decryptChromiumValue(encrypted, keys)
		if err != nil {
			decryptErr = err
			logger.Debug("skipping undecryptable cookie", "name", c.Name)
			continue
		}
		c.Value = value
		c.Expires = chromiumTime(expires)
		c.Secure = secure != 0
		c.HTTPOnly = httpOnly != 0
		if c.Expired(now) {
			continue
		}
		cookies = append(cookies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie rows: %w", err)
	}
	if len(cookies) == 0 && decryptErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, decryptErr)
	}
	return cookies, nil
}

func readFirefoxDB(path, domain string) ([]Cookie, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie database: %w", err)
	}
	defer func() { _ = db.Close() }()

	query := `
		SELECT name, value, host, path, expiry, isSecure, isHttpOnly
		FROM moz_cookies
		WHERE host LIKE ? OR host LIKE ?
	`
	rows, err := db.QueryContext(context.Background(), query, "%"+domain, "."+domain)
	if err != nil {
		return nil, fmt.Errorf("failed to query cookies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		cookies []Cookie
		now     = time.Now()
	)
	for rows.Next() {
		var (
			c        Cookie
			expiry   int64
			secure   int
			httpOnly int
		)
		if err := rows.Scan(&c.Name, &c.Value, &c.Host, &c.Path, &expiry, &secure, &httpOnly); err != nil {
			return nil, fmt.Errorf("failed to scan cookie row: %w", err)
		}
		if expiry > 0 {
			c.Expires = time.Unix(expiry, 0).UTC()
		}
		c.Secure = secure != 0
		c.HTTPOnly = httpOnly != 0
		if c.Expired(now) {
			continue
		}
		cookies = append(cookies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie rows: %w", err)
	}
	return cookies, nil
}

func copyToTemp(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.CreateTemp("", "quotabar-cookies-*.sqlite")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
