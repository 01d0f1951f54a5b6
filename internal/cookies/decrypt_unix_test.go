//go:build !windows

package cookies

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func encryptV10(t *testing.T, value string, key []byte) []byte {
	t.Helper()
	pad := aes.BlockSize - len(value)%aes.BlockSize
	plain := append([]byte(value), bytes.Repeat([]byte{byte(pad)}, pad)...)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("failed to build cipher: %v", err)
	}
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, bytes.Repeat([]byte{' '}, aes.BlockSize)).CryptBlocks(out, plain)
	return append([]byte("v10"), out...)
}

func TestDecryptChromiumValue_RoundTrip(t *testing.T) {
	key := deriveCBCKey(linuxFallbackPassword, cbcIterLinux)
	keys := &chromiumKeySet{v10: key}

	encrypted := encryptV10(t, "super-secret-cookie", key)
	got, err := decryptChromiumValue(encrypted, keys)
	if err != nil {
		t.Fatalf("decryptChromiumValue() = %v, want nil", err)
	}
	if got != "super-secret-cookie" {
		t.Errorf("decryptChromiumValue() = %q, want %q", got, "super-secret-cookie")
	}
}

func TestDecryptChromiumValue_WrongKey(t *testing.T) {
	encrypted := encryptV10(t, "value", deriveCBCKey("other-password", cbcIterLinux))
	keys := &chromiumKeySet{v10: deriveCBCKey(linuxFallbackPassword, cbcIterLinux)}

	if _, err := decryptChromiumValue(encrypted, keys); err == nil {
		t.Error("decryptChromiumValue() with wrong key = nil error, want failure")
	}
}

func TestDecryptChromiumValue_Plaintext(t *testing.T) {
	got, err := decryptChromiumValue([]byte("already-plain"), nil)
	if err != nil {
		t.Fatalf("decryptChromiumValue() = %v, want nil", err)
	}
	if got != "already-plain" {
		t.Errorf("decryptChromiumValue() = %q, want passthrough", got)
	}
}

func TestDecryptChromiumValue_NoKeys(t *testing.T) {
	encrypted := encryptV10(t, "value", deriveCBCKey(linuxFallbackPassword, cbcIterLinux))
	if _, err := decryptChromiumValue(encrypted, nil); err == nil {
		t.Error("decryptChromiumValue() without keys = nil error, want failure")
	}
}

func TestStripPKCS7(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    string
		wantErr bool
	}{
		{"Valid", []byte{'a', 'b', 'c', 13, 13, 13, 13, 13, 13, 13, 13, 13, 13, 13, 13, 13}, "abc", false},
		{"Empty", nil, "", true},
		{"ZeroPad", []byte{'a', 0}, "", true},
		{"PadTooLarge", []byte{'a', 40}, "", true},
		{"InconsistentPad", []byte{'a', 2, 3}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stripPKCS7(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("stripPKCS7() = nil error, want failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("stripPKCS7() = %v, want nil", err)
			}
			if string(got) != tt.want {
				t.Errorf("stripPKCS7() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_ChromiumV10(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("exercises the Linux fallback key")
	}

	home := t.TempDir()
	dbDir := filepath.Join(home, ".config", "google-chrome", "Default", "Network")
	if err := os.MkdirAll(dbDir, 0o750); err != nil {
		t.Fatalf("failed to create profile dir: %v", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dbDir, "Cookies"))
	if err != nil {
		t.Fatalf("failed to create cookie database: %v", err)
	}
	schema := `
		CREATE TABLE cookies (
			name TEXT, encrypted_value BLOB, host_key TEXT, path TEXT,
			expires_utc INTEGER, is_secure INTEGER, is_httponly INTEGER
		)
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	key := deriveCBCKey(linuxFallbackPassword, cbcIterLinux)
	future := (time.Now().Add(time.Hour).Unix() + chromiumEpochOffset) * 1_000_000
	past := (time.Now().Add(-time.Hour).Unix() + chromiumEpochOffset) * 1_000_000
	rows := []struct {
		name      string
		encrypted []byte
		expires   int64
	}{
		{"sessionKey", encryptV10(t, "decrypted-session-value", key), future},
		{"ephemeral", encryptV10(t, "session-scoped", key), 0},
		{"stale", encryptV10(t, "expired", key), past},
	}
	for _, r := range rows {
		if _, err := db.Exec(
			"INSERT INTO cookies (name, encrypted_value, host_key, path, expires_utc, is_secure, is_httponly) VALUES (?, ?, ?, ?, ?, 1, 1)",
			r.name, r.encrypted, ".claude.ai", "/", r.expires,
		); err != nil {
			t.Fatalf("failed to insert cookie: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close fixture database: %v", err)
	}

	e := testExtractor(home)

	secret, err := e.Extract(Chrome, "claude.ai", "sessionKey")
	if err != nil {
		t.Fatalf("Extract() = %v, want nil", err)
	}
	defer secret.Zero()
	assertSecretValue(t, secret, "decrypted-session-value")

	all, err := e.ExtractAll(Chrome, "claude.ai")
	if err != nil {
		t.Fatalf("ExtractAll() = %v, want nil", err)
	}
	if len(all) != 2 {
		t.Errorf("ExtractAll() returned %d cookies, want 2", len(all))
	}
	header := FormatCookieHeader(all)
	if !strings.Contains(header, "sessionKey=decrypted-session-value") {
		t.Errorf("FormatCookieHeader() = %q, missing sessionKey", header)
	}
}
