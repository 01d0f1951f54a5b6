//go:build !windows

package cookies

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

const (
	cbcSalt       = "saltysalt"
	cbcKeyLength  = 16
	cbcIterLinux  = 1
	cbcIterDarwin = 1003

	// linuxFallbackPassword encrypts v10 values on Linux installs that have
	// no desktop keyring.
	linuxFallbackPassword = "peanuts"
)

// chromiumKeySet carries the candidate AES-128-CBC keys for v10 and v11
// values.
type chromiumKeySet struct {
	v10 []byte
	v11 []byte
}

// chromiumKeySet derives the cookie keys for the browser. On macOS the
// password comes from the login keychain; on Linux v10 uses the hardcoded
// fallback password and v11 the desktop keyring.
func (e *Extractor) chromiumKeySet(browser Browser, _ chromiumProfile) (*chromiumKeySet, error) {
	service, user := safeStorageEntry(browser)

	if runtime.GOOS == "darwin" {
		password, err := e.keyringGet(service, user)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from keychain: %w", service, err)
		}
		key := deriveCBCKey(password, cbcIterDarwin)
		return &chromiumKeySet{v10: key, v11: key}, nil
	}

	keys := &chromiumKeySet{v10: deriveCBCKey(linuxFallbackPassword, cbcIterLinux)}
	if password, err := e.keyringGet(service, user); err == nil {
		keys.v11 = deriveCBCKey(password, cbcIterLinux)
	}
	return keys, nil
}

func safeStorageEntry(browser Browser) (service, user string) {
	if browser == Edge {
		return "Microsoft Edge Safe Storage", "Microsoft Edge"
	}
	return "Chrome Safe Storage", "Chrome"
}

func deriveCBCKey(password string, iterations int) []byte {
	return pbkdf2.Key([]byte(password), []byte(cbcSalt), iterations, cbcKeyLength, sha1.New)
}

// decryptChromiumValue decrypts a v10/v11 value with AES-128-CBC. Values
// without a version prefix are stored in the clear.
func decryptChromiumValue(encrypted []byte, keys *chromiumKeySet) (string, error) {
	if len(encrypted) == 0 {
		return "", nil
	}
	v11 := bytes.HasPrefix(encrypted, []byte("v11"))
	if !v11 && !bytes.HasPrefix(encrypted, []byte("v10")) {
		return string(encrypted), nil
	}
	if keys == nil {
		return "", errors.New("no decryption key available")
	}

	candidates := [][]byte{keys.v10, keys.v11}
	if v11 {
		candidates = [][]byte{keys.v11, keys.v10}
	}
	var lastErr error
	for _, key := range candidates {
		if key == nil {
			continue
		}
		plain, err := decryptCBC(encrypted[3:], key)
		if err == nil {
			return string(plain), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no decryption key available")
	}
	return "", lastErr
}

func decryptCBC(ciphertext, key []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not block-aligned")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv := bytes.Repeat([]byte{' '}, aes.BlockSize)
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return stripPKCS7(plain)
}

func stripPKCS7(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty plaintext")
	}
	pad := int(b[len(b)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, p := range b[len(b)-pad:] {
		if int(p) != pad {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-pad], nil
}
