//go:build windows

package cookies

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// v10 layout: 3-byte version prefix, 12-byte GCM nonce, ciphertext+tag.
const (
	gcmNonceStart = 3
	gcmNonceEnd   = 15
)

// chromiumKeySet carries the AES-256-GCM key unwrapped from Local State.
type chromiumKeySet struct {
	gcm []byte
}

// chromiumKeySet loads os_crypt.encrypted_key from the browser's Local
// State file and unwraps it with DPAPI.
func (e *Extractor) chromiumKeySet(_ Browser, profile chromiumProfile) (*chromiumKeySet, error) {
	raw, err := os.ReadFile(profile.localState)
	if err != nil {
		return nil, fmt.Errorf("failed to read Local State: %w", err)
	}

	var state struct {
		OSCrypt struct {
			EncryptedKey string `json:"encrypted_key"`
		} `json:"os_crypt"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to parse Local State: %w", err)
	}

	wrapped, err := base64.StdEncoding.DecodeString(state.OSCrypt.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted key: %w", err)
	}
	if !bytes.HasPrefix(wrapped, []byte("DPAPI")) {
		return nil, errors.New("encrypted key is missing the DPAPI prefix")
	}
	key, err := dpapiDecrypt(wrapped[5:])
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap cookie key: %w", err)
	}
	return &chromiumKeySet{gcm: key}, nil
}

// decryptChromiumValue decrypts a v10/v11 value with AES-256-GCM. Values
// without a version prefix are legacy DPAPI blobs.
func decryptChromiumValue(encrypted []byte, keys *chromiumKeySet) (string, error) {
	if len(encrypted) == 0 {
		return "", nil
	}
	if !bytes.HasPrefix(encrypted, []byte("v10")) && !bytes.HasPrefix(encrypted, []byte("v11")) {
		plain, err := dpapiDecrypt(encrypted)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt legacy cookie: %w", err)
		}
		return string(plain), nil
	}

	if keys == nil || keys.gcm == nil {
		return "", errors.New("no decryption key available")
	}
	if len(encrypted) < gcmNonceEnd {
		return "", errors.New("ciphertext too short")
	}
	block, err := aes.NewCipher(keys.gcm)
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	plain, err := aead.Open(nil, encrypted[gcmNonceStart:gcmNonceEnd], encrypted[gcmNonceEnd:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt cookie value: %w", err)
	}
	return string(plain), nil
}

func dpapiDecrypt(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty DPAPI blob")
	}
	in := windows.DataBlob{Size: uint32(len(data)), Data: &data[0]}
	var out windows.DataBlob
	if err := windows.CryptUnprotectData(&in, nil, nil, 0, nil, 0, &out); err != nil {
		return nil, err
	}
	defer func() { _, _ = windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data))) }()

	plain := make([]byte, out.Size)
	copy(plain, unsafe.Slice(out.Data, out.Size))
	return plain, nil
}
