package secrets

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name owning this app's entries.
// Each provider id is stored as a separate keyring user under it.
const DefaultService = "quotabar"

var (
	// ErrNotFound means nothing is stored under the id. Callers treat it as
	// "not authenticated", never as a failure.
	ErrNotFound = errors.New("secret not found")
	// ErrUnavailable means the OS secret service could not be reached. This
	// is distinct from ErrNotFound and must stay distinct.
	ErrUnavailable = errors.New("secret store unavailable")
)

// Store abstracts platform credential storage.
type Store interface {
	Put(id string, secret *Secret) error
	Get(id string) (*Secret, error)
	Delete(id string) error
}

// KeyringStore persists secrets in the OS keyring under a fixed service
// name.
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a store scoped to the given keyring service.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

func (k *KeyringStore) Put(id string, secret *Secret) error {
	return secret.WithValue(func(b []byte) error {
		if err := keyring.Set(k.service, id, string(b)); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	})
}

func (k *KeyringStore) Get(id string) (*Secret, error) {
	value, err := keyring.Get(k.service, id)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return FromString(value), nil
}

// Delete removes the stored secret. Deleting a missing entry is not an
// error, which keeps logout idempotent.
func (k *KeyringStore) Delete(id string) error {
	if err := keyring.Delete(k.service, id); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// KnownIDs lists every keyring id this app may have written. Used to wipe
// all credentials on logout-all.
func KnownIDs() []string {
	return []string{"claude", "openai", "gemini", "codex"}
}
