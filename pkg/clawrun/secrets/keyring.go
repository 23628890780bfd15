// Package secrets – keyring.go backs the store with the OS credential
// manager (Keychain, Secret Service, Windows Credential Manager).
package secrets

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// KeyringStore namespaces secrets under one service name.
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a store under the given service name.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

func (s *KeyringStore) Set(name, value string) error {
	return keyring.Set(s.service, name, value)
}

func (s *KeyringStore) Get(name string) (string, error) {
	v, err := keyring.Get(s.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *KeyringStore) Delete(name string) error {
	err := keyring.Delete(s.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
