// Package secrets stores values collected by secret elicitations outside the
// conversation log. Three backends: "log" keeps the value in the conversation
// (hidden from display only), "keyring" uses the OS credential store, and
// "vault" uses a passphrase-encrypted file.
package secrets

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a named secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Store persists named secrets.
type Store interface {
	Set(name, value string) error
	Get(name string) (string, error)
	Delete(name string) error
}

// Options selects and configures a backend.
type Options struct {
	Backend         string
	VaultPath       string
	VaultPassphrase string
}

// New builds the configured store. The "log" backend returns nil: secrets
// stay in the conversation and no store is consulted.
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case "", "log":
		return nil, nil
	case "keyring":
		return NewKeyringStore("clawrun"), nil
	case "vault":
		if opts.VaultPath == "" || opts.VaultPassphrase == "" {
			return nil, fmt.Errorf("vault backend needs vault_path and vault_passphrase")
		}
		return NewVaultStore(opts.VaultPath, opts.VaultPassphrase)
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", opts.Backend)
	}
}
