// Package secrets – vault.go backs the store with a passphrase-encrypted
// file. The key is derived with argon2id and the payload sealed with
// AES-256-GCM; salt and nonce travel with the ciphertext in a small JSON
// envelope.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLen       = 32
	saltLen      = 16
)

type vaultEnvelope struct {
	Salt  string `json:"salt"`
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// VaultStore is a file-backed encrypted secret map.
type VaultStore struct {
	mu         sync.Mutex
	path       string
	passphrase []byte
	values     map[string]string
}

// NewVaultStore opens (or creates) the vault. A wrong passphrase surfaces as
// a decryption error here, before any secret operation.
func NewVaultStore(path, passphrase string) (*VaultStore, error) {
	s := &VaultStore{
		path:       path,
		passphrase: []byte(passphrase),
		values:     make(map[string]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *VaultStore) Set(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	return s.save()
}

func (s *VaultStore) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *VaultStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; !ok {
		return ErrNotFound
	}
	delete(s.values, name)
	return s.save()
}

func (s *VaultStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read vault: %w", err)
	}
	var env vaultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("parse vault: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return fmt.Errorf("parse vault salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return fmt.Errorf("parse vault nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return fmt.Errorf("parse vault data: %w", err)
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return err
	}
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return fmt.Errorf("unlock vault (wrong passphrase?): %w", err)
	}
	return json.Unmarshal(plain, &s.values)
}

func (s *VaultStore) save() error {
	plain, err := json.Marshal(s.values)
	if err != nil {
		return err
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	gcm, err := s.aead(salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	env := vaultEnvelope{
		Salt:  base64.StdEncoding.EncodeToString(salt),
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plain, nil)),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *VaultStore) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, keyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
