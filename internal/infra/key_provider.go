package infra

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

const (
	keyFileName = "usage.key"
	keySize     = 32 // SQLCipher raw key, 256 bits
)

// ErrReadOnlyKey is returned when a supplied key is asked to persist a new one.
var ErrReadOnlyKey = errors.New("database key is supplied externally and cannot be replaced")

// KeyFile keeps the database key hex-encoded in usage.key next to usage.db.
// The file is readable by the owner only.
type KeyFile struct {
	path string
}

// NewKeyFile returns the key file for a data directory.
func NewKeyFile(dataDir string) *KeyFile {
	return &KeyFile{path: filepath.Join(dataDir, keyFileName)}
}

// Path returns the key file location.
func (k *KeyFile) Path() string {
	return k.path
}

func (k *KeyFile) GetKey() ([]byte, error) {
	raw, err := os.ReadFile(k.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return decodeKey(string(raw))
}

func (k *KeyFile) StoreKey(key []byte) error {
	if err := checkKeySize(key); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(k.path, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

func (k *KeyFile) KeyExists() bool {
	_, err := os.Stat(k.path)
	return err == nil
}

// StaticKey serves a key handed in from outside, e.g. USAGEMON_DB_KEY.
type StaticKey struct {
	key []byte
}

// ParseStaticKey decodes a hex key of keySize bytes.
func ParseStaticKey(hexKey string) (*StaticKey, error) {
	key, err := decodeKey(hexKey)
	if err != nil {
		return nil, err
	}
	return &StaticKey{key: key}, nil
}

func (s *StaticKey) GetKey() ([]byte, error) { return s.key, nil }
func (s *StaticKey) StoreKey([]byte) error   { return ErrReadOnlyKey }
func (s *StaticKey) KeyExists() bool         { return true }

// GenerateKey creates a random database key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the provider's key, generating and storing one on first use.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// OpenStore opens the encrypted store in dataDir. A nil provider means the
// key file in dataDir, created on first use.
func OpenStore(dataDir string, provider domain.KeyProvider) (*Store, error) {
	if provider == nil {
		provider = NewKeyFile(dataDir)
	}
	key, err := EnsureKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load database key: %w", err)
	}
	return NewStore(dataDir, key)
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if err := checkKeySize(key); err != nil {
		return nil, err
	}
	return key, nil
}

func checkKeySize(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return nil
}

var (
	_ domain.KeyProvider = (*KeyFile)(nil)
	_ domain.KeyProvider = (*StaticKey)(nil)
)
