package invoker

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keyring service name holding provider API keys.
const KeyringService = "council"

// ErrNoAPIKey is returned when no source yields a key.
var ErrNoAPIKey = errors.New("no API key configured")

// KeySource looks up an API key for a provider.
type KeySource interface {
	Lookup(provider string) (string, error)
}

// EnvKeySource reads a key from an environment variable.
type EnvKeySource struct {
	Var string
}

// Lookup implements KeySource.
func (e EnvKeySource) Lookup(string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(e.Var)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s is not set", ErrNoAPIKey, e.Var)
}

// KeyringKeySource reads keys stored with StoreKey.
type KeyringKeySource struct {
	Service string
}

// Lookup implements KeySource.
func (k KeyringKeySource) Lookup(provider string) (string, error) {
	v, err := keyring.Get(k.service(), provider)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: no keyring entry for %s", ErrNoAPIKey, provider)
		}
		return "", fmt.Errorf("keyring lookup for %s: %w", provider, err)
	}
	return v, nil
}

func (k KeyringKeySource) service() string {
	if k.Service == "" {
		return KeyringService
	}
	return k.Service
}

// StoreKey saves a provider key in the OS keyring.
func StoreKey(provider, key string) error {
	return keyring.Set(KeyringService, provider, key)
}

// DeleteKey removes a provider key from the OS keyring. A missing entry
// is not an error.
func DeleteKey(provider string) error {
	err := keyring.Delete(KeyringService, provider)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// ChainKeySource tries each source in order and returns the first key.
type ChainKeySource []KeySource

// Lookup implements KeySource.
func (c ChainKeySource) Lookup(provider string) (string, error) {
	var errs []error
	for _, src := range c {
		v, err := src.Lookup(provider)
		if err == nil {
			return v, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrNoAPIKey
	}
	return "", errors.Join(errs...)
}
