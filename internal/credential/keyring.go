// Package credential keeps remote session tokens in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "jobline"

// ErrNoToken is returned when no token is stored for a server.
var ErrNoToken = errors.New("no stored token; run jl remote login")

// Tokens stores one bearer token per server URL.
type Tokens struct {
	Ring keyring.Keyring
}

// Open returns Tokens backed by the platform keyring, falling back to an encrypted
// file under dir.
func Open(dir string) (Tokens, error) {
	if dir == "" {
		dir = "~/.config/jobline/credentials"
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("jobline-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return Tokens{}, fmt.Errorf("opening keyring: %w", err)
	}
	return Tokens{Ring: ring}, nil
}

func key(server string) string {
	return "token:" + strings.TrimRight(strings.TrimSpace(server), "/")
}

// Get returns the token stored for server.
func (t Tokens) Get(server string) (string, error) {
	item, err := t.Ring.Get(key(server))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("getting token for %q: %w", server, err)
	}
	return string(item.Data), nil
}

func (t Tokens) Set(server, token string) error {
	err := t.Ring.Set(keyring.Item{
		Key:   key(server),
		Data:  []byte(token),
		Label: "jobline session " + server,
	})
	if err != nil {
		return fmt.Errorf("setting token for %q: %w", server, err)
	}
	return nil
}

// Delete removes the token for server. A missing token is not an error.
func (t Tokens) Delete(server string) error {
	err := t.Ring.Remove(key(server))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting token for %q: %w", server, err)
	}
	return nil
}
