// Package auth manages the bearer token that protects engine control on the
// local API. backdesk and deskctl share it through a file in the user config
// directory.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Auto asks backdesk to generate and persist a token.
const Auto = "auto"

const tokenPrefix = "bd_"

// HashKey returns a SHA-256 hash of the key.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Fingerprint identifies a token in logs without revealing it.
func Fingerprint(token string) string {
	return HashKey(token)[:12]
}

// Generate returns a new random token.
func Generate() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenPrefix + hex.EncodeToString(b), nil
}

// DefaultPath is where the shared token is stored.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "backdesk", "token"), nil
}

// Load reads a token file. A missing file returns fs.ErrNotExist.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

// LoadOrCreate returns the token stored at path, creating one readable only
// by the current user when none exists.
func LoadOrCreate(path string) (string, error) {
	token, err := Load(path)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	token, err = Generate()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write token: %w", err)
	}
	return token, nil
}
