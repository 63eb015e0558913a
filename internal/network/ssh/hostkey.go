package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	gossh "golang.org/x/crypto/ssh"
)

// GenerateHostKey returns a new ed25519 private key in OpenSSH PEM form.
func GenerateHostKey() ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	block, err := gossh.MarshalPrivateKey(priv, "samizdat host key")
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(block), nil
}

// WriteHostKey creates a host key at path unless one is already there. It
// reports whether a new key was written.
func WriteHostKey(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	key, err := GenerateHostKey()
	if err != nil {
		return false, fmt.Errorf("generate host key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return false, err
	}
	return true, nil
}
