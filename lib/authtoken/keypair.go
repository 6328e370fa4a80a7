// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authtoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
)

// GenerateKeypair creates a new Ed25519 signing keypair.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return public, private, nil
}

// SaveKeypair writes the private key to privatePath (mode 0600) and
// the public key to privatePath+".pub" (mode 0644).
func SaveKeypair(privatePath string, public ed25519.PublicKey, private ed25519.PrivateKey) error {
	if err := os.WriteFile(privatePath, private, 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(privatePath+".pub", public, 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// LoadPrivateKey reads a raw Ed25519 private key file.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key %s has %d bytes, want %d", path, len(data), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(data), nil
}

// LoadPublicKey reads a raw Ed25519 public key file.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key %s has %d bytes, want %d", path, len(data), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(data), nil
}
