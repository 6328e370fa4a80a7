// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authtoken

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/tandem/lib/codec"
)

const signatureSize = ed25519.SignatureSize

// DefaultAudience is the audience tandem servers accept unless
// configured otherwise.
const DefaultAudience = "tandem"

// Token is the signed payload of a credential.
type Token struct {
	// Subject is the user id the credential authenticates.
	Subject string `cbor:"1,keyasint"`

	// Name is the display name shown to other participants.
	Name string `cbor:"2,keyasint,omitempty"`

	// Audience scopes the credential to one deployment.
	Audience string `cbor:"3,keyasint"`

	// ID identifies the credential for revocation.
	ID string `cbor:"4,keyasint"`

	// IssuedAt and ExpiresAt are Unix seconds.
	IssuedAt  int64 `cbor:"5,keyasint"`
	ExpiresAt int64 `cbor:"6,keyasint"`
}

var (
	ErrMalformed        = errors.New("authtoken: malformed credential")
	ErrInvalidSignature = errors.New("authtoken: invalid signature")
	ErrExpired          = errors.New("authtoken: credential has expired")
	ErrAudienceMismatch = errors.New("authtoken: audience does not match")
	ErrRevoked          = errors.New("authtoken: credential has been revoked")
)

// Mint signs token and returns the wire text.
func Mint(privateKey ed25519.PrivateKey, token *Token) (string, error) {
	if token.Subject == "" {
		return "", fmt.Errorf("authtoken: subject is required")
	}
	payload, err := codec.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("authtoken: encoding payload: %w", err)
	}
	signature := ed25519.Sign(privateKey, payload)

	raw := make([]byte, 0, len(payload)+signatureSize)
	raw = append(raw, payload...)
	raw = append(raw, signature...)
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// VerifyAt decodes the wire text, checks the signature, and checks
// expiry against now. Audience and revocation are the Verifier's job.
func VerifyAt(publicKey ed25519.PublicKey, text string, now time.Time) (*Token, error) {
	raw, err := base64.RawURLEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) <= signatureSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrMalformed, len(raw))
	}

	split := len(raw) - signatureSize
	payload, signature := raw[:split], raw[split:]
	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var token Token
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if token.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrMalformed)
	}
	if now.Unix() >= token.ExpiresAt {
		return nil, ErrExpired
	}
	return &token, nil
}
