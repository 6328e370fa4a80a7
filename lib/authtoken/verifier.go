// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authtoken

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/bureau-foundation/tandem/lib/clock"
)

// Identity is what a verified credential resolves to.
type Identity struct {
	UserID      string
	DisplayName string
	ExpiresAt   time.Time
}

// Verifier checks credentials against one public key.
type Verifier struct {
	PublicKey ed25519.PublicKey
	Audience  string
	Blacklist *Blacklist
	Clock     clock.Clock
}

// NewVerifier returns a Verifier for the default audience with an
// empty blacklist.
func NewVerifier(publicKey ed25519.PublicKey, clk clock.Clock) *Verifier {
	return &Verifier{
		PublicKey: publicKey,
		Audience:  DefaultAudience,
		Blacklist: NewBlacklist(),
		Clock:     clk,
	}
}

// Authenticate verifies credential and returns the identity it
// carries. A credential without a name uses the user id as its
// display name.
func (v *Verifier) Authenticate(_ context.Context, credential string) (Identity, error) {
	token, err := VerifyAt(v.PublicKey, credential, v.Clock.Now())
	if err != nil {
		return Identity{}, err
	}
	if token.Audience != v.Audience {
		return Identity{}, fmt.Errorf("%w: got %q, want %q", ErrAudienceMismatch, token.Audience, v.Audience)
	}
	if v.Blacklist != nil && v.Blacklist.IsRevoked(token.ID) {
		return Identity{}, ErrRevoked
	}

	name := token.Name
	if name == "" {
		name = token.Subject
	}
	return Identity{
		UserID:      token.Subject,
		DisplayName: name,
		ExpiresAt:   time.Unix(token.ExpiresAt, 0),
	}, nil
}
