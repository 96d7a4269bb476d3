// Package service provides the Argon2id verifier stored with passphrase-protected keys.
package service

import (
	"github.com/allisson/go-pwdhash"

	apperrors "github.com/allisson/e2ee/internal/errors"
)

// PassphraseVerifier hashes passphrases and checks them against stored hashes.
type PassphraseVerifier interface {
	Hash(passphrase string) (string, error)
	Verify(passphrase, hash string) bool
}

type passphraseVerifier struct {
	hasher *pwdhash.PasswordHasher
}

// NewPassphraseVerifier creates a verifier with the interactive Argon2id policy.
func NewPassphraseVerifier() PassphraseVerifier {
	hasher, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyInteractive))
	if err != nil {
		// Only reachable with an invalid built-in policy.
		panic(err)
	}
	return &passphraseVerifier{hasher: hasher}
}

func (p *passphraseVerifier) Hash(passphrase string) (string, error) {
	hash, err := p.hasher.Hash([]byte(passphrase))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to hash passphrase")
	}
	return hash, nil
}

// Verify compares in constant time. Malformed hashes never verify.
func (p *passphraseVerifier) Verify(passphrase, hash string) bool {
	ok, err := p.hasher.Verify([]byte(passphrase), hash)
	if err != nil {
		return false
	}
	return ok
}
