package domain

import (
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

// PassphraseWrap is the user key wrapped under the passphrase-derived key, with the
// parameters needed to derive that key again.
type PassphraseWrap struct {
	EncryptedUserKey []byte
	Nonce            []byte
	Salt             []byte
	Iterations       int
}

// KeyBundle is the unwrapped material of a user's active key.
//
// A bundle restored from a passphrase-protected backup is Locked: it carries no
// material until GetKeys is called with the passphrase.
type KeyBundle struct {
	KeyID     uuid.UUID
	UserID    int64
	Algorithm cryptoDomain.Algorithm
	MasterKey []byte `json:"-"`
	UserKey   []byte `json:"-"`
	ExpiresAt time.Time
	Protected bool
	Locked    bool
	Wrap      *PassphraseWrap
}

// NewKeyBundle builds a bundle from an unwrapped key.
func NewKeyBundle(key *EncryptionKey) *KeyBundle {
	return &KeyBundle{
		KeyID:     key.ID,
		UserID:    key.UserID,
		Algorithm: key.Algorithm,
		MasterKey: key.MasterKey,
		UserKey:   key.UserKey,
		ExpiresAt: key.ExpiresAt,
		Protected: key.IsProtected(),
		Locked:    len(key.UserKey) == 0,
	}
}

// Zero wipes the key material.
func (b *KeyBundle) Zero() {
	cryptoDomain.Zero(b.MasterKey, b.UserKey)
}
