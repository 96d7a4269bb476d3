package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

// Status is the lifecycle state of an EncryptionKey.
type Status string

const (
	StatusActive   Status = "active"
	StatusRotated  Status = "rotated"
	StatusExpired  Status = "expired"
	StatusRevoked  Status = "revoked"
	StatusRestored Status = "restored"
)

var transitions = map[Status][]Status{
	StatusActive:   {StatusRotated, StatusExpired, StatusRevoked, StatusRestored},
	StatusRestored: {StatusRotated, StatusRevoked},
	StatusRotated:  {StatusRevoked},
}

// CanTransitionTo reports whether a key in status s may move to next.
// Nothing ever returns to active.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Revocable reports whether RevokeUserKey applies to keys in status s.
func (s Status) Revocable() bool {
	return s.CanTransitionTo(StatusRevoked)
}

// Metadata keys recorded on key provenance.
const (
	MetaRotationReason     = "rotation_reason"
	MetaRotatedToKeyID     = "rotated_to_key_id"
	MetaRotatedFromKeyID   = "rotated_from_key_id"
	MetaForcedRotation     = "forced_rotation"
	MetaRevocationReason   = "revocation_reason"
	MetaRestoredFromBackup = "restored_from_backup"
	MetaRestoredFromKeyID  = "restored_from_key_id"
	MetaBackupDate         = "backup_date"
	MetaSupersededByKeyID  = "superseded_by_key_id"
	MetaProtectionDropped  = "passphrase_protection_dropped"
)

// EncryptionKey is one generation of a user's key pair.
//
// The per-user master key is wrapped either by a system master key (MasterKeyID set)
// or by a passphrase-derived key (PassphraseSalt set). The user key, which encrypts
// data, is always wrapped by the per-user master key. MasterKey and UserKey hold the
// unwrapped material in memory only.
type EncryptionKey struct {
	ID        uuid.UUID
	UserID    int64
	Algorithm cryptoDomain.Algorithm
	KeyLength int
	Status    Status

	MasterKeyID        string
	EncryptedMasterKey []byte
	MasterKeyNonce     []byte

	PassphraseSalt       []byte
	PassphraseIterations int
	PassphraseVerifier   string

	EncryptedUserKey []byte
	UserKeyNonce     []byte

	MasterKey []byte `json:"-"`
	UserKey   []byte `json:"-"`

	Metadata  map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time
	RotatedAt *time.Time
	RevokedAt *time.Time
	UpdatedAt time.Time
}

// IsProtected reports whether the per-user master key is wrapped by a passphrase.
func (k *EncryptionKey) IsProtected() bool {
	return len(k.PassphraseSalt) > 0
}

// IsExpired reports whether now is past the key's expiry.
func (k *EncryptionKey) IsExpired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

// Transition moves the key to next, stamping rotated_at or revoked_at.
func (k *EncryptionKey) Transition(next Status, now time.Time) error {
	if !k.Status.CanTransitionTo(next) {
		return ErrInvalidStatusTransition
	}
	k.Status = next
	k.UpdatedAt = now
	switch next {
	case StatusRotated:
		k.RotatedAt = &now
	case StatusRevoked:
		k.RevokedAt = &now
	}
	return nil
}

// SetMetadata records a provenance entry.
func (k *EncryptionKey) SetMetadata(key string, value any) {
	if k.Metadata == nil {
		k.Metadata = make(map[string]any)
	}
	k.Metadata[key] = value
}

// Zero wipes the unwrapped material.
func (k *EncryptionKey) Zero() {
	cryptoDomain.Zero(k.MasterKey, k.UserKey)
	k.MasterKey = nil
	k.UserKey = nil
}

// UserMasterKeyAAD binds a wrapped per-user master key to its owner.
func UserMasterKeyAAD(userID int64) []byte {
	return aad("user-master-key", userID)
}

// UserKeyAAD binds a wrapped user key to its owner.
func UserKeyAAD(userID int64) []byte {
	return aad("user-key", userID)
}

func aad(label string, userID int64) []byte {
	return strconv.AppendInt([]byte(label+":"), userID, 10)
}
