// Package service signs and verifies audit records.
package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	auditDomain "github.com/allisson/e2ee/internal/audit/domain"
	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

// AuditSigner computes tamper-evident signatures over audit records.
type AuditSigner interface {
	Sign(masterKey []byte, record *auditDomain.AuditRecord) ([]byte, error)
	Verify(masterKey []byte, record *auditDomain.AuditRecord) error
}

type auditSigner struct{}

// NewAuditSigner creates an HMAC-SHA256 signer whose key is derived from a system
// master key with HKDF-SHA256.
func NewAuditSigner() AuditSigner {
	return &auditSigner{}
}

// deriveSigningKey separates the signing key from the wrapping use of the master key.
func (a *auditSigner) deriveSigningKey(masterKey []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, masterKey, nil, []byte("audit-record-signing-v1"))

	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(reader, signingKey); err != nil {
		return nil, err
	}

	return signingKey, nil
}

// canonicalize encodes id || module || action || context || master_key_id || created_at,
// variable fields length prefixed.
func (a *auditSigner) canonicalize(record *auditDomain.AuditRecord) ([]byte, error) {
	buf := make([]byte, 0, 512)

	buf = append(buf, record.ID[:]...)
	buf = appendLengthPrefixed(buf, []byte(record.Module))
	buf = appendLengthPrefixed(buf, []byte(record.Action))

	if record.Context != nil {
		// encoding/json sorts map keys, so the encoding is deterministic.
		contextBytes, err := json.Marshal(record.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal context: %w", err)
		}
		buf = appendLengthPrefixed(buf, contextBytes)
	} else {
		buf = appendLengthPrefixed(buf, nil)
	}

	buf = appendLengthPrefixed(buf, []byte(record.MasterKeyID))
	buf = binary.BigEndian.AppendUint64(buf, uint64(record.CreatedAt.UnixNano()))

	return buf, nil
}

func appendLengthPrefixed(buf []byte, data []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

// Sign returns the 32-byte HMAC of the canonical record.
func (a *auditSigner) Sign(masterKey []byte, record *auditDomain.AuditRecord) ([]byte, error) {
	signingKey, err := a.deriveSigningKey(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	defer cryptoDomain.Zero(signingKey)

	canonical, err := a.canonicalize(record)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize record: %w", err)
	}

	mac := hmac.New(sha256.New, signingKey)
	mac.Write(canonical)
	return mac.Sum(nil), nil
}

// Verify returns ErrSignatureInvalid when the record was altered.
func (a *auditSigner) Verify(masterKey []byte, record *auditDomain.AuditRecord) error {
	expected, err := a.Sign(masterKey, record)
	if err != nil {
		return fmt.Errorf("failed to compute expected signature: %w", err)
	}

	if !hmac.Equal(record.Signature, expected) {
		return auditDomain.ErrSignatureInvalid
	}

	return nil
}
