// Package domain defines the audit record persisted for every key and transaction operation step.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/e2ee/internal/errors"
)

// AuditRecord is one operation step (start, success or error) of a module.
// Context is already redacted: it never carries key material, passphrases or plaintext.
type AuditRecord struct {
	ID          uuid.UUID
	Module      string
	Action      string
	Context     map[string]any
	Signature   []byte
	MasterKeyID string
	IsSigned    bool
	CreatedAt   time.Time
}

var (
	// ErrSignatureInvalid indicates a record no longer matches its signature.
	ErrSignatureInvalid = errors.Wrap(errors.ErrForbidden, "audit record signature invalid")

	// ErrInvalidTimeRange indicates a verification range whose end is not after its start.
	ErrInvalidTimeRange = errors.Wrap(errors.ErrInvalidInput, "end date must be after start date")

	// ErrInvalidRetention indicates a negative retention period.
	ErrInvalidRetention = errors.Wrap(errors.ErrInvalidInput, "days must be zero or positive")
)
