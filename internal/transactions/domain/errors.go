// Package domain defines encryption transactions: bookkeeping scopes around
// encrypt and decrypt calls.
package domain

import (
	"github.com/allisson/e2ee/internal/errors"
)

var (
	// ErrInvalidUser indicates a user id that is not positive.
	ErrInvalidUser = errors.Wrap(errors.ErrInvalidInput, "invalid user id")

	// ErrTransactionNotFound indicates no transaction exists with the given id.
	ErrTransactionNotFound = errors.Wrap(errors.ErrNotFound, "transaction not found")

	// ErrInvalidOrInactiveTransaction indicates a transaction that is missing, owned by
	// another user or not active.
	ErrInvalidOrInactiveTransaction = errors.Wrap(errors.ErrConflict, "invalid or inactive transaction")

	// ErrInvalidTransition indicates a status change the state machine does not allow.
	ErrInvalidTransition = errors.Wrap(errors.ErrConflict, "invalid transaction status transition")

	// ErrInvalidEncryptedDataFormat indicates an encrypted payload that is not {ciphertext, iv, tag?}.
	ErrInvalidEncryptedDataFormat = errors.Wrap(errors.ErrInvalidInput, "invalid encrypted data format")

	// ErrInvalidRetention indicates a negative cleanup age.
	ErrInvalidRetention = errors.Wrap(errors.ErrInvalidInput, "days must be zero or positive")

	// ErrReasonRequired indicates FailTransaction without a reason.
	ErrReasonRequired = errors.Wrap(errors.ErrInvalidInput, "reason is required")
)
