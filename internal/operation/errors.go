package operation

import (
	"fmt"

	apperrors "github.com/allisson/e2ee/internal/errors"
)

// Kind classifies a failed operation so callers can branch on it without
// matching concrete error values.
type Kind string

const (
	KindInvalidUser                  Kind = "InvalidUser"
	KindNoActiveKey                  Kind = "NoActiveKey"
	KindKeyExpired                   Kind = "KeyExpired"
	KindInvalidBackup                Kind = "InvalidBackup"
	KindUnsupportedBackupVersion     Kind = "UnsupportedBackupVersion"
	KindInvalidOrInactiveTransaction Kind = "InvalidOrInactiveTransaction"
	KindInvalidEncryptedDataFormat   Kind = "InvalidEncryptedDataFormat"
	KindTransactionNotFound          Kind = "TransactionNotFound"
	KindPassphraseRequired           Kind = "PassphraseRequired"
	KindInvalidPassphrase            Kind = "InvalidPassphrase"
	KindDecryptionFailed             Kind = "DecryptionFailed"
	KindRateLimited                  Kind = "RateLimited"
	KindInvalidInput                 Kind = "InvalidInput"
	KindOperationFailed              Kind = "OperationFailed"
)

// Rule maps an error (matched with errors.Is) to a Kind.
type Rule struct {
	Err  error
	Kind Kind
}

// defaultRules apply after the module specific rules.
var defaultRules = []Rule{
	{Err: apperrors.ErrInvalidInput, Kind: KindInvalidInput},
	{Err: apperrors.ErrTooManyRequests, Kind: KindRateLimited},
}

// Error is returned by every operation run through a Runner.
type Error struct {
	// Op is the failing operation name, e.g. "rotate_keys".
	Op string
	// Module is the component the operation belongs to.
	Module string
	// Kind classifies the failure.
	Kind Kind
	// Context holds the redacted operation input.
	Context map[string]any
	// FaultType is the dynamic type of the underlying error.
	FaultType string
	// Location is the file:line of the operation that failed.
	Location string
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s.%s failed (%s): %v", e.Module, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err, or KindOperationFailed when err was
// not produced by a Runner. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var opErr *Error
	if apperrors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindOperationFailed
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func classify(err error, rules []Rule) Kind {
	for _, rule := range rules {
		if apperrors.Is(err, rule.Err) {
			return rule.Kind
		}
	}
	for _, rule := range defaultRules {
		if apperrors.Is(err, rule.Err) {
			return rule.Kind
		}
	}
	return KindOperationFailed
}
