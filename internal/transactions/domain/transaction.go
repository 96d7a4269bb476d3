package domain

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDPrefix starts every transaction id.
const IDPrefix = "txn_"

// Status is the state of a Transaction.
type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusEncrypting Status = "encrypting"
	StatusDecrypting Status = "decrypting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// AllStatuses lists every status, in lifecycle order.
var AllStatuses = []Status{
	StatusPending, StatusActive, StatusEncrypting, StatusDecrypting, StatusCompleted, StatusFailed,
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusActive, StatusFailed},
	StatusActive:     {StatusEncrypting, StatusDecrypting, StatusCompleted, StatusFailed},
	StatusEncrypting: {StatusActive, StatusFailed},
	StatusDecrypting: {StatusActive, StatusFailed},
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is completed or failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Operation is the last cipher operation performed in a transaction.
type Operation string

const (
	OperationEncrypt Operation = "encrypt"
	OperationDecrypt Operation = "decrypt"
)

// Metadata keys maintained by the transaction manager.
const (
	MetaE2EEEnabled    = "e2ee_enabled"
	MetaOperationCount = "operation_count"
	MetaFailureReason  = "failure_reason"
)

// Transaction groups encrypt and decrypt calls of one user under one id.
type Transaction struct {
	ID          string
	UserID      int64
	Operation   Operation
	Status      Status
	E2EEEnabled bool
	Metadata    map[string]any
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NewTransactionID returns txn_ followed by a UUIDv7.
func NewTransactionID() string {
	return IDPrefix + uuid.Must(uuid.NewV7()).String()
}

// IsTransactionID reports whether id has the txn_<uuid> shape.
func IsTransactionID(id string) bool {
	rest, ok := strings.CutPrefix(id, IDPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

// Transition moves the transaction to next. Completing stamps CompletedAt.
func (t *Transaction) Transition(next Status, now time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	t.Status = next
	t.UpdatedAt = now
	if next == StatusCompleted {
		t.CompletedAt = &now
	}
	return nil
}

// MergeMetadata copies values into the transaction metadata.
func (t *Transaction) MergeMetadata(values map[string]any) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]any, len(values))
	}
	maps.Copy(t.Metadata, values)
}

// OperationCount returns how many cipher operations succeeded so far.
func (t *Transaction) OperationCount() int64 {
	switch v := t.Metadata[MetaOperationCount].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Clone returns a copy that shares no metadata map with t.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Metadata = maps.Clone(t.Metadata)
	if t.CompletedAt != nil {
		completedAt := *t.CompletedAt
		c.CompletedAt = &completedAt
	}
	return &c
}

// RequestInfo is the provenance of the call that started a transaction.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}

type requestInfoKey struct{}

// WithRequestInfo attaches request provenance to ctx.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the provenance attached by WithRequestInfo, if any.
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// Stats aggregates transactions.
type Stats struct {
	Total       int64
	ByStatus    map[Status]int64
	ByOperation map[Operation]int64
	E2EEEnabled int64
}

// EncryptedPayload is the output of an encryption inside a transaction. Tag is
// optional on input, in which case Ciphertext carries it at the end.
type EncryptedPayload struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	Tag        []byte `json:"tag,omitempty"`
}
