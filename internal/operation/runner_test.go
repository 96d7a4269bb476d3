package operation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/e2ee/internal/errors"
)

var errNoKey = apperrors.Wrap(apperrors.ErrNotFound, "no active key")

type recordedAudit struct {
	module string
	action string
	fields map[string]any
}

type fakeAuditor struct {
	mu      sync.Mutex
	records []recordedAudit
}

func (f *fakeAuditor) Record(_ context.Context, module, action string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, recordedAudit{module: module, action: action, fields: fields})
}

func (f *fakeAuditor) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r.action)
	}
	return out
}

func newTestRunner(buf *bytes.Buffer, auditor Auditor) *Runner {
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewRunner("keys", logger, auditor, Rule{Err: errNoKey, Kind: KindNoActiveKey})
}

func logMessages(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	var msgs []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		msgs = append(msgs, entry["msg"].(string))
	}
	return msgs
}

func TestRunner_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_LogsStartAndSuccess", func(t *testing.T) {
		var buf bytes.Buffer
		auditor := &fakeAuditor{}
		runner := newTestRunner(&buf, auditor)

		err := runner.Run(ctx, "generate_keys", map[string]any{"user_id": int64(42)}, func(ctx context.Context) error {
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"generate_keys_start", "generate_keys_success"}, logMessages(t, &buf))
		assert.Equal(t, []string{"generate_keys_start", "generate_keys_success"}, auditor.actions())
		assert.Equal(t, "keys", auditor.records[0].module)
		assert.Equal(t, int64(42), auditor.records[0].fields["user_id"])
	})

	t.Run("Error_ClassifiedByModuleRule", func(t *testing.T) {
		var buf bytes.Buffer
		auditor := &fakeAuditor{}
		runner := newTestRunner(&buf, auditor)

		err := runner.Run(ctx, "get_keys", map[string]any{"user_id": int64(42)}, func(ctx context.Context) error {
			return errNoKey
		})

		require.Error(t, err)
		var opErr *Error
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, "get_keys", opErr.Op)
		assert.Equal(t, "keys", opErr.Module)
		assert.Equal(t, KindNoActiveKey, opErr.Kind)
		assert.NotEmpty(t, opErr.FaultType)
		assert.Contains(t, opErr.Location, ".go:")
		assert.True(t, errors.Is(err, errNoKey))
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
		assert.True(t, IsKind(err, KindNoActiveKey))

		assert.Equal(t, []string{"get_keys_start", "get_keys_error"}, logMessages(t, &buf))
		assert.Equal(t, []string{"get_keys_start", "get_keys_error"}, auditor.actions())
		assert.Equal(t, string(KindNoActiveKey), auditor.records[1].fields["kind"])
	})

	t.Run("Error_DefaultRules", func(t *testing.T) {
		var buf bytes.Buffer
		runner := newTestRunner(&buf, nil)

		err := runner.Run(ctx, "restore_user_keys", nil, func(ctx context.Context) error {
			return apperrors.Wrap(apperrors.ErrTooManyRequests, "too many restore attempts")
		})
		assert.Equal(t, KindRateLimited, KindOf(err))

		err = runner.Run(ctx, "cleanup_old_transactions", nil, func(ctx context.Context) error {
			return apperrors.Wrap(apperrors.ErrInvalidInput, "days must be positive")
		})
		assert.Equal(t, KindInvalidInput, KindOf(err))
	})

	t.Run("Error_UnknownFaultIsOperationFailed", func(t *testing.T) {
		var buf bytes.Buffer
		runner := newTestRunner(&buf, nil)

		err := runner.Run(ctx, "rotate_keys", nil, func(ctx context.Context) error {
			return errors.New("connection reset")
		})

		var opErr *Error
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, KindOperationFailed, opErr.Kind)
		assert.Equal(t, "*errors.errorString", opErr.FaultType)
		assert.Contains(t, err.Error(), "keys.rotate_keys failed (OperationFailed): connection reset")
	})

	t.Run("Error_NestedOperationKeepsKind", func(t *testing.T) {
		var buf bytes.Buffer
		runner := newTestRunner(&buf, nil)

		inner := runner.Run(ctx, "get_keys", nil, func(ctx context.Context) error {
			return errNoKey
		})
		err := runner.Run(ctx, "validate_user_keys", nil, func(ctx context.Context) error {
			return inner
		})

		var opErr *Error
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, "validate_user_keys", opErr.Op)
		assert.Equal(t, KindNoActiveKey, opErr.Kind)
		assert.Equal(t, errNoKey, opErr.Err)
	})

	t.Run("Success_SensitiveFieldsNeverLogged", func(t *testing.T) {
		var buf bytes.Buffer
		auditor := &fakeAuditor{}
		runner := newTestRunner(&buf, auditor)

		fields := map[string]any{
			"user_id":         int64(1),
			"backup_password": "hunter2",
			"user_key":        []byte{1, 2, 3},
		}
		err := runner.Run(ctx, "backup_user_keys", fields, func(ctx context.Context) error {
			return errors.New("boom")
		})
		require.Error(t, err)

		assert.NotContains(t, buf.String(), "hunter2")
		for _, rec := range auditor.records {
			assert.Equal(t, redacted, rec.fields["backup_password"])
			assert.Equal(t, redacted, rec.fields["user_key"])
		}
		assert.Equal(t, "hunter2", fields["backup_password"])
	})
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	runner := newTestRunner(&buf, nil)

	t.Run("Success", func(t *testing.T) {
		count, err := Do(ctx, runner, "cleanup_expired_keys", nil, func(ctx context.Context) (int, error) {
			return 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("Error_ReturnsZeroValue", func(t *testing.T) {
		count, err := Do(ctx, runner, "cleanup_expired_keys", nil, func(ctx context.Context) (int, error) {
			return 7, errNoKey
		})
		require.Error(t, err)
		assert.Equal(t, 0, count)
		assert.Equal(t, KindNoActiveKey, KindOf(err))
	})
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindOperationFailed, KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, KindOperationFailed))
}

func TestLogAuditor(t *testing.T) {
	var buf bytes.Buffer
	auditor := NewLogAuditor(slog.New(slog.NewJSONHandler(&buf, nil)))

	auditor.Record(context.Background(), "transactions", "start_transaction_success", map[string]any{"user_id": 42})

	assert.Contains(t, buf.String(), `"module":"transactions"`)
	assert.Contains(t, buf.String(), `"action":"start_transaction_success"`)

	NoOpAuditor{}.Record(context.Background(), "keys", "x", nil)
}
