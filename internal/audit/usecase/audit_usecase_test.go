package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/e2ee/internal/audit/domain"
	auditService "github.com/allisson/e2ee/internal/audit/service"
	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

type mockAuditRecordRepository struct {
	mock.Mock
}

func (m *mockAuditRecordRepository) Create(ctx context.Context, record *auditDomain.AuditRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *mockAuditRecordRepository) List(
	ctx context.Context,
	offset, limit int,
	createdAtFrom, createdAtTo *time.Time,
) ([]*auditDomain.AuditRecord, error) {
	args := m.Called(ctx, offset, limit, createdAtFrom, createdAtTo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auditDomain.AuditRecord), args.Error(1)
}

func (m *mockAuditRecordRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time, dryRun bool) (int64, error) {
	args := m.Called(ctx, olderThan, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

// memoryAuditRepository keeps records in a slice for round-trip tests.
type memoryAuditRepository struct {
	mu      sync.Mutex
	records []*auditDomain.AuditRecord
}

func (m *memoryAuditRepository) Create(_ context.Context, record *auditDomain.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memoryAuditRepository) List(
	_ context.Context,
	offset, limit int,
	_, _ *time.Time,
) ([]*auditDomain.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offset >= len(m.records) {
		return []*auditDomain.AuditRecord{}, nil
	}
	end := min(offset+limit, len(m.records))
	return m.records[offset:end], nil
}

func (m *memoryAuditRepository) DeleteOlderThan(context.Context, time.Time, bool) (int64, error) {
	return 0, nil
}

func testChain(t *testing.T) *cryptoDomain.MasterKeyChain {
	t.Helper()
	chain, err := cryptoDomain.NewMasterKeyChain("mk-1", &cryptoDomain.MasterKey{
		ID:  "mk-1",
		Key: bytes.Repeat([]byte{1}, cryptoDomain.KeySize),
	})
	require.NoError(t, err)
	return chain
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuditUseCase_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_SignedAndRedacted", func(t *testing.T) {
		repo := &memoryAuditRepository{}
		uc := NewAuditUseCase(repo, auditService.NewAuditSigner(), testChain(t), discardLogger())

		uc.Record(ctx, "keys", "backup_user_keys_start", map[string]any{
			"user_id":         int64(42),
			"backup_password": "hunter2",
		})

		require.Len(t, repo.records, 1)
		record := repo.records[0]
		assert.Equal(t, "keys", record.Module)
		assert.Equal(t, "backup_user_keys_start", record.Action)
		assert.Equal(t, "[REDACTED]", record.Context["backup_password"])
		assert.True(t, record.IsSigned)
		assert.Equal(t, "mk-1", record.MasterKeyID)
		assert.Len(t, record.Signature, 32)
	})

	t.Run("Success_UnsignedWithoutChain", func(t *testing.T) {
		repo := &memoryAuditRepository{}
		uc := NewAuditUseCase(repo, auditService.NewAuditSigner(), nil, discardLogger())

		uc.Record(ctx, "transactions", "start_transaction_success", nil)

		require.Len(t, repo.records, 1)
		assert.False(t, repo.records[0].IsSigned)
		assert.Empty(t, repo.records[0].Signature)
	})

	t.Run("Success_RepositoryFailureIsSwallowed", func(t *testing.T) {
		repo := &mockAuditRecordRepository{}
		repo.On("Create", ctx, mock.AnythingOfType("*domain.AuditRecord")).Return(errors.New("db down"))

		var buf bytes.Buffer
		uc := NewAuditUseCase(repo, auditService.NewAuditSigner(), testChain(t), slog.New(slog.NewTextHandler(&buf, nil)))

		assert.NotPanics(t, func() {
			uc.Record(ctx, "keys", "rotate_keys_error", nil)
		})
		assert.Contains(t, buf.String(), "failed to persist audit record")
		repo.AssertExpectations(t)
	})
}

func TestAuditUseCase_VerifyBatch(t *testing.T) {
	ctx := context.Background()
	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)

	t.Run("Success_DetectsTampering", func(t *testing.T) {
		repo := &memoryAuditRepository{}
		uc := NewAuditUseCase(repo, auditService.NewAuditSigner(), testChain(t), discardLogger())

		uc.Record(ctx, "keys", "generate_keys_start", map[string]any{"user_id": 1})
		uc.Record(ctx, "keys", "generate_keys_success", map[string]any{"user_id": 1})
		repo.records = append(repo.records, &auditDomain.AuditRecord{Module: "keys", Action: "legacy"})

		repo.records[1].Action = "generate_keys_error"

		report, err := uc.VerifyBatch(ctx, start, end)
		require.NoError(t, err)
		assert.Equal(t, int64(3), report.TotalChecked)
		assert.Equal(t, int64(2), report.SignedCount)
		assert.Equal(t, int64(1), report.UnsignedCount)
		assert.Equal(t, int64(1), report.ValidCount)
		assert.Equal(t, int64(1), report.InvalidCount)
		assert.Equal(t, repo.records[1].ID, report.InvalidRecords[0])
	})

	t.Run("Success_UnknownMasterKeyIsInvalid", func(t *testing.T) {
		repo := &memoryAuditRepository{}
		uc := NewAuditUseCase(repo, auditService.NewAuditSigner(), testChain(t), discardLogger())

		uc.Record(ctx, "keys", "generate_keys_start", nil)
		repo.records[0].MasterKeyID = "retired"

		report, err := uc.VerifyBatch(ctx, start, end)
		require.NoError(t, err)
		assert.Equal(t, int64(1), report.InvalidCount)
	})

	t.Run("Error_InvalidRange", func(t *testing.T) {
		uc := NewAuditUseCase(&memoryAuditRepository{}, auditService.NewAuditSigner(), nil, discardLogger())

		_, err := uc.VerifyBatch(ctx, end, start)
		assert.ErrorIs(t, err, auditDomain.ErrInvalidTimeRange)
	})

	t.Run("Error_Repository", func(t *testing.T) {
		repo := &mockAuditRecordRepository{}
		repo.On("List", ctx, 0, verifyPageSize, mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
		uc := NewAuditUseCase(repo, auditService.NewAuditSigner(), nil, discardLogger())

		_, err := uc.VerifyBatch(ctx, start, end)
		assert.Error(t, err)
	})
}

func TestAuditUseCase_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo := &mockAuditRecordRepository{}
		repo.On("DeleteOlderThan", ctx, mock.AnythingOfType("time.Time"), true).Return(int64(4), nil)
		uc := NewAuditUseCase(repo, auditService.NewAuditSigner(), nil, discardLogger())

		count, err := uc.DeleteOlderThan(ctx, 30, true)
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)

		cutoff := repo.Calls[0].Arguments.Get(1).(time.Time)
		assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, -30), cutoff, time.Minute)
	})

	t.Run("Error_NegativeDays", func(t *testing.T) {
		uc := NewAuditUseCase(&mockAuditRecordRepository{}, auditService.NewAuditSigner(), nil, discardLogger())

		_, err := uc.DeleteOlderThan(ctx, -1, false)
		assert.ErrorIs(t, err, auditDomain.ErrInvalidRetention)
	})
}
