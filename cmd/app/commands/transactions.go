package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	transactionsUseCase "github.com/allisson/e2ee/internal/transactions/usecase"
)

// RunCleanupTransactions deletes completed transactions older than days.
func RunCleanupTransactions(
	ctx context.Context,
	transactionUseCase transactionsUseCase.TransactionUseCase,
	logger *slog.Logger,
	writer io.Writer,
	days int,
	format string,
) error {
	if days < 0 {
		return fmt.Errorf("days must be a positive number, got: %d", days)
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	count, err := transactionUseCase.CleanupOldTransactions(ctx, days)
	if err != nil {
		return fmt.Errorf("failed to clean up transactions: %w", err)
	}

	logger.Info("transactions cleaned up", slog.Int64("count", count), slog.Int("days", days))

	if format == formatJSON {
		return writeJSON(writer, map[string]any{"count": count, "days": days})
	}
	_, _ = fmt.Fprintf(writer, "Successfully deleted %d completed transaction(s) older than %d day(s)\n", count, days)
	return nil
}

// RunTransactionStats prints transaction counts by status and operation.
func RunTransactionStats(
	ctx context.Context,
	transactionUseCase transactionsUseCase.TransactionUseCase,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	stats, err := transactionUseCase.GetStatistics(ctx)
	if err != nil {
		return fmt.Errorf("failed to get transaction statistics: %w", err)
	}

	if format == formatJSON {
		byStatus := make(map[string]int64, len(stats.ByStatus))
		for status, count := range stats.ByStatus {
			byStatus[string(status)] = count
		}
		byOperation := make(map[string]int64, len(stats.ByOperation))
		for op, count := range stats.ByOperation {
			byOperation[string(op)] = count
		}
		return writeJSON(writer, map[string]any{
			"total":        stats.Total,
			"by_status":    byStatus,
			"by_operation": byOperation,
			"e2ee_enabled": stats.E2EEEnabled,
		})
	}

	_, _ = fmt.Fprintln(writer, "Transaction Statistics")
	_, _ = fmt.Fprintln(writer, "======================")
	_, _ = fmt.Fprintf(writer, "Total:         %d\n", stats.Total)
	_, _ = fmt.Fprintf(writer, "E2EE Enabled:  %d\n", stats.E2EEEnabled)

	_, _ = fmt.Fprintln(writer, "\nBy Status:")
	for _, status := range slices.Sorted(maps.Keys(stats.ByStatus)) {
		_, _ = fmt.Fprintf(writer, "  %-12s %d\n", status, stats.ByStatus[status])
	}
	_, _ = fmt.Fprintln(writer, "\nBy Operation:")
	for _, op := range slices.Sorted(maps.Keys(stats.ByOperation)) {
		_, _ = fmt.Fprintf(writer, "  %-12s %d\n", op, stats.ByOperation[op])
	}
	return nil
}

// RunGetTransaction prints one transaction.
func RunGetTransaction(
	ctx context.Context,
	transactionUseCase transactionsUseCase.TransactionUseCase,
	writer io.Writer,
	txID, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	tx, err := transactionUseCase.GetTransaction(ctx, txID)
	if err != nil {
		return fmt.Errorf("failed to get transaction: %w", err)
	}

	view := map[string]any{
		"id":              tx.ID,
		"user_id":         tx.UserID,
		"operation":       string(tx.Operation),
		"status":          string(tx.Status),
		"e2ee_enabled":    tx.E2EEEnabled,
		"operation_count": tx.OperationCount(),
		"metadata":        tx.Metadata,
		"created_at":      tx.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":      tx.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if tx.CompletedAt != nil {
		view["completed_at"] = tx.CompletedAt.UTC().Format(time.RFC3339)
	}

	if format == formatJSON {
		return writeJSON(writer, view)
	}

	_, _ = fmt.Fprintf(writer, "ID:          %s\n", tx.ID)
	_, _ = fmt.Fprintf(writer, "User ID:     %d\n", tx.UserID)
	_, _ = fmt.Fprintf(writer, "Status:      %s\n", tx.Status)
	_, _ = fmt.Fprintf(writer, "Operation:   %s\n", tx.Operation)
	_, _ = fmt.Fprintf(writer, "E2EE:        %t\n", tx.E2EEEnabled)
	_, _ = fmt.Fprintf(writer, "Operations:  %d\n", tx.OperationCount())
	_, _ = fmt.Fprintf(writer, "Created At:  %s\n", view["created_at"])
	return nil
}
