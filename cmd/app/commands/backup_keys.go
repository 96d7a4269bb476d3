package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
	keysUseCase "github.com/allisson/e2ee/internal/keys/usecase"
)

// RunBackupKeys writes the active key of userID to backup storage, sealed under
// backupPassword, and prints the handle needed to restore it.
func RunBackupKeys(
	ctx context.Context,
	keyUseCase keysUseCase.KeyUseCase,
	logger *slog.Logger,
	writer io.Writer,
	userID int64,
	backupPassword, format string,
) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	handle, err := keyUseCase.BackupUserKeys(ctx, userID, backupPassword)
	if err != nil {
		return fmt.Errorf("failed to back up keys: %w", err)
	}

	logger.Info("keys backed up",
		slog.Int64("user_id", userID),
		slog.String("key_id", handle.KeyID.String()),
		slog.String("path", handle.Path),
	)

	if format == formatJSON {
		return writeJSON(writer, handle)
	}

	_, _ = fmt.Fprintln(writer, "Backup written")
	_, _ = fmt.Fprintf(writer, "Path:        %s\n", handle.Path)
	_, _ = fmt.Fprintf(writer, "User ID:     %d\n", handle.UserID)
	_, _ = fmt.Fprintf(writer, "Key ID:      %s\n", handle.KeyID)
	_, _ = fmt.Fprintf(writer, "Created At:  %s\n", handle.CreatedAt.UTC().Format(time.RFC3339))
	return nil
}

// RunRestoreKeys makes the key stored at path the active key of userID again.
func RunRestoreKeys(
	ctx context.Context,
	keyUseCase keysUseCase.KeyUseCase,
	logger *slog.Logger,
	writer io.Writer,
	userID int64,
	path, backupPassword, format string,
) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := validateFormat(format); err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("--path is required")
	}

	handle := &keysDomain.BackupHandle{
		Path:          path,
		UserID:        userID,
		SchemaVersion: keysDomain.BackupSchemaVersion,
	}

	bundle, err := keyUseCase.RestoreUserKeys(ctx, handle, backupPassword)
	if err != nil {
		return fmt.Errorf("failed to restore keys: %w", err)
	}
	defer bundle.Zero()

	logger.Info("keys restored",
		slog.Int64("user_id", userID),
		slog.String("key_id", bundle.KeyID.String()),
		slog.String("path", path),
	)

	title := "Keys restored"
	if bundle.Locked {
		title = "Keys restored (passphrase required to unlock)"
	}
	return outputKey(writer, format, title, bundle)
}
