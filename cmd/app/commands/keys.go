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

// keyView is the printable part of a key bundle. Key material never leaves the process.
type keyView struct {
	KeyID     string `json:"key_id"`
	UserID    int64  `json:"user_id"`
	Algorithm string `json:"algorithm"`
	ExpiresAt string `json:"expires_at"`
	Protected bool   `json:"passphrase_protected"`
}

func newKeyView(bundle *keysDomain.KeyBundle) keyView {
	return keyView{
		KeyID:     bundle.KeyID.String(),
		UserID:    bundle.UserID,
		Algorithm: string(bundle.Algorithm),
		ExpiresAt: bundle.ExpiresAt.UTC().Format(time.RFC3339),
		Protected: bundle.Protected,
	}
}

func outputKey(writer io.Writer, format, title string, bundle *keysDomain.KeyBundle) error {
	view := newKeyView(bundle)
	if format == formatJSON {
		return writeJSON(writer, view)
	}

	_, _ = fmt.Fprintln(writer, title)
	_, _ = fmt.Fprintf(writer, "Key ID:      %s\n", view.KeyID)
	_, _ = fmt.Fprintf(writer, "User ID:     %d\n", view.UserID)
	_, _ = fmt.Fprintf(writer, "Algorithm:   %s\n", view.Algorithm)
	_, _ = fmt.Fprintf(writer, "Expires At:  %s\n", view.ExpiresAt)
	_, _ = fmt.Fprintf(writer, "Protected:   %t\n", view.Protected)
	return nil
}

// RunGenerateKeys creates a new active key for userID, rotating the current one.
// A non-empty passphrase protects the per-user master key.
func RunGenerateKeys(
	ctx context.Context,
	keyUseCase keysUseCase.KeyUseCase,
	logger *slog.Logger,
	writer io.Writer,
	userID int64,
	passphrase, format string,
) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("generating keys", slog.Int64("user_id", userID), slog.Bool("protected", passphrase != ""))

	bundle, err := keyUseCase.GenerateKeys(ctx, userID, passphrase)
	if err != nil {
		return fmt.Errorf("failed to generate keys: %w", err)
	}
	defer bundle.Zero()

	return outputKey(writer, format, "Keys generated", bundle)
}

// RunRotateKeys replaces the active key of userID. With force the expiry policy is
// bypassed and reason is recorded on both keys.
func RunRotateKeys(
	ctx context.Context,
	keyUseCase keysUseCase.KeyUseCase,
	logger *slog.Logger,
	writer io.Writer,
	userID int64,
	passphrase string,
	force bool,
	reason, format string,
) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := validateFormat(format); err != nil {
		return err
	}
	if force && reason == "" {
		return fmt.Errorf("--reason is required with --force")
	}

	logger.Info("rotating keys", slog.Int64("user_id", userID), slog.Bool("force", force))

	if !force {
		bundle, err := keyUseCase.RotateKeys(ctx, userID, passphrase)
		if err != nil {
			return fmt.Errorf("failed to rotate keys: %w", err)
		}
		defer bundle.Zero()
		return outputKey(writer, format, "Keys rotated", bundle)
	}

	key, err := keyUseCase.ForceKeyRotation(ctx, userID, reason)
	if err != nil {
		return fmt.Errorf("failed to force key rotation: %w", err)
	}
	defer key.Zero()

	bundle := keysDomain.NewKeyBundle(key)
	return outputKey(writer, format, "Keys rotated (forced)", bundle)
}

// RunRevokeKeys revokes every usable key of userID.
func RunRevokeKeys(
	ctx context.Context,
	keyUseCase keysUseCase.KeyUseCase,
	logger *slog.Logger,
	writer io.Writer,
	userID int64,
	reason, format string,
) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("revoking keys", slog.Int64("user_id", userID))

	count, err := keyUseCase.RevokeUserKey(ctx, userID, reason)
	if err != nil {
		return fmt.Errorf("failed to revoke keys: %w", err)
	}

	if format == formatJSON {
		return writeJSON(writer, map[string]any{"user_id": userID, "revoked": count})
	}
	_, _ = fmt.Fprintf(writer, "Revoked %d key(s) for user %d\n", count, userID)
	return nil
}

// RunValidateKeys round-trips a sample through the active key of userID. An invalid
// key is reported and returned as an error so schedulers see a failing exit code.
func RunValidateKeys(
	ctx context.Context,
	keyUseCase keysUseCase.KeyUseCase,
	logger *slog.Logger,
	writer io.Writer,
	userID int64,
	format string,
) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	valid, err := keyUseCase.ValidateUserKeys(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to validate keys: %w", err)
	}

	logger.Info("keys validated", slog.Int64("user_id", userID), slog.Bool("valid", valid))

	if format == formatJSON {
		if err := writeJSON(writer, map[string]any{"user_id": userID, "valid": valid}); err != nil {
			return err
		}
	} else if valid {
		_, _ = fmt.Fprintf(writer, "Keys for user %d are valid\n", userID)
	} else {
		_, _ = fmt.Fprintf(writer, "Keys for user %d are NOT valid\n", userID)
	}

	if !valid {
		return fmt.Errorf("keys for user %d failed validation", userID)
	}
	return nil
}

// RunCleanupExpiredKeys marks active keys past their expiry as expired.
func RunCleanupExpiredKeys(
	ctx context.Context,
	keyUseCase keysUseCase.KeyUseCase,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	count, err := keyUseCase.CleanupExpiredKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to clean up expired keys: %w", err)
	}

	logger.Info("expired keys cleaned up", slog.Int("count", count))

	if format == formatJSON {
		return writeJSON(writer, map[string]any{"expired": count})
	}
	_, _ = fmt.Fprintf(writer, "Marked %d key(s) as expired\n", count)
	return nil
}

// RunListKeys prints the key history of userID, newest first.
func RunListKeys(
	ctx context.Context,
	keyUseCase keysUseCase.KeyUseCase,
	writer io.Writer,
	userID int64,
	format string,
) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	keys, err := keyUseCase.ListUserKeys(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if format == formatJSON {
		rows := make([]map[string]any, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, map[string]any{
				"key_id":     key.ID.String(),
				"status":     string(key.Status),
				"algorithm":  string(key.Algorithm),
				"protected":  key.IsProtected(),
				"created_at": key.CreatedAt.UTC().Format(time.RFC3339),
				"expires_at": key.ExpiresAt.UTC().Format(time.RFC3339),
				"metadata":   key.Metadata,
			})
		}
		return writeJSON(writer, rows)
	}

	if len(keys) == 0 {
		_, _ = fmt.Fprintf(writer, "No keys found for user %d\n", userID)
		return nil
	}
	for _, key := range keys {
		_, _ = fmt.Fprintf(writer, "%s  %-8s  %s  created %s  expires %s\n",
			key.ID,
			key.Status,
			key.Algorithm,
			key.CreatedAt.UTC().Format(time.DateTime),
			key.ExpiresAt.UTC().Format(time.DateTime),
		)
	}
	return nil
}
