package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

// RunCreateMasterKey generates a 32-byte system master key and prints the MASTER_KEYS and
// ACTIVE_MASTER_KEY_ID lines to configure it. With kmsKeyURI the key is encrypted by the
// KMS keeper before encoding; without it the plain key is printed, which is only meant
// for local development. Key material is zeroed after encoding.
func RunCreateMasterKey(
	ctx context.Context,
	opener cryptoDomain.KeeperOpener,
	logger *slog.Logger,
	writer io.Writer,
	keyID, kmsKeyURI string,
) error {
	if keyID == "" {
		keyID = defaultMasterKeyID()
	}

	encodedKey, err := newEncodedMasterKey(ctx, opener, kmsKeyURI)
	if err != nil {
		return err
	}

	logger.Info("master key created", slog.String("master_key_id", keyID), slog.Bool("kms", kmsKeyURI != ""))

	_, _ = fmt.Fprintln(writer, "# Master Key Configuration")
	_, _ = fmt.Fprintln(writer, "# Copy these environment variables to your .env file or secrets manager")
	_, _ = fmt.Fprintln(writer)
	if kmsKeyURI != "" {
		_, _ = fmt.Fprintf(writer, "KMS_KEY_URI=\"%s\"\n", kmsKeyURI)
	}
	_, _ = fmt.Fprintf(writer, "MASTER_KEYS=\"%s:%s\"\n", keyID, encodedKey)
	_, _ = fmt.Fprintf(writer, "ACTIVE_MASTER_KEY_ID=\"%s\"\n", keyID)
	return nil
}

// RunRotateMasterKey generates a new master key and prints MASTER_KEYS with the new key
// appended and made active. Old keys stay listed so user keys wrapped under them still
// open. Rotating a user's keys moves that user onto the new active master key.
func RunRotateMasterKey(
	ctx context.Context,
	opener cryptoDomain.KeeperOpener,
	logger *slog.Logger,
	writer io.Writer,
	keyID, kmsKeyURI, existingMasterKeys, existingActiveKeyID string,
) error {
	if existingMasterKeys == "" {
		return fmt.Errorf("MASTER_KEYS is not set - cannot rotate without existing keys")
	}
	if existingActiveKeyID == "" {
		return fmt.Errorf("ACTIVE_MASTER_KEY_ID is not set")
	}
	if keyID == "" {
		keyID = defaultMasterKeyID()
	}
	if keyID == existingActiveKeyID {
		return fmt.Errorf("new master key id %q matches the active master key id", keyID)
	}

	encodedKey, err := newEncodedMasterKey(ctx, opener, kmsKeyURI)
	if err != nil {
		return err
	}

	logger.Info("master key rotated",
		slog.String("previous_master_key_id", existingActiveKeyID),
		slog.String("master_key_id", keyID),
	)

	_, _ = fmt.Fprintln(writer, "# Master Key Rotation")
	_, _ = fmt.Fprintln(writer, "# Update these environment variables in your .env file or secrets manager")
	_, _ = fmt.Fprintln(writer)
	if kmsKeyURI != "" {
		_, _ = fmt.Fprintf(writer, "KMS_KEY_URI=\"%s\"\n", kmsKeyURI)
	}
	_, _ = fmt.Fprintf(writer, "MASTER_KEYS=\"%s,%s:%s\"\n", existingMasterKeys, keyID, encodedKey)
	_, _ = fmt.Fprintf(writer, "ACTIVE_MASTER_KEY_ID=\"%s\"\n", keyID)
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintf(writer, "# Keep %s listed until every user key wrapped under it has been rotated.\n", existingActiveKeyID)
	return nil
}

func defaultMasterKeyID() string {
	return fmt.Sprintf("master-key-%s", time.Now().Format(time.DateOnly))
}

// newEncodedMasterKey returns a fresh master key, KMS-encrypted when kmsKeyURI is set,
// as base64.
func newEncodedMasterKey(ctx context.Context, opener cryptoDomain.KeeperOpener, kmsKeyURI string) (string, error) {
	masterKey := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(masterKey); err != nil {
		return "", fmt.Errorf("failed to generate master key: %w", err)
	}
	defer cryptoDomain.Zero(masterKey)

	if kmsKeyURI == "" {
		return base64.StdEncoding.EncodeToString(masterKey), nil
	}

	keeper, err := opener.OpenKeeper(ctx, kmsKeyURI)
	if err != nil {
		return "", fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		_ = keeper.Close()
	}()

	ciphertext, err := keeper.Encrypt(ctx, masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt master key with KMS: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
