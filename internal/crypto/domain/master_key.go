package domain

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// MasterKey is a system key that wraps per-user master keys at rest.
type MasterKey struct {
	ID  string
	Key []byte
}

// MasterKeyChain holds every configured system master key with one designated as
// active. New user keys are wrapped with the active key; older keys stay available
// to unwrap records created before a master key rotation.
type MasterKeyChain struct {
	activeID string
	keys     sync.Map
}

// NewMasterKeyChain builds a chain from already decoded keys.
func NewMasterKeyChain(activeID string, keys ...*MasterKey) (*MasterKeyChain, error) {
	mkc := &MasterKeyChain{activeID: activeID}
	for _, k := range keys {
		if len(k.Key) != KeySize {
			mkc.Close()
			return nil, fmt.Errorf("%w: master key %s must be %d bytes, got %d",
				ErrInvalidKeySize, k.ID, KeySize, len(k.Key))
		}
		mkc.keys.Store(k.ID, &MasterKey{ID: k.ID, Key: append([]byte(nil), k.Key...)})
	}
	if _, ok := mkc.Get(activeID); !ok {
		mkc.Close()
		return nil, fmt.Errorf("%w: ACTIVE_MASTER_KEY_ID=%s", ErrActiveMasterKeyNotFound, activeID)
	}
	return mkc, nil
}

// ActiveMasterKeyID returns the ID of the currently active master key.
func (m *MasterKeyChain) ActiveMasterKeyID() string {
	return m.activeID
}

// Active returns the active master key.
func (m *MasterKeyChain) Active() (*MasterKey, error) {
	key, ok := m.Get(m.activeID)
	if !ok {
		return nil, ErrMasterKeyNotFound
	}
	return key, nil
}

// Get retrieves a master key by ID.
func (m *MasterKeyChain) Get(id string) (*MasterKey, bool) {
	if masterKey, ok := m.keys.Load(id); ok {
		return masterKey.(*MasterKey), ok
	}

	return nil, false
}

// Close zeroes every key and empties the chain.
func (m *MasterKeyChain) Close() {
	m.keys.Range(func(_, value any) bool {
		Zero(value.(*MasterKey).Key)
		return true
	})
	m.activeID = ""
	m.keys.Clear()
}

// MasterKeySource describes where the chain comes from.
//
// Raw uses the MASTER_KEYS format: comma separated "id:base64" entries. When
// KMSKeyURI is set every base64 value is a KMS ciphertext that is decrypted with
// the keeper opened from that URI; otherwise it is the plain 32-byte key.
type MasterKeySource struct {
	Raw       string
	ActiveID  string
	KMSKeyURI string
}

// MasterKeySourceFromEnv reads MASTER_KEYS and ACTIVE_MASTER_KEY_ID.
func MasterKeySourceFromEnv(kmsKeyURI string) MasterKeySource {
	return MasterKeySource{
		Raw:       os.Getenv("MASTER_KEYS"),
		ActiveID:  os.Getenv("ACTIVE_MASTER_KEY_ID"),
		KMSKeyURI: kmsKeyURI,
	}
}

// LoadMasterKeyChain decodes src into a chain. opener is only used when
// src.KMSKeyURI is set. On any error no partially loaded key is kept.
func LoadMasterKeyChain(
	ctx context.Context,
	src MasterKeySource,
	opener KeeperOpener,
	logger *slog.Logger,
) (*MasterKeyChain, error) {
	if src.Raw == "" {
		return nil, ErrMasterKeysNotSet
	}
	if src.ActiveID == "" {
		return nil, ErrActiveMasterKeyIDNotSet
	}

	var keeper KMSKeeper
	if src.KMSKeyURI != "" {
		if opener == nil {
			return nil, fmt.Errorf("%w: no KMS opener configured", ErrKMSDecryptionFailed)
		}
		k, err := opener.OpenKeeper(ctx, src.KMSKeyURI)
		if err != nil {
			return nil, err
		}
		defer func() {
			if closeErr := k.Close(); closeErr != nil && logger != nil {
				logger.Warn("failed to close KMS keeper", slog.Any("error", closeErr))
			}
		}()
		keeper = k
	}

	mkc := &MasterKeyChain{activeID: src.ActiveID}

	for part := range strings.SplitSeq(src.Raw, ",") {
		p := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(p) != 2 || p[0] == "" {
			mkc.Close()
			return nil, fmt.Errorf("%w: %q", ErrInvalidMasterKeysFormat, part)
		}
		id := p[0]
		decoded, err := base64.StdEncoding.DecodeString(p[1])
		if err != nil {
			mkc.Close()
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidMasterKeyBase64, id, err)
		}

		key := decoded
		if keeper != nil {
			key, err = keeper.Decrypt(ctx, decoded)
			if err != nil {
				mkc.Close()
				return nil, fmt.Errorf("%w: %s: %v", ErrKMSDecryptionFailed, id, err)
			}
		}

		if len(key) != KeySize {
			Zero(key)
			mkc.Close()
			return nil, fmt.Errorf(
				"%w: master key %s must be %d bytes, got %d",
				ErrInvalidKeySize,
				id,
				KeySize,
				len(key),
			)
		}
		mkc.keys.Store(id, &MasterKey{ID: id, Key: key})
	}

	if _, ok := mkc.Get(src.ActiveID); !ok {
		mkc.Close()
		return nil, fmt.Errorf("%w: ACTIVE_MASTER_KEY_ID=%s", ErrActiveMasterKeyNotFound, src.ActiveID)
	}

	if logger != nil {
		logger.Info("master key chain loaded",
			slog.String("active_master_key_id", src.ActiveID),
			slog.Bool("kms", keeper != nil),
		)
	}

	return mkc, nil
}
