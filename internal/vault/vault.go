package vault

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/linage/linapush/internal/shared"
)

// KeyStore persists the per-install encryption key.
type KeyStore interface {
	// EnsureKey stores candidate only when no key exists yet and returns whichever key is stored.
	// Concurrent callers must all observe the same key.
	EnsureKey(ctx context.Context, candidate string) (string, error)
}

// plaintextToken matches values that look like a push token stored before encryption was enabled.
var plaintextToken = regexp.MustCompile(`^[A-Za-z0-9_\-:.]+$`)

// Vault seals push tokens at rest with XChaCha20-Poly1305.
//
// Sealed values are base64(nonce || ciphertext) under a 32-byte key that is generated once per install.
type Vault struct {
	store  KeyStore
	logger *log.Logger

	mu  sync.Mutex
	key []byte
}

// New creates a [Vault] over store. The key is loaded or created on first use.
func New(store KeyStore, logger *log.Logger) *Vault {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Vault{store: store, logger: logger}
}

// Seal encrypts plaintext.
func (v *Vault) Seal(ctx context.Context, plaintext string) (string, error) {
	aead, err := v.aead(ctx)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by [Vault.Seal]. Any failure wraps [shared.ErrDecrypt].
func (v *Vault) Open(ctx context.Context, sealed string) (string, error) {
	aead, err := v.aead(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrDecrypt, err)
	}

	blob, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrDecrypt, err)
	}
	ns := aead.NonceSize()
	if len(blob) < ns+aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", shared.ErrDecrypt)
	}

	plaintext, err := aead.Open(nil, blob[:ns], blob[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrDecrypt, err)
	}
	return string(plaintext), nil
}

// Recover returns the token held in stored and never fails.
//
// Decryption is tried first. When it fails, stored is accepted as a legacy plaintext token if it has a token's shape;
// otherwise the token is treated as absent and ok is false.
func (v *Vault) Recover(ctx context.Context, stored string) (token string, ok bool) {
	if stored == "" {
		return "", false
	}
	plaintext, err := v.Open(ctx, stored)
	if err == nil {
		return plaintext, plaintext != ""
	}

	if plaintextToken.MatchString(stored) {
		v.logger.Warn("token decryption failed, using stored value as plaintext", "err", err)
		return stored, true
	}
	v.logger.Warn("token decryption failed, treating token as absent", "err", err)
	return "", false
}

func (v *Vault) aead(ctx context.Context) (cipher.AEAD, error) {
	key, err := v.loadKey(ctx)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrKeyUnavailable, err)
	}
	return aead, nil
}

func (v *Vault) loadKey(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.key != nil {
		return v.key, nil
	}
	if v.store == nil {
		return nil, fmt.Errorf("%w: no key store", shared.ErrKeyUnavailable)
	}

	candidate := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, candidate); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrKeyUnavailable, err)
	}

	stored, err := v.store.EnsureKey(ctx, base64.StdEncoding.EncodeToString(candidate))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrKeyUnavailable, err)
	}

	key, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: stored key is corrupt", shared.ErrKeyUnavailable)
	}
	v.key = key
	return key, nil
}
