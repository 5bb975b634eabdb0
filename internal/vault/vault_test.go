package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/linage/linapush/internal/shared"
)

type memoryKeyStore struct {
	mu    sync.Mutex
	key   string
	calls int
	err   error
}

func (s *memoryKeyStore) EnsureKey(_ context.Context, candidate string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.key == "" {
		s.key = candidate
	}
	return s.key, nil
}

func TestVault(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		v := New(&memoryKeyStore{}, nil)
		tokens := []string{"x", "fcm:APA91bH-token_value.1", "ünïcode token with spaces"}

		for _, token := range tokens {
			sealed, err := v.Seal(ctx, token)
			if err != nil {
				t.Fatalf("failed to seal %q: %v", token, err)
			}
			if sealed == token {
				t.Errorf("sealed value should differ from plaintext")
			}

			opened, err := v.Open(ctx, sealed)
			if err != nil {
				t.Fatalf("failed to open %q: %v", token, err)
			}
			if opened != token {
				t.Errorf("Open(Seal(%q)) = %q", token, opened)
			}
		}
	})

	t.Run("sealing twice uses fresh nonces", func(t *testing.T) {
		v := New(&memoryKeyStore{}, nil)
		a, _ := v.Seal(ctx, "token")
		b, _ := v.Seal(ctx, "token")
		if a == b {
			t.Error("expected distinct ciphertexts for the same plaintext")
		}
	})

	t.Run("key is created once", func(t *testing.T) {
		store := &memoryKeyStore{}
		v := New(store, nil)
		for range 3 {
			if _, err := v.Seal(ctx, "token"); err != nil {
				t.Fatalf("seal failed: %v", err)
			}
		}
		if store.calls != 1 {
			t.Errorf("expected key store to be consulted once, got %d", store.calls)
		}
	})

	t.Run("instances sharing a store share the key", func(t *testing.T) {
		store := &memoryKeyStore{}
		sealed, err := New(store, nil).Seal(ctx, "shared-token")
		if err != nil {
			t.Fatalf("seal failed: %v", err)
		}

		opened, err := New(store, nil).Open(ctx, sealed)
		if err != nil || opened != "shared-token" {
			t.Errorf("second vault should open first vault's value, got %q, %v", opened, err)
		}
	})

	t.Run("corrupted ciphertext", func(t *testing.T) {
		v := New(&memoryKeyStore{}, nil)
		sealed, _ := v.Seal(ctx, "token-123")
		blob, _ := base64.StdEncoding.DecodeString(sealed)
		blob[len(blob)-1] ^= 0xff
		corrupted := base64.StdEncoding.EncodeToString(blob)

		if _, err := v.Open(ctx, corrupted); !errors.Is(err, shared.ErrDecrypt) {
			t.Errorf("Open() error = %v, want ErrDecrypt", err)
		}

		token, ok := v.Recover(ctx, corrupted)
		if ok && token == "token-123" {
			t.Error("corrupted ciphertext should not decrypt")
		}
	})

	t.Run("corrupted key falls back without failing", func(t *testing.T) {
		store := &memoryKeyStore{key: "not-base64!!"}
		v := New(store, nil)

		if _, err := v.Seal(ctx, "token"); !errors.Is(err, shared.ErrKeyUnavailable) {
			t.Errorf("Seal() error = %v, want ErrKeyUnavailable", err)
		}

		token, ok := v.Recover(ctx, "legacy-token:ABC_123")
		if !ok || token != "legacy-token:ABC_123" {
			t.Errorf("Recover() = %q, %v; want plaintext fallback", token, ok)
		}
	})

	t.Run("key store failure", func(t *testing.T) {
		v := New(&memoryKeyStore{err: errors.New("disk full")}, nil)
		if _, err := v.Open(ctx, "anything"); !errors.Is(err, shared.ErrDecrypt) || !errors.Is(err, shared.ErrKeyUnavailable) {
			t.Errorf("Open() error = %v, want ErrDecrypt wrapping ErrKeyUnavailable", err)
		}
	})
}

func TestRecover(t *testing.T) {
	ctx := context.Background()
	v := New(&memoryKeyStore{}, nil)
	sealed, err := v.Seal(ctx, "fresh-token")
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	tc := []struct {
		name   string
		stored string
		want   string
		wantOK bool
	}{
		{name: "sealed value", stored: sealed, want: "fresh-token", wantOK: true},
		{name: "legacy plaintext", stored: "dGVzdA:APA91b_x-y.z", want: "dGVzdA:APA91b_x-y.z", wantOK: true},
		{name: "garbage", stored: "%%% not a token %%%", want: "", wantOK: false},
		{name: "empty", stored: "", want: "", wantOK: false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := v.Recover(ctx, tt.stored)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Recover(%q) = %q, %v; want %q, %v", tt.stored, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
