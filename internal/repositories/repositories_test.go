package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestStateRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Get missing key", func(t *testing.T) {
		repo := NewStateRepository(setupTestDB(t))
		if _, err := repo.Get(ctx, "nope"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Set and overwrite", func(t *testing.T) {
		repo := NewStateRepository(setupTestDB(t))

		if err := repo.Set(ctx, "k", "v1"); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
		if err := repo.Set(ctx, "k", "v2"); err != nil {
			t.Fatalf("failed to overwrite: %v", err)
		}

		got, err := repo.Get(ctx, "k")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got != "v2" {
			t.Errorf("expected v2, got %s", got)
		}
	})

	t.Run("SaveToken and Token", func(t *testing.T) {
		repo := NewStateRepository(setupTestDB(t))
		issued := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

		if err := repo.SaveToken(ctx, "sealed", issued); err != nil {
			t.Fatalf("failed to save token: %v", err)
		}

		sealed, issuedAt, err := repo.Token(ctx)
		if err != nil {
			t.Fatalf("failed to load token: %v", err)
		}
		if sealed != "sealed" || !issuedAt.Equal(issued) {
			t.Errorf("got (%s, %v), want (sealed, %v)", sealed, issuedAt, issued)
		}
	})

	t.Run("Token missing", func(t *testing.T) {
		repo := NewStateRepository(setupTestDB(t))
		if _, _, err := repo.Token(ctx); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Time corrupt", func(t *testing.T) {
		repo := NewStateRepository(setupTestDB(t))
		if err := repo.Set(ctx, KeyLastSyncAt, "yesterday"); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
		if _, err := repo.Time(ctx, KeyLastSyncAt); !errors.Is(err, shared.ErrStateCorrupt) {
			t.Errorf("expected ErrStateCorrupt, got %v", err)
		}
	})

	t.Run("Segments round trip", func(t *testing.T) {
		repo := NewStateRepository(setupTestDB(t))

		empty, err := repo.Segments(ctx)
		if err != nil || len(empty) != 0 {
			t.Fatalf("expected empty set, got %v, %v", empty, err)
		}

		want := models.NewSegmentSet("linage_customer", "plan_basic")
		if err := repo.SetSegments(ctx, want); err != nil {
			t.Fatalf("failed to set segments: %v", err)
		}

		got, err := repo.Segments(ctx)
		if err != nil {
			t.Fatalf("failed to get segments: %v", err)
		}
		if len(got) != 2 || !got.Has("linage_customer") || !got.Has("plan_basic") {
			t.Errorf("unexpected segments: %v", got)
		}
	})

	t.Run("EnsureKey keeps the first key", func(t *testing.T) {
		repo := NewStateRepository(setupTestDB(t))

		first, err := repo.EnsureKey(ctx, "key-a")
		if err != nil {
			t.Fatalf("failed to ensure key: %v", err)
		}
		second, err := repo.EnsureKey(ctx, "key-b")
		if err != nil {
			t.Fatalf("failed to ensure key: %v", err)
		}

		if first != "key-a" || second != "key-a" {
			t.Errorf("expected both calls to return key-a, got %s and %s", first, second)
		}
	})

	t.Run("EnsureKey converges under concurrency", func(t *testing.T) {
		repo := NewStateRepository(setupTestDB(t))

		var wg sync.WaitGroup
		results := make([]string, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key, err := repo.EnsureKey(ctx, string(rune('a'+i)))
				if err != nil {
					t.Errorf("ensure key failed: %v", err)
				}
				results[i] = key
			}(i)
		}
		wg.Wait()

		for _, key := range results {
			if key != results[0] {
				t.Fatalf("callers observed different keys: %v", results)
			}
		}
	})

	t.Run("DeviceID is stable and separate from the key", func(t *testing.T) {
		repo := NewStateRepository(setupTestDB(t))

		id, err := repo.DeviceID(ctx, "device-1")
		if err != nil {
			t.Fatalf("failed to ensure device id: %v", err)
		}
		again, _ := repo.DeviceID(ctx, "device-2")
		key, _ := repo.EnsureKey(ctx, "key")

		if id != "device-1" || again != "device-1" {
			t.Errorf("expected device-1 twice, got %s and %s", id, again)
		}
		if key != "key" {
			t.Errorf("device id must not occupy the key slot, got %s", key)
		}
	})

	t.Run("ClearPushState keeps encryption key", func(t *testing.T) {
		repo := NewStateRepository(setupTestDB(t))

		if _, err := repo.EnsureKey(ctx, "key"); err != nil {
			t.Fatalf("failed to ensure key: %v", err)
		}
		if err := repo.SaveToken(ctx, "sealed", time.Now()); err != nil {
			t.Fatalf("failed to save token: %v", err)
		}
		if err := repo.SetSegments(ctx, models.NewSegmentSet("a")); err != nil {
			t.Fatalf("failed to set segments: %v", err)
		}
		if err := repo.Set(ctx, KeyUserTopic, "user_1"); err != nil {
			t.Fatalf("failed to set user topic: %v", err)
		}
		if err := repo.SetTime(ctx, KeyLastSyncAt, time.Now()); err != nil {
			t.Fatalf("failed to set last sync: %v", err)
		}

		if err := repo.ClearPushState(ctx); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}

		for _, key := range pushStateKeys {
			if _, err := repo.Get(ctx, key); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("%s should be cleared, got %v", key, err)
			}
		}
		if key, err := repo.Get(ctx, KeyEncryptionKey); err != nil || key != "key" {
			t.Errorf("encryption key should survive, got %q, %v", key, err)
		}
	})
}

func TestPreferencesRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("types default to enabled", func(t *testing.T) {
		repo := NewPreferencesRepository(setupTestDB(t))
		enabled, err := repo.Enabled(ctx, models.TypePromotion)
		if err != nil {
			t.Fatalf("failed to query: %v", err)
		}
		if !enabled {
			t.Error("expected promotion to default to enabled")
		}
	})

	t.Run("SetEnabled and All", func(t *testing.T) {
		repo := NewPreferencesRepository(setupTestDB(t))

		if err := repo.SetEnabled(ctx, models.TypePromotion, false); err != nil {
			t.Fatalf("failed to disable: %v", err)
		}
		if err := repo.SetEnabled(ctx, models.TypeNewPlan, false); err != nil {
			t.Fatalf("failed to disable: %v", err)
		}
		if err := repo.SetEnabled(ctx, models.TypeNewPlan, true); err != nil {
			t.Fatalf("failed to re-enable: %v", err)
		}

		prefs, err := repo.All(ctx)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(prefs) != len(models.AllNotificationTypes) {
			t.Errorf("expected %d preferences, got %d", len(models.AllNotificationTypes), len(prefs))
		}
		if prefs[models.TypePromotion] {
			t.Error("promotion should be disabled")
		}
		if !prefs[models.TypeNewPlan] || !prefs[models.TypeBillReady] {
			t.Errorf("unexpected preferences: %v", prefs)
		}
	})

	t.Run("QuietHours", func(t *testing.T) {
		repo := NewPreferencesRepository(setupTestDB(t))

		if _, found, err := repo.QuietHours(ctx); err != nil || found {
			t.Fatalf("expected no quiet hours, got found=%v err=%v", found, err)
		}

		want := QuietHoursSetting{Enabled: true, Start: 22, End: 8}
		if err := repo.SetQuietHours(ctx, want); err != nil {
			t.Fatalf("failed to set quiet hours: %v", err)
		}

		got, found, err := repo.QuietHours(ctx)
		if err != nil || !found || got != want {
			t.Errorf("QuietHours() = %+v, %v, %v; want %+v", got, found, err, want)
		}
	})

	t.Run("SetQuietHours validates", func(t *testing.T) {
		repo := NewPreferencesRepository(setupTestDB(t))
		err := repo.SetQuietHours(ctx, QuietHoursSetting{Enabled: true, Start: 25, End: 8})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
