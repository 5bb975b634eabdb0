package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/shared"
)

// Keys in app_state.
const (
	KeyToken         = "push.token"           // sealed token
	KeyTokenIssuedAt = "push.token_issued_at" // RFC 3339
	KeySegments      = "push.segments"        // JSON array of committed segment tags
	KeyUserTopic     = "push.user_topic"      // authenticated-user topic
	KeyLastSyncAt    = "push.last_sync_at"    // RFC 3339, successful syncs only
	KeyUser          = "push.user"            // JSON [models.UserAttributes] of the signed-in account
	KeyEncryptionKey = "vault.key"            // base64
	KeyQuietHours    = "notify.quiet_hours"   // JSON [QuietHoursSetting]
	KeyDeviceID      = "device.id"            // stable install id, survives logout
)

// pushStateKeys are erased on logout. The encryption key survives.
var pushStateKeys = []string{KeyToken, KeyTokenIssuedAt, KeySegments, KeyUserTopic, KeyLastSyncAt, KeyUser}

// StateRepository is the private key/value store backing the push subsystem.
type StateRepository struct {
	db *sql.DB
}

// NewStateRepository creates a new [StateRepository] with the given database connection
func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Get returns the value stored under key, or [shared.ErrNotFound].
func (r *StateRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM app_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", shared.ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query state %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (r *StateRepository) Set(ctx context.Context, key, value string) error {
	return r.SetMany(ctx, map[string]string{key: value})
}

// SetMany upserts every pair in one transaction.
func (r *StateRepository) SetMany(ctx context.Context, values map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, query, key, value, now); err != nil {
			return fmt.Errorf("failed to write state %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

// Delete removes keys in one transaction. Missing keys are ignored.
func (r *StateRepository) Delete(ctx context.Context, keys ...string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, "DELETE FROM app_state WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to delete state %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

// EnsureKey implements vault.KeyStore. The first candidate written wins; later candidates are ignored.
func (r *StateRepository) EnsureKey(ctx context.Context, candidate string) (string, error) {
	return r.ensure(ctx, KeyEncryptionKey, candidate)
}

// DeviceID returns the install's stable identifier, storing candidate on first use.
func (r *StateRepository) DeviceID(ctx context.Context, candidate string) (string, error) {
	return r.ensure(ctx, KeyDeviceID, candidate)
}

func (r *StateRepository) ensure(ctx context.Context, key, candidate string) (string, error) {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO app_state (key, value, updated_at) VALUES (?, ?, ?)",
		key, candidate, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to store %s: %w", key, err)
	}
	return r.Get(ctx, key)
}

// SaveToken stores the sealed token and its issue time in a single write.
func (r *StateRepository) SaveToken(ctx context.Context, sealed string, issuedAt time.Time) error {
	return r.SetMany(ctx, map[string]string{
		KeyToken:         sealed,
		KeyTokenIssuedAt: issuedAt.UTC().Format(time.RFC3339Nano),
	})
}

// Token returns the sealed token and its issue time. A missing token returns [shared.ErrNotFound].
func (r *StateRepository) Token(ctx context.Context) (string, time.Time, error) {
	sealed, err := r.Get(ctx, KeyToken)
	if err != nil {
		return "", time.Time{}, err
	}
	issuedAt, err := r.Time(ctx, KeyTokenIssuedAt)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return "", time.Time{}, err
	}
	return sealed, issuedAt, nil
}

// Time parses an RFC 3339 value.
func (r *StateRepository) Time(ctx context.Context, key string) (time.Time, error) {
	raw, err := r.Get(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", shared.ErrStateCorrupt, key, err)
	}
	return t, nil
}

// SetTime stores t as RFC 3339.
func (r *StateRepository) SetTime(ctx context.Context, key string, t time.Time) error {
	return r.Set(ctx, key, t.UTC().Format(time.RFC3339Nano))
}

// Segments returns the committed segment set. A missing or corrupt value is an empty set.
func (r *StateRepository) Segments(ctx context.Context) (models.SegmentSet, error) {
	raw, err := r.Get(ctx, KeySegments)
	if errors.Is(err, shared.ErrNotFound) {
		return models.NewSegmentSet(), nil
	}
	if err != nil {
		return nil, err
	}

	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return models.NewSegmentSet(), fmt.Errorf("%w: %s: %v", shared.ErrStateCorrupt, KeySegments, err)
	}
	return models.NewSegmentSet(tags...), nil
}

// SetSegments replaces the committed segment set.
func (r *StateRepository) SetSegments(ctx context.Context, segments models.SegmentSet) error {
	data, err := json.Marshal(segments.Sorted())
	if err != nil {
		return fmt.Errorf("failed to encode segments: %w", err)
	}
	return r.Set(ctx, KeySegments, string(data))
}

// ClearPushState erases every push key: token, segments, user topic, sync time and account.
func (r *StateRepository) ClearPushState(ctx context.Context) error {
	return r.Delete(ctx, pushStateKeys...)
}
