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

// QuietHoursSetting is the persisted quiet-hours range, in local wall-clock hours.
type QuietHoursSetting struct {
	Enabled bool `json:"enabled"`
	Start   int  `json:"start"`
	End     int  `json:"end"`
}

// PreferencesRepository stores per-type notification toggles and quiet hours.
type PreferencesRepository struct {
	db    *sql.DB
	state *StateRepository
}

// NewPreferencesRepository creates a new [PreferencesRepository] with the given database connection
func NewPreferencesRepository(db *sql.DB) *PreferencesRepository {
	return &PreferencesRepository{db: db, state: NewStateRepository(db)}
}

// Enabled reports whether notifications of type t are enabled. Types without a stored preference are enabled.
func (r *PreferencesRepository) Enabled(ctx context.Context, t models.NotificationType) (bool, error) {
	var enabled bool
	err := r.db.QueryRowContext(ctx, "SELECT enabled FROM notification_preferences WHERE type = ?", string(t)).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query preference %s: %w", t, err)
	}
	return enabled, nil
}

// SetEnabled stores the toggle for type t.
func (r *PreferencesRepository) SetEnabled(ctx context.Context, t models.NotificationType, enabled bool) error {
	query := `
		INSERT INTO notification_preferences (type, enabled, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(type) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, string(t), enabled, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store preference %s: %w", t, err)
	}
	return nil
}

// All returns the effective toggle for every known notification type.
func (r *PreferencesRepository) All(ctx context.Context) (map[models.NotificationType]bool, error) {
	prefs := make(map[models.NotificationType]bool, len(models.AllNotificationTypes))
	for _, t := range models.AllNotificationTypes {
		prefs[t] = true
	}

	rows, err := r.db.QueryContext(ctx, "SELECT type, enabled FROM notification_preferences")
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t       string
			enabled bool
		)
		if err := rows.Scan(&t, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs[models.NotificationType(t)] = enabled
	}
	return prefs, rows.Err()
}

// QuietHours returns the stored setting. found is false when the user never configured one.
func (r *PreferencesRepository) QuietHours(ctx context.Context) (setting QuietHoursSetting, found bool, err error) {
	raw, err := r.state.Get(ctx, KeyQuietHours)
	if errors.Is(err, shared.ErrNotFound) {
		return QuietHoursSetting{}, false, nil
	}
	if err != nil {
		return QuietHoursSetting{}, false, err
	}
	if err := json.Unmarshal([]byte(raw), &setting); err != nil {
		return QuietHoursSetting{}, false, fmt.Errorf("%w: %s: %v", shared.ErrStateCorrupt, KeyQuietHours, err)
	}
	return setting, true, nil
}

// SetQuietHours stores the setting after validating the hours.
func (r *PreferencesRepository) SetQuietHours(ctx context.Context, setting QuietHoursSetting) error {
	if setting.Start < 0 || setting.Start > 23 || setting.End < 0 || setting.End > 23 {
		return fmt.Errorf("%w: quiet hours must be within 0-23", shared.ErrInvalidInput)
	}
	data, err := json.Marshal(setting)
	if err != nil {
		return fmt.Errorf("failed to encode quiet hours: %w", err)
	}
	return r.state.Set(ctx, KeyQuietHours, string(data))
}
