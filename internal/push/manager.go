package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/repositories"
	"github.com/linage/linapush/internal/services"
	"github.com/linage/linapush/internal/shared"
)

// DefaultSyncInterval is the minimum time between backend sync attempts.
const DefaultSyncInterval = 60 * time.Second

// StateStore is the persisted state the manager needs. [repositories.StateRepository] implements it.
type StateStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Time(ctx context.Context, key string) (time.Time, error)
	SetTime(ctx context.Context, key string, t time.Time) error
	SaveToken(ctx context.Context, sealed string, issuedAt time.Time) error
	Token(ctx context.Context) (string, time.Time, error)
	Segments(ctx context.Context) (models.SegmentSet, error)
	SetSegments(ctx context.Context, segments models.SegmentSet) error
	ClearPushState(ctx context.Context) error
}

// Sealer encrypts tokens at rest. [vault.Vault] implements it.
type Sealer interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Recover(ctx context.Context, stored string) (string, bool)
}

// AppInfo is the static app metadata sent with every registration.
type AppInfo struct {
	Version    string
	Package    string
	Platform   string
	DeviceType string
}

// Options configures a [Manager].
type Options struct {
	Store        StateStore
	Sealer       Sealer
	Registrar    services.Registrar
	Push         services.PushService
	SyncInterval time.Duration
	App          AppInfo
	Logger       *log.Logger
	Now          func() time.Time
}

// Status is a read-only view of the persisted push state.
type Status struct {
	HasToken   bool      `json:"hasToken"`
	IssuedAt   time.Time `json:"issuedAt"`
	LastSyncAt time.Time `json:"lastSyncAt"`
	Segments   []string  `json:"segments"`
	UserTopic  string    `json:"userTopic,omitempty"`
}

// Manager owns the push token lifecycle: persistence, backend sync, and topic subscriptions.
//
// Segment and user-topic updates are serialized, so diffs always run against the last committed set.
type Manager struct {
	store     StateStore
	sealer    Sealer
	registrar services.Registrar
	push      services.PushService
	interval  time.Duration
	app       AppInfo
	logger    *log.Logger
	now       func() time.Time

	mu      sync.Mutex // guards limiter, user and epoch
	limiter *rate.Limiter
	user    models.UserAttributes
	epoch   uint64 // bumped by ClearAll; syncs started under an older epoch commit nothing

	topicsMu sync.Mutex // single writer for segment and user topic state
	wg       sync.WaitGroup
}

// NewManager creates a [Manager]. The sync limiter is seeded from the last successful sync time so restarts keep the window.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, shared.ErrStoreRequired
	}
	if opts.Push == nil {
		opts.Push = services.NewLocalPushService(opts.Logger)
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		store:     opts.Store,
		sealer:    opts.Sealer,
		registrar: opts.Registrar,
		push:      opts.Push,
		interval:  opts.SyncInterval,
		app:       opts.App,
		logger:    opts.Logger,
		now:       opts.Now,
		limiter:   rate.NewLimiter(rate.Every(opts.SyncInterval), 1),
	}

	lastSync, err := m.store.Time(ctx, repositories.KeyLastSyncAt)
	switch {
	case err == nil:
		m.limiter.AllowN(lastSync, 1)
	case !errors.Is(err, shared.ErrNotFound):
		m.logger.Warn("ignoring unreadable last sync time", "err", err)
	}

	if raw, err := m.store.Get(ctx, repositories.KeyUser); err == nil {
		if err := json.Unmarshal([]byte(raw), &m.user); err != nil {
			m.logger.Warn("ignoring unreadable user attributes", "err", err)
			m.user = models.UserAttributes{}
		}
	} else if !errors.Is(err, shared.ErrNotFound) {
		m.logger.Warn("ignoring unreadable user attributes", "err", err)
	}
	return m, nil
}

// SetUser replaces the account attributes used for registration and segment derivation.
// The change lasts for this process only; [Manager.UpdateUser] also persists it.
func (m *Manager) SetUser(attrs models.UserAttributes) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = attrs
}

// UpdateUser persists attrs as the signed-in account, then subscribes the derived segments and the user topic.
//
// Subscription failures are logged; only persistence failures are returned.
func (m *Manager) UpdateUser(ctx context.Context, attrs models.UserAttributes) error {
	if attrs.UserID == "" {
		return fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode user attributes: %w", err)
	}

	m.topicsMu.Lock()
	defer m.topicsMu.Unlock()

	if err := m.store.Set(ctx, repositories.KeyUser, string(raw)); err != nil {
		return fmt.Errorf("failed to persist user attributes: %w", err)
	}
	m.SetUser(attrs)

	if err := m.subscribeSegments(ctx, DeriveSegments(attrs, m.now())); err != nil {
		return err
	}
	if err := m.subscribeUser(ctx, attrs.UserID); err != nil {
		m.logger.Warn("user topic subscription failed", "err", err)
	}
	return nil
}

// User returns the current account attributes.
func (m *Manager) User() models.UserAttributes {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// OnNewToken persists token and then starts a best-effort backend sync in the background.
//
// The only error outcomes are an empty token and a failed persistence write; sync failures are logged.
// [Manager.Wait] blocks until background syncs finish.
func (m *Manager) OnNewToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return shared.ErrInvalidToken
	}

	stored := token
	if m.sealer != nil {
		sealed, err := m.sealer.Seal(ctx, token)
		if err != nil {
			m.logger.Warn("token encryption failed, storing plaintext", "err", err)
		} else {
			stored = sealed
		}
	}

	if err := m.store.SaveToken(ctx, stored, m.now()); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	m.logger.Debug("token persisted")

	syncCtx := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.SyncToBackend(syncCtx, "")
	}()
	return nil
}

// Wait blocks until every background sync started by [Manager.OnNewToken] returns.
func (m *Manager) Wait() { m.wg.Wait() }

// CurrentToken returns the persisted token, if a usable one exists.
func (m *Manager) CurrentToken(ctx context.Context) (models.PushToken, bool) {
	stored, issuedAt, err := m.store.Token(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			m.logger.Warn("failed to read token", "err", err)
		}
		return models.PushToken{}, false
	}

	value, ok := stored, stored != ""
	if m.sealer != nil {
		value, ok = m.sealer.Recover(ctx, stored)
	}
	if !ok {
		return models.PushToken{}, false
	}
	return models.PushToken{Value: value, IssuedAt: issuedAt}, true
}

// SyncToBackend registers token with the backend. An empty token means the persisted one.
//
// At most one attempt is made per sync interval; an attempt uses up the window whether or not it succeeds.
// Failures are logged and reported as [models.SyncFailed], never returned.
func (m *Manager) SyncToBackend(ctx context.Context, token string) models.SyncOutcome {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	if token == "" {
		current, ok := m.CurrentToken(ctx)
		if !ok {
			m.logger.Warn("token sync skipped", "err", shared.ErrNoToken)
			return models.SyncFailed
		}
		token = current.Value
	}

	now := m.now()
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return models.SyncFailed
	}
	allowed := m.limiter.AllowN(now, 1)
	user := m.user
	m.mu.Unlock()

	if !allowed {
		m.logger.Debug("token sync rate limited", "interval", m.interval)
		return models.SyncRateLimited
	}
	if m.registrar == nil {
		m.logger.Warn("token sync failed", "err", fmt.Errorf("%w: no backend configured", shared.ErrServiceUnavailable))
		return models.SyncFailed
	}

	resp, err := m.registrar.Register(ctx, m.registration(token, user, now))
	if err != nil {
		m.logger.Warn("token sync failed", "err", err)
		return models.SyncFailed
	}

	m.topicsMu.Lock()
	defer m.topicsMu.Unlock()

	m.mu.Lock()
	stale := m.epoch != epoch
	m.mu.Unlock()
	if stale {
		m.logger.Info("discarding token sync started before push state was cleared")
		return models.SyncFailed
	}

	if err := m.store.SetTime(ctx, repositories.KeyLastSyncAt, now); err != nil {
		m.logger.Warn("failed to record sync time", "err", err)
	}
	m.logger.Info("token synced", "segments", len(resp.Segments))

	segments := models.NewSegmentSet(resp.Segments...)
	if len(segments) == 0 && user.UserID != "" {
		segments = DeriveSegments(user, now)
	}
	if len(segments) > 0 {
		if err := m.subscribeSegments(ctx, segments); err != nil {
			m.logger.Warn("segment subscription failed", "err", err)
		}
	}
	if user.UserID != "" {
		if err := m.subscribeUser(ctx, user.UserID); err != nil {
			m.logger.Warn("user topic subscription failed", "err", err)
		}
	}
	return models.SyncSuccess
}

// SubscribeToSegments diffs segments against the committed set: additions are subscribed, removals unsubscribed.
//
// A segment whose subscribe call fails is left out of the committed set so a later call retries it.
// Push failures are logged; only persistence failures are returned.
func (m *Manager) SubscribeToSegments(ctx context.Context, segments models.SegmentSet) error {
	m.topicsMu.Lock()
	defer m.topicsMu.Unlock()
	return m.subscribeSegments(ctx, segments)
}

// subscribeSegments requires topicsMu.
func (m *Manager) subscribeSegments(ctx context.Context, segments models.SegmentSet) error {
	committed, err := m.store.Segments(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrStateCorrupt) {
			return err
		}
		m.logger.Warn("committed segments unreadable, resubscribing all", "err", err)
	}

	added, removed := segments.Diff(committed)
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	next := models.NewSegmentSet(committed.Sorted()...)
	for _, tag := range added {
		if err := m.push.Subscribe(ctx, SegmentTopic(tag)); err != nil {
			m.logger.Warn("segment subscribe failed", "segment", tag, "err", err)
			continue
		}
		next[tag] = struct{}{}
	}
	for _, tag := range removed {
		if err := m.push.Unsubscribe(ctx, SegmentTopic(tag)); err != nil {
			m.logger.Warn("segment unsubscribe failed", "segment", tag, "err", err)
			continue
		}
		delete(next, tag)
	}

	if err := m.store.SetSegments(ctx, next); err != nil {
		return fmt.Errorf("failed to commit segments: %w", err)
	}
	m.logger.Debug("segments committed", "added", len(added), "removed", len(removed), "total", len(next))
	return nil
}

// SubscribeUser moves the authenticated-user topic subscription to userID.
func (m *Manager) SubscribeUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}

	m.topicsMu.Lock()
	defer m.topicsMu.Unlock()
	return m.subscribeUser(ctx, userID)
}

// subscribeUser requires topicsMu.
func (m *Manager) subscribeUser(ctx context.Context, userID string) error {
	topic := UserTopic(userID)
	prev, err := m.store.Get(ctx, repositories.KeyUserTopic)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	if prev == topic {
		return nil
	}

	if err := m.push.Subscribe(ctx, topic); err != nil {
		return err
	}
	if prev != "" {
		if err := m.push.Unsubscribe(ctx, prev); err != nil {
			m.logger.Warn("previous user topic unsubscribe failed", "topic", prev, "err", err)
		}
	}
	return m.store.Set(ctx, repositories.KeyUserTopic, topic)
}

// ClearAll unsubscribes every tracked segment and the user topic, then erases persisted push state.
//
// Afterwards the manager behaves like a fresh install, and syncs still in flight commit nothing.
// Unsubscribe failures are logged and do not stop the clear.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.topicsMu.Lock()
	defer m.topicsMu.Unlock()

	m.mu.Lock()
	m.epoch++
	m.limiter = rate.NewLimiter(rate.Every(m.interval), 1)
	m.user = models.UserAttributes{}
	m.mu.Unlock()

	segments, err := m.store.Segments(ctx)
	if err != nil {
		m.logger.Warn("committed segments unreadable during clear", "err", err)
	}
	for _, tag := range segments.Sorted() {
		if err := m.push.Unsubscribe(ctx, SegmentTopic(tag)); err != nil {
			m.logger.Warn("segment unsubscribe failed", "segment", tag, "err", err)
		}
	}

	if topic, err := m.store.Get(ctx, repositories.KeyUserTopic); err == nil && topic != "" {
		if err := m.push.Unsubscribe(ctx, topic); err != nil {
			m.logger.Warn("user topic unsubscribe failed", "topic", topic, "err", err)
		}
	}

	if err := m.store.ClearPushState(ctx); err != nil {
		return fmt.Errorf("failed to clear push state: %w", err)
	}

	m.logger.Info("push state cleared")
	return nil
}

// Status reports the persisted push state.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	var st Status
	if token, ok := m.CurrentToken(ctx); ok {
		st.HasToken = true
		st.IssuedAt = token.IssuedAt
	}

	if t, err := m.store.Time(ctx, repositories.KeyLastSyncAt); err == nil {
		st.LastSyncAt = t
	} else if !errors.Is(err, shared.ErrNotFound) {
		return st, err
	}

	segments, err := m.store.Segments(ctx)
	if err != nil {
		return st, err
	}
	st.Segments = segments.Sorted()

	if topic, err := m.store.Get(ctx, repositories.KeyUserTopic); err == nil {
		st.UserTopic = topic
	} else if !errors.Is(err, shared.ErrNotFound) {
		return st, err
	}
	return st, nil
}

func (m *Manager) registration(token string, user models.UserAttributes, now time.Time) services.RegistrationRequest {
	return services.RegistrationRequest{
		FCMToken:          token,
		UserID:            user.UserID,
		UserEmail:         user.Email,
		IsLinageCustomer:  user.IsLinageCustomer,
		PlanType:          user.PlanType,
		CustomerSince:     unixMilli(user.CustomerSince),
		LastActivity:      unixMilli(user.LastActivity),
		PreferredLanguage: user.PreferredLanguage,
		DeviceType:        m.app.DeviceType,
		AppVersion:        m.app.Version,
		HasActiveService:  user.HasActiveService,
		Platform:          m.app.Platform,
		AppPackage:        m.app.Package,
		Timestamp:         now.UnixMilli(),
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
