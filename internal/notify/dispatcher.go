package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/repositories"
	"github.com/linage/linapush/internal/shared"
)

// DefaultDedupeSize is the number of recent message ids remembered when none is configured.
const DefaultDedupeSize = 256

// Renderer displays notifications on the platform.
type Renderer interface {
	CreateChannels(ctx context.Context, channels []models.Channel) error
	Render(ctx context.Context, n models.Notification) error
}

// Preferences is the user's notification settings. [repositories.PreferencesRepository] implements it.
type Preferences interface {
	Enabled(ctx context.Context, t models.NotificationType) (bool, error)
	QuietHours(ctx context.Context) (repositories.QuietHoursSetting, bool, error)
}

// ProfileSource supplies the active performance profile. [profile.Controller] implements it.
type ProfileSource interface {
	Current() models.PerformanceProfile
}

// Outcome is what [Dispatcher.Handle] did with an event.
type Outcome int

const (
	OutcomeShown Outcome = iota
	OutcomeQueued
	OutcomeDropped
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeShown:
		return "shown"
	case OutcomeQueued:
		return "queued"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "dropped"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// DropReason names the throttle rule that rejected a notification.
type DropReason string

const (
	ReasonPermission   DropReason = "permission_disabled"
	ReasonPreference   DropReason = "preference_disabled"
	ReasonRateLimited  DropReason = "rate_limited"
	ReasonQuietHours   DropReason = "quiet_hours"
	ReasonRenderFailed DropReason = "render_failed"
	ReasonShutdown     DropReason = "shutdown"
)

// Stats are dispatcher counters since start.
type Stats struct {
	Received   int                `json:"received"`
	Shown      int                `json:"shown"`
	Coalesced  int                `json:"coalesced"`
	Duplicates int                `json:"duplicates"`
	Dropped    map[DropReason]int `json:"dropped"`
	Pending    int                `json:"pending"`
	History    int                `json:"history"`
}

// Options configures a [Dispatcher].
type Options struct {
	Config      shared.NotificationsConfig
	Renderer    Renderer
	Preferences Preferences
	Profile     ProfileSource
	Logger      *log.Logger
	Now         func() time.Time
}

// Dispatcher classifies inbound events, throttles them and renders what passes.
//
// Urgent events are checked and rendered inline. Batchable events wait in a per-type debounce batch
// and are checked when the batch flushes. Policy drops are logged at debug level and never returned as errors.
type Dispatcher struct {
	cfg      shared.NotificationsConfig
	renderer Renderer
	prefs    Preferences
	profile  ProfileSource
	logger   *log.Logger
	now      func() time.Time

	history    *History
	seen       *lru.Cache[string, struct{}]
	batches    *batcher
	permission atomic.Bool
	quiet      QuietHours

	channelsOnce sync.Once

	statsMu sync.Mutex
	stats   Stats
}

// NewDispatcher creates a [Dispatcher]. A nil renderer logs notifications instead of displaying them.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Renderer == nil {
		opts.Renderer = NewLogRenderer(opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Config.RateWindow.Duration <= 0 {
		return nil, fmt.Errorf("%w: rate window must be positive", shared.ErrInvalidConfig)
	}

	size := opts.Config.DedupeSize
	if size <= 0 {
		size = DefaultDedupeSize
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedupe cache: %w", err)
	}

	d := &Dispatcher{
		cfg:      opts.Config,
		renderer: opts.Renderer,
		prefs:    opts.Preferences,
		profile:  opts.Profile,
		logger:   opts.Logger,
		now:      opts.Now,
		history:  NewHistory(opts.Config.HistorySize),
		seen:     seen,
		quiet:    QuietHoursFromConfig(opts.Config),
		stats:    Stats{Dropped: make(map[DropReason]int)},
	}
	d.permission.Store(opts.Config.Enabled)
	d.batches = newBatcher(opts.Config.BatchDelay.Duration, opts.Config.MaxBatchWait.Duration, d.flushBatch)
	return d, nil
}

// SetPermission records whether the platform allows this app to post notifications.
func (d *Dispatcher) SetPermission(enabled bool) { d.permission.Store(enabled) }

// History returns the dispatch history.
func (d *Dispatcher) History() *History { return d.history }

// Handle processes one inbound event.
func (d *Dispatcher) Handle(ctx context.Context, event models.NotificationEvent) Outcome {
	d.ensureChannels(ctx)
	d.count(func(s *Stats) { s.Received++ })

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = d.now()
	}
	if id := event.MessageID(); id != "" {
		if seen, _ := d.seen.ContainsOrAdd(id, struct{}{}); seen {
			d.count(func(s *Stats) { s.Duplicates++ })
			d.logger.Debug("duplicate message dropped", "message_id", id, "type", event.Type)
			return OutcomeDuplicate
		}
	}

	route := Classify(event.Type)
	if route.Class == models.ClassUrgent {
		return d.show(ctx, event.Type, d.single(event, route), route)
	}

	if !d.batches.add(event) {
		d.drop(event.Type, ReasonShutdown)
		return OutcomeDropped
	}
	d.logger.Debug("event queued", "type", event.Type)
	return OutcomeQueued
}

// Flush renders every pending batch now.
func (d *Dispatcher) Flush() { d.batches.flushAll() }

// Close stops accepting batchable events and flushes pending batches.
func (d *Dispatcher) Close() { d.batches.close() }

// Prune removes history older than the rate window and returns how many records were removed.
func (d *Dispatcher) Prune() int {
	return d.history.Prune(d.now().Add(-d.cfg.RateWindow.Duration))
}

// Stats returns a copy of the counters.
func (d *Dispatcher) Stats() Stats {
	d.statsMu.Lock()
	s := d.stats
	s.Dropped = make(map[DropReason]int, len(d.stats.Dropped))
	for k, v := range d.stats.Dropped {
		s.Dropped[k] = v
	}
	d.statsMu.Unlock()

	s.Pending = d.batches.size()
	s.History = d.history.Len()
	return s
}

// Limit returns the rolling-window cap for t.
func (d *Dispatcher) Limit(t models.NotificationType) int {
	if n, ok := d.cfg.TypeLimits[string(t)]; ok && n > 0 {
		return n
	}
	return d.cfg.RateLimit
}

// Check evaluates the throttle rules for t at now, in order: permission, preference, rate cap, quiet hours.
func (d *Dispatcher) Check(ctx context.Context, t models.NotificationType, now time.Time) (DropReason, bool) {
	if !d.permission.Load() {
		return ReasonPermission, false
	}

	if d.prefs != nil {
		enabled, err := d.prefs.Enabled(ctx, t)
		if err != nil {
			d.logger.Warn("failed to read preference, assuming enabled", "type", t, "err", err)
		} else if !enabled {
			return ReasonPreference, false
		}
	}

	if d.history.CountSince(t, now.Add(-d.cfg.RateWindow.Duration)) >= d.Limit(t) {
		return ReasonRateLimited, false
	}

	if Classify(t).Class == models.ClassUrgent && d.cfg.UrgentBypassesQuietHours {
		return "", true
	}
	if d.quietHours(ctx).Contains(now) {
		return ReasonQuietHours, false
	}
	return "", true
}

func (d *Dispatcher) quietHours(ctx context.Context) QuietHours {
	if d.prefs == nil {
		return d.quiet
	}
	setting, found, err := d.prefs.QuietHours(ctx)
	if err != nil {
		d.logger.Warn("failed to read quiet hours, using defaults", "err", err)
		return d.quiet
	}
	if !found {
		return d.quiet
	}
	return QuietHoursFromSetting(setting)
}

func (d *Dispatcher) flushBatch(t models.NotificationType, events []models.NotificationEvent) {
	if len(events) == 0 {
		return
	}
	route := Classify(t)
	n := d.single(events[len(events)-1], route)
	if len(events) > 1 {
		n = d.coalesce(t, events, route)
		d.count(func(s *Stats) { s.Coalesced += len(events) })
	}
	d.show(context.Background(), t, n, route)
}

func (d *Dispatcher) show(ctx context.Context, t models.NotificationType, n models.Notification, route Route) Outcome {
	now := d.now()
	if reason, ok := d.Check(ctx, t, now); !ok {
		d.drop(t, reason)
		return OutcomeDropped
	}

	d.applyProfile(&n)
	if err := d.renderer.Render(ctx, n); err != nil {
		d.logger.Warn("render failed", "type", t, "channel", route.Channel, "err", err)
		d.drop(t, ReasonRenderFailed)
		return OutcomeDropped
	}

	d.history.Add(models.NotificationRecord{ID: n.ID, Type: t, Timestamp: now, Shown: true})
	d.count(func(s *Stats) { s.Shown++ })
	d.logger.Debug("notification shown", "type", t, "channel", route.Channel, "count", n.Count)
	return OutcomeShown
}

func (d *Dispatcher) drop(t models.NotificationType, reason DropReason) {
	d.count(func(s *Stats) { s.Dropped[reason]++ })
	d.logger.Debug("notification dropped", "type", t, "reason", reason)
}

func (d *Dispatcher) single(e models.NotificationEvent, route Route) models.Notification {
	return models.Notification{
		ID:       uuid.NewString(),
		Type:     e.Type,
		Channel:  route.Channel,
		Title:    e.Title,
		Body:     e.Body,
		DeepLink: route.DeepLink,
		Count:    1,
		ImageURL: e.Payload[models.PayloadImageURL],
		Payload:  e.Payload,
	}
}

func (d *Dispatcher) coalesce(t models.NotificationType, events []models.NotificationEvent, route Route) models.Notification {
	return models.Notification{
		ID:       uuid.NewString(),
		Type:     t,
		Channel:  route.Channel,
		Title:    fmt.Sprintf("%d %s", len(events), route.Label),
		Body:     fmt.Sprintf("You have %d new %s. Tap to see them.", len(events), route.Label),
		DeepLink: route.DeepLink,
		Count:    len(events),
	}
}

func (d *Dispatcher) applyProfile(n *models.Notification) {
	n.ImageQuality = models.ImageQualityStandard
	if d.profile != nil {
		n.ImageQuality = d.profile.Current().ImageQuality
	}
	if n.ImageQuality == models.ImageQualityBasic {
		n.ImageURL = ""
	}
}

func (d *Dispatcher) ensureChannels(ctx context.Context) {
	d.channelsOnce.Do(func() {
		if err := d.renderer.CreateChannels(ctx, Channels()); err != nil {
			d.logger.Warn("failed to create notification channels", "err", err)
		}
	})
}

func (d *Dispatcher) count(fn func(*Stats)) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	fn(&d.stats)
}
