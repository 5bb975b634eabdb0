package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/repositories"
	"github.com/linage/linapush/internal/shared"
	tu "github.com/linage/linapush/internal/testing"
)

var noon = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() shared.NotificationsConfig {
	return shared.NotificationsConfig{
		Enabled:     true,
		BatchDelay:  shared.Duration{Duration: 50 * time.Millisecond},
		RateLimit:   5,
		RateWindow:  shared.Duration{Duration: time.Hour},
		HistorySize: 100,
		DedupeSize:  16,
	}
}

type fakePreferences struct {
	disabled map[models.NotificationType]bool
	quiet    *repositories.QuietHoursSetting
	err      error
}

func (p *fakePreferences) Enabled(_ context.Context, t models.NotificationType) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	return !p.disabled[t], nil
}

func (p *fakePreferences) QuietHours(context.Context) (repositories.QuietHoursSetting, bool, error) {
	if p.quiet == nil {
		return repositories.QuietHoursSetting{}, false, p.err
	}
	return *p.quiet, true, p.err
}

type staticProfile models.PerformanceProfile

func (p staticProfile) Current() models.PerformanceProfile { return models.PerformanceProfile(p) }

func newDispatcher(t *testing.T, cfg shared.NotificationsConfig, mutate func(*Options)) (*Dispatcher, *tu.RecordingRenderer, *tu.Clock) {
	t.Helper()
	renderer := &tu.RecordingRenderer{}
	clock := tu.NewClock(noon)
	opts := Options{Config: cfg, Renderer: renderer, Now: clock.Now}
	if mutate != nil {
		mutate(&opts)
	}
	d, err := NewDispatcher(opts)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, renderer, clock
}

func event(t models.NotificationType, title string) models.NotificationEvent {
	return models.EventFromData(map[string]string{
		models.PayloadType:  string(t),
		models.PayloadTitle: title,
		models.PayloadBody:  title + " body",
	}, noon)
}

func TestClassify(t *testing.T) {
	t.Run("every type has a unique route", func(t *testing.T) {
		links := make(map[string]models.NotificationType)
		for _, typ := range models.AllNotificationTypes {
			route := Classify(typ)
			assert.NotEmpty(t, route.DeepLink, typ)
			assert.NotEmpty(t, route.Label, typ)
			if prev, ok := links[route.DeepLink]; ok {
				t.Errorf("%s and %s share deep link %s", prev, typ, route.DeepLink)
			}
			links[route.DeepLink] = typ
		}
	})

	t.Run("urgent types", func(t *testing.T) {
		for _, typ := range models.AllNotificationTypes {
			want := models.ClassBatchable
			if typ == models.TypePaymentDue || typ == models.TypeTechnicalAlert {
				want = models.ClassUrgent
			}
			assert.Equal(t, want, Classify(typ).Class, typ)
		}
	})

	t.Run("unknown type routes as general", func(t *testing.T) {
		e := models.EventFromData(map[string]string{"type": "mystery"}, noon)
		assert.Equal(t, models.TypeGeneral, e.Type)
		assert.Equal(t, Classify(models.TypeGeneral), Classify(e.Type))
		assert.Equal(t, models.ChannelDefault, Classify(e.Type).Channel)
	})

	t.Run("channels", func(t *testing.T) {
		got := make(map[models.ChannelID]models.Importance)
		for _, ch := range Channels() {
			got[ch.ID] = ch.Importance
		}
		assert.Equal(t, map[models.ChannelID]models.Importance{
			models.ChannelDefault:    models.ImportanceDefault,
			models.ChannelPromotions: models.ImportanceLow,
			models.ChannelTechnical:  models.ImportanceHigh,
			models.ChannelBilling:    models.ImportanceHigh,
		}, got)
	})
}

func TestQuietHours(t *testing.T) {
	at := func(hour int) time.Time { return time.Date(2026, 3, 1, hour, 30, 0, 0, time.UTC) }

	tc := []struct {
		name  string
		quiet QuietHours
		hour  int
		want  bool
	}{
		{name: "wraparound late evening", quiet: QuietHours{true, 22, 8}, hour: 23, want: true},
		{name: "wraparound early morning", quiet: QuietHours{true, 22, 8}, hour: 7, want: true},
		{name: "wraparound midday", quiet: QuietHours{true, 22, 8}, hour: 12, want: false},
		{name: "start is inclusive", quiet: QuietHours{true, 22, 8}, hour: 22, want: true},
		{name: "end is exclusive", quiet: QuietHours{true, 22, 8}, hour: 8, want: false},
		{name: "daytime range", quiet: QuietHours{true, 9, 17}, hour: 12, want: true},
		{name: "daytime range outside", quiet: QuietHours{true, 9, 17}, hour: 18, want: false},
		{name: "disabled", quiet: QuietHours{false, 22, 8}, hour: 23, want: false},
		{name: "empty range", quiet: QuietHours{true, 5, 5}, hour: 5, want: false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.quiet.Contains(at(tt.hour)))
		})
	}
}

func TestHistory(t *testing.T) {
	record := func(typ models.NotificationType, at time.Time) models.NotificationRecord {
		return models.NotificationRecord{ID: at.String(), Type: typ, Timestamp: at, Shown: true}
	}

	t.Run("ring overwrites oldest", func(t *testing.T) {
		h := NewHistory(3)
		for i := range 5 {
			h.Add(record(models.TypePromotion, noon.Add(time.Duration(i)*time.Minute)))
		}
		recs := h.Records()
		require.Len(t, recs, 3)
		assert.True(t, recs[0].Timestamp.Equal(noon.Add(2*time.Minute)))
		assert.True(t, recs[2].Timestamp.Equal(noon.Add(4*time.Minute)))
	})

	t.Run("CountSince filters by type and time", func(t *testing.T) {
		h := NewHistory(10)
		h.Add(record(models.TypePromotion, noon))
		h.Add(record(models.TypePromotion, noon.Add(time.Minute)))
		h.Add(record(models.TypeBillReady, noon.Add(time.Minute)))

		assert.Equal(t, 2, h.CountSince(models.TypePromotion, noon.Add(-time.Second)))
		assert.Equal(t, 1, h.CountSince(models.TypePromotion, noon))
		assert.Equal(t, 1, h.CountSince(models.TypeBillReady, noon))
	})

	t.Run("Prune", func(t *testing.T) {
		h := NewHistory(4)
		for i := range 6 {
			h.Add(record(models.TypeGeneral, noon.Add(time.Duration(i)*time.Minute)))
		}
		assert.Equal(t, 2, h.Prune(noon.Add(3*time.Minute)))
		assert.Equal(t, 2, h.Len())

		h.Add(record(models.TypeGeneral, noon.Add(10*time.Minute)))
		recs := h.Records()
		require.Len(t, recs, 3)
		assert.True(t, recs[0].Timestamp.Equal(noon.Add(4*time.Minute)))
		assert.True(t, recs[2].Timestamp.Equal(noon.Add(10*time.Minute)))
		assert.Zero(t, h.Prune(noon))
	})
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("urgent events render immediately", func(t *testing.T) {
		d, renderer, _ := newDispatcher(t, testConfig(), nil)

		assert.Equal(t, OutcomeShown, d.Handle(ctx, event(models.TypePaymentDue, "Pay now")))

		rendered := renderer.Rendered()
		require.Len(t, rendered, 1)
		assert.Equal(t, models.ChannelBilling, rendered[0].Channel)
		assert.Equal(t, "linage://billing/pay", rendered[0].DeepLink)
		assert.Equal(t, 1, rendered[0].Count)
	})

	t.Run("channels are created once", func(t *testing.T) {
		d, renderer, _ := newDispatcher(t, testConfig(), nil)
		d.Handle(ctx, event(models.TypePaymentDue, "a"))
		d.Handle(ctx, event(models.TypeTechnicalAlert, "b"))
		assert.Len(t, renderer.Channels(), 4)
	})

	t.Run("batch of three coalesces into one", func(t *testing.T) {
		d, renderer, _ := newDispatcher(t, testConfig(), nil)

		for _, title := range []string{"Plan A", "Plan B", "Plan C"} {
			assert.Equal(t, OutcomeQueued, d.Handle(ctx, event(models.TypeNewPlan, title)))
		}

		require.Eventually(t, func() bool { return renderer.Count() == 1 }, time.Second, 5*time.Millisecond)
		n := renderer.Rendered()[0]
		assert.Equal(t, 3, n.Count)
		assert.Equal(t, models.TypeNewPlan, n.Type)
		assert.Equal(t, "linage://plans", n.DeepLink)

		stats := d.Stats()
		assert.Equal(t, 3, stats.Received)
		assert.Equal(t, 1, stats.Shown)
		assert.Equal(t, 3, stats.Coalesced)
	})

	t.Run("single batched event renders as is", func(t *testing.T) {
		d, renderer, _ := newDispatcher(t, testConfig(), nil)
		d.Handle(ctx, event(models.TypeBillReady, "Your bill"))

		require.Eventually(t, func() bool { return renderer.Count() == 1 }, time.Second, 5*time.Millisecond)
		n := renderer.Rendered()[0]
		assert.Equal(t, "Your bill", n.Title)
		assert.Equal(t, 1, n.Count)
	})

	t.Run("debounce restarts on each arrival", func(t *testing.T) {
		cfg := testConfig()
		cfg.BatchDelay = shared.Duration{Duration: 200 * time.Millisecond}
		d, renderer, _ := newDispatcher(t, cfg, nil)

		d.Handle(ctx, event(models.TypePromotion, "one"))
		time.Sleep(120 * time.Millisecond)
		d.Handle(ctx, event(models.TypePromotion, "two"))
		time.Sleep(120 * time.Millisecond)
		assert.Zero(t, renderer.Count(), "batch flushed before the restarted delay elapsed")

		require.Eventually(t, func() bool { return renderer.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, 2, renderer.Rendered()[0].Count)
	})

	t.Run("steady arrivals flush at the batch cap", func(t *testing.T) {
		cfg := testConfig()
		cfg.BatchDelay = shared.Duration{Duration: 100 * time.Millisecond}
		cfg.MaxBatchWait = shared.Duration{Duration: 300 * time.Millisecond}
		d, renderer, _ := newDispatcher(t, cfg, nil)

		stop := time.After(time.Second)
		ticker := time.NewTicker(40 * time.Millisecond)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ticker.C:
				d.Handle(ctx, event(models.TypePromotion, "tick"))
				if renderer.Count() > 0 {
					break loop
				}
			case <-stop:
				break loop
			}
		}

		require.Positive(t, renderer.Count(), "batch never flushed under steady arrivals")
		assert.Greater(t, renderer.Rendered()[0].Count, 1)
	})

	t.Run("types batch independently", func(t *testing.T) {
		d, renderer, _ := newDispatcher(t, testConfig(), nil)
		d.Handle(ctx, event(models.TypePromotion, "p"))
		d.Handle(ctx, event(models.TypeChatMessage, "c"))
		d.Flush()
		assert.Equal(t, 2, renderer.Count())
	})

	t.Run("rate limit boundary", func(t *testing.T) {
		d, renderer, clock := newDispatcher(t, testConfig(), nil)

		at := func(minutes int) {
			clock.Set(noon.Add(time.Duration(minutes) * time.Minute))
			d.Handle(ctx, event(models.TypePromotion, "promo"))
			d.Flush()
		}

		for m := range 5 {
			at(m)
		}
		assert.Equal(t, 5, renderer.Count())

		at(5)
		assert.Equal(t, 5, renderer.Count(), "sixth promotion in the window must be dropped")
		assert.Equal(t, 1, d.Stats().Dropped[ReasonRateLimited])

		at(61)
		assert.Equal(t, 6, renderer.Count(), "promotion after the window rolls must be shown")
	})

	t.Run("per-type limits override the default", func(t *testing.T) {
		cfg := testConfig()
		cfg.TypeLimits = map[string]int{"technical_alert": 2}
		d, renderer, _ := newDispatcher(t, cfg, nil)

		for range 3 {
			d.Handle(ctx, event(models.TypeTechnicalAlert, "outage"))
		}
		assert.Equal(t, 2, renderer.Count())
		assert.Equal(t, 2, d.Limit(models.TypeTechnicalAlert))
		assert.Equal(t, 5, d.Limit(models.TypePromotion))
	})

	t.Run("throttle rules", func(t *testing.T) {
		late := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)

		tc := []struct {
			name   string
			setup  func(*tu.Clock, *Options)
			want   Outcome
			reason DropReason
		}{
			{
				name:   "permission disabled",
				setup:  func(_ *tu.Clock, o *Options) { o.Config.Enabled = false },
				want:   OutcomeDropped,
				reason: ReasonPermission,
			},
			{
				name: "preference disabled",
				setup: func(_ *tu.Clock, o *Options) {
					o.Preferences = &fakePreferences{disabled: map[models.NotificationType]bool{models.TypePaymentDue: true}}
				},
				want:   OutcomeDropped,
				reason: ReasonPreference,
			},
			{
				name: "preference read error fails open",
				setup: func(_ *tu.Clock, o *Options) {
					o.Preferences = &fakePreferences{err: errors.New("disk")}
				},
				want: OutcomeShown,
			},
			{
				name: "quiet hours from preferences",
				setup: func(c *tu.Clock, o *Options) {
					c.Set(late)
					o.Preferences = &fakePreferences{quiet: &repositories.QuietHoursSetting{Enabled: true, Start: 22, End: 8}}
				},
				want:   OutcomeDropped,
				reason: ReasonQuietHours,
			},
			{
				name: "quiet hours from config",
				setup: func(c *tu.Clock, o *Options) {
					c.Set(late)
					o.Config.QuietHoursEnabled, o.Config.QuietHoursStart, o.Config.QuietHoursEnd = true, 22, 8
				},
				want:   OutcomeDropped,
				reason: ReasonQuietHours,
			},
			{
				name: "urgent bypass",
				setup: func(c *tu.Clock, o *Options) {
					c.Set(late)
					o.Config.QuietHoursEnabled, o.Config.QuietHoursStart, o.Config.QuietHoursEnd = true, 22, 8
					o.Config.UrgentBypassesQuietHours = true
				},
				want: OutcomeShown,
			},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				clock := tu.NewClock(noon)
				renderer := &tu.RecordingRenderer{}
				opts := Options{Config: testConfig(), Renderer: renderer, Now: clock.Now}
				tt.setup(clock, &opts)

				d, err := NewDispatcher(opts)
				require.NoError(t, err)
				t.Cleanup(d.Close)

				assert.Equal(t, tt.want, d.Handle(ctx, event(models.TypePaymentDue, "due")))
				if tt.reason != "" {
					assert.Equal(t, 1, d.Stats().Dropped[tt.reason])
					assert.Zero(t, renderer.Count())
				}
			})
		}
	})

	t.Run("SetPermission toggles delivery", func(t *testing.T) {
		d, renderer, _ := newDispatcher(t, testConfig(), nil)
		d.SetPermission(false)
		assert.Equal(t, OutcomeDropped, d.Handle(ctx, event(models.TypePaymentDue, "a")))
		d.SetPermission(true)
		assert.Equal(t, OutcomeShown, d.Handle(ctx, event(models.TypePaymentDue, "b")))
		assert.Equal(t, 1, renderer.Count())
	})

	t.Run("duplicate message ids are dropped", func(t *testing.T) {
		d, renderer, _ := newDispatcher(t, testConfig(), nil)
		e := event(models.TypeTechnicalAlert, "outage")
		e.Payload[models.PayloadMessageID] = "m-1"

		assert.Equal(t, OutcomeShown, d.Handle(ctx, e))
		assert.Equal(t, OutcomeDuplicate, d.Handle(ctx, e))
		assert.Equal(t, 1, renderer.Count())
		assert.Equal(t, 1, d.Stats().Duplicates)
	})

	t.Run("basic image quality drops the picture", func(t *testing.T) {
		tc := []struct {
			quality   models.ImageQuality
			wantImage string
		}{
			{quality: models.ImageQualityBasic, wantImage: ""},
			{quality: models.ImageQualityHigh, wantImage: "https://cdn.linage.test/a.png"},
		}

		for _, tt := range tc {
			t.Run(tt.quality.String(), func(t *testing.T) {
				d, renderer, _ := newDispatcher(t, testConfig(), func(o *Options) {
					o.Profile = staticProfile{ImageQuality: tt.quality}
				})
				e := event(models.TypeTechnicalAlert, "outage")
				e.Payload[models.PayloadImageURL] = "https://cdn.linage.test/a.png"

				require.Equal(t, OutcomeShown, d.Handle(ctx, e))
				n := renderer.Rendered()[0]
				assert.Equal(t, tt.wantImage, n.ImageURL)
				assert.Equal(t, tt.quality, n.ImageQuality)
			})
		}
	})

	t.Run("render failure counts as a drop", func(t *testing.T) {
		d, renderer, _ := newDispatcher(t, testConfig(), nil)
		renderer.Err = errors.New("no surface")

		assert.Equal(t, OutcomeDropped, d.Handle(ctx, event(models.TypePaymentDue, "a")))
		assert.Equal(t, 1, d.Stats().Dropped[ReasonRenderFailed])
		assert.Zero(t, d.History().Len())
	})

	t.Run("Close flushes and then rejects", func(t *testing.T) {
		cfg := testConfig()
		cfg.BatchDelay = shared.Duration{Duration: time.Hour}
		d, renderer, _ := newDispatcher(t, cfg, nil)

		d.Handle(ctx, event(models.TypePromotion, "p"))
		assert.Equal(t, 1, d.Stats().Pending)

		d.Close()
		assert.Equal(t, 1, renderer.Count())
		assert.Equal(t, OutcomeDropped, d.Handle(ctx, event(models.TypePromotion, "late")))
		assert.Equal(t, 1, d.Stats().Dropped[ReasonShutdown])
	})

	t.Run("Prune drops records outside the window", func(t *testing.T) {
		d, _, clock := newDispatcher(t, testConfig(), nil)
		d.Handle(ctx, event(models.TypePaymentDue, "a"))
		clock.Advance(2 * time.Hour)
		d.Handle(ctx, event(models.TypePaymentDue, "b"))

		assert.Equal(t, 1, d.Prune())
		assert.Equal(t, 1, d.History().Len())
	})

	t.Run("requires a rate window", func(t *testing.T) {
		_, err := NewDispatcher(Options{})
		assert.ErrorIs(t, err, shared.ErrInvalidConfig)
	})
}
