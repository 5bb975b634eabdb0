package ui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/linage/linapush/internal/models"
)

type fakeMonitor struct {
	mu       sync.Mutex
	frames   []time.Time
	starts   int
	stops    int
	snapshot models.HealthSnapshot
}

func (f *fakeMonitor) OnFrame(ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, ts)
}

func (f *fakeMonitor) Snapshot() models.HealthSnapshot { return f.snapshot }
func (f *fakeMonitor) Start(context.Context)           { f.starts++ }
func (f *fakeMonitor) Stop()                           { f.stops++ }

type staticProfile models.PerformanceProfile

func (p staticProfile) Current() models.PerformanceProfile { return models.PerformanceProfile(p) }

var baseProfile = models.PerformanceProfile{
	Tier:                    models.TierHighEnd,
	Mode:                    models.HealthNormal,
	AnimationScale:          1,
	ImageQuality:            models.ImageQualityHigh,
	MaxConcurrentOperations: 6,
	TargetFrameRate:         60,
	CacheSizeFactor:         1,
}

func newModel(updates <-chan models.PerformanceProfile) (*Model, *fakeMonitor) {
	mon := &fakeMonitor{snapshot: models.HealthSnapshot{Mode: models.HealthNormal, Samples: 30, AverageFPS: 59.8, Running: true}}
	m := NewModel(context.Background(), Options{
		Monitor:       mon,
		Profile:       staticProfile(baseProfile),
		Updates:       updates,
		Capabilities:  models.DeviceCapabilities{Tier: models.TierHighEnd, Model: "Pixel 8", MemoryMB: 8192, CPUCoreCount: 8},
		FrameInterval: 10 * time.Millisecond,
		Now:           func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	return m, mon
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestModel(t *testing.T) {
	t.Run("Init starts the monitor", func(t *testing.T) {
		m, mon := newModel(nil)
		if cmd := m.Init(); cmd == nil {
			t.Fatal("expected a tick command")
		}
		if mon.starts != 1 {
			t.Errorf("expected 1 start, got %d", mon.starts)
		}
	})

	t.Run("frames feed the monitor", func(t *testing.T) {
		m, mon := newModel(nil)
		at := time.Unix(100, 0)
		_, cmd := m.Update(frameMsg(at))
		if cmd == nil {
			t.Fatal("expected the next tick to be scheduled")
		}
		if len(mon.frames) != 1 || !mon.frames[0].Equal(at) {
			t.Errorf("unexpected frames %v", mon.frames)
		}
		if m.Frames() != 1 {
			t.Errorf("expected 1 frame, got %d", m.Frames())
		}
	})

	t.Run("pause stops and resumes", func(t *testing.T) {
		m, mon := newModel(nil)
		m.Update(keyPress('p'))
		if mon.stops != 1 || !m.paused {
			t.Fatalf("expected monitor stopped, stops=%d paused=%v", mon.stops, m.paused)
		}

		m.Update(frameMsg(time.Unix(1, 0)))
		if len(mon.frames) != 0 {
			t.Errorf("paused dashboard should not report frames")
		}
		if !strings.Contains(m.View(), "paused") {
			t.Errorf("view should show paused status")
		}

		m.Update(keyPress('p'))
		if mon.starts != 1 || m.paused {
			t.Errorf("expected monitor restarted, starts=%d paused=%v", mon.starts, m.paused)
		}
	})

	t.Run("stress stretches the frame interval", func(t *testing.T) {
		m, _ := newModel(nil)
		if m.interval() != 10*time.Millisecond {
			t.Fatalf("unexpected interval %v", m.interval())
		}
		m.Update(keyPress('s'))
		if m.interval() != 30*time.Millisecond {
			t.Errorf("expected stretched interval, got %v", m.interval())
		}
	})

	t.Run("quit stops the monitor", func(t *testing.T) {
		m, mon := newModel(nil)
		_, cmd := m.Update(keyPress('q'))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("expected tea.QuitMsg")
		}
		if mon.stops != 1 {
			t.Errorf("expected monitor stopped")
		}
	})

	t.Run("profile changes are listed", func(t *testing.T) {
		updates := make(chan models.PerformanceProfile, 1)
		m, _ := newModel(updates)

		degraded := baseProfile
		degraded.Mode = models.HealthDegraded
		degraded.TargetFrameRate = 30
		updates <- degraded

		msg := m.waitForProfile()()
		m.Update(msg)
		if m.profile != degraded {
			t.Errorf("expected degraded profile, got %+v", m.profile)
		}
		if n := len(m.changes.Items()); n != 1 {
			t.Fatalf("expected 1 change, got %d", n)
		}
		if !strings.Contains(m.View(), "30 fps") {
			t.Errorf("view should show the new target frame rate")
		}

		close(updates)
		m.Update(m.waitForProfile()())
		if !m.closed || m.waitForProfile() != nil {
			t.Errorf("expected subscription to be marked closed")
		}
	})

	t.Run("View", func(t *testing.T) {
		m, mon := newModel(nil)
		mon.snapshot.DropRate = 0.25
		mon.snapshot.ThermalState = models.ThermalWarm
		m.Update(frameMsg(time.Unix(1, 0)))

		view := m.View()
		for _, want := range []string{"Pixel 8", "high_end", "59.8 fps", "25.0%", "warm", "normal", "60 fps"} {
			if !strings.Contains(view, want) {
				t.Errorf("view missing %q:\n%s", want, view)
			}
		}
	})
}

func TestBar(t *testing.T) {
	tc := []struct {
		frac   float64
		filled int
	}{
		{frac: -1, filled: 0},
		{frac: 0, filled: 0},
		{frac: 0.5, filled: barWidth / 2},
		{frac: 1, filled: barWidth},
		{frac: 3, filled: barWidth},
	}

	for _, tt := range tc {
		got := bar(tt.frac)
		if n := strings.Count(got, "█"); n != tt.filled {
			t.Errorf("bar(%v) filled %d cells, want %d", tt.frac, n, tt.filled)
		}
	}
}
