package health

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/shared"
)

const transitionBuffer = 8

// Options configures a [Monitor].
type Options struct {
	Config shared.HealthConfig
	// FrameBudget is the tier's target frame duration. A frame longer than DropFactor times this is dropped.
	FrameBudget time.Duration
	Logger      *log.Logger
	Now         func() time.Time
}

type frame struct {
	nanos   int64
	dropped bool
	at      time.Time
}

// Monitor aggregates frame timings and system readings into a health mode.
//
// [Monitor.OnFrame] is meant for a display refresh callback: it never blocks and does constant work.
// Aggregation and mode evaluation run on a background goroutine between [Monitor.Start] and [Monitor.Stop].
// Mode changes are published on [Monitor.Transitions]; the monitor never touches the active profile itself.
type Monitor struct {
	cfg       shared.HealthConfig
	threshold int64
	logger    *log.Logger
	now       func() time.Time

	frames      chan frame
	poke        chan struct{}
	transitions chan models.HealthTransition

	running   atomic.Bool
	lastFrame atomic.Int64
	thermal   atomic.Int32
	memory    atomic.Uint64
	overflow  atomic.Uint64

	mu     sync.Mutex // guards fields below
	window *window
	policy hysteresis
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a stopped [Monitor].
func NewMonitor(opts Options) *Monitor {
	cfg := opts.Config
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 60
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.DropFactor <= 0 {
		cfg.DropFactor = 1.5
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Monitor{
		cfg:         cfg,
		threshold:   int64(float64(opts.FrameBudget) * cfg.DropFactor),
		logger:      opts.Logger,
		now:         opts.Now,
		frames:      make(chan frame, cfg.QueueSize),
		poke:        make(chan struct{}, 1),
		transitions: make(chan models.HealthTransition, transitionBuffer),
		window:      newWindow(cfg.WindowSize),
		policy:      hysteresis{cfg: cfg},
	}
}

// Transitions delivers mode changes. Only the newest pending transitions are kept when the reader falls behind.
func (m *Monitor) Transitions() <-chan models.HealthTransition { return m.transitions }

// OnFrame records a display refresh at ts. Frame duration is the gap since the previous refresh.
func (m *Monitor) OnFrame(ts time.Time) {
	if !m.running.Load() {
		return
	}
	now := ts.UnixNano()
	prev := m.lastFrame.Swap(now)
	if prev == 0 || now <= prev {
		return
	}

	nanos := now - prev
	select {
	case m.frames <- frame{nanos: nanos, dropped: m.threshold > 0 && nanos > m.threshold, at: ts}:
	default:
		m.overflow.Add(1)
	}
}

// ReportSystem records the latest thermal state and memory usage.
func (m *Monitor) ReportSystem(thermal models.ThermalState, memoryPercent float64) {
	m.thermal.Store(int32(thermal))
	m.memory.Store(math.Float64bits(memoryPercent))
	select {
	case m.poke <- struct{}{}:
	default:
	}
}

// Overflow returns how many frames were discarded because the queue was full.
func (m *Monitor) Overflow() uint64 { return m.overflow.Load() }

// Start launches the aggregation goroutine. It is a no-op when already running.
// Cancelling ctx stops the monitor as [Monitor.Stop] would.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.drain()
	m.window.reset()
	m.policy.calm = 0
	m.lastFrame.Store(0)
	m.running.Store(true)

	go m.loop(ctx, m.done)
	m.logger.Debug("health monitor started", "window", m.cfg.WindowSize, "drop_threshold", time.Duration(m.threshold))
}

// Stop halts aggregation and waits for the goroutine to exit. The current mode is kept for the next Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.running.Store(false)
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Debug("health monitor stopped")
}

// drain discards frames queued before the last Stop.
func (m *Monitor) drain() {
	for {
		select {
		case <-m.frames:
		default:
			return
		}
	}
}

// Snapshot returns the current aggregate view.
func (m *Monitor) Snapshot() models.HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.HealthSnapshot{
		Mode:               m.policy.mode,
		Samples:            m.window.count,
		AverageFPS:         m.window.averageFPS(),
		DropRate:           m.window.dropRate(),
		ThermalState:       models.ThermalState(m.thermal.Load()),
		MemoryUsagePercent: math.Float64frombits(m.memory.Load()),
		Running:            m.cancel != nil,
	}
}

// Mode returns the current health mode.
func (m *Monitor) Mode() models.HealthMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy.mode
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			if m.done == done {
				m.cancel()
				m.cancel, m.done = nil, nil
				m.running.Store(false)
			}
			m.mu.Unlock()
			return
		case f := <-m.frames:
			m.mu.Lock()
			m.window.add(f.nanos, f.dropped)
			m.mu.Unlock()
			m.evaluate(f.at)
		case <-m.poke:
			m.evaluate(m.now())
		}
	}
}

func (m *Monitor) evaluate(at time.Time) {
	m.mu.Lock()
	r := Reading{
		Thermal:            models.ThermalState(m.thermal.Load()),
		MemoryUsagePercent: math.Float64frombits(m.memory.Load()),
	}
	if m.window.count >= m.cfg.MinSamples {
		r.DropRate = m.window.dropRate()
	}
	from := m.policy.mode
	to, changed := m.policy.next(r)
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Info("health mode changed", "from", from, "to", to, "drop_rate", r.DropRate, "thermal", r.Thermal, "memory", r.MemoryUsagePercent)
	m.publish(models.HealthTransition{From: from, To: to, At: at})
}

// publish sends t, discarding the oldest queued transition if the buffer is full.
func (m *Monitor) publish(t models.HealthTransition) {
	for range 2 {
		select {
		case m.transitions <- t:
			return
		default:
		}
		select {
		case <-m.transitions:
		default:
		}
	}
	m.logger.Warn("health transition discarded", "to", t.To)
}
