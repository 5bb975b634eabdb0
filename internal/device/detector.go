package device

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/shared"
)

// Fallbacks used when a hardware signal cannot be read. They describe a mid_end device.
const (
	DefaultMemoryMB       = 4096
	DefaultCores          = 4
	DefaultDensity        = 2.0
	DefaultWidthPx        = 1080
	DefaultHeightPx       = 2340
	DefaultDiagonalInches = 6.1
)

var (
	virtualMemory = mem.VirtualMemoryWithContext
	cpuCounts     = cpu.CountsWithContext
	hostInfo      = host.InfoWithContext
)

// Signals are the raw hardware readings a classification is computed from.
type Signals struct {
	Model    string
	MemoryMB int
	Cores    int
}

// Detector computes [models.DeviceCapabilities] lazily on first access and caches them for its lifetime.
type Detector struct {
	cfg    shared.DeviceConfig
	rules  Rules
	logger *log.Logger

	once sync.Once
	caps models.DeviceCapabilities
}

// NewDetector creates a [Detector] from the [device] config section.
func NewDetector(cfg shared.DeviceConfig, logger *log.Logger) (*Detector, error) {
	rules, err := RulesFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Detector{cfg: cfg, rules: rules, logger: logger}, nil
}

// Capabilities returns the cached descriptor, probing the host on the first call.
//
// Probing never fails: unreadable signals are replaced with the mid_end defaults.
func (d *Detector) Capabilities(ctx context.Context) models.DeviceCapabilities {
	d.once.Do(func() {
		d.caps = d.Describe(d.probe(ctx))
		d.logger.Debug("device classified",
			"model", d.caps.Model, "tier", d.caps.Tier,
			"memory_mb", d.caps.MemoryMB, "cores", d.caps.CPUCoreCount)
	})
	return d.caps
}

// Describe builds a descriptor from already-read signals and the configured screen metrics.
func (d *Detector) Describe(s Signals) models.DeviceCapabilities {
	if s.MemoryMB <= 0 {
		s.MemoryMB = DefaultMemoryMB
	}
	if s.Cores <= 0 {
		s.Cores = DefaultCores
	}
	return models.DeviceCapabilities{
		Tier:                    Classify(d.rules, s.Model, s.MemoryMB, s.Cores),
		Model:                   s.Model,
		MemoryMB:                s.MemoryMB,
		CPUCoreCount:            s.Cores,
		HasHardwareAcceleration: d.cfg.HardwareAcceleration,
		Screen:                  screenMetrics(d.cfg.Screen),
	}
}

func (d *Detector) probe(ctx context.Context) Signals {
	var s Signals

	if vm, err := virtualMemory(ctx); err != nil {
		d.logger.Warn("memory probe failed, using default", "err", err, "default_mb", DefaultMemoryMB)
	} else if vm != nil {
		s.MemoryMB = int(vm.Total / (1024 * 1024))
	}

	if n, err := cpuCounts(ctx, true); err != nil {
		d.logger.Warn("cpu probe failed, using default", "err", err, "default_cores", DefaultCores)
	} else {
		s.Cores = n
	}

	s.Model = d.cfg.Model
	if s.Model == "" {
		if info, err := hostInfo(ctx); err != nil {
			d.logger.Warn("host probe failed, model overrides disabled", "err", err)
		} else if info != nil {
			s.Model = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
		}
	}
	return s
}

func screenMetrics(cfg shared.ScreenConfig) models.ScreenMetrics {
	m := models.ScreenMetrics{
		Density:        cfg.Density,
		WidthPx:        cfg.WidthPx,
		HeightPx:       cfg.HeightPx,
		DiagonalInches: cfg.DiagonalInches,
	}
	if m.Density <= 0 {
		m.Density = DefaultDensity
	}
	if m.WidthPx <= 0 || m.HeightPx <= 0 {
		m.WidthPx, m.HeightPx = DefaultWidthPx, DefaultHeightPx
	}
	if m.DiagonalInches <= 0 {
		m.DiagonalInches = DefaultDiagonalInches
	}
	return m
}
