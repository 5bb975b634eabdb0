package health

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/shared"
)

var (
	virtualMemory      = mem.VirtualMemoryWithContext
	sensorTemperatures = host.SensorsTemperaturesWithContext
)

// Reporter receives system readings. [Monitor] implements it.
type Reporter interface {
	ReportSystem(thermal models.ThermalState, memoryPercent float64)
}

// SystemSampler polls host memory and temperature sensors.
type SystemSampler struct {
	cfg    shared.HealthConfig
	logger *log.Logger
}

// NewSystemSampler creates a [SystemSampler].
func NewSystemSampler(cfg shared.HealthConfig, logger *log.Logger) *SystemSampler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SystemSampler{cfg: cfg, logger: logger}
}

// Sample reads memory usage and the hottest sensor once.
//
// Sensors are optional: with no readable sensor the thermal state is normal.
func (s *SystemSampler) Sample(ctx context.Context) (models.ThermalState, float64, error) {
	vm, err := virtualMemory(ctx)
	if err != nil {
		return models.ThermalNormal, 0, err
	}

	temps, err := sensorTemperatures(ctx)
	if err != nil && len(temps) == 0 {
		s.logger.Debug("temperature sensors unavailable", "err", err)
	}

	hottest := 0.0
	for _, t := range temps {
		hottest = max(hottest, t.Temperature)
	}
	return ThermalFromCelsius(s.cfg, hottest), vm.UsedPercent, nil
}

// Run samples every interval and forwards readings to r until ctx is done.
func (s *SystemSampler) Run(ctx context.Context, r Reporter) error {
	interval := s.cfg.SampleInterval.Duration
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if thermal, memory, err := s.Sample(ctx); err != nil {
			s.logger.Warn("system sample failed", "err", err)
		} else {
			r.ReportSystem(thermal, memory)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
