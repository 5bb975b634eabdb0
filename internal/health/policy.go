package health

import (
	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/shared"
)

// Reading is the aggregated input to a mode decision.
type Reading struct {
	DropRate           float64
	Thermal            models.ThermalState
	MemoryUsagePercent float64
}

// Evaluate maps r to the health mode its thresholds call for.
//
// Critical wins over degraded; a reading that trips nothing is normal.
func Evaluate(cfg shared.HealthConfig, r Reading) models.HealthMode {
	return evaluate(cfg, r, 0)
}

// evaluate applies the thresholds lowered by margin. Memory thresholds are percentages, so the margin is scaled.
func evaluate(cfg shared.HealthConfig, r Reading, margin float64) models.HealthMode {
	switch {
	case r.DropRate >= cfg.CriticalDropRate-margin,
		r.Thermal >= models.ThermalCritical,
		r.MemoryUsagePercent >= cfg.MemoryCriticalPercent-margin*100:
		return models.HealthCritical
	case r.DropRate >= cfg.WarningDropRate-margin,
		r.Thermal >= models.ThermalHot,
		r.MemoryUsagePercent >= cfg.MemoryWarningPercent-margin*100:
		return models.HealthDegraded
	default:
		return models.HealthNormal
	}
}

// ThermalFromCelsius buckets a temperature with the configured thresholds.
func ThermalFromCelsius(cfg shared.HealthConfig, celsius float64) models.ThermalState {
	switch {
	case celsius >= cfg.ThermalCritCelsius:
		return models.ThermalCritical
	case celsius >= cfg.ThermalHotCelsius:
		return models.ThermalHot
	case celsius >= cfg.ThermalWarmCelsius:
		return models.ThermalWarm
	default:
		return models.ThermalNormal
	}
}

// hysteresis holds the current mode. Escalation is immediate; de-escalation needs a run of
// consecutive readings that clear the thresholds by the recovery margin.
type hysteresis struct {
	cfg  shared.HealthConfig
	mode models.HealthMode
	calm int
}

// next feeds one reading and reports the new mode and whether it changed.
func (h *hysteresis) next(r Reading) (models.HealthMode, bool) {
	raw := evaluate(h.cfg, r, 0)
	if raw > h.mode {
		h.mode, h.calm = raw, 0
		return h.mode, true
	}

	relaxed := evaluate(h.cfg, r, h.cfg.RecoveryMargin)
	if relaxed >= h.mode {
		h.calm = 0
		return h.mode, false
	}

	h.calm++
	if h.calm < max(h.cfg.RecoveryEvaluations, 1) {
		return h.mode, false
	}
	h.mode, h.calm = relaxed, 0
	return h.mode, true
}
