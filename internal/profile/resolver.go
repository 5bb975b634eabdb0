package profile

import (
	"fmt"
	"strings"

	"github.com/linage/linapush/internal/models"
)

// Key indexes a [Table].
type Key struct {
	Tier models.Tier
	Mode models.HealthMode
}

// Knobs are the tunable values of one table entry.
type Knobs struct {
	AnimationScale          float64
	ImageQuality            models.ImageQuality
	MaxConcurrentOperations int
	TargetFrameRate         int
	CacheSizeFactor         float64
}

// Table maps every (tier, health mode) pair to its knobs.
type Table map[Key]Knobs

// DefaultTable is the built-in lookup table. Health modes only scale a tier down from its normal entry.
var DefaultTable = Table{
	{models.TierLowEnd, models.HealthNormal}:   {0.5, models.ImageQualityBasic, 2, 30, 0.5},
	{models.TierLowEnd, models.HealthDegraded}: {0.25, models.ImageQualityBasic, 1, 30, 0.5},
	{models.TierLowEnd, models.HealthCritical}: {0.1, models.ImageQualityBasic, 1, 24, 0.25},

	{models.TierMidEnd, models.HealthNormal}:   {0.75, models.ImageQualityStandard, 4, 60, 1.0},
	{models.TierMidEnd, models.HealthDegraded}: {0.5, models.ImageQualityBasic, 2, 45, 0.75},
	{models.TierMidEnd, models.HealthCritical}: {0.25, models.ImageQualityBasic, 1, 30, 0.5},

	{models.TierHighEnd, models.HealthNormal}:   {1.0, models.ImageQualityHigh, 6, 60, 1.5},
	{models.TierHighEnd, models.HealthDegraded}: {0.75, models.ImageQualityStandard, 4, 60, 1.0},
	{models.TierHighEnd, models.HealthCritical}: {0.5, models.ImageQualityBasic, 2, 30, 0.75},

	{models.TierPremium, models.HealthNormal}:   {1.0, models.ImageQualityUltra, 8, 120, 2.0},
	{models.TierPremium, models.HealthDegraded}: {0.75, models.ImageQualityHigh, 6, 90, 1.5},
	{models.TierPremium, models.HealthCritical}: {0.5, models.ImageQualityStandard, 3, 60, 1.0},
}

// Validate checks that t has a fully populated entry for every tier and health mode,
// and that no degraded entry exceeds its tier's normal entry.
func Validate(t Table) error {
	var problems []string
	for _, tier := range models.AllTiers {
		normal, hasNormal := t[Key{tier, models.HealthNormal}]
		for _, mode := range models.AllHealthModes {
			k, ok := t[Key{tier, mode}]
			if !ok {
				problems = append(problems, fmt.Sprintf("%s/%s: missing", tier, mode))
				continue
			}
			if missing := k.profile(tier, mode).Unset(); len(missing) > 0 {
				problems = append(problems, fmt.Sprintf("%s/%s: unset %s", tier, mode, strings.Join(missing, ",")))
			}
			if hasNormal && mode != models.HealthNormal {
				if k.AnimationScale > normal.AnimationScale || k.TargetFrameRate > normal.TargetFrameRate {
					problems = append(problems, fmt.Sprintf("%s/%s: exceeds normal ceiling", tier, mode))
				}
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("profile table invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Resolver maps (tier, health mode) to a [models.PerformanceProfile].
type Resolver struct {
	table Table
}

// NewResolver creates a [Resolver] over t, or [DefaultTable] when t is nil.
//
// It panics when the table is not exhaustive: a missing entry is a programming error that must not reach a running process.
func NewResolver(t Table) *Resolver {
	if t == nil {
		t = DefaultTable
	}
	if err := Validate(t); err != nil {
		panic(err)
	}
	return &Resolver{table: t}
}

// Resolve returns the profile for tier in mode. Unknown tiers resolve as mid_end.
func (r *Resolver) Resolve(tier models.Tier, mode models.HealthMode) models.PerformanceProfile {
	if tier < models.TierLowEnd || tier > models.TierPremium {
		tier = models.TierMidEnd
	}
	if mode < models.HealthNormal || mode > models.HealthCritical {
		mode = models.HealthCritical
	}
	return r.table[Key{tier, mode}].profile(tier, mode)
}

// FrameBudgetNanos is the frame duration budget for tier at its normal frame rate.
func (r *Resolver) FrameBudgetNanos(tier models.Tier) int64 {
	fps := r.Resolve(tier, models.HealthNormal).TargetFrameRate
	return int64(1_000_000_000 / fps)
}

func (k Knobs) profile(tier models.Tier, mode models.HealthMode) models.PerformanceProfile {
	return models.PerformanceProfile{
		Tier:                    tier,
		Mode:                    mode,
		AnimationScale:          k.AnimationScale,
		ImageQuality:            k.ImageQuality,
		MaxConcurrentOperations: k.MaxConcurrentOperations,
		TargetFrameRate:         k.TargetFrameRate,
		CacheSizeFactor:         k.CacheSizeFactor,
	}
}
