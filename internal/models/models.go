// package models defines the data model for the push and performance pipeline
package models

import (
	"fmt"
	"strings"
)

// Tier is a coarse hardware-capability class. Tiers are ordered; a larger value is a more capable device.
type Tier int

const (
	TierUnknown Tier = iota
	TierLowEnd
	TierMidEnd
	TierHighEnd
	TierPremium
)

// AllTiers lists every assignable tier from least to most capable.
var AllTiers = []Tier{TierLowEnd, TierMidEnd, TierHighEnd, TierPremium}

func (t Tier) String() string {
	switch t {
	case TierLowEnd:
		return "low_end"
	case TierMidEnd:
		return "mid_end"
	case TierHighEnd:
		return "high_end"
	case TierPremium:
		return "premium"
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// ParseTier converts a config tier name ("low_end", "mid", "premium", ...) into a [Tier].
func ParseTier(name string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "low_end", "low":
		return TierLowEnd, nil
	case "mid_end", "mid":
		return TierMidEnd, nil
	case "high_end", "high":
		return TierHighEnd, nil
	case "premium":
		return TierPremium, nil
	}
	return TierUnknown, fmt.Errorf("unknown tier %q", name)
}

// ScreenMetrics describes the display.
type ScreenMetrics struct {
	Density        float64 `json:"density"`
	WidthPx        int     `json:"widthPx"`
	HeightPx       int     `json:"heightPx"`
	DiagonalInches float64 `json:"diagonalInches"`
}

// DeviceCapabilities is the immutable hardware descriptor computed once per process.
type DeviceCapabilities struct {
	Tier                    Tier          `json:"tier"`
	Model                   string        `json:"model"`
	MemoryMB                int           `json:"memoryMB"`
	CPUCoreCount            int           `json:"cpuCoreCount"`
	HasHardwareAcceleration bool          `json:"hasHardwareAcceleration"`
	Screen                  ScreenMetrics `json:"screenMetrics"`
}

// HealthMode is the runtime-observed degradation state, independent of [Tier].
type HealthMode int

const (
	HealthNormal HealthMode = iota
	HealthDegraded
	HealthCritical
)

// AllHealthModes lists every mode from healthiest to worst.
var AllHealthModes = []HealthMode{HealthNormal, HealthDegraded, HealthCritical}

func (m HealthMode) String() string {
	switch m {
	case HealthNormal:
		return "normal"
	case HealthDegraded:
		return "degraded"
	case HealthCritical:
		return "critical"
	default:
		return fmt.Sprintf("health_mode(%d)", int(m))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (m HealthMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ParseHealthMode converts "normal", "degraded" or "critical" into a [HealthMode].
func ParseHealthMode(name string) (HealthMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "normal", "":
		return HealthNormal, nil
	case "degraded":
		return HealthDegraded, nil
	case "critical":
		return HealthCritical, nil
	}
	return HealthNormal, fmt.Errorf("unknown health mode %q", name)
}

// ImageQuality selects how much image detail the app loads. Zero is unset.
type ImageQuality int

const (
	ImageQualityUnset ImageQuality = iota
	ImageQualityBasic
	ImageQualityStandard
	ImageQualityHigh
	ImageQualityUltra
)

func (q ImageQuality) String() string {
	switch q {
	case ImageQualityBasic:
		return "basic"
	case ImageQualityStandard:
		return "standard"
	case ImageQualityHigh:
		return "high"
	case ImageQualityUltra:
		return "ultra"
	default:
		return "unset"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (q ImageQuality) MarshalText() ([]byte, error) { return []byte(q.String()), nil }

// PerformanceProfile is the set of behavioral knobs resolved from (tier, health mode).
type PerformanceProfile struct {
	Tier                    Tier         `json:"tier"`
	Mode                    HealthMode   `json:"healthMode"`
	AnimationScale          float64      `json:"animationScale"`
	ImageQuality            ImageQuality `json:"imageQuality"`
	MaxConcurrentOperations int          `json:"maxConcurrentOperations"`
	TargetFrameRate         int          `json:"targetFrameRate"`
	CacheSizeFactor         float64      `json:"cacheSizeFactor"`
}

// Unset reports the names of knob fields that hold their zero value.
func (p PerformanceProfile) Unset() []string {
	var missing []string
	if p.AnimationScale <= 0 {
		missing = append(missing, "animationScale")
	}
	if p.ImageQuality == ImageQualityUnset {
		missing = append(missing, "imageQuality")
	}
	if p.MaxConcurrentOperations <= 0 {
		missing = append(missing, "maxConcurrentOperations")
	}
	if p.TargetFrameRate <= 0 {
		missing = append(missing, "targetFrameRate")
	}
	if p.CacheSizeFactor <= 0 {
		missing = append(missing, "cacheSizeFactor")
	}
	return missing
}
