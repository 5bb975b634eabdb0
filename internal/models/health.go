package models

import "time"

// ThermalState is the coarse device temperature reading.
type ThermalState int

const (
	ThermalNormal ThermalState = iota
	ThermalWarm
	ThermalHot
	ThermalCritical
)

func (s ThermalState) String() string {
	switch s {
	case ThermalWarm:
		return "warm"
	case ThermalHot:
		return "hot"
	case ThermalCritical:
		return "critical"
	default:
		return "normal"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s ThermalState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// RuntimeHealthSample is one streamed observation. Samples are never persisted.
type RuntimeHealthSample struct {
	FrameDurationNanos int64        `json:"frameDurationNanos"`
	IsDropped          bool         `json:"isDropped"`
	ThermalState       ThermalState `json:"thermalState"`
	MemoryUsagePercent float64      `json:"memoryUsagePercent"`
	Timestamp          time.Time    `json:"timestamp"`
}

// HealthTransition is emitted when the monitor's health mode changes.
type HealthTransition struct {
	From HealthMode `json:"from"`
	To   HealthMode `json:"to"`
	At   time.Time  `json:"at"`
}

// HealthSnapshot is a point-in-time view of the aggregated window.
type HealthSnapshot struct {
	Mode               HealthMode   `json:"healthMode"`
	Samples            int          `json:"samples"`
	AverageFPS         float64      `json:"averageFps"`
	DropRate           float64      `json:"dropRate"`
	ThermalState       ThermalState `json:"thermalState"`
	MemoryUsagePercent float64      `json:"memoryUsagePercent"`
	Running            bool         `json:"running"`
}
