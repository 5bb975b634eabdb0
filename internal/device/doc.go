// Package device classifies the host into a hardware [models.Tier].
//
// # Classification
//
// [Classify] checks model overrides before threshold rules:
//  1. Denylist: model prefixes of known-problematic hardware are always low_end.
//  2. Allowlist: model prefixes of known flagships map to a fixed tier.
//  3. Thresholds: premium, high_end and mid_end each require a minimum memory and core count; anything below mid_end is low_end.
//
// All three come from the [device] config section.
//
// # Detection
//
// [Detector] reads memory, logical cores and the platform identifier through [gopsutil] once, on first access.
// A signal that cannot be read is replaced with a documented mid_end default, so detection has no error outcome.
//
// [gopsutil]: https://github.com/shirou/gopsutil
package device
