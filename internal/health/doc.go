// Package health watches frame pacing and system pressure and reports a [models.HealthMode].
//
// # Sampling
//
// [Monitor.OnFrame] takes a refresh timestamp and queues the gap since the previous one. A frame is
// dropped when it runs longer than the configured factor times the tier's frame budget. The background
// loop keeps the last window_size frames with running totals for average FPS and drop rate.
//
// [SystemSampler] reads memory usage and temperature sensors through gopsutil and feeds them to
// [Monitor.ReportSystem].
//
// # Modes
//
// [Evaluate] is the raw rule: critical on the critical drop rate, a critical thermal state or critical
// memory use; degraded on the warning equivalents (thermal hot); normal otherwise. The monitor adds
// hysteresis on top: it escalates at once, and steps down only after recovery_evaluations consecutive
// readings clear the lower mode's thresholds by recovery_margin.
package health
