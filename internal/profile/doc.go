// Package profile resolves a [models.PerformanceProfile] from a hardware tier and a runtime health mode.
//
// # Resolver
//
// [Resolver] is a pure lookup over a [Table] keyed by (tier, health mode).
// [NewResolver] panics unless [Validate] accepts the table: every one of the 4×3 combinations must exist,
// every knob must be set, and degraded entries may not raise animation scale or frame rate above the tier's normal entry.
//
// # Controller
//
// [Controller] holds the active profile for one process. Its tier is fixed at construction;
// [Controller.Run] consumes health transitions and re-resolves, fanning changes out to subscribers with non-blocking sends.
package profile
