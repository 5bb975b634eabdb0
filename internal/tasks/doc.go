// Package tasks schedules the periodic background work of the push subsystem with real-time progress reporting.
//
// # Jobs
//
// Three job constructors cover the subsystem's periodic work:
//
//  1. [ResyncJob] : re-registers the persisted token with the backend
//     - Goes through [push.Manager.SyncToBackend], so the sync rate limit still applies
//     - A rate limited run is not a failure
//
//  2. [PruneJob] : trims notification history older than the rate window
//
//  3. [SegmentsJob] : derives segments from the current user and reconciles topic subscriptions
//
// # Progress Reporting
//
// # All jobs use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Implementation
//
// [Scheduler] runs each job on its own ticker until the context ends. [Scheduler.RunOnce] runs every job once,
// in order.
package tasks
