// Package models defines the value types shared by the push and performance pipeline.
//
// The package contains three groups of types:
//
// 1. Device and profile: hardware classification and the knobs derived from it
//   - [Tier] : ordered hardware class, LOW_END through PREMIUM
//   - [DeviceCapabilities] : immutable descriptor computed once per process
//   - [HealthMode] : runtime degradation state (normal, degraded, critical)
//   - [PerformanceProfile] : knobs resolved from (tier, health mode)
//
// 2. Push and notifications: token lifecycle and dispatch
//   - [PushToken] : opaque token plus issue time, encrypted at rest
//   - [SegmentSet] : user segment tags that drive topic subscriptions
//   - [NotificationEvent] : ephemeral inbound message
//   - [NotificationRecord] : bounded history entry for rate limiting
//   - [Notification] : rendered output handed to a renderer
//
// 3. Runtime health: streamed samples and emitted transitions
//   - [RuntimeHealthSample], [HealthSnapshot], [HealthTransition]
//
// Enumerations marshal to their lowercase names so JSON output matches config and CLI spelling.
package models
