// Package push manages the lifecycle of a device push token.
//
// # Token Lifecycle
//
// [Manager.OnNewToken] seals the token through a [Sealer], persists it with its issue time in one write,
// and starts a background [Manager.SyncToBackend]. Sync is best effort: the outcome is a [models.SyncOutcome]
// and failures only reach the log.
//
// Sync attempts are throttled by a [rate.Limiter] allowing one attempt per sync interval. The limiter is
// re-seeded from the persisted last sync time, so restarting the process does not reopen the window.
//
// # Segments
//
// [DeriveSegments] maps [models.UserAttributes] to segment tags. Segment tags become topics through
// [SegmentTopic]; [Manager.SubscribeToSegments] keeps the subscribed set in step with the committed one by
// subscribing additions and unsubscribing removals. Only successful subscriptions are committed.
//
// [Manager.ClearAll] is the logout path: every tracked topic is dropped and persisted push state is erased.
package push
