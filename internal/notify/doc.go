// Package notify turns inbound push events into platform notifications.
//
// # Pipeline
//
// [Dispatcher.Handle] runs every event through:
//  1. de-duplication on the payload's message_id, using a bounded [lru.Cache]
//  2. [Classify], which maps the type to a channel, a class and a deep link
//  3. urgent events are checked and rendered at once; batchable events join a per-type batch
//  4. a batch flushes after the debounce delay passes with no new arrival of its type
//  5. a flush of one event renders it as is; several events render as one summary carrying the count
//
// # Throttling
//
// [Dispatcher.Check] applies, in order, the platform permission, the per-type preference, the per-type cap
// over the rolling rate window and [QuietHours]. The first failing rule drops the notification with a [DropReason].
// Drops are counted in [Stats] and logged at debug level.
//
// Delivery is at most once. Pending batches are lost if the process dies; [Dispatcher.Close] flushes them on
// a clean shutdown.
package notify
