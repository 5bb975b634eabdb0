package notify

import (
	"slices"
	"sync"
	"time"

	"github.com/linage/linapush/internal/models"
)

// DefaultBatchDelay is the debounce delay used when none is configured.
const DefaultBatchDelay = 3 * time.Second

// maxWaitFactor sets the default cap on a batch's age, in multiples of the debounce delay.
const maxWaitFactor = 4

type flushFunc func(t models.NotificationType, events []models.NotificationEvent)

type pending struct {
	events   []models.NotificationEvent
	timer    *time.Timer
	gen      uint64
	deadline time.Time // first arrival plus maxWait
}

// batcher holds batchable events per type until no new event of that type has arrived for delay,
// or until maxWait has passed since the first event of the batch, whichever comes first.
type batcher struct {
	delay   time.Duration
	maxWait time.Duration
	flush   flushFunc

	mu      sync.Mutex
	pending map[models.NotificationType]*pending
	seq     uint64 // generation counter shared by all types
	closed  bool
}

func newBatcher(delay, maxWait time.Duration, flush flushFunc) *batcher {
	if delay <= 0 {
		delay = DefaultBatchDelay
	}
	if maxWait <= 0 {
		maxWait = maxWaitFactor * delay
	}
	return &batcher{delay: delay, maxWait: max(maxWait, delay), flush: flush, pending: make(map[models.NotificationType]*pending)}
}

// add queues e and restarts the type's timer, never past the batch deadline. It reports false once the batcher is closed.
func (b *batcher) add(e models.NotificationEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}

	p := b.pending[e.Type]
	if p == nil {
		p = &pending{deadline: time.Now().Add(b.maxWait)}
		b.pending[e.Type] = p
	}
	p.events = append(p.events, e)
	b.seq++
	p.gen = b.seq
	if p.timer != nil {
		p.timer.Stop()
	}

	t, gen := e.Type, p.gen
	wait := min(b.delay, max(time.Until(p.deadline), 0))
	p.timer = time.AfterFunc(wait, func() { b.fire(t, gen) })
	return true
}

// fire flushes t if no event arrived after the timer for gen was armed.
func (b *batcher) fire(t models.NotificationType, gen uint64) {
	b.mu.Lock()
	p := b.pending[t]
	if p == nil || p.gen != gen {
		b.mu.Unlock()
		return
	}
	delete(b.pending, t)
	b.mu.Unlock()

	b.flush(t, p.events)
}

// flushAll flushes every pending type now, in type order.
func (b *batcher) flushAll() {
	b.mu.Lock()
	drained := b.pending
	b.pending = make(map[models.NotificationType]*pending)
	b.mu.Unlock()

	types := make([]models.NotificationType, 0, len(drained))
	for t, p := range drained {
		p.timer.Stop()
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		b.flush(t, drained[t].events)
	}
}

// close stops accepting events and flushes what is pending.
func (b *batcher) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.flushAll()
}

// size returns the number of queued events across all types.
func (b *batcher) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, p := range b.pending {
		n += len(p.events)
	}
	return n
}
