package notify

import (
	"sync"
	"time"

	"github.com/linage/linapush/internal/models"
)

// DefaultHistorySize is the ring capacity used when none is configured.
const DefaultHistorySize = 100

// History is a fixed-size ring of recently shown notifications. It is safe for concurrent use.
type History struct {
	mu    sync.Mutex
	ring  []models.NotificationRecord
	next  int
	count int
}

// NewHistory creates a [History] holding at most size records.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{ring: make([]models.NotificationRecord, size)}
}

// Add records rec, overwriting the oldest record when full.
func (h *History) Add(rec models.NotificationRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring[h.next] = rec
	h.next = (h.next + 1) % len(h.ring)
	if h.count < len(h.ring) {
		h.count++
	}
}

// CountSince returns how many notifications of type t were shown strictly after since.
func (h *History) CountSince(t models.NotificationType, since time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for i := range h.count {
		rec := h.ring[h.index(i)]
		if rec.Shown && rec.Type == t && rec.Timestamp.After(since) {
			n++
		}
	}
	return n
}

// Prune drops records at or before cutoff and returns how many were removed.
func (h *History) Prune(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := make([]models.NotificationRecord, 0, h.count)
	for i := range h.count {
		if rec := h.ring[h.index(i)]; rec.Timestamp.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	removed := h.count - len(kept)
	if removed == 0 {
		return 0
	}

	clear(h.ring)
	copy(h.ring, kept)
	h.count = len(kept)
	h.next = len(kept) % len(h.ring)
	return removed
}

// Records returns the stored records, oldest first.
func (h *History) Records() []models.NotificationRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.NotificationRecord, 0, h.count)
	for i := range h.count {
		out = append(out, h.ring[h.index(i)])
	}
	return out
}

// Len returns the number of stored records.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// index maps the i-th oldest record to its ring slot.
func (h *History) index(i int) int {
	start := h.next - h.count
	if start < 0 {
		start += len(h.ring)
	}
	return (start + i) % len(h.ring)
}
