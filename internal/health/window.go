package health

import "time"

// window is a fixed-size ring of frame samples with running totals, so every update and read is O(1).
type window struct {
	frames []int64
	drops  []bool
	next   int
	count  int

	sumNanos int64
	dropped  int
}

func newWindow(size int) *window {
	return &window{frames: make([]int64, size), drops: make([]bool, size)}
}

func (w *window) add(frameNanos int64, dropped bool) {
	if w.count == len(w.frames) {
		w.sumNanos -= w.frames[w.next]
		if w.drops[w.next] {
			w.dropped--
		}
	} else {
		w.count++
	}

	w.frames[w.next] = frameNanos
	w.drops[w.next] = dropped
	w.sumNanos += frameNanos
	if dropped {
		w.dropped++
	}
	w.next = (w.next + 1) % len(w.frames)
}

func (w *window) reset() {
	clear(w.frames)
	clear(w.drops)
	w.next, w.count, w.sumNanos, w.dropped = 0, 0, 0, 0
}

func (w *window) averageFPS() float64 {
	if w.sumNanos <= 0 {
		return 0
	}
	return float64(w.count) * float64(time.Second) / float64(w.sumNanos)
}

func (w *window) dropRate() float64 {
	if w.count == 0 {
		return 0
	}
	return float64(w.dropped) / float64(w.count)
}
