// internal/dsp/history.go
package dsp

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// history is a fixed-capacity ring of level samples; the oldest is evicted
// when full.
type history struct {
	buf    []float64
	next   int
	count  int
	sorted []float64
}

func newHistory(capacity int) *history {
	return &history{
		buf:    make([]float64, capacity),
		sorted: make([]float64, 0, capacity),
	}
}

func (h *history) push(v float64) {
	h.buf[h.next] = v
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

func (h *history) len() int { return h.count }

func (h *history) reset() {
	h.next = 0
	h.count = 0
}

// quantile returns the empirical p-quantile of the stored values.
// Returns 0 when empty.
func (h *history) quantile(p float64) float64 {
	if h.count == 0 {
		return 0
	}
	h.sorted = h.sorted[:0]
	if h.count < len(h.buf) {
		h.sorted = append(h.sorted, h.buf[:h.count]...)
	} else {
		h.sorted = append(h.sorted, h.buf...)
	}
	sort.Float64s(h.sorted)
	return stat.Quantile(p, stat.Empirical, h.sorted, nil)
}

func (h *history) median() float64 {
	return h.quantile(0.5)
}
