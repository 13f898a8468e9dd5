package risk

import "regime-trader/internal/models"

// OutcomeHistory is a fixed-capacity FIFO of closed-trade outcomes. The
// oldest entry is evicted once capacity is reached.
type OutcomeHistory struct {
	buf   []models.TradeOutcome
	start int
	size  int
}

// NewOutcomeHistory creates a history holding at most capacity outcomes.
func NewOutcomeHistory(capacity int) *OutcomeHistory {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &OutcomeHistory{buf: make([]models.TradeOutcome, capacity)}
}

// Push appends an outcome, evicting the oldest when full.
func (h *OutcomeHistory) Push(o models.TradeOutcome) {
	capacity := len(h.buf)
	if h.size < capacity {
		h.buf[(h.start+h.size)%capacity] = o
		h.size++
		return
	}
	h.buf[h.start] = o
	h.start = (h.start + 1) % capacity
}

// Len returns the number of stored outcomes.
func (h *OutcomeHistory) Len() int {
	return h.size
}

// Cap returns the capacity.
func (h *OutcomeHistory) Cap() int {
	return len(h.buf)
}

// Outcomes returns the stored outcomes, oldest first.
func (h *OutcomeHistory) Outcomes() []models.TradeOutcome {
	out := make([]models.TradeOutcome, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}
