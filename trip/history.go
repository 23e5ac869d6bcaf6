package trip

import "fleet-tracking-system/models"

const DefaultHistoryLimit = 100

// History keeps the most recent fixes of a trip, dropping the oldest once
// full.
type History struct {
	buf   []models.LocationHistoryEntry
	start int
	n     int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{buf: make([]models.LocationHistoryEntry, limit)}
}

func (h *History) Append(e models.LocationHistoryEntry) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = e
		h.n++
		return
	}
	h.buf[h.start] = e
	h.start = (h.start + 1) % len(h.buf)
}

// Entries returns the retained fixes, oldest first.
func (h *History) Entries() []models.LocationHistoryEntry {
	out := make([]models.LocationHistoryEntry, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

func (h *History) Len() int { return h.n }

func (h *History) Cap() int { return len(h.buf) }
