package application

import (
	"slices"
	"sync"
)

// DefaultHistorySize is how many supply ids SearchHistory keeps.
const DefaultHistorySize = 3

// SearchHistory is the in-memory list of recently searched supply ids,
// most recent first and without duplicates.
type SearchHistory struct {
	mu    sync.Mutex
	size  int
	items []string
}

// NewSearchHistory creates a history holding up to size entries. A
// non-positive size uses DefaultHistorySize.
func NewSearchHistory(size int) *SearchHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &SearchHistory{size: size, items: make([]string, 0, size)}
}

// Record moves supplyID to the front, evicting the oldest entry when full.
func (h *SearchHistory) Record(supplyID string) {
	if supplyID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if i := slices.Index(h.items, supplyID); i >= 0 {
		h.items = slices.Delete(h.items, i, i+1)
	}
	h.items = slices.Insert(h.items, 0, supplyID)
	if len(h.items) > h.size {
		h.items = h.items[:h.size]
	}
}

// List returns a copy of the entries, most recent first.
func (h *SearchHistory) List() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.items)
}
