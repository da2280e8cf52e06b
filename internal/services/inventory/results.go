package inventory

import (
	"sort"
	"sync"
	"time"
)

// resultTable is the wrapper's own bookkeeping of issued handles. It never
// owns native result data, only the handle values.
type resultTable struct {
	mu     sync.Mutex
	issued map[ResultHandle]time.Time
}

func newResultTable() *resultTable {
	return &resultTable{issued: make(map[ResultHandle]time.Time)}
}

func (t *resultTable) track(h ResultHandle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.issued[h] = time.Now()
	return len(t.issued)
}

// release forgets h and reports whether it was outstanding.
func (t *resultTable) release(h ResultHandle) (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.issued[h]
	delete(t.issued, h)
	return ok, len(t.issued)
}

// OutstandingResult is a handle that was issued and not yet released.
type OutstandingResult struct {
	Handle   ResultHandle `json:"handle"`
	IssuedAt time.Time    `json:"issued_at"`
}

func (t *resultTable) outstanding() []OutstandingResult {
	t.mu.Lock()
	out := make([]OutstandingResult, 0, len(t.issued))
	for h, at := range t.issued {
		out = append(out, OutstandingResult{Handle: h, IssuedAt: at})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Handle.Raw() < out[j].Handle.Raw()
	})
	return out
}
