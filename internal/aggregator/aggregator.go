package aggregator

import (
	"sync"

	"github.com/proxy-vitals/internal/types"
)

// ResultSet holds the two final outcome partitions. Order within each set
// reflects completion order, not input order.
type ResultSet struct {
	Working    []types.Success `json:"working"`
	NotWorking []types.Failure `json:"not_working"`
}

// Aggregator partitions completed probe outcomes into working and
// not-working sets. Append-only during the run; no reordering, no
// deduplication (a proxy listed twice is checked and recorded twice).
type Aggregator struct {
	mu         sync.Mutex
	working    []types.Success
	notWorking []types.Failure
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		working:    make([]types.Success, 0),
		notWorking: make([]types.Failure, 0),
	}
}

// Record appends one outcome to the matching set.
func (a *Aggregator) Record(outcome types.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if outcome.Alive {
		a.working = append(a.working, outcome.Success())
	} else {
		a.notWorking = append(a.notWorking, outcome.Failure())
	}
}

// Counts returns the current working and not-working tallies.
func (a *Aggregator) Counts() (working, notWorking int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.working), len(a.notWorking)
}

// WorkingSet returns a copy of the working set accumulated so far.
func (a *Aggregator) WorkingSet() []types.Success {
	a.mu.Lock()
	defer a.mu.Unlock()

	working := make([]types.Success, len(a.working))
	copy(working, a.working)
	return working
}

// Finalize returns the accumulated sets.
func (a *Aggregator) Finalize() *ResultSet {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &ResultSet{
		Working:    a.working,
		NotWorking: a.notWorking,
	}
}
