package status

import (
	"sync"
	"time"
)

// Tracker is the read-only view of the reconciler that the status page
// serves. All methods are safe on a nil receiver so wiring it stays
// optional.
type Tracker struct {
	mu           sync.Mutex
	startedAt    time.Time
	lastCycleAt  time.Time
	lastCycleErr string
	cycles       int
	postedTotal  int
}

func NewTracker() *Tracker {
	return &Tracker{startedAt: time.Now().UTC()}
}

// RecordCycle notes the completion of one reconciliation cycle.
func (t *Tracker) RecordCycle(at time.Time, cycleErr error, posted int) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastCycleAt = at
	t.cycles++
	t.postedTotal += posted

	t.lastCycleErr = ""
	if cycleErr != nil {
		t.lastCycleErr = cycleErr.Error()
	}
}

type view struct {
	UptimeSeconds float64 `json:"uptimeSeconds"`
	LastCycleAt   string  `json:"lastCycleAt,omitempty"`
	LastCycleErr  string  `json:"lastCycleError,omitempty"`
	Cycles        int     `json:"cycles"`
	PostedTotal   int     `json:"postedTotal"`
}

func (t *Tracker) snapshot() view {
	if t == nil {
		return view{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	v := view{
		UptimeSeconds: time.Since(t.startedAt).Seconds(),
		LastCycleErr:  t.lastCycleErr,
		Cycles:        t.cycles,
		PostedTotal:   t.postedTotal,
	}

	if !t.lastCycleAt.IsZero() {
		v.LastCycleAt = t.lastCycleAt.UTC().Format(time.RFC3339)
	}

	return v
}
