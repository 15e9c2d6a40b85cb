// Package opstatus tracks the lifecycle of asynchronous store operations.
//
// Every call to Begin bumps a per-operation generation counter and returns a
// Ticket. When the call completes, Finish reports whether the ticket is still
// the newest one for that operation; callers apply their results only when it
// is, so a slow completion that was superseded by a later call is dropped.
package opstatus

import (
	"sync"
)

// Status is the observable state of one operation.
type Status int

const (
	Idle Status = iota
	Pending
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Snapshot is a point-in-time view of an operation.
type Snapshot struct {
	Status     Status
	Generation uint64
	Err        error
}

// Ticket identifies one in-flight call of an operation.
type Ticket struct {
	Op         string
	Generation uint64
	// Label is what the observer sees. It equals Op except for keyed calls.
	Label string
}

// Observer is notified of every accepted status transition.
type Observer func(op string, status Status)

// Tracker holds the status of every named operation of one store.
type Tracker struct {
	mu       sync.Mutex
	ops      map[string]*Snapshot
	observer Observer
}

// NewTracker creates a Tracker. observer may be nil.
func NewTracker(observer Observer) *Tracker {
	return &Tracker{ops: make(map[string]*Snapshot), observer: observer}
}

// Begin marks op as pending and supersedes any earlier call of op.
func (t *Tracker) Begin(op string) Ticket {
	return t.begin(op, op)
}

// BeginKeyed is Begin for one instance of op, such as a single room. Each key
// has its own generation and status under Key(op, key), while the observer is
// notified with op alone.
func (t *Tracker) BeginKeyed(op, key string) Ticket {
	return t.begin(Key(op, key), op)
}

// Key names the tracked entry of a keyed operation.
func Key(op, key string) string {
	return op + ":" + key
}

func (t *Tracker) begin(op, label string) Ticket {
	t.mu.Lock()
	snap, ok := t.ops[op]
	if !ok {
		snap = &Snapshot{}
		t.ops[op] = snap
	}
	snap.Generation++
	snap.Status = Pending
	snap.Err = nil
	ticket := Ticket{Op: op, Generation: snap.Generation, Label: label}
	t.mu.Unlock()

	t.notify(label, Pending)
	return ticket
}

// Current reports whether ticket is still the newest call of its operation.
func (t *Tracker) Current(ticket Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, ok := t.ops[ticket.Op]
	return ok && snap.Generation == ticket.Generation
}

// Finish records the outcome of ticket's call. It returns false, and leaves
// the recorded status alone, when a newer call of the same operation has
// started since.
func (t *Tracker) Finish(ticket Ticket, err error) bool {
	t.mu.Lock()
	snap, ok := t.ops[ticket.Op]
	if !ok || snap.Generation != ticket.Generation {
		t.mu.Unlock()
		return false
	}
	status := Succeeded
	if err != nil {
		status = Failed
	}
	snap.Status = status
	snap.Err = err
	t.mu.Unlock()

	label := ticket.Label
	if label == "" {
		label = ticket.Op
	}
	t.notify(label, status)
	return true
}

// Get returns the snapshot of op. Unknown operations are Idle.
func (t *Tracker) Get(op string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if snap, ok := t.ops[op]; ok {
		return *snap
	}
	return Snapshot{Status: Idle}
}

func (t *Tracker) notify(op string, status Status) {
	if t.observer != nil {
		t.observer(op, status)
	}
}
