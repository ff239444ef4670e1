// Package jobs tracks protocol runs. A run moves forward through the
// protocol states and ends in DONE or FAILED; observers can subscribe to
// its progress events.
package jobs

import (
	"fmt"
	"sync"
	"time"
)

type State string

const (
	StateCreated       State = "CREATED"
	StateOfflineServer State = "OFFLINE_SERVER"
	StateOfflineClient State = "OFFLINE_CLIENT"
	StateOnlineOPRF    State = "ONLINE_OPRF"
	StateOnlineQuery   State = "ONLINE_QUERY"
	StateOnlineAnswer  State = "ONLINE_ANSWER"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

var rank = map[State]int{
	StateCreated:       0,
	StateOfflineServer: 1,
	StateOfflineClient: 2,
	StateOnlineOPRF:    3,
	StateOnlineQuery:   4,
	StateOnlineAnswer:  5,
	StateDone:          6,
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Event is one progress notification.
type Event struct {
	State     State             `json:"state"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// Run is one protocol execution seen from one party.
type Run struct {
	ID         string            `json:"id"`
	Role       Role              `json:"role"`
	State      State             `json:"state"`
	Events     []Event           `json:"events"`
	Metrics    map[string]string `json:"metrics,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt,omitempty"`
	Error      string            `json:"error,omitempty"`

	mu        sync.RWMutex
	listeners []chan Event
}

// NewRun returns a run in the CREATED state.
func NewRun(id string, role Role) *Run {
	return &Run{
		ID:        id,
		Role:      role,
		State:     StateCreated,
		Events:    []Event{},
		StartedAt: time.Now(),
	}
}

// Advance moves the run to state. Only forward moves are allowed; a party
// skips the states that belong to its peer.
func (r *Run) Advance(state State, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, ok := rank[state]
	if !ok {
		return fmt.Errorf("advance to %s: use Fail", state)
	}
	if r.State.Terminal() || next <= rank[r.State] {
		return fmt.Errorf("illegal transition %s -> %s", r.State, state)
	}
	r.State = state
	r.emit(Event{State: state, Message: message, Timestamp: time.Now()})
	if state == StateDone {
		r.finish()
	}
	return nil
}

// Fail records err and moves the run to FAILED. Failing a finished run is
// a no-op.
func (r *Run) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State.Terminal() {
		return
	}
	r.State = StateFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.emit(Event{State: StateFailed, Message: r.Error, Timestamp: time.Now()})
	r.finish()
}

// Note attaches a progress message to the current state.
func (r *Run) Note(message string, metrics map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emit(Event{State: r.State, Message: message, Timestamp: time.Now(), Metrics: metrics})
}

// SetMetric records a run-level metric.
func (r *Run) SetMetric(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Metrics == nil {
		r.Metrics = make(map[string]string)
	}
	r.Metrics[key] = value
}

// emit appends ev and notifies listeners without blocking. r.mu is held.
func (r *Run) emit(ev Event) {
	r.Events = append(r.Events, ev)
	for _, l := range r.listeners {
		select {
		case l <- ev:
		default:
		}
	}
}

// finish closes every listener. r.mu is held.
func (r *Run) finish() {
	r.FinishedAt = time.Now()
	for _, l := range r.listeners {
		close(l)
	}
	r.listeners = nil
}

// Subscribe returns a channel of future events. The channel is closed when
// the run finishes; on a finished run it is returned closed.
func (r *Run) Subscribe() chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Event, 16)
	if r.State.Terminal() {
		close(ch)
		return ch
	}
	r.listeners = append(r.listeners, ch)
	return ch
}

func (r *Run) Unsubscribe(ch chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, l := range r.listeners {
		if l == ch {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (r *Run) Current() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.State
}

// Snapshot returns a copy safe to serialize.
func (r *Run) Snapshot() Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metrics := make(map[string]string, len(r.Metrics))
	for k, v := range r.Metrics {
		metrics[k] = v
	}
	return Run{
		ID:         r.ID,
		Role:       r.Role,
		State:      r.State,
		Events:     append([]Event{}, r.Events...),
		Metrics:    metrics,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Error:      r.Error,
	}
}
