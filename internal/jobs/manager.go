package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Manager keeps the runs of one process.
type Manager struct {
	mu   sync.RWMutex
	runs map[string]*Run
	// keep bounds the number of finished runs retained.
	keep int
}

func NewManager(keep int) *Manager {
	if keep <= 0 {
		keep = 64
	}
	return &Manager{runs: make(map[string]*Run), keep: keep}
}

// Create registers a new run.
func (m *Manager) Create(role Role) *Run {
	id := fmt.Sprintf("%s_%d", role, time.Now().UnixNano())

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, taken := m.runs[id]; taken; _, taken = m.runs[id] {
		id += "x"
	}
	run := NewRun(id, role)
	m.runs[id] = run
	m.prune()
	return run
}

func (m *Manager) Get(id string) *Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs[id]
}

// List returns the runs, oldest first.
func (m *Manager) List() []*Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	sortByStart(runs)
	return runs
}

// prune drops the oldest finished runs beyond keep. m.mu is held.
func (m *Manager) prune() {
	var finished []*Run
	for _, run := range m.runs {
		if run.Current().Terminal() {
			finished = append(finished, run)
		}
	}
	if len(finished) <= m.keep {
		return
	}
	sortByStart(finished)
	for _, run := range finished[:len(finished)-m.keep] {
		delete(m.runs, run.ID)
	}
}

func sortByStart(runs []*Run) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
}
