package jobs

import (
	"sync"

	"github.com/google/uuid"
)

// NewJobID generates a job identifier unique across the process
// lifetime.
func NewJobID() string {
	return "job-" + uuid.NewString()
}

// StaleResultGuard tracks the single current job identifier per job
// type so asynchronous result callbacks can tell whether they have been
// superseded. It is a race-free flag, not a cancellation mechanism: it
// never stops in-flight work, it only tells a callback whether to
// discard its result.
//
// Construct one explicitly and inject it into the components that need
// it; its lifetime is typically the session's.
type StaleResultGuard struct {
	mu      sync.Mutex
	current map[string]string
}

// NewStaleResultGuard returns an empty guard.
func NewStaleResultGuard() *StaleResultGuard {
	return &StaleResultGuard{current: make(map[string]string)}
}

// StoreCurrent records id as the sole current job for jobType,
// immediately invalidating any prior id for that type.
func (g *StaleResultGuard) StoreCurrent(jobType, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current[jobType] = id
}

// IsCurrent reports whether id is still the current job for jobType.
// An unknown jobType is never current. A false result is the expected
// steady-state outcome for superseded work and must be treated as a
// silent discard, not a failure.
func (g *StaleResultGuard) IsCurrent(jobType, id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	cur, ok := g.current[jobType]
	return ok && cur == id
}

// Clear removes the current-job record for jobType; every id for that
// type is stale until a new one is stored.
func (g *StaleResultGuard) Clear(jobType string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.current, jobType)
}
