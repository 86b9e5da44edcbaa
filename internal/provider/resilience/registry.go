package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is a point-in-time view of one upstream.
type Health struct {
	Name          string     `json:"name"`
	State         string     `json:"state"`
	Requests      uint32     `json:"requests"`
	Failures      uint32     `json:"failures"`
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`

	circuit gobreaker.State
}

// Healthy reports whether the upstream breaker is closed.
func (h Health) Healthy() bool {
	return h.circuit == gobreaker.StateClosed
}

// Registry tracks the upstream clients of a process for the status endpoint.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry), now: time.Now}
}

// Register adds a client. Registering a name twice replaces the earlier client.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[c.Name()] = &entry{client: c}
}

// RecordSuccess notes a successful call.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		now := r.now()
		e.lastSuccessAt = &now
	}
}

// RecordFailure notes a failed call and its error.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		now := r.now()
		e.lastFailureAt = &now
		if err != nil {
			e.lastError = err.Error()
		}
	}
}

// Get returns the health of one upstream.
func (r *Registry) Get(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Health{}, false
	}
	return e.health(name), true
}

// All returns the health of every upstream, ordered by name.
func (r *Registry) All() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, e.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e *entry) health(name string) Health {
	state := e.client.State()
	counts := e.client.Counts()
	return Health{
		Name:          name,
		State:         state.String(),
		Requests:      counts.Requests,
		Failures:      counts.TotalFailures,
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
		circuit:       state,
	}
}
