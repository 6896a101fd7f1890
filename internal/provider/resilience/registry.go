package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is the health of one registered client.
type Health struct {
	Name          string           `json:"name"`
	CircuitState  gobreaker.State  `json:"-"`
	State         string           `json:"state"`
	Counts        gobreaker.Counts `json:"-"`
	LastSuccessAt *time.Time       `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time       `json:"last_failure_at,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
}

// IsHealthy returns true if the circuit is closed.
func (h *Health) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded returns true if the circuit is half-open.
func (h *Health) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy returns true if the circuit is open.
func (h *Health) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks clients and the outcome of their latest requests.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*registeredClient
}

type registeredClient struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*registeredClient),
	}
}

// Register adds a client under name, replacing any previous one.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = &registeredClient{client: client}
}

// Unregister removes a client.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, name)
}

// RecordSuccess records a successful request.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[name]; ok {
		now := time.Now()
		c.lastSuccessAt = &now
	}
}

// RecordFailure records a failed request.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[name]; ok {
		now := time.Now()
		c.lastFailureAt = &now
		if err != nil {
			c.lastError = err.Error()
		}
	}
}

// GetHealth returns the health of one client, or nil if it is not registered.
func (r *Registry) GetHealth(name string) *Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[name]
	if !ok {
		return nil
	}
	return c.health(name)
}

// GetAllHealth returns the health of every client, sorted by name.
func (r *Registry) GetAllHealth() []*Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Health, 0, len(r.clients))
	for name, c := range r.clients {
		all = append(all, c.health(name))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (c *registeredClient) health(name string) *Health {
	state := c.client.CircuitBreakerState()
	return &Health{
		Name:          name,
		CircuitState:  state,
		State:         state.String(),
		Counts:        c.client.CircuitBreakerCounts(),
		LastSuccessAt: c.lastSuccessAt,
		LastFailureAt: c.lastFailureAt,
		LastError:     c.lastError,
	}
}
