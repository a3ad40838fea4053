// Package backend wires adapter instances to configuration and tracks
// per-backend health. It holds no request state; one adapter instance serves
// all requests to its backend.
package backend

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/contextlabs/ragway/internal/backend/adapters"
	"github.com/contextlabs/ragway/internal/config"
)

// Registry manages backend adapters by name.
type Registry struct {
	mu       sync.RWMutex
	active   string
	backends map[string]adapters.Backend
}

func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]adapters.Backend),
	}
}

func (r *Registry) Register(name string, b adapters.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
}

func (r *Registry) Get(name string) (adapters.Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Replace swaps in another registry's adapters and active name under the
// receiver's own lock, so handlers holding the pointer across a config reload
// never observe a torn registry.
func (r *Registry) Replace(from *Registry) {
	from.mu.RLock()
	backends := make(map[string]adapters.Backend, len(from.backends))
	for name, b := range from.backends {
		backends[name] = b
	}
	active := from.active
	from.mu.RUnlock()

	r.mu.Lock()
	r.backends = backends
	r.active = active
	r.mu.Unlock()
}

// SetActive switches which registered adapter receives traffic.
func (r *Registry) SetActive(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = name
}

// Active returns the adapter every request is dispatched to.
func (r *Registry) Active() (adapters.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[r.active]
	if !ok {
		return nil, fmt.Errorf("active backend %q not registered", r.active)
	}
	return b, nil
}

// BuildFromConfig builds backend adapters from the backends config. Each
// adapter owns its HTTP client; there is no process-global client state.
func BuildFromConfig(cfg *config.BackendsConfig) *Registry {
	registry := NewRegistry()
	registry.active = cfg.Active

	for name, bc := range cfg.Backends {
		maxConns := bc.MaxConcurrent
		if maxConns <= 0 {
			maxConns = 16
		}
		client := &http.Client{
			Timeout: bc.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        maxConns,
				MaxIdleConnsPerHost: maxConns,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		var b adapters.Backend
		switch bc.Type {
		case config.BackendTypeTranslating:
			b = adapters.NewTranslatingAdapter(name, bc, client)
		default:
			// Chat-shaped protocols forward as-is.
			b = adapters.NewPassthroughAdapter(name, bc, client)
		}
		registry.Register(name, b)
	}
	return registry
}
