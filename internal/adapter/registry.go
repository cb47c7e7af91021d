package adapter

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/media-discovery-crawler/internal/policy"
)

// DefaultID is the registry key of the fallback adapter.
const DefaultID = "default"

// ErrAdapterNotFound reports that no candidate id is registered.
var ErrAdapterNotFound = errors.New("adapter not found")

// NotFoundError carries the host that could not be resolved.
type NotFoundError struct {
	Hostname string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no adapter for host %q", e.Hostname)
}

// Is lets errors.Is match ErrAdapterNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrAdapterNotFound
}

// Registry maps adapter ids to implementations. It is filled at startup and
// read concurrently by visits.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds a under id.
func (r *Registry) Register(id string, a Adapter) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("adapter id is required")
	}
	if a == nil {
		return fmt.Errorf("adapter %q is nil", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("adapter %q already registered", id)
	}
	r.adapters[id] = a
	return nil
}

// Candidates lists the ids tried for hostname, in order: the override for the
// host, the sanitized host and finally DefaultID. Duplicates are removed.
func Candidates(hostname string, overrides map[string]string) []string {
	host := strings.ToLower(strings.TrimSpace(hostname))
	out := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if id, ok := overrides[host]; ok {
		add(strings.TrimSpace(id))
	}
	if host != "" {
		add(policy.SanitizeDomain(host))
	}
	add(DefaultID)
	return out
}

// Resolve returns the first registered adapter among Candidates.
func (r *Registry) Resolve(hostname string, overrides map[string]string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range Candidates(hostname, overrides) {
		if a, ok := r.adapters[id]; ok {
			return a, nil
		}
	}
	return nil, &NotFoundError{Hostname: hostname}
}

// IDs returns the registered ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}
