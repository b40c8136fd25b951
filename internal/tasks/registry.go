package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownKind is returned when no computation is registered for a kind.
var ErrUnknownKind = errors.New("unknown task type")

// Computation runs one task. Implementations must be safe to call from
// several workers at once. The returned value must be JSON-serializable.
type Computation func(ctx context.Context, args Args) (any, error)

// Registry resolves task kinds to computations.
type Registry struct {
	mu           sync.RWMutex
	computations map[Kind]Computation
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		computations: make(map[Kind]Computation),
	}
}

// Register binds a computation to kind, replacing any previous binding.
func (r *Registry) Register(kind Kind, c Computation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.computations[kind] = c
}

// Resolve returns the computation registered for kind.
func (r *Registry) Resolve(kind Kind) (Computation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.computations[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return c, nil
}

// List returns the registered kinds sorted by name for a stable API response.
func (r *Registry) List() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Kind, 0, len(r.computations))
	for k := range r.computations {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
