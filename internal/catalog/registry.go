package catalog

import (
	"fmt"
	"sync"

	"github.com/felixgeelhaar/benjudge/internal/domain"
)

// Registry holds the loaded catalog in memory.
type Registry struct {
	loader   *Loader
	mu       sync.RWMutex
	problems map[int]*domain.Problem
	ordered  []domain.Problem
}

// NewRegistry creates an empty registry backed by loader.
func NewRegistry(loader *Loader) *Registry {
	return &Registry{
		loader:   loader,
		problems: make(map[int]*domain.Problem),
	}
}

// FromProblems builds a registry over a fixed problem set.
func FromProblems(problems []domain.Problem) *Registry {
	r := &Registry{problems: make(map[int]*domain.Problem)}
	r.set(problems)
	return r
}

// Load reads the catalog. On error the previous contents are kept.
func (r *Registry) Load() error {
	if r.loader == nil {
		return nil
	}
	problems, err := r.loader.Load()
	if err != nil {
		return fmt.Errorf("load catalog %s: %w", r.loader.Path(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(problems)
	return nil
}

func (r *Registry) set(problems []domain.Problem) {
	r.problems = make(map[int]*domain.Problem, len(problems))
	r.ordered = problems
	for i := range problems {
		r.problems[problems[i].ID] = &r.ordered[i]
	}
}

// Get returns a problem by ID
func (r *Registry) Get(id int) (*domain.Problem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.problems[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrProblemNotFound, id)
	}
	return p, nil
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Difficulty domain.Difficulty
	Category   string
}

// List returns problems ordered by ID.
func (r *Registry) List(f Filter) []domain.Problem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Problem, 0, len(r.ordered))
	for i := range r.ordered {
		p := &r.ordered[i]
		if f.Difficulty != "" && p.Difficulty != f.Difficulty {
			continue
		}
		if f.Category != "" && !p.HasCategory(f.Category) {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// Count returns the number of problems
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}
