package console

import (
	"context"
	"sync"

	"github.com/ciris-ai/ciris-agent/action"
)

// Filters is an in-process action.FilterRegistrar: REJECT's optional
// suppression filters persist only for the life of the process, which is
// enough to stop an agent from repeating the same unwanted request within
// a single run.
type Filters struct {
	mu      sync.Mutex
	entries []action.Filter
}

// NewFilters constructs an empty in-process FilterRegistrar.
func NewFilters() *Filters {
	return &Filters{}
}

// RegisterFilter implements action.FilterRegistrar.
func (f *Filters) RegisterFilter(ctx context.Context, filter action.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, filter)
	return nil
}

// Matches reports whether any registered filter's pattern/type match the
// given request shape, for a future REJECT-suppression check to consult.
func (f *Filters) Matches(pattern, typ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.Pattern == pattern && entry.Type == typ {
			return true
		}
	}
	return false
}
