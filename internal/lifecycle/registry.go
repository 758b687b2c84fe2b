package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrDuplicateHandler = errors.New("lifecycle: handler already registered")

// Registry maps module names to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Register(module string, h Handler) error {
	module = normalizeModule(module)
	if module == "" || h == nil {
		return fmt.Errorf("lifecycle: register %q: module name and handler are required", module)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[module]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, module)
	}
	r.handlers[module] = h
	return nil
}

func (r *Registry) Lookup(module string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[normalizeModule(module)]
	return h, ok
}

// Names returns the registered modules in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
