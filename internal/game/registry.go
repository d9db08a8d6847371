package game

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds all registered play modes.
type Registry struct {
	mu    sync.RWMutex
	modes map[string]Mode
	def   string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modes: make(map[string]Mode)}
}

// Register adds a mode. Panics on duplicate names. The first mode
// registered becomes the default.
func (r *Registry) Register(m Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modes[m.Name]; exists {
		panic(fmt.Sprintf("mode %q already registered", m.Name))
	}
	r.modes[m.Name] = m
	if r.def == "" {
		r.def = m.Name
	}
}

// Get returns a mode by name. An empty name returns the default mode.
func (r *Registry) Get(name string) (Mode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.def
	}
	m, ok := r.modes[name]
	return m, ok
}

// List returns info for all registered modes, sorted by name.
func (r *Registry) List() []ModeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]ModeInfo, 0, len(r.modes))
	for _, m := range r.modes {
		infos = append(infos, m.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
