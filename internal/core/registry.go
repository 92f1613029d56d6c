package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry holds the schema templates known to the process, keyed by name.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	fallback  string
}

// NewRegistry creates an empty registry. defaultName is returned by Get("").
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		templates: make(map[string]*Template),
		fallback:  defaultName,
	}
}

// Register adds a template to the registry.
// Returns an error if a template with the same name is already registered.
func (r *Registry) Register(tpl *Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[tpl.Name]; exists {
		return fmt.Errorf("template already registered: %s", tpl.Name)
	}
	r.templates[tpl.Name] = tpl
	return nil
}

// LoadDir registers every .json, .yaml, .yml and .toml file in dir.
// Returns the number of templates loaded.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read template dir: %w", err)
	}

	loaded := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml", ".toml":
		default:
			continue
		}
		tpl, err := LoadTemplate(filepath.Join(dir, e.Name()))
		if err != nil {
			return loaded, err
		}
		if err := r.Register(tpl); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

// Get returns a template by name. An empty name resolves to the default template.
func (r *Registry) Get(name string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.fallback
	}
	tpl, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return tpl, nil
}

// All returns all registered templates sorted by name.
func (r *Registry) All() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Template, 0, len(r.templates))
	for _, tpl := range r.templates {
		result = append(result, tpl)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Count returns the number of registered templates.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}

// Default returns the name used when a caller names no template.
func (r *Registry) Default() string {
	return r.fallback
}
