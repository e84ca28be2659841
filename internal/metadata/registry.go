package metadata

import (
	"sort"
	"sync"
)

// Registry holds the form definitions the service can open sessions for.
type Registry struct {
	mu    sync.RWMutex
	forms map[string]*FormDefinition
}

func NewRegistry() *Registry {
	return &Registry{
		forms: make(map[string]*FormDefinition),
	}
}

// NewDefaultRegistry returns a registry holding the built-in forms.
func NewDefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Load(Builtin())
	return reg
}

// GetForm returns the form definition with the given name, or nil.
func (r *Registry) GetForm(name string) *FormDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.forms[name]
}

// AllForms returns all registered form definitions sorted by name.
func (r *Registry) AllForms() []*FormDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	forms := make([]*FormDefinition, 0, len(r.forms))
	for _, f := range r.forms {
		forms = append(forms, f)
	}
	sort.Slice(forms, func(i, j int) bool { return forms[i].Name < forms[j].Name })
	return forms
}

// FormForResource returns the form stored under the given backend resource, or nil.
func (r *Registry) FormForResource(resource string) *FormDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.forms {
		if f.Resource == resource {
			return f
		}
	}
	return nil
}

// Load replaces all form definitions in the registry.
func (r *Registry) Load(forms []*FormDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.forms = make(map[string]*FormDefinition, len(forms))
	for _, f := range forms {
		r.forms[f.Name] = f
	}
}

// Register adds or replaces one form definition.
func (r *Registry) Register(f *FormDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms[f.Name] = f
}

// Unregister removes a form definition. It reports whether one was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.forms[name]
	delete(r.forms, name)
	return ok
}

// BuiltinForm returns the compiled-in definition with the given name, or nil.
func BuiltinForm(name string) *FormDefinition {
	for _, f := range Builtin() {
		if f.Name == name {
			return f
		}
	}
	return nil
}
