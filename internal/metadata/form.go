package metadata

import "fmt"

// FormDefinition describes one kind of record: the backend resource it is
// stored under, its scalar fields, its sections in display order, its flags
// and its submit-time rules.
type FormDefinition struct {
	Name     string             `json:"name"`
	Title    string             `json:"title"`
	Resource string             `json:"resource"`
	Fields   []Field            `json:"fields"`
	Flags    []string           `json:"flags,omitempty"`
	Sections []*SectionTemplate `json:"sections"`
	Rules    []*Rule            `json:"rules,omitempty"`
}

// GetSection returns the section template with the given name, or nil.
func (f *FormDefinition) GetSection(name string) *SectionTemplate {
	for _, s := range f.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// SectionNames returns all section names in display order.
func (f *FormDefinition) SectionNames() []string {
	names := make([]string, len(f.Sections))
	for i, s := range f.Sections {
		names[i] = s.Name
	}
	return names
}

// GetField returns a pointer to the field with the given name, or nil.
func (f *FormDefinition) GetField(name string) *Field {
	for i := range f.Fields {
		if f.Fields[i].Name == name {
			return &f.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the form has a scalar field with the given name.
func (f *FormDefinition) HasField(name string) bool {
	return f.GetField(name) != nil
}

// HasFlag returns true if the form declares the flag.
func (f *FormDefinition) HasFlag(name string) bool {
	for _, fl := range f.Flags {
		if fl == name {
			return true
		}
	}
	return false
}

// DefaultFlags returns every declared flag switched off.
func (f *FormDefinition) DefaultFlags() Flags {
	flags := make(Flags, len(f.Flags))
	for _, fl := range f.Flags {
		flags[fl] = false
	}
	return flags
}

// DefaultFields returns every scalar field at its zero value.
func (f *FormDefinition) DefaultFields() map[string]any {
	fields := make(map[string]any, len(f.Fields))
	for _, fd := range f.Fields {
		fields[fd.Name] = fd.ZeroValue()
	}
	return fields
}

// Validate checks the definition is internally consistent.
func (f *FormDefinition) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("form definition has no name")
	}
	if f.Resource == "" {
		return fmt.Errorf("form %s: missing resource", f.Name)
	}
	seen := map[string]bool{}
	for _, s := range f.Sections {
		if seen[s.Name] {
			return fmt.Errorf("form %s: duplicate section %s", f.Name, s.Name)
		}
		seen[s.Name] = true
		if err := s.Validate(); err != nil {
			return fmt.Errorf("form %s: %w", f.Name, err)
		}
		for _, cc := range s.Conditional {
			if !f.HasFlag(cc.Flag) {
				return fmt.Errorf("form %s: section %s uses undeclared flag %s", f.Name, s.Name, cc.Flag)
			}
		}
	}
	fields := map[string]bool{}
	for _, fd := range f.Fields {
		if fields[fd.Name] {
			return fmt.Errorf("form %s: duplicate field %s", f.Name, fd.Name)
		}
		fields[fd.Name] = true
	}
	return nil
}
