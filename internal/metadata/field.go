package metadata

import "fmt"

// Field is a scalar (non-tabular) field of a form: header metadata,
// signatures, certification references.
type Field struct {
	Name     string   `json:"name"`
	Label    string   `json:"label,omitempty"`
	Type     string   `json:"type"` // string, text, date, number, boolean
	Required bool     `json:"required,omitempty"`
	Default  any      `json:"default,omitempty"`
	Enum     []string `json:"enum,omitempty"`
}

// ZeroValue returns the value used for the field when nothing was entered.
func (f Field) ZeroValue() any {
	if f.Default != nil {
		return f.Default
	}
	switch f.Type {
	case "boolean":
		return false
	default:
		return ""
	}
}

// DisplayName returns the label, or the name when no label is set.
func (f Field) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// Check validates a submitted value against the field's own constraints.
// Returns an empty string if the value is acceptable.
func (f Field) Check(value any) string {
	s, isString := value.(string)
	if f.Required && (value == nil || (isString && s == "")) {
		return fmt.Sprintf("%s is required", f.DisplayName())
	}
	if len(f.Enum) > 0 && isString && s != "" {
		for _, e := range f.Enum {
			if e == s {
				return ""
			}
		}
		return fmt.Sprintf("%s must be one of %v", f.DisplayName(), f.Enum)
	}
	return ""
}
