package fact

import (
	"github.com/ruleforge/rulenet/internal/rerr"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// FieldSpec describes one field of a Template.
type FieldSpec struct {
	Name     string
	Kind     value.Kind
	Required bool
	Default  value.Value // used when Required is false and the field is omitted
}

// Template declares the shape facts of a given type must have: which fields
// are required, their expected Kind, and defaults for optional fields.
// A fact type without a registered Template accepts any fields.
type Template struct {
	Type   string
	Fields []FieldSpec

	byName map[string]FieldSpec
}

// NewTemplate builds a Template and indexes its fields by name.
func NewTemplate(factType string, fields ...FieldSpec) *Template {
	t := &Template{Type: factType, Fields: fields, byName: make(map[string]FieldSpec, len(fields))}
	for _, f := range fields {
		t.byName[f.Name] = f
	}
	return t
}

// Field looks up a field spec by name.
func (t *Template) Field(name string) (FieldSpec, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// Apply validates the given fields against the template, filling in defaults
// for any omitted optional field, and returns the completed field map.
// Required fields that are missing produce a Schema error; fields present
// with the wrong Kind also produce a Schema error.
func (t *Template) Apply(fields map[string]value.Value) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(t.Fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, spec := range t.Fields {
		v, present := out[spec.Name]
		if !present {
			if spec.Required {
				return nil, rerr.New(rerr.Schema, "%s: missing required field %q", t.Type, spec.Name)
			}
			if spec.Default != nil {
				out[spec.Name] = spec.Default
			}
			continue
		}
		if v.Kind() != spec.Kind {
			return nil, rerr.New(rerr.Schema, "%s: field %q expected %s, got %s", t.Type, spec.Name, spec.Kind, v.Kind())
		}
	}
	return out, nil
}
