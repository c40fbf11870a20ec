package engine

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ruleforge/rulenet/internal/rerr"
	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// templateDoc is the bulk-load shape for LoadTemplates: a top-level list of
// fact-type schemas, matching the teacher's convention of loading reusable
// configuration as one YAML document rather than many small calls.
type templateDoc struct {
	Templates []templateEntry `yaml:"templates"`
}

type templateEntry struct {
	Type   string        `yaml:"type"`
	Fields []fieldEntry  `yaml:"fields"`
}

type fieldEntry struct {
	Name     string      `yaml:"name"`
	Kind     string      `yaml:"kind"`
	Required bool        `yaml:"required"`
	Default  interface{} `yaml:"default"`
}

// LoadTemplates parses doc as a YAML document of fact-type templates and
// registers each one, letting a deployment describe its fact shapes as data
// rather than Go calls.
func (e *Engine) LoadTemplates(doc []byte) error {
	var d templateDoc
	if err := yaml.Unmarshal(doc, &d); err != nil {
		return rerr.Wrap(rerr.Syntax, err, "parsing template document")
	}
	for _, te := range d.Templates {
		specs := make([]fact.FieldSpec, 0, len(te.Fields))
		for _, fe := range te.Fields {
			kind, err := parseKind(fe.Kind)
			if err != nil {
				return rerr.Wrap(rerr.Schema, err, "%s.%s", te.Type, fe.Name)
			}
			spec := fact.FieldSpec{Name: fe.Name, Kind: kind, Required: fe.Required}
			if fe.Default != nil {
				v, err := valueFromYAML(kind, fe.Default)
				if err != nil {
					return rerr.Wrap(rerr.Schema, err, "%s.%s default", te.Type, fe.Name)
				}
				spec.Default = v
			}
			specs = append(specs, spec)
		}
		e.DefineTemplate(fact.NewTemplate(te.Type, specs...))
	}
	return nil
}

func parseKind(s string) (value.Kind, error) {
	switch s {
	case "int":
		return value.Int, nil
	case "float":
		return value.Float, nil
	case "bool":
		return value.Bool, nil
	case "string":
		return value.String, nil
	case "time":
		return value.Time, nil
	case "list":
		return value.List, nil
	case "null":
		return value.Null, nil
	default:
		return 0, rerr.New(rerr.Schema, "unknown field kind %q", s)
	}
}

// valueFromYAML converts a YAML-decoded scalar (int/float64/bool/string) into
// the Value variant kind expects, for a template's default field value.
func valueFromYAML(kind value.Kind, raw interface{}) (value.Value, error) {
	switch kind {
	case value.Int:
		switch n := raw.(type) {
		case int:
			return value.IntValue(n), nil
		case int64:
			return value.IntValue(n), nil
		}
	case value.Float:
		switch n := raw.(type) {
		case float64:
			return value.FloatValue(n), nil
		case int:
			return value.FloatValue(float64(n)), nil
		}
	case value.Bool:
		if b, ok := raw.(bool); ok {
			return value.BoolValue(b), nil
		}
	case value.String:
		if s, ok := raw.(string); ok {
			return value.StringValue(s), nil
		}
	case value.Time:
		if s, ok := raw.(string); ok {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, err
			}
			return value.TimeValue(t.UnixMilli()), nil
		}
	case value.Null:
		return value.NullValue{}, nil
	}
	return nil, rerr.New(rerr.Schema, "default value %v does not match kind %s", raw, kind)
}
