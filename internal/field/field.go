// Package field normalizes heterogeneous field-configuration input into a
// canonical ordered list of field specs. Three shapes are accepted:
//
//  1. Structured: a top-level fields list plus a name→rules map
//  2. Flat list of plain names
//  3. Flat list of per-field entries (name/rules/label/description), with
//     plain names still allowed inside the same list
//
// Shape detection keys off the presence of the top-level fields list. The
// resolved order is the asking order and is preserved exactly.
package field

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Spec is one field to collect: its unique name, optional display text, and
// an ordered (possibly empty) set of structural rules.
type Spec struct {
	Name        string   `yaml:"name" json:"name"`
	Label       string   `yaml:"label,omitempty" json:"label,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Rules       []string `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// DisplayName returns the label when set, otherwise the name.
func (s Spec) DisplayName() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Name
}

// HasRules reports whether the field carries structural rules.
func (s Spec) HasRules() bool { return len(s.Rules) > 0 }

// Entry is one item of the flat-list shape. Either Name is set (optionally
// with rules and display text), or the entry was a plain string name.
type Entry struct {
	Name        string   `yaml:"name" json:"name"`
	Rules       []string `yaml:"rules" json:"rules"`
	Label       string   `yaml:"label" json:"label"`
	Description string   `yaml:"description" json:"description"`
}

// UnmarshalYAML accepts either a plain scalar name or a mapping, so a YAML
// fields file can mix both forms in one list. The rules key also answers to
// its legacy aliases "validation" and "validation_rules".
func (e *Entry) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		*e = Entry{Name: name}
		return nil
	}
	var raw struct {
		Name            string   `yaml:"name"`
		Rules           []string `yaml:"rules"`
		Validation      []string `yaml:"validation"`
		ValidationRules []string `yaml:"validation_rules"`
		Label           string   `yaml:"label"`
		Description     string   `yaml:"description"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	rules := raw.Rules
	if rules == nil {
		rules = raw.Validation
	}
	if rules == nil {
		rules = raw.ValidationRules
	}
	*e = Entry{Name: raw.Name, Rules: rules, Label: raw.Label, Description: raw.Description}
	return nil
}

// Config is the tagged union of the accepted configuration shapes.
// When Fields is non-empty the structured shape wins; otherwise List is used.
type Config struct {
	Fields []string            `yaml:"fields"`
	Rules  map[string][]string `yaml:"rules"`
	List   []Entry             `yaml:"-"`
}

// FromNames builds a Config from a flat list of plain field names.
func FromNames(names ...string) Config {
	entries := make([]Entry, len(names))
	for i, n := range names {
		entries[i] = Entry{Name: n}
	}
	return Config{List: entries}
}

// FromEntries builds a Config from per-field entries.
func FromEntries(entries ...Entry) Config {
	return Config{List: entries}
}

// Structured builds a Config from an ordered name list and a name→rules map.
func Structured(fields []string, rules map[string][]string) Config {
	return Config{Fields: fields, Rules: rules}
}

// ConfigError reports malformed field configuration.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "field config: " + e.Msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// Normalize resolves cfg into the canonical ordered spec list.
// It fails with a ConfigError when a name is empty, a name repeats, or the
// structured shape attaches rules to a field that was never declared.
// Order is never sorted or deduplicated.
func Normalize(cfg Config) ([]Spec, error) {
	var specs []Spec

	if len(cfg.Fields) > 0 {
		for _, name := range cfg.Fields {
			if name == "" {
				return nil, configErrorf("field names must be non-empty strings")
			}
			specs = append(specs, Spec{Name: name, Rules: cfg.Rules[name]})
		}
		// Every rules key must reference a declared field.
		declared := make(map[string]bool, len(cfg.Fields))
		for _, name := range cfg.Fields {
			declared[name] = true
		}
		for name := range cfg.Rules {
			if !declared[name] {
				return nil, configErrorf("rules reference undeclared field %q", name)
			}
		}
	} else {
		for _, e := range cfg.List {
			if e.Name == "" {
				return nil, configErrorf("field names must be non-empty strings")
			}
			specs = append(specs, Spec{
				Name:        e.Name,
				Label:       e.Label,
				Description: e.Description,
				Rules:       e.Rules,
			})
		}
	}

	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if seen[s.Name] {
			return nil, configErrorf("duplicate field name %q", s.Name)
		}
		seen[s.Name] = true
	}

	return specs, nil
}

// ParseYAML decodes a fields file into a Config. The document may be either
// the structured mapping (fields + rules keys) or a bare list of names and
// per-field entries.
func ParseYAML(data []byte) (Config, error) {
	var structured Config
	if err := yaml.Unmarshal(data, &structured); err == nil && len(structured.Fields) > 0 {
		return structured, nil
	}

	var list []Entry
	if err := yaml.Unmarshal(data, &list); err != nil {
		return Config{}, configErrorf("unrecognized fields document: %v", err)
	}
	return Config{List: list}, nil
}

// Names returns the ordered field names of specs.
func Names(specs []Spec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}
