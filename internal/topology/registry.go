// Package topology holds the static table of probe modes: for each mode
// the ordered sections and the checks inside them, plus the parameter
// fields those checks read and their defaults.
//
// The table is embedded as YAML and validated when it is loaded.  A
// Registry is immutable after Load returns and is safe to share between
// concurrent runs.
package topology

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	perr "connprobe/internal/errors"
)

//go:embed topology.yaml
var embedded []byte

// Reserved parameter keys.  They never name a topology field.
const (
	ParamIPFamily = "ipFamily"
	ParamTitle    = "title"
)

// Kind is the type of a check.
type Kind string

const (
	KindLocalPort Kind = "local_port"
	KindPing      Kind = "ping"
	KindTCP       Kind = "tcp"
)

func (k Kind) valid() bool {
	switch k {
	case KindLocalPort, KindPing, KindTCP:
		return true
	}
	return false
}

// Field is one caller-settable parameter of a mode.
type Field struct {
	Key     string `yaml:"key" json:"key"`
	Default string `yaml:"default" json:"default"`
	Label   string `yaml:"label,omitempty" json:"label,omitempty"`
}

// CheckTemplate is a check whose host and port are still field keys.
type CheckTemplate struct {
	Kind Kind   `yaml:"kind" json:"kind"`
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port string `yaml:"port,omitempty" json:"port,omitempty"`
}

// Section is a titled group of checks.
type Section struct {
	Title  string          `yaml:"title" json:"title"`
	Checks []CheckTemplate `yaml:"checks" json:"checks"`
}

// Mode is the full probe plan for one role.
type Mode struct {
	ID       string    `yaml:"id" json:"id"`
	Title    string    `yaml:"title" json:"title"`
	Fields   []Field   `yaml:"fields" json:"fields"`
	Sections []Section `yaml:"sections" json:"sections"`

	defaults map[string]string
}

// CheckCount returns the number of checks across all sections.
func (m *Mode) CheckCount() int {
	n := 0
	for _, s := range m.Sections {
		n += len(s.Checks)
	}
	return n
}

// Default returns the default value of a field.
func (m *Mode) Default(key string) (string, bool) {
	v, ok := m.defaults[key]
	return v, ok
}

// Registry is the validated set of modes.
type Registry struct {
	modes []*Mode
	byID  map[string]*Mode
}

type document struct {
	Modes []*Mode `yaml:"modes"`
}

// ── Loading ──────────────────────────────────────────────────────────

// Load parses and validates the embedded table.
func Load() (*Registry, error) {
	return Parse(embedded)
}

// MustLoad is Load for package initialisation.  A failure here is an
// authoring bug in the embedded table.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic("topology: embedded table: " + err.Error())
	}
	return r
}

// LoadFile parses and validates an operator-supplied table.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a YAML table.  Unknown keys are rejected.
func Parse(data []byte) (*Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode topology: %w", err)
	}

	r := &Registry{byID: make(map[string]*Mode, len(doc.Modes))}
	for i, m := range doc.Modes {
		if m == nil {
			return nil, fmt.Errorf("mode #%d: empty entry", i+1)
		}
		if err := m.validate(); err != nil {
			return nil, fmt.Errorf("mode %q: %w", m.ID, err)
		}
		if _, dup := r.byID[m.ID]; dup {
			return nil, fmt.Errorf("mode %q: duplicate id", m.ID)
		}
		r.byID[m.ID] = m
		r.modes = append(r.modes, m)
	}
	if len(r.modes) == 0 {
		return nil, fmt.Errorf("topology defines no modes")
	}
	return r, nil
}

func (m *Mode) validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("missing id")
	}
	if m.Title == "" {
		return fmt.Errorf("missing title")
	}

	m.defaults = make(map[string]string, len(m.Fields))
	for _, f := range m.Fields {
		switch {
		case f.Key == "":
			return fmt.Errorf("field with empty key")
		case f.Key == ParamIPFamily || f.Key == ParamTitle:
			return fmt.Errorf("field %q: reserved key", f.Key)
		case f.Default == "":
			return fmt.Errorf("field %q: no default", f.Key)
		}
		if _, dup := m.defaults[f.Key]; dup {
			return fmt.Errorf("field %q: duplicate key", f.Key)
		}
		m.defaults[f.Key] = f.Default
	}

	if len(m.Sections) == 0 {
		return fmt.Errorf("no sections")
	}
	for _, s := range m.Sections {
		if s.Title == "" {
			return fmt.Errorf("section with empty title")
		}
		if len(s.Checks) == 0 {
			return fmt.Errorf("section %q: no checks", s.Title)
		}
		for i, c := range s.Checks {
			if err := m.validateCheck(c); err != nil {
				return fmt.Errorf("section %q check #%d: %w", s.Title, i+1, err)
			}
		}
	}
	return nil
}

func (m *Mode) validateCheck(c CheckTemplate) error {
	if !c.Kind.valid() {
		return fmt.Errorf("unknown kind %q", c.Kind)
	}

	needHost := c.Kind != KindLocalPort
	needPort := c.Kind != KindPing
	if needHost != (c.Host != "") {
		return fmt.Errorf("%s: host field %s", c.Kind, presence(needHost))
	}
	if needPort != (c.Port != "") {
		return fmt.Errorf("%s: port field %s", c.Kind, presence(needPort))
	}

	for _, key := range []string{c.Host, c.Port} {
		if key == "" {
			continue
		}
		if _, ok := m.defaults[key]; !ok {
			return fmt.Errorf("references undeclared field %q", key)
		}
	}
	if c.Port != "" {
		if _, err := parsePort(c.Port, m.defaults[c.Port]); err != nil {
			return fmt.Errorf("default: %w", err)
		}
	}
	return nil
}

func presence(required bool) string {
	if required {
		return "required"
	}
	return "not allowed"
}

// ── Lookup ───────────────────────────────────────────────────────────

// Resolve returns the mode with the given id.  An unknown id is
// ErrUnknownMode; there is no fallback mode.
func (r *Registry) Resolve(id string) (*Mode, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", perr.ErrUnknownMode, id)
	}
	return m, nil
}

// Modes returns every mode in display order.
func (r *Registry) Modes() []*Mode {
	out := make([]*Mode, len(r.modes))
	copy(out, r.modes)
	return out
}

// IDs returns every mode id in display order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.modes))
	for i, m := range r.modes {
		ids[i] = m.ID
	}
	return ids
}
