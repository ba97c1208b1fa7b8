// Package policy holds the validation policy: an ordered mapping of named
// constraints to the level a failure of that constraint has.
package policy

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/scionproto/scion/pkg/private/serrors"
	"gopkg.in/yaml.v3"
)

// Level is the severity of a constraint.
type Level int

const (
	// Fail stops the chain if the constraint fails.
	Fail Level = iota
	// Warn records a warning and continues.
	Warn
	// Inform records an information and continues.
	Inform
	// Ignore skips the constraint.
	Ignore
)

func (l Level) String() string {
	switch l {
	case Fail:
		return "FAIL"
	case Warn:
		return "WARN"
	case Inform:
		return "INFORM"
	case Ignore:
		return "IGNORE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	if l < Fail || l > Ignore {
		return nil, serrors.New("unknown level", "value", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "FAIL":
		*l = Fail
	case "WARN":
		*l = Warn
	case "INFORM":
		*l = Inform
	case "IGNORE":
		*l = Ignore
	default:
		return serrors.New("unknown level", "value", string(b))
	}
	return nil
}

// Constraint assigns a level to a named constraint.
type Constraint struct {
	Name  string `toml:"name" yaml:"name"`
	Level Level  `toml:"level" yaml:"level"`
}

// Policy is an ordered list of constraints. Constraints that are not listed
// have the Fail level.
type Policy struct {
	Name        string       `toml:"name" yaml:"name"`
	Constraints []Constraint `toml:"constraint" yaml:"constraints"`

	index map[string]Level
}

// Level returns the level of the named constraint. Policies built as struct
// literals have no index and are scanned in order.
func (p *Policy) Level(name string) Level {
	if p == nil {
		return Fail
	}
	if p.index == nil {
		for _, c := range p.Constraints {
			if c.Name == name {
				return c.Level
			}
		}
		return Fail
	}
	if l, ok := p.index[name]; ok {
		return l
	}
	return Fail
}

// With returns a copy of the policy with the level of the named constraint
// replaced, or appended if the constraint is not listed.
func (p *Policy) With(name string, l Level) *Policy {
	c := &Policy{Name: p.Name}
	replaced := false
	for _, con := range p.Constraints {
		if con.Name == name {
			con.Level = l
			replaced = true
		}
		c.Constraints = append(c.Constraints, con)
	}
	if !replaced {
		c.Constraints = append(c.Constraints, Constraint{Name: name, Level: l})
	}
	if err := c.init(); err != nil {
		panic(err)
	}
	return c
}

// Validate checks that all constraints are named and unique.
func (p *Policy) Validate() error {
	seen := make(map[string]struct{}, len(p.Constraints))
	for i, c := range p.Constraints {
		if c.Name == "" {
			return serrors.New("constraint without name", "index", i)
		}
		if _, ok := seen[c.Name]; ok {
			return serrors.New("duplicate constraint", "name", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

func (p *Policy) init() error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.index = make(map[string]Level, len(p.Constraints))
	for _, c := range p.Constraints {
		p.index[c.Name] = c.Level
	}
	return nil
}

// Decode parses a policy in TOML format.
func Decode(r io.Reader) (*Policy, error) {
	d := toml.NewDecoder(r)
	d.DisallowUnknownFields()
	p := &Policy{}
	if err := d.Decode(p); err != nil {
		return nil, serrors.Wrap("Unable to parse policy", err)
	}
	if err := p.init(); err != nil {
		return nil, serrors.Wrap("Invalid policy", err)
	}
	return p, nil
}

// DecodeYAML parses a policy in YAML format.
func DecodeYAML(r io.Reader) (*Policy, error) {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	p := &Policy{}
	if err := d.Decode(p); err != nil {
		return nil, serrors.Wrap("Unable to parse policy", err)
	}
	if err := p.init(); err != nil {
		return nil, serrors.Wrap("Invalid policy", err)
	}
	return p, nil
}

// Encode writes the policy in TOML format.
func (p *Policy) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(p)
}

// Format is the encoding of a policy file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// LoadFile loads the policy from a file. An empty format is derived from the
// file extension.
func LoadFile(path string, format Format) (*Policy, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = FormatYAML
		default:
			format = FormatTOML
		}
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, serrors.Wrap("Unable to open policy file", err, "path", path)
	}
	defer func() { _ = f.Close() }()
	switch format {
	case FormatTOML:
		return Decode(f)
	case FormatYAML:
		return DecodeYAML(f)
	default:
		return nil, serrors.New("unknown policy format", "format", format)
	}
}

//go:embed default.toml
var defaultPolicy []byte

// Default returns the built-in policy.
func Default() *Policy {
	p, err := Decode(bytes.NewReader(defaultPolicy))
	if err != nil {
		panic(serrors.Wrap("decoding built-in policy", err))
	}
	return p
}
