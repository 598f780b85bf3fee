// Package manifest holds the units to build and the ordered plan of steps
// that builds them.
package manifest

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"tcforge/internal/unit"
)

//go:embed default.yaml
var defaultManifest []byte

var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest is the top-level manifest file.
type Manifest struct {
	// Vars are extra ${NAME} values available to every command template.
	Vars  map[string]string `yaml:"vars,omitempty" toml:"vars,omitempty"`
	Units []UnitSpec        `yaml:"units" toml:"units"`
	Plan  []Step            `yaml:"plan" toml:"plan"`
}

// UnitSpec is the manifest tuple of one unit.
type UnitSpec struct {
	Name     string            `yaml:"name" toml:"name"`
	Version  string            `yaml:"version" toml:"version"`
	Archive  string            `yaml:"archive" toml:"archive"`
	Location string            `yaml:"location" toml:"location"`
	Options  map[string]string `yaml:"options,omitempty" toml:"options,omitempty"`
	B3Sum    string            `yaml:"b3sum,omitempty" toml:"b3sum,omitempty"`
}

// Unit converts the spec, resolving the archive kind.
func (s UnitSpec) Unit() (unit.Unit, error) {
	kind, err := unit.ParseArchiveKind(s.Archive)
	if err != nil {
		return unit.Unit{}, fmt.Errorf("unit %s: %w", s.Name, err)
	}
	u := unit.Unit{
		Name:     s.Name,
		Version:  s.Version,
		Kind:     kind,
		Location: s.Location,
		Options:  s.Options,
		B3Sum:    s.B3Sum,
	}
	return u, u.Validate()
}

// Make describes one make invocation.
type Make struct {
	// Target is the goal; empty builds the default goal.
	Target string            `yaml:"target,omitempty" toml:"target,omitempty"`
	Vars   map[string]string `yaml:"vars,omitempty" toml:"vars,omitempty"`
}

// Step builds one unit in one pass.
type Step struct {
	Unit string `yaml:"unit" toml:"unit"`
	Pass string `yaml:"pass,omitempty" toml:"pass,omitempty"`
	// Requires lists step ids whose install stage must be done first.
	Requires  []string          `yaml:"requires,omitempty" toml:"requires,omitempty"`
	Env       map[string]string `yaml:"env,omitempty" toml:"env,omitempty"`
	Configure []string          `yaml:"configure,omitempty" toml:"configure,omitempty"`
	Make      Make              `yaml:"make,omitempty" toml:"make,omitempty"`
	Install   Make              `yaml:"install,omitempty" toml:"install,omitempty"`
}

// ID is "unit" or "unit/pass".
func (s Step) ID() string {
	if s.Pass == "" {
		return s.Unit
	}
	return s.Unit + "/" + s.Pass
}

// InstallTarget is the install goal, "install" unless overridden.
func (s Step) InstallTarget() string {
	if s.Install.Target == "" {
		return "install"
	}
	return s.Install.Target
}

// Load reads a manifest file; .toml files are TOML, everything else YAML.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return ParseYAML(data)
}

// Default returns the built-in arm-none-eabi style toolchain manifest.
func Default() *Manifest {
	m, err := ParseYAML(defaultManifest)
	if err != nil {
		panic(fmt.Sprintf("embedded manifest: %v", err))
	}
	return m
}

// ParseYAML decodes and validates a YAML manifest. Unknown keys are errors.
func ParseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, m.Validate()
}

// ParseTOML decodes and validates a TOML manifest.
func ParseTOML(data []byte) (*Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, m.Validate()
}

// Validate checks units, step references and the order of requirements.
func (m *Manifest) Validate() error {
	if len(m.Plan) == 0 {
		return fmt.Errorf("%w: empty plan", ErrInvalidManifest)
	}

	units := make(map[string]bool, len(m.Units))
	ids := make(map[string]bool, len(m.Units))
	for _, spec := range m.Units {
		u, err := spec.Unit()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
		if units[spec.Name] {
			return fmt.Errorf("%w: unit %s declared twice", ErrInvalidManifest, spec.Name)
		}
		if ids[u.ID()] {
			return fmt.Errorf("%w: source dir %s used by two units", ErrInvalidManifest, u.ID())
		}
		units[spec.Name] = true
		ids[u.ID()] = true
	}

	seen := make(map[string]bool, len(m.Plan))
	for i, step := range m.Plan {
		id := step.ID()
		switch {
		case !units[step.Unit]:
			return fmt.Errorf("%w: step %d uses unknown unit %q", ErrInvalidManifest, i+1, step.Unit)
		case strings.ContainsAny(step.Pass, `/\. `):
			return fmt.Errorf("%w: step %s: bad pass label %q", ErrInvalidManifest, id, step.Pass)
		case seen[id]:
			return fmt.Errorf("%w: step %s appears twice", ErrInvalidManifest, id)
		}
		for _, req := range step.Requires {
			if !seen[req] {
				return fmt.Errorf("%w: step %s requires %s, which does not come before it", ErrInvalidManifest, id, req)
			}
		}
		seen[id] = true
	}
	return nil
}

// UnitByName returns the named unit.
func (m *Manifest) UnitByName(name string) (unit.Unit, error) {
	i := slices.IndexFunc(m.Units, func(s UnitSpec) bool { return s.Name == name })
	if i < 0 {
		return unit.Unit{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidManifest, name)
	}
	return m.Units[i].Unit()
}

// Step returns the plan step with the given id.
func (m *Manifest) Step(id string) (Step, bool) {
	i := slices.IndexFunc(m.Plan, func(s Step) bool { return s.ID() == id })
	if i < 0 {
		return Step{}, false
	}
	return m.Plan[i], true
}
