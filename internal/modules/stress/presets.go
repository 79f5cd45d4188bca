// Package stress replays named black-swan presets through the decision
// pipeline: selected input series are shocked and the resulting decision is
// recorded for inspection.
package stress

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aristath/macrobrain/internal/domain"
)

// ShockMode selects how a shock is applied to series values.
type ShockMode string

const (
	ShockSet   ShockMode = "set"
	ShockScale ShockMode = "scale"
	ShockAdd   ShockMode = "add"
)

const defaultShockDays = 30

// Shock overrides the tail of one input series.
type Shock struct {
	Series string    `yaml:"series"`
	Mode   ShockMode `yaml:"mode"`
	Value  float64   `yaml:"value"`
	Days   int       `yaml:"days"` // trailing observations affected, default 30
}

// Preset is one named black-swan configuration.
type Preset struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Shocks      []Shock `yaml:"shocks"`
}

// LoadPresets reads every *.yaml preset in a directory, sorted by name.
func LoadPresets(dir string) ([]Preset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read presets dir %s: %w", dir, err)
	}

	var presets []Preset
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read preset %s: %w", entry.Name(), err)
		}

		var p Preset
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parse preset %s: %w", entry.Name(), err)
		}
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("preset %s: %w", entry.Name(), err)
		}
		presets = append(presets, p)
	}

	sort.Slice(presets, func(i, j int) bool { return presets[i].Name < presets[j].Name })
	return presets, nil
}

// FindPreset returns the preset with the given name.
func FindPreset(presets []Preset, name string) (Preset, error) {
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("preset %q: %w", name, domain.ErrRunNotFound)
}

func (p Preset) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: preset without name", domain.ErrValidation)
	}
	if len(p.Shocks) == 0 {
		return fmt.Errorf("%w: preset %s has no shocks", domain.ErrValidation, p.Name)
	}
	for _, s := range p.Shocks {
		if s.Series == "" {
			return fmt.Errorf("%w: shock without series in preset %s", domain.ErrValidation, p.Name)
		}
		switch s.Mode {
		case ShockSet, ShockScale, ShockAdd:
		default:
			return fmt.Errorf("%w: unknown shock mode %q in preset %s", domain.ErrValidation, s.Mode, p.Name)
		}
	}
	return nil
}
