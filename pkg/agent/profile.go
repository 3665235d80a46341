// Package agent describes the assistant the live model plays: model, voice,
// system instruction and the tools it may call.
package agent

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultProfile []byte

type Profile struct {
	Name        string   `yaml:"name"`
	Model       string   `yaml:"model"`
	Voice       string   `yaml:"voice"`
	Instruction string   `yaml:"instruction"`
	Tools       []string `yaml:"tools"`
}

// Default returns the built-in customer care profile.
func Default() (Profile, error) {
	return Parse(defaultProfile)
}

func Parse(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse agent profile: %w", err)
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Load reads a profile file. An empty path means the built-in profile. Fields
// the file leaves empty fall back to the built-in values.
func Load(path string) (Profile, error) {
	base, err := Default()
	if err != nil {
		return Profile{}, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read agent profile %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse agent profile %s: %w", path, err)
	}
	p.normalize()
	p = p.WithDefaults(base)
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("agent profile %s: %w", path, err)
	}
	return p, nil
}

// WithOverrides replaces model and voice when the given values are set.
func (p Profile) WithOverrides(model, voice string) Profile {
	if v := strings.TrimSpace(model); v != "" {
		p.Model = v
	}
	if v := strings.TrimSpace(voice); v != "" {
		p.Voice = v
	}
	return p
}

func (p Profile) WithDefaults(base Profile) Profile {
	if p.Name == "" {
		p.Name = base.Name
	}
	if p.Model == "" {
		p.Model = base.Model
	}
	if p.Voice == "" {
		p.Voice = base.Voice
	}
	if p.Instruction == "" {
		p.Instruction = base.Instruction
	}
	if p.Tools == nil {
		p.Tools = append([]string(nil), base.Tools...)
	}
	return p
}

func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Model == "" {
		return fmt.Errorf("model is required")
	}
	seen := make(map[string]struct{}, len(p.Tools))
	for i, tool := range p.Tools {
		if tool == "" {
			return fmt.Errorf("tools[%d] must be non-empty", i)
		}
		if _, dup := seen[tool]; dup {
			return fmt.Errorf("tools[%d]: duplicate tool %q", i, tool)
		}
		seen[tool] = struct{}{}
	}
	return nil
}

func (p *Profile) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Model = strings.TrimSpace(p.Model)
	p.Voice = strings.TrimSpace(p.Voice)
	p.Instruction = strings.TrimSpace(p.Instruction)
	for i := range p.Tools {
		p.Tools[i] = strings.TrimSpace(p.Tools[i])
	}
}
