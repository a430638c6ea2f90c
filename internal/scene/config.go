package scene

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a scene configuration fails validation.
var ErrInvalidConfig = errors.New("invalid scene config")

// Config describes the boxes of a scene. It must be identical on every node.
type Config struct {
	Boxes []BoxConfig `yaml:"boxes"`
}

// BoxConfig describes one box and the control selector that addresses it.
type BoxConfig struct {
	Name     string `yaml:"name"`
	Selector string `yaml:"selector"`
	Position Vec3   `yaml:"position"`
	Rotation Vec3   `yaml:"rotation"`
}

// DefaultConfig returns the stock two-box scene addressed by '0' and '1'.
func DefaultConfig() Config {
	return Config{
		Boxes: []BoxConfig{
			{Name: "c-research", Selector: "0"},
			{Name: "covidag", Selector: "1"},
		},
	}
}

// LoadConfig reads and validates a YAML scene configuration from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read scene config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML scene configuration.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse scene config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration has at least one box and that every
// selector is a single, unique byte.
func (c Config) Validate() error {
	if len(c.Boxes) == 0 {
		return fmt.Errorf("%w: no boxes", ErrInvalidConfig)
	}
	seen := make(map[string]int, len(c.Boxes))
	for i, b := range c.Boxes {
		if len(b.Selector) != 1 {
			return fmt.Errorf("%w: box %d selector %q must be exactly one byte", ErrInvalidConfig, i, b.Selector)
		}
		if prev, dup := seen[b.Selector]; dup {
			return fmt.Errorf("%w: selector %q used by boxes %d and %d", ErrInvalidConfig, b.Selector, prev, i)
		}
		seen[b.Selector] = i
	}
	return nil
}

// FromConfig builds a State from a validated configuration. Boxes keep their
// declaration order and start at their configured pose.
func FromConfig(cfg Config) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := New(len(cfg.Boxes))
	for i, bc := range cfg.Boxes {
		b := &s.boxes[i]
		b.Name = bc.Name
		b.PosX.Set(bc.Position[0])
		b.PosY.Set(bc.Position[1])
		b.PosZ.Set(bc.Position[2])
		b.RotAlpha.Set(bc.Rotation[0])
		b.RotBeta.Set(bc.Rotation[1])
		b.RotGamma.Set(bc.Rotation[2])
	}
	return s, nil
}
