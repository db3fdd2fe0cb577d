package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var defaultPresets []byte

// Presets holds the fixed lookup tables used to size and encode exports.
type Presets struct {
	MaxDimension int                      `yaml:"maxDimension"`
	Templates    map[string]TemplateSize  `yaml:"templates"`
	Qualities    map[string]QualityPreset `yaml:"qualities"`
}

type TemplateSize struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type QualityPreset struct {
	Density        float64 `yaml:"density"`
	LossyQuality   float64 `yaml:"lossyQuality"` // JPEG and WebP, 0..1
	PNGQuality     float64 `yaml:"pngQuality"`
	PDFCompression bool    `yaml:"pdfCompression"`
}

// DefaultPresets returns the built-in tables.
func DefaultPresets() Presets {
	p, err := parsePresets(defaultPresets)
	if err != nil {
		panic(fmt.Sprintf("config: embedded presets are invalid: %v", err))
	}
	return p
}

// LoadPresets reads a presets file. Templates and qualities it defines
// replace the built-in entries of the same name; others are kept.
func LoadPresets(path string) (Presets, error) {
	base := DefaultPresets()
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Presets{}, fmt.Errorf("config: read presets: %w", err)
	}
	var override Presets
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Presets{}, fmt.Errorf("config: parse presets %s: %w", path, err)
	}

	if override.MaxDimension > 0 {
		base.MaxDimension = override.MaxDimension
	}
	for name, t := range override.Templates {
		base.Templates[name] = t
	}
	for name, q := range override.Qualities {
		base.Qualities[name] = q
	}
	if err := base.Validate(); err != nil {
		return Presets{}, err
	}
	return base, nil
}

func parsePresets(data []byte) (Presets, error) {
	var p Presets
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Presets{}, err
	}
	if err := p.Validate(); err != nil {
		return Presets{}, err
	}
	return p, nil
}

func (p Presets) Validate() error {
	if p.MaxDimension <= 0 {
		return fmt.Errorf("config: maxDimension must be positive")
	}
	for name, t := range p.Templates {
		if t.Width <= 0 || t.Height <= 0 || t.Width > p.MaxDimension || t.Height > p.MaxDimension {
			return fmt.Errorf("config: template %q has invalid size %dx%d", name, t.Width, t.Height)
		}
	}
	for name, q := range p.Qualities {
		if q.Density <= 0 {
			return fmt.Errorf("config: quality %q needs a positive density", name)
		}
		if q.LossyQuality <= 0 || q.LossyQuality > 1 || q.PNGQuality <= 0 || q.PNGQuality > 1 {
			return fmt.Errorf("config: quality %q has encode quality outside (0,1]", name)
		}
	}
	return nil
}
