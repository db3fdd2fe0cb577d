// Package dimension resolves requested output sizes and quality presets to
// concrete pixel dimensions and encoder settings. Every lookup is pure.
package dimension

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ivlev/moodboard/internal/config"
)

var (
	ErrInvalidDimensions = errors.New("dimension: invalid dimensions")
	ErrUnknownTemplate   = errors.New("dimension: unknown template")
	ErrUnknownQuality    = errors.New("dimension: unknown quality preset")
)

type Mode string

const (
	ModeOriginal Mode = "original"
	ModeTemplate Mode = "template"
	ModeCustom   Mode = "custom"
)

// Spec is the requested output size: the source's own size, a named
// template or an explicit width and height.
type Spec struct {
	Mode     Mode
	Template string
	Width    int
	Height   int
}

func Original() Spec                { return Spec{Mode: ModeOriginal} }
func Template(name string) Spec     { return Spec{Mode: ModeTemplate, Template: name} }
func Custom(width, height int) Spec { return Spec{Mode: ModeCustom, Width: width, Height: height} }

func (s Spec) String() string {
	switch s.Mode {
	case ModeTemplate:
		return s.Template
	case ModeCustom:
		return fmt.Sprintf("%dx%d", s.Width, s.Height)
	}
	return string(ModeOriginal)
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d Dimensions) Landscape() bool { return d.Width > d.Height }

type Quality string

const (
	QualityHigh       Quality = "high"
	QualityStandard   Quality = "standard"
	QualityCompressed Quality = "compressed"
)

// Settings is the encoder-facing view of a quality preset.
type Settings struct {
	Density        float64
	LossyQuality   float64
	PNGQuality     float64
	PDFCompression bool
}

// JPEGQuality maps LossyQuality onto the 1..100 scale used by codecs.
func (s Settings) JPEGQuality() int {
	q := int(s.LossyQuality*100 + 0.5)
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

type Resolver struct {
	maxDimension int
	templates    map[string]Dimensions
	qualities    map[Quality]Settings
}

func NewResolver(p config.Presets) *Resolver {
	r := &Resolver{
		maxDimension: p.MaxDimension,
		templates:    make(map[string]Dimensions, len(p.Templates)),
		qualities:    make(map[Quality]Settings, len(p.Qualities)),
	}
	for name, t := range p.Templates {
		r.templates[name] = Dimensions{Width: t.Width, Height: t.Height}
	}
	for name, q := range p.Qualities {
		r.qualities[Quality(name)] = Settings{
			Density:        q.Density,
			LossyQuality:   q.LossyQuality,
			PNGQuality:     q.PNGQuality,
			PDFCompression: q.PDFCompression,
		}
	}
	return r
}

func (r *Resolver) MaxDimension() int { return r.maxDimension }

// Validate checks a spec without needing the source size.
func (r *Resolver) Validate(spec Spec) error {
	switch spec.Mode {
	case ModeOriginal:
		return nil
	case ModeTemplate:
		if _, ok := r.templates[spec.Template]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTemplate, spec.Template)
		}
		return nil
	case ModeCustom:
		if spec.Width <= 0 || spec.Height <= 0 || spec.Width > r.maxDimension || spec.Height > r.maxDimension {
			return fmt.Errorf("%w: %dx%d (each side must be within 1..%d)", ErrInvalidDimensions, spec.Width, spec.Height, r.maxDimension)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown mode %q", ErrInvalidDimensions, spec.Mode)
}

// Resolve returns the output size for spec. intrinsic is the source's own
// pixel size and is only consulted for ModeOriginal.
func (r *Resolver) Resolve(spec Spec, intrinsic Dimensions) (Dimensions, error) {
	if err := r.Validate(spec); err != nil {
		return Dimensions{}, err
	}
	switch spec.Mode {
	case ModeTemplate:
		return r.templates[spec.Template], nil
	case ModeCustom:
		return Dimensions{Width: spec.Width, Height: spec.Height}, nil
	}
	if intrinsic.Width <= 0 || intrinsic.Height <= 0 {
		return Dimensions{}, fmt.Errorf("%w: source has no size", ErrInvalidDimensions)
	}
	if intrinsic.Width > r.maxDimension || intrinsic.Height > r.maxDimension {
		return Dimensions{}, fmt.Errorf("%w: source size %dx%d exceeds %d", ErrInvalidDimensions, intrinsic.Width, intrinsic.Height, r.maxDimension)
	}
	return intrinsic, nil
}

func (r *Resolver) Quality(q Quality) (Settings, error) {
	s, ok := r.qualities[q]
	if !ok {
		return Settings{}, fmt.Errorf("%w: %q", ErrUnknownQuality, q)
	}
	return s, nil
}

// Templates lists the known template names in sorted order.
func (r *Resolver) Templates() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
