// Package encoder turns a raster buffer, or a scene for the JSON format,
// into the bytes of one output format.
package encoder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnsupportedFormat = errors.New("encoder: unsupported format")
	ErrEncoding          = errors.New("encoder: encoding failed")
)

type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	WebP Format = "webp"
	PDF  Format = "pdf"
	JSON Format = "json"
)

var allFormats = []Format{PNG, JPEG, WebP, PDF, JSON}

// ParseFormat accepts format names case-insensitively; "jpg" is JPEG.
func ParseFormat(s string) (Format, error) {
	v := Format(strings.ToLower(strings.TrimSpace(s)))
	if v == "jpg" {
		return JPEG, nil
	}
	for _, f := range allFormats {
		if v == f {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (f Format) Valid() bool {
	for _, k := range allFormats {
		if f == k {
			return true
		}
	}
	return false
}

// Extension is the canonical file extension without the dot.
func (f Format) Extension() string {
	if f == JPEG {
		return "jpg"
	}
	return string(f)
}

func (f Format) MIMEType() string {
	switch f {
	case PNG:
		return "image/png"
	case JPEG:
		return "image/jpeg"
	case WebP:
		return "image/webp"
	case PDF:
		return "application/pdf"
	case JSON:
		return "application/json"
	}
	return "application/octet-stream"
}

// Raster reports whether f is produced from a pixel buffer.
func (f Format) Raster() bool { return f != JSON }

// Metadata travels with an export into PDF document properties and the
// JSON document.
type Metadata struct {
	Title       string    `json:"title,omitempty" yaml:"title,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Author      string    `json:"author,omitempty" yaml:"author,omitempty"`
	Date        time.Time `json:"date,omitzero" yaml:"date,omitempty"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
}
