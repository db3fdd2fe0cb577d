// Package analyzer picks the part of a photo worth keeping when it is
// cropped into a box of another aspect.
package analyzer

import (
	"fmt"
	"image"
)

// Block is a detected region of interest.
type Block struct {
	Rect image.Rectangle
	Area int // pixels covered by the region, not its bounding box
}

// Focuser returns the point a crop should keep in view.
type Focuser interface {
	Focus(img image.Image) image.Point
}

// Center keeps the middle of the image.
type Center struct{}

func (Center) Focus(img image.Image) image.Point {
	b := img.Bounds()
	return image.Pt(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2)
}

// New returns the focuser for variant: "contrast" (default) or "center".
func New(variant string) (Focuser, error) {
	switch variant {
	case "contrast", "":
		return NewContrastDetector(), nil
	case "center":
		return Center{}, nil
	default:
		return nil, fmt.Errorf("analyzer: unknown focus variant %q", variant)
	}
}
