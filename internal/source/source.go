// Package source provides live render surfaces: already painted bitmaps that
// an export can capture instead of drawing a scene from its description.
package source

import (
	"context"
	"errors"
	"image"

	"golang.org/x/image/draw"
)

var ErrClosed = errors.New("source: surface closed")

// Surface is a render target whose current pixels can be snapshotted.
// Size reports the surface at density 1.
type Surface interface {
	Size() (width, height int)
	Capture(ctx context.Context, density float64) (image.Image, error)
	Close() error
}

// Scale resamples img by factor using Catmull-Rom. A factor of 1 returns img.
func Scale(img image.Image, factor float64) image.Image {
	if factor == 1 || factor <= 0 {
		return img
	}
	b := img.Bounds()
	w := int(float64(b.Dx())*factor + 0.5)
	h := int(float64(b.Dy())*factor + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
