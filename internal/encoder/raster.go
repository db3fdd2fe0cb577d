package encoder

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
)

type pngEncoder struct{}

// Encode compresses harder when the preset trades quality for size. PNG is
// lossless either way.
func (pngEncoder) Encode(w io.Writer, img image.Image, opts Options) error {
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if opts.Settings.PNGQuality < 1 {
		enc.CompressionLevel = png.BestCompression
	}
	return enc.Encode(w, img)
}

type jpegEncoder struct{}

func (jpegEncoder) Encode(w io.Writer, img image.Image, opts Options) error {
	return jpeg.Encode(w, flatten(img), &jpeg.Options{Quality: opts.Settings.JPEGQuality()})
}

// flatten composites img over white for formats without alpha.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, b, img, b.Min, draw.Over)
	return out
}
