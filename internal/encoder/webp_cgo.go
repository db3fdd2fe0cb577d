//go:build cgo

package encoder

import (
	"image"
	"io"

	"github.com/chai2010/webp"
)

func webpEncoder() RasterEncoder { return webpLossy{} }

type webpLossy struct{}

func (webpLossy) Encode(w io.Writer, img image.Image, opts Options) error {
	return webp.Encode(w, img, &webp.Options{
		Quality: float32(opts.Settings.LossyQuality * 100),
	})
}
