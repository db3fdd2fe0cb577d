package renderer

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Watermark is stamped into the bottom-right corner of the buffer: a
// translucent badge with Text and, when URL is set, a QR code above it.
type Watermark struct {
	Text string
	URL  string
}

func (w Watermark) apply(c *canvas, fonts *fontSet) error {
	if w.Text == "" && w.URL == "" {
		return nil
	}
	b := c.dst.Bounds()
	unit := math.Max(12, math.Min(float64(b.Dx()), float64(b.Dy()))/40)
	pad := unit / 2
	right := float64(b.Max.X) - pad
	bottom := float64(b.Max.Y) - pad

	if w.Text != "" {
		face, err := fonts.face("bold", unit)
		if err != nil {
			return err
		}
		defer face.Close()

		m := face.Metrics()
		tw := textWidth(face, w.Text)
		th := float64((m.Ascent + m.Descent).Ceil())
		x0, y0 := right-tw-2*pad, bottom-th-pad

		c.fillPaths(color.NRGBA{A: 150}, rectPath(x0, y0, right, bottom))
		d := &font.Drawer{
			Dst:  c.dst,
			Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 230}),
			Face: face,
			Dot:  fixed.Point26_6{X: fixed.I(int(x0 + pad)), Y: fixed.I(int(y0+pad/2)) + m.Ascent},
		}
		d.DrawString(w.Text)
		bottom = y0 - pad/2
	}

	if w.URL != "" {
		q, err := qrcode.New(w.URL, qrcode.Medium)
		if err != nil {
			return fmt.Errorf("renderer: watermark qr: %w", err)
		}
		q.DisableBorder = true
		side := int(unit * 4)
		code := q.Image(side)
		cb := code.Bounds()

		quiet := int(pad / 2)
		r := image.Rect(int(right)-cb.Dx(), int(bottom)-cb.Dy(), int(right), int(bottom))
		draw.Draw(c.dst, r.Inset(-quiet), image.NewUniform(color.White), image.Point{}, draw.Src)
		draw.Draw(c.dst, r, code, cb.Min, draw.Over)
	}
	return nil
}
