package renderer

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// canvas maps scene coordinates onto the output buffer. When the target
// aspect differs from the source, the source is scaled uniformly to fit and
// centered.
type canvas struct {
	dst    *image.RGBA
	scale  float64
	offX   float64
	offY   float64
	interp draw.Interpolator
}

func newCanvas(dst *image.RGBA, sw, sh float64) *canvas {
	b := dst.Bounds()
	s := math.Min(float64(b.Dx())/sw, float64(b.Dy())/sh)
	return &canvas{
		dst:    dst,
		scale:  s,
		offX:   (float64(b.Dx()) - sw*s) / 2,
		offY:   (float64(b.Dy()) - sh*s) / 2,
		interp: draw.CatmullRom,
	}
}

// box is an element rectangle in scene units, rotated about its center.
type box struct {
	X, Y, W, H float64
	Rotation   float64 // degrees, clockwise
}

// mapper returns a function taking box-local coordinates (origin at the
// unrotated top-left corner) to buffer pixels.
func (c *canvas) mapper(b box) func(u, v float64) (float64, float64) {
	sin, cos := math.Sincos(b.Rotation * math.Pi / 180)
	cx, cy := b.X+b.W/2, b.Y+b.H/2
	return func(u, v float64) (float64, float64) {
		du, dv := u-b.W/2, v-b.H/2
		x := cx + du*cos - dv*sin
		y := cy + du*sin + dv*cos
		return x*c.scale + c.offX, y*c.scale + c.offY
	}
}

// placeBitmap stretches img over b, rotated and faded by opacity.
func (c *canvas) placeBitmap(img image.Image, b box, opacity float64) {
	opacity = clamp01(opacity)
	sr := img.Bounds()
	if opacity == 0 || sr.Empty() || b.W <= 0 || b.H <= 0 {
		return
	}
	if opacity < 1 {
		img = fade(img, opacity)
		sr = img.Bounds()
	}

	sin, cos := math.Sincos(b.Rotation * math.Pi / 180)
	k := c.scale
	sx := b.W / float64(sr.Dx())
	sy := b.H / float64(sr.Dy())
	cx, cy := b.X+b.W/2, b.Y+b.H/2

	a := k * cos * sx
	bb := -k * sin * sy
	d := k * sin * sx
	e := k * cos * sy
	tx := k*(cx-b.W/2*cos+b.H/2*sin) + c.offX
	ty := k*(cy-b.W/2*sin-b.H/2*cos) + c.offY
	tx -= a*float64(sr.Min.X) + bb*float64(sr.Min.Y)
	ty -= d*float64(sr.Min.X) + e*float64(sr.Min.Y)

	m := f64.Aff3{a, bb, tx, d, e, ty}
	c.interp.Transform(c.dst, m, img, sr, draw.Over, nil)
}

// fitImage scales img uniformly into the whole source area, centered.
func (c *canvas) fitImage(img image.Image, sw, sh float64) {
	c.placeBitmap(img, box{W: sw, H: sh}, 1)
}

// coverCrop cuts the largest window of the given aspect (width/height) out
// of img, centred on focus as far as the edges allow.
func coverCrop(img image.Image, aspect float64, focus image.Point) image.Image {
	b := img.Bounds()
	if b.Empty() || !(aspect > 0) || math.IsInf(aspect, 0) {
		return img
	}
	w, h := float64(b.Dx()), float64(b.Dy())
	cw, ch := w, h
	if w/h > aspect {
		cw = h * aspect
	} else {
		ch = w / aspect
	}
	x0 := math.Max(float64(b.Min.X), math.Min(float64(focus.X)-cw/2, float64(b.Max.X)-cw))
	y0 := math.Max(float64(b.Min.Y), math.Min(float64(focus.Y)-ch/2, float64(b.Max.Y)-ch))
	r := image.Rect(
		int(math.Round(x0)), int(math.Round(y0)),
		int(math.Round(x0+cw)), int(math.Round(y0+ch)),
	).Intersect(b)
	if r.Empty() || r == b {
		return img
	}
	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(r)
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}

func fade(img image.Image, opacity float64) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(b)
	mask := image.NewUniform(color.Alpha16{A: uint16(opacity * 0xffff)})
	draw.DrawMask(out, b, img, b.Min, mask, image.Point{}, draw.Src)
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// withOpacity scales the alpha of c by opacity.
func withOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	c.A = uint8(math.Round(float64(c.A) * clamp01(opacity)))
	return c
}
