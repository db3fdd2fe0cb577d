package renderer

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/ivlev/moodboard/internal/scene"
)

const circleSegments = 96

type pt struct{ X, Y float64 }

// fillPaths rasterizes closed polygons with nonzero winding. Opposite
// winding in a later path cuts a hole.
func (c *canvas) fillPaths(col color.NRGBA, paths ...[]pt) {
	if col.A == 0 {
		return
	}
	b := c.dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.DrawOp = draw.Over
	for _, p := range paths {
		if len(p) < 3 {
			continue
		}
		z.MoveTo(float32(p[0].X), float32(p[0].Y))
		for _, q := range p[1:] {
			z.LineTo(float32(q.X), float32(q.Y))
		}
		z.ClosePath()
	}
	z.Draw(c.dst, b, image.NewUniform(col), image.Point{})
}

func (c *canvas) project(b box, local []pt) []pt {
	m := c.mapper(b)
	out := make([]pt, len(local))
	for i, p := range local {
		out[i].X, out[i].Y = m(p.X, p.Y)
	}
	return out
}

func reversed(p []pt) []pt {
	out := make([]pt, len(p))
	for i := range p {
		out[len(p)-1-i] = p[i]
	}
	return out
}

func rectPath(x0, y0, x1, y1 float64) []pt {
	return []pt{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

func ellipsePath(cx, cy, rx, ry float64) []pt {
	p := make([]pt, circleSegments)
	for i := range p {
		sin, cos := math.Sincos(2 * math.Pi * float64(i) / circleSegments)
		p[i] = pt{cx + rx*cos, cy + ry*sin}
	}
	return p
}

// drawShape paints a rectangle, an ellipse inscribed in the element box, or
// a line from the top-left to the bottom-right corner of the box. Strokes
// are centered on the outline.
func (c *canvas) drawShape(el scene.Element) {
	sh := el.Shape
	b := box{X: el.Position.X, Y: el.Position.Y, W: sh.Size.Width, H: sh.Size.Height, Rotation: el.Rotation}
	fill := withOpacity(scene.ColorOr(sh.FillColor, color.NRGBA{}), el.Opacity)
	stroke := withOpacity(scene.ColorOr(sh.StrokeColor, color.NRGBA{}), el.Opacity)
	half := sh.StrokeWidth / 2

	switch sh.Kind {
	case scene.ShapeRectangle:
		c.fillPaths(fill, c.project(b, rectPath(0, 0, b.W, b.H)))
		if half > 0 {
			outer := rectPath(-half, -half, b.W+half, b.H+half)
			inner := rectPath(half, half, b.W-half, b.H-half)
			paths := [][]pt{c.project(b, outer)}
			if b.W > 2*half && b.H > 2*half {
				paths = append(paths, c.project(b, reversed(inner)))
			}
			c.fillPaths(stroke, paths...)
		}

	case scene.ShapeCircle:
		rx, ry := b.W/2, b.H/2
		c.fillPaths(fill, c.project(b, ellipsePath(rx, ry, rx, ry)))
		if half > 0 {
			paths := [][]pt{c.project(b, ellipsePath(rx, ry, rx+half, ry+half))}
			if rx > half && ry > half {
				paths = append(paths, c.project(b, reversed(ellipsePath(rx, ry, rx-half, ry-half))))
			}
			c.fillPaths(stroke, paths...)
		}

	case scene.ShapeLine:
		col := stroke
		if sh.StrokeColor == "" {
			col = fill
		}
		width := sh.StrokeWidth
		if width <= 0 {
			width = 1
		}
		length := math.Hypot(b.W, b.H)
		if length == 0 {
			return
		}
		// unit normal scaled to half the line width
		nx, ny := -b.H/length*width/2, b.W/length*width/2
		quad := []pt{
			{nx, ny},
			{b.W + nx, b.H + ny},
			{b.W - nx, b.H - ny},
			{-nx, -ny},
		}
		c.fillPaths(col, c.project(b, quad))
	}
}
