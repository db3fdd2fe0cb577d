package renderer

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/moodboard/internal/scene"
)

const defaultFontSize = 16

// fontSet lazily parses the bundled Go fonts. Any family is served by the
// closest Go face.
type fontSet struct {
	mu     sync.Mutex
	parsed map[string]*opentype.Font
}

func newFontSet() *fontSet {
	return &fontSet{parsed: make(map[string]*opentype.Font)}
}

func familyKey(family string) string {
	f := strings.ToLower(family)
	switch {
	case strings.Contains(f, "mono"), strings.Contains(f, "courier"), strings.Contains(f, "code"):
		return "mono"
	case strings.Contains(f, "bold"), strings.Contains(f, "black"), strings.Contains(f, "heavy"):
		return "bold"
	case strings.Contains(f, "italic"), strings.Contains(f, "oblique"):
		return "italic"
	}
	return "regular"
}

func (fs *fontSet) face(family string, size float64) (font.Face, error) {
	key := familyKey(family)

	fs.mu.Lock()
	f, ok := fs.parsed[key]
	if !ok {
		var data []byte
		switch key {
		case "mono":
			data = gomono.TTF
		case "bold":
			data = gobold.TTF
		case "italic":
			data = goitalic.TTF
		default:
			data = goregular.TTF
		}
		var err error
		f, err = opentype.Parse(data)
		if err != nil {
			fs.mu.Unlock()
			return nil, fmt.Errorf("renderer: parse font %s: %w", key, err)
		}
		fs.parsed[key] = f
	}
	fs.mu.Unlock()

	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// renderText draws lines of text in col onto a transparent bitmap sized to
// the text. size is in buffer pixels.
func renderText(face font.Face, text string, col color.Color, center bool) *image.RGBA {
	lines := strings.Split(text, "\n")
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	if lineHeight <= 0 {
		lineHeight = (metrics.Ascent + metrics.Descent).Ceil()
	}

	width := 0
	widths := make([]fixed.Int26_6, len(lines))
	for i, line := range lines {
		widths[i] = font.MeasureString(face, line)
		if w := widths[i].Ceil(); w > width {
			width = w
		}
	}
	if width == 0 {
		return nil
	}

	img := image.NewRGBA(image.Rect(0, 0, width, lineHeight*len(lines)))
	d := &font.Drawer{Dst: img, Src: image.NewUniform(col), Face: face}
	for i, line := range lines {
		d.Dot = fixed.Point26_6{Y: fixed.I(i*lineHeight) + metrics.Ascent}
		if center {
			d.Dot.X = (fixed.I(width) - widths[i]) / 2
		}
		d.DrawString(line)
	}
	return img
}

// drawText lays out a text element with its top-left at the element
// position.
func (c *canvas) drawText(el scene.Element, fonts *fontSet) error {
	t := el.Text
	if strings.TrimSpace(t.Text) == "" {
		return nil
	}
	size := t.FontSize
	if size <= 0 {
		size = defaultFontSize
	}

	face, err := fonts.face(t.FontFamily, size*c.scale)
	if err != nil {
		return err
	}
	defer face.Close()

	col := scene.ColorOr(t.Color, color.NRGBA{A: 255})
	bmp := renderText(face, t.Text, col, t.Align == scene.AlignCenter)
	if bmp == nil {
		return nil
	}

	b := bmp.Bounds()
	x := el.Position.X
	if t.Align == scene.AlignCenter {
		x -= float64(b.Dx()) / c.scale / 2
	}
	c.placeBitmap(bmp, box{
		X:        x,
		Y:        el.Position.Y,
		W:        float64(b.Dx()) / c.scale,
		H:        float64(b.Dy()) / c.scale,
		Rotation: el.Rotation,
	}, el.Opacity)
	return nil
}

// textWidth measures s at size buffer pixels.
func textWidth(face font.Face, s string) float64 {
	return math.Ceil(float64(font.MeasureString(face, s)) / 64)
}
