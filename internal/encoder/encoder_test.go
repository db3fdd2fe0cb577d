package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/moodboard/internal/dimension"
	"github.com/ivlev/moodboard/internal/scene"
)

var standard = dimension.Settings{Density: 1.5, LossyQuality: 0.85, PNGQuality: 0.9, PDFCompression: true}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ext  string
		mime string
	}{
		{"png", PNG, "png", "image/png"},
		{"JPEG", JPEG, "jpg", "image/jpeg"},
		{"jpg", JPEG, "jpg", "image/jpeg"},
		{"webp", WebP, "webp", "image/webp"},
		{" pdf ", PDF, "pdf", "application/pdf"},
		{"json", JSON, "json", "application/json"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := ParseFormat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f)
			assert.Equal(t, tt.ext, f.Extension())
			assert.Equal(t, tt.mime, f.MIMEType())
		})
	}

	_, err := ParseFormat("gif")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.False(t, Format("gif").Valid())
	assert.False(t, JSON.Raster())
}

func TestEncodePNG(t *testing.T) {
	r := NewRegistry()
	data, err := r.Encode(PNG, gradient(64, 48), Options{Settings: standard})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
	r8, g8, _, _ := img.At(10, 20).RGBA()
	assert.Equal(t, uint32(10), r8>>8)
	assert.Equal(t, uint32(20), g8>>8)
}

func TestEncodeJPEGFlattensAlpha(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 16))
	data, err := NewRegistry().Encode(JPEG, src, Options{Settings: standard})
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, g, b, _ := img.At(8, 8).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestJPEGQualityChangesSize(t *testing.T) {
	r := NewRegistry()
	img := gradient(128, 128)
	high, err := r.Encode(JPEG, img, Options{Settings: dimension.Settings{LossyQuality: 0.95}})
	require.NoError(t, err)
	low, err := r.Encode(JPEG, img, Options{Settings: dimension.Settings{LossyQuality: 0.70}})
	require.NoError(t, err)
	assert.Greater(t, len(high), len(low))
}

func TestEncodePDF(t *testing.T) {
	r := NewRegistry()
	opts := Options{
		Settings: standard,
		Width:    600,
		Height:   400,
		Metadata: Metadata{
			Title:       "Autumn Palette",
			Author:      "Studio",
			Description: "Warm tones, knitted textures and low sun.",
			Date:        time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
			Tags:        []string{"autumn", "warm"},
		},
	}
	data, err := r.Encode(PDF, gradient(900, 600), opts)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	doc, err := fitz.NewFromMemory(data)
	require.NoError(t, err)
	defer doc.Close()
	assert.Equal(t, 2, doc.NumPage())

	bound, err := doc.Bound(0)
	require.NoError(t, err)
	assert.Equal(t, 600, bound.Dx())
	assert.Equal(t, 400, bound.Dy())

	opts.Metadata.Description = ""
	opts.Width, opts.Height = 400, 600
	data, err = r.Encode(PDF, gradient(400, 600), opts)
	require.NoError(t, err)

	portrait, err := fitz.NewFromMemory(data)
	require.NoError(t, err)
	defer portrait.Close()
	assert.Equal(t, 1, portrait.NumPage())
	bound, err = portrait.Bound(0)
	require.NoError(t, err)
	assert.Equal(t, 400, bound.Dx())
	assert.Equal(t, 600, bound.Dy())
}

func TestPDFDescriptionKeepsNonLatinText(t *testing.T) {
	r := NewRegistry()
	data, err := r.Encode(PDF, gradient(300, 200), Options{
		Settings: standard,
		Width:    300,
		Height:   200,
		Metadata: Metadata{Description: "Тёплые тона, Ελλάδα, café"},
	})
	require.NoError(t, err)

	doc, err := fitz.NewFromMemory(data)
	require.NoError(t, err)
	defer doc.Close()
	require.Equal(t, 2, doc.NumPage())

	text, err := doc.Text(1)
	require.NoError(t, err)
	assert.Contains(t, text, "Description")
	assert.Contains(t, text, "Тёплые тона")
	assert.Contains(t, text, "Ελλάδα")
	assert.Contains(t, text, "café")
}

func TestPDFIsDeterministicWithFixedDate(t *testing.T) {
	r := NewRegistry()
	opts := Options{
		Settings: standard,
		Width:    100,
		Height:   100,
		Metadata: Metadata{Title: "Same", Date: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	a, err := r.Encode(PDF, gradient(100, 100), opts)
	require.NoError(t, err)
	b, err := r.Encode(PDF, gradient(100, 100), opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Supports(PNG))
	assert.True(t, r.Supports(JSON))
	assert.Contains(t, r.Formats(), PDF)

	r.Unregister(WebP)
	assert.False(t, r.Supports(WebP))
	_, err := r.Encode(WebP, gradient(4, 4), Options{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.NotContains(t, r.Formats(), WebP)
}

func TestDocumentRoundTrip(t *testing.T) {
	s := scene.New("Coastal", 600, 400)
	s.BackgroundColor = "#f4efe6"
	first := scene.NewImage("img-1", "https://example.com/1.jpg", 0, 0, 300, 200)
	first.ZIndex = 2
	second := scene.NewImage("img-2", "https://example.com/2.jpg", 300, 0, 300, 200)
	second.ZIndex = 1
	second.Rotation = 12
	second.Opacity = 0.4
	label := scene.NewText("label", "Sea salt", 20, 340, 28, "#1d3557")
	label.ZIndex = 1
	s.Add(first, second, label,
		scene.NewShape("frame", scene.ShapeRectangle, 10, 10, 580, 380, "", "#000000", 2))

	meta := Metadata{Title: "Coastal", Tags: []string{"sea"}}
	data, err := EncodeDocument(s, meta, time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	doc, err := DecodeDocument(data)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Version)
	assert.Equal(t, meta, doc.Metadata)
	assert.Equal(t, s.SortedByZIndex(), doc.Scene.Elements)
	assert.Equal(t, s.CanvasSize, doc.Scene.CanvasSize)
	assert.Equal(t, "2026-10-19T08:00:00Z", doc.ExportDate.Format(time.RFC3339))

	ids := make([]string, 0, len(doc.Scene.Elements))
	for _, el := range doc.Scene.Elements {
		ids = append(ids, el.ID)
	}
	assert.Equal(t, []string{"frame", "img-2", "label", "img-1"}, ids)

	assert.Equal(t, "img-1", s.Elements[0].ID, "input scene untouched")
}

func TestDecodeDocumentRejectsOtherVersions(t *testing.T) {
	_, err := DecodeDocument([]byte(`{"version":"2.0.0","scene":{"canvasSize":{"width":1,"height":1},"elements":[]}}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = DecodeDocument([]byte(`{"version":"1.2.0"}`))
	assert.Error(t, err)

	_, err = DecodeDocument([]byte(`not json`))
	assert.Error(t, err)
}
