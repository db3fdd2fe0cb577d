package encoder

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"
	"math"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	defaultTitle  = "Mood Board"
	defaultAuthor = "Mood Board Generator"
	creator       = "Mood Board Generator App"

	textFont = "go" // UTF-8 Go fonts, so descriptions keep non-Latin text
)

type pdfEncoder struct{}

// Encode writes a single page the size of the export (one pixel to one
// point) holding the raster as JPEG. A description adds a second page of
// wrapped text.
func (pdfEncoder) Encode(w io.Writer, img image.Image, opts Options) error {
	width, height := float64(opts.Width), float64(opts.Height)
	if width <= 0 || height <= 0 {
		b := img.Bounds()
		width, height = float64(b.Dx()), float64(b.Dy())
	}

	orientation := "P"
	if width > height {
		orientation = "L"
	}
	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: math.Min(width, height), Ht: math.Max(width, height)},
	})
	doc.SetCompression(opts.Settings.PDFCompression)
	doc.SetCatalogSort(true)
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)

	meta := opts.Metadata
	doc.SetTitle(orDefault(meta.Title, defaultTitle), true)
	doc.SetAuthor(orDefault(meta.Author, defaultAuthor), true)
	doc.SetCreator(creator, true)
	if meta.Description != "" {
		doc.SetSubject(meta.Description, true)
	}
	if len(meta.Tags) > 0 {
		doc.SetKeywords(strings.Join(meta.Tags, " "), true)
	}
	if !meta.Date.IsZero() {
		doc.SetCreationDate(meta.Date)
		doc.SetModificationDate(meta.Date)
	}

	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, flatten(img), &jpeg.Options{Quality: opts.Settings.JPEGQuality()}); err != nil {
		return err
	}
	imgOpts := fpdf.ImageOptions{ImageType: "JPG"}
	doc.RegisterImageOptionsReader("board", imgOpts, &jpg)

	doc.AddPage()
	doc.ImageOptions("board", 0, 0, width, height, false, imgOpts, 0, "")

	if meta.Description != "" {
		doc.AddUTF8FontFromBytes(textFont, "", goregular.TTF)
		doc.AddUTF8FontFromBytes(textFont, "B", gobold.TTF)
		doc.SetAutoPageBreak(true, 20)
		doc.AddPage()
		doc.SetFont(textFont, "B", 16)
		doc.Text(20, 30, "Description")
		doc.SetFont(textFont, "", 12)
		doc.SetXY(20, 40)
		doc.MultiCell(width-40, 14, meta.Description, "", "L", false)
	}

	if err := doc.Error(); err != nil {
		return err
	}
	return doc.Output(w)
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
