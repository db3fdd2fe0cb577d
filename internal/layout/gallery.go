// Package layout arranges image records into a scene, so the simple gallery
// flow exports through the same pipeline as the freeform canvas.
package layout

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/ivlev/moodboard/internal/scene"
)

var ErrNoImages = errors.New("layout: no images to arrange")

const titleID = "title"

// Gallery places a centred title above a grid of equally sized tiles.
// Photos are cropped to the tile aspect, never stretched.
type Gallery struct {
	Width      float64 // canvas width
	Columns    int
	Gap        float64
	Padding    float64
	TileAspect float64 // width / height
	TitleSize  float64
	TitleColor string
	Background string
}

// NewGallery returns the default gallery: three 4:3 columns on a 1200px
// canvas.
func NewGallery() *Gallery {
	return &Gallery{
		Width:      1200,
		Columns:    3,
		Gap:        20,
		Padding:    40,
		TileAspect: 4.0 / 3.0,
		TitleSize:  32,
		TitleColor: "#1f2937",
		Background: "#ffffff",
	}
}

// TileSize is the size of one grid cell.
func (g *Gallery) TileSize() scene.Size {
	w := (g.Width - 2*g.Padding - float64(g.Columns-1)*g.Gap) / float64(g.Columns)
	return scene.Size{Width: w, Height: w / g.TileAspect}
}

// Build lays records out in reading order. Records without an id get a
// generated one; records without a url fall back to their thumbnail, and
// records with neither are left out.
func (g *Gallery) Build(title string, records []scene.ImageRecord) (*scene.Scene, error) {
	if len(records) == 0 {
		return nil, ErrNoImages
	}
	if g.Columns <= 0 || g.TileAspect <= 0 {
		return nil, fmt.Errorf("layout: invalid gallery geometry (%d columns, aspect %.2f)", g.Columns, g.TileAspect)
	}
	tile := g.TileSize()
	if tile.Width <= 0 {
		return nil, fmt.Errorf("layout: canvas %.0fpx too narrow for %d columns", g.Width, g.Columns)
	}

	top := g.Padding
	s := scene.New(title, g.Width, 0)
	s.BackgroundColor = g.Background

	seen := make(map[string]bool, len(records)+1)
	z := 0
	if strings.TrimSpace(title) != "" {
		heading := scene.NewText(titleID, title, g.Width/2, top, g.TitleSize, g.TitleColor)
		heading.Text.FontFamily = "bold"
		heading.Text.Align = scene.AlignCenter
		s.Add(heading)
		seen[titleID] = true
		top += g.TitleSize*1.2 + g.Gap
		z++
	}

	placed := 0
	for _, rec := range records {
		src := rec.URL
		if src == "" {
			src = rec.ThumbnailURL
		}
		if src == "" {
			continue
		}
		id := rec.ID
		if id == "" || seen[id] {
			id = "img-" + uuid.NewString()
		}
		seen[id] = true

		col, row := placed%g.Columns, placed/g.Columns
		placed++
		x := g.Padding + float64(col)*(tile.Width+g.Gap)
		y := top + float64(row)*(tile.Height+g.Gap)

		el := scene.NewImage(id, src, x, y, tile.Width, tile.Height)
		el.Image.Fit = scene.FitCover
		el.ZIndex = z
		z++
		s.Add(el)
	}

	if placed == 0 {
		return nil, ErrNoImages
	}
	rows := int(math.Ceil(float64(placed) / float64(g.Columns)))
	s.CanvasSize.Height = top + float64(rows)*tile.Height + float64(rows-1)*g.Gap + g.Padding
	return s, nil
}
