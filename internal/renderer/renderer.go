// Package renderer turns a render source (a scene description or a live
// surface) into a pixel buffer at a target size and density.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"runtime"
	"time"

	"golang.org/x/image/draw"

	"github.com/ivlev/moodboard/internal/analyzer"
	"github.com/ivlev/moodboard/internal/loader"
	"github.com/ivlev/moodboard/internal/system"
)

var (
	ErrAllImagesFailed = errors.New("renderer: every image element failed to load")
	ErrEmptyTarget     = errors.New("renderer: target size must be positive")
)

// Source is something the Rasterizer can paint. Implementations are
// SceneSource and SurfaceSource.
type Source interface {
	// Size is the intrinsic size at density 1.
	Size() (width, height int)
	// ImageCount is the number of images that must be fetched.
	ImageCount() int
	paint(ctx context.Context, r *Rasterizer, c *canvas, progress ProgressFunc) (Stats, error)
}

// ProgressFunc is told how many of the source's images have been settled.
type ProgressFunc func(done, total int)

// Target describes the wanted output. Width and Height are in density 1
// pixels; the buffer is Width*Density by Height*Density.
type Target struct {
	Width      int
	Height     int
	Density    float64
	Background color.Color // nil means opaque white
	Watermark  bool
}

// PixelSize is the buffer size for t.
func (t Target) PixelSize() (int, int) {
	d := t.Density
	if d <= 0 {
		d = 1
	}
	return int(math.Round(float64(t.Width) * d)), int(math.Round(float64(t.Height) * d))
}

type Stats struct {
	ImagesTotal  int
	ImagesLoaded int
	Skipped      []string // ids of elements drawn as empty
}

// Raster is a finished buffer. Release hands it back to the pool.
type Raster struct {
	Image *image.RGBA
	Stats Stats

	pool *system.ImagePool
}

func (r *Raster) Release() {
	if r == nil || r.Image == nil {
		return
	}
	if r.pool != nil {
		r.pool.Put(r.Image)
	}
	r.Image = nil
}

type Options struct {
	Loader       loader.Loader
	Pool         *system.ImagePool
	Guard        *system.MemoryGuard
	Logger       *slog.Logger
	Workers      int
	ImageTimeout time.Duration
	Watermark    Watermark
	Focus        analyzer.Focuser // crop focus for cover-fit images
}

type Rasterizer struct {
	loader       loader.Loader
	pool         *system.ImagePool
	guard        *system.MemoryGuard
	logger       *slog.Logger
	workers      int
	imageTimeout time.Duration
	watermark    Watermark
	focus        analyzer.Focuser
	fonts        *fontSet
}

func New(opts Options) *Rasterizer {
	r := &Rasterizer{
		loader:       opts.Loader,
		pool:         opts.Pool,
		guard:        opts.Guard,
		logger:       opts.Logger,
		workers:      opts.Workers,
		imageTimeout: opts.ImageTimeout,
		watermark:    opts.Watermark,
		focus:        opts.Focus,
		fonts:        newFontSet(),
	}
	if r.loader == nil {
		r.loader = loader.New(loader.Options{})
	}
	if r.pool == nil {
		r.pool = system.NewImagePool()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.workers <= 0 {
		r.workers = runtime.NumCPU()
	}
	if r.focus == nil {
		r.focus = analyzer.NewContrastDetector()
	}
	if r.imageTimeout <= 0 {
		r.imageTimeout = 15 * time.Second
	}
	return r
}

// Rasterize paints src into a new buffer sized for t. Per-image load
// failures are logged and skipped; only when every image fails does it
// return ErrAllImagesFailed.
func (r *Rasterizer) Rasterize(ctx context.Context, src Source, t Target, progress ProgressFunc) (*Raster, error) {
	pw, ph := t.PixelSize()
	if pw <= 0 || ph <= 0 {
		return nil, ErrEmptyTarget
	}
	sw, sh := src.Size()
	if sw <= 0 || sh <= 0 {
		return nil, fmt.Errorf("%w: source is %dx%d", ErrEmptyTarget, sw, sh)
	}
	if err := r.guard.Reserve(ctx, uint64(pw)*uint64(ph)*4); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(int, int) {}
	}

	buf := r.pool.Get(image.Rect(0, 0, pw, ph))
	bg := t.Background
	if bg == nil {
		bg = color.White
	}
	draw.Draw(buf, buf.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	c := newCanvas(buf, float64(sw), float64(sh))
	stats, err := src.paint(ctx, r, c, progress)
	if err == nil && t.Watermark {
		err = r.watermark.apply(c, r.fonts)
	}
	if err != nil {
		r.pool.Put(buf)
		return nil, err
	}

	return &Raster{Image: buf, Stats: stats, pool: r.pool}, nil
}
