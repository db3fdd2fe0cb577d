package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/moodboard/internal/scene"
	"github.com/ivlev/moodboard/internal/source"
)

var errNoSrc = errors.New("renderer: image element has no src")

// SceneSource draws a scene from its element description.
type SceneSource struct {
	scene *scene.Scene
}

// FromScene snapshots s. Later edits to s are not seen by the export.
func FromScene(s *scene.Scene) *SceneSource {
	return &SceneSource{scene: s.Clone()}
}

// Scene returns the snapshot taken by FromScene.
func (s *SceneSource) Scene() *scene.Scene { return s.scene }

func (s *SceneSource) Size() (int, int) { return s.scene.PixelSize() }

func (s *SceneSource) ImageCount() int { return s.scene.ImageCount() }

func (s *SceneSource) paint(ctx context.Context, r *Rasterizer, c *canvas, progress ProgressFunc) (Stats, error) {
	elements := s.scene.SortedByZIndex()
	images, stats := r.loadImages(ctx, elements, progress)
	if ctx.Err() != nil {
		return stats, context.Cause(ctx)
	}
	if stats.ImagesTotal > 0 && stats.ImagesLoaded == 0 {
		return stats, fmt.Errorf("%w (%d images)", ErrAllImagesFailed, stats.ImagesTotal)
	}

	for i, el := range elements {
		if ctx.Err() != nil {
			return stats, context.Cause(ctx)
		}
		switch el.Kind {
		case scene.KindImage:
			if images[i] == nil {
				continue
			}
			c.placeBitmap(images[i], box{
				X:        el.Position.X,
				Y:        el.Position.Y,
				W:        el.Image.Size.Width,
				H:        el.Image.Size.Height,
				Rotation: el.Rotation,
			}, el.Opacity)
		case scene.KindText:
			if el.Text == nil {
				continue
			}
			if err := c.drawText(el, r.fonts); err != nil {
				return stats, err
			}
		case scene.KindShape:
			if el.Shape != nil {
				c.drawShape(el)
			}
		}
	}
	return stats, nil
}

// loadImages fetches every image element concurrently. images[i] is nil
// when element i is not an image or failed to load.
func (r *Rasterizer) loadImages(ctx context.Context, elements []scene.Element, progress ProgressFunc) ([]image.Image, Stats) {
	images := make([]image.Image, len(elements))
	var stats Stats
	for _, el := range elements {
		if el.Kind == scene.KindImage {
			stats.ImagesTotal++
		}
	}
	if stats.ImagesTotal == 0 {
		return images, stats
	}

	var (
		mu   sync.Mutex
		done int
	)
	g := new(errgroup.Group)
	g.SetLimit(r.workers)

	for i, el := range elements {
		if el.Kind != scene.KindImage {
			continue
		}
		g.Go(func() error {
			img, err := r.loadOne(ctx, el)
			if err != nil {
				r.logger.Warn("image skipped", "element", el.ID, "src", shorten(imageSrc(el)), "error", err)
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				stats.Skipped = append(stats.Skipped, el.ID)
			} else {
				images[i] = img
				stats.ImagesLoaded++
			}
			progress(done, stats.ImagesTotal)
			return nil
		})
	}
	g.Wait()

	sort.Strings(stats.Skipped)
	return images, stats
}

// loadOne fetches the bitmap of an image element and crops it for cover
// fit. It runs on a worker goroutine, so a panicking loader or decoder is
// turned into an ordinary load failure here.
func (r *Rasterizer) loadOne(ctx context.Context, el scene.Element) (img image.Image, err error) {
	src := imageSrc(el)
	defer func() {
		if p := recover(); p != nil {
			img, err = nil, fmt.Errorf("renderer: load %s panicked: %v", shorten(src), p)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src == "" {
		return nil, errNoSrc
	}
	ctx, cancel := context.WithTimeout(ctx, r.imageTimeout)
	defer cancel()
	img, err = r.loader.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	if el.Image.Fit == scene.FitCover {
		img = coverCrop(img, el.Image.Size.Width/el.Image.Size.Height, r.focus.Focus(img))
	}
	return img, nil
}

func imageSrc(el scene.Element) string {
	if el.Image == nil {
		return ""
	}
	return el.Image.Src
}

func shorten(src string) string {
	if len(src) > 96 {
		return src[:96] + "..."
	}
	return src
}

// SurfaceSource captures an already painted surface instead of drawing.
type SurfaceSource struct {
	surface source.Surface
}

func FromSurface(s source.Surface) *SurfaceSource {
	return &SurfaceSource{surface: s}
}

func (s *SurfaceSource) Size() (int, int) { return s.surface.Size() }

func (s *SurfaceSource) ImageCount() int { return 0 }

func (s *SurfaceSource) paint(ctx context.Context, r *Rasterizer, c *canvas, progress ProgressFunc) (Stats, error) {
	sw, sh := s.surface.Size()
	img, err := s.surface.Capture(ctx, c.scale)
	if err != nil {
		if ctx.Err() != nil {
			return Stats{}, context.Cause(ctx)
		}
		return Stats{}, fmt.Errorf("renderer: capture surface: %w", err)
	}
	c.fitImage(img, float64(sw), float64(sh))
	progress(1, 1)
	return Stats{}, nil
}
