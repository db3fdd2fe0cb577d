package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	_ "golang.org/x/image/webp"
)

// ImageSurface is a surface backed by a bitmap already in memory.
type ImageSurface struct {
	mu     sync.RWMutex
	img    image.Image
	closed bool
}

func NewImageSurface(img image.Image) *ImageSurface {
	return &ImageSurface{img: img}
}

// OpenImage decodes the image file at path into a surface.
func OpenImage(path string) (*ImageSurface, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("source: decode %s: %w", path, err)
	}
	return NewImageSurface(img), nil
}

func (s *ImageSurface) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Update replaces the painted bitmap, as an editor would after a repaint.
func (s *ImageSurface) Update(img image.Image) {
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}

func (s *ImageSurface) Capture(ctx context.Context, density float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	img, closed := s.img, s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return Scale(img, density), nil
}

func (s *ImageSurface) Close() error {
	s.mu.Lock()
	s.closed = true
	s.img = nil
	s.mu.Unlock()
	return nil
}
