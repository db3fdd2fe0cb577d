package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"sort"
	"sync"

	"github.com/ivlev/moodboard/internal/dimension"
)

// Options carry what a raster encoder needs beyond the pixels. Width and
// Height are the resolved export size at density 1; PDF uses them as the
// page size.
type Options struct {
	Settings dimension.Settings
	Width    int
	Height   int
	Metadata Metadata
}

type RasterEncoder interface {
	Encode(w io.Writer, img image.Image, opts Options) error
}

// Registry maps formats to the encoders available in this build.
type Registry struct {
	mu       sync.RWMutex
	encoders map[Format]RasterEncoder
}

// NewRegistry registers every encoder this build supports. WebP needs cgo.
func NewRegistry() *Registry {
	r := &Registry{encoders: make(map[Format]RasterEncoder)}
	r.Register(PNG, pngEncoder{})
	r.Register(JPEG, jpegEncoder{})
	r.Register(PDF, pdfEncoder{})
	if enc := webpEncoder(); enc != nil {
		r.Register(WebP, enc)
	}
	return r
}

func (r *Registry) Register(f Format, enc RasterEncoder) {
	r.mu.Lock()
	r.encoders[f] = enc
	r.mu.Unlock()
}

func (r *Registry) Unregister(f Format) {
	r.mu.Lock()
	delete(r.encoders, f)
	r.mu.Unlock()
}

// Supports reports whether f can be produced. JSON needs no encoder.
func (r *Registry) Supports(f Format) bool {
	if f == JSON {
		return true
	}
	r.mu.RLock()
	_, ok := r.encoders[f]
	r.mu.RUnlock()
	return ok
}

func (r *Registry) Formats() []Format {
	r.mu.RLock()
	out := make([]Format, 0, len(r.encoders)+1)
	for f := range r.encoders {
		out = append(out, f)
	}
	r.mu.RUnlock()
	out = append(out, JSON)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Encode produces the bytes of img in format f.
func (r *Registry) Encode(f Format, img image.Image, opts Options) ([]byte, error) {
	r.mu.RLock()
	enc, ok := r.encoders[f]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, img, opts); err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrEncoding, f, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: %s produced no bytes", ErrEncoding, f)
	}
	return buf.Bytes(), nil
}
