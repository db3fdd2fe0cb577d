package source

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
)

// PDFSurface renders one page of a PDF document through MuPDF.
// Page size is measured in points, so density 1 is 72 dpi.
type PDFSurface struct {
	mu     sync.Mutex
	doc    *fitz.Document
	path   string
	page   int
	width  int
	height int
}

func OpenPDF(path string, page int) (*PDFSurface, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	if page < 0 || page >= doc.NumPage() {
		n := doc.NumPage()
		doc.Close()
		return nil, fmt.Errorf("source: page %d out of range (document has %d)", page, n)
	}
	rect, err := doc.Bound(page)
	if err != nil {
		doc.Close()
		return nil, err
	}
	return &PDFSurface{
		doc:    doc,
		path:   path,
		page:   page,
		width:  rect.Dx(),
		height: rect.Dy(),
	}, nil
}

func (p *PDFSurface) Size() (int, int) {
	return p.width, p.height
}

func (p *PDFSurface) PageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return 0
	}
	return p.doc.NumPage()
}

// Capture opens its own document handle; MuPDF contexts are not safe to
// share between goroutines.
func (p *PDFSurface) Capture(ctx context.Context, density float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	closed := p.doc == nil
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if density <= 0 {
		density = 1
	}

	workerDoc, err := fitz.New(p.path)
	if err != nil {
		return nil, err
	}
	defer workerDoc.Close()

	img, err := workerDoc.ImageDPI(p.page, 72*density)
	if err != nil {
		return nil, fmt.Errorf("source: render page %d: %w", p.page, err)
	}
	return img, nil
}

func (p *PDFSurface) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return nil
	}
	err := p.doc.Close()
	p.doc = nil
	return err
}
