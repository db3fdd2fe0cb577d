// Package delivery hands finished export bytes to their destination.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrInvalidFilename = errors.New("delivery: invalid filename")

// Sink saves or downloads one named blob.
type Sink interface {
	Deliver(ctx context.Context, data []byte, filename, mimeType string) error
}

// DirSink writes files into a directory. A file appears only once fully
// written.
type DirSink struct {
	Dir string
}

func NewDirSink(dir string) *DirSink {
	return &DirSink{Dir: dir}
}

func (s *DirSink) Deliver(ctx context.Context, data []byte, filename, mimeType string) error {
	if err := checkName(filename); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("delivery: create %s: %w", s.Dir, err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+filename+".*.part")
	if err != nil {
		return fmt.Errorf("delivery: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("delivery: write %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("delivery: close %s: %w", filename, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.Dir, filename)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("delivery: %w", err)
	}
	return nil
}

// Path is where filename lands.
func (s *DirSink) Path(filename string) string {
	return filepath.Join(s.Dir, filename)
}

func checkName(filename string) error {
	if filename == "" || filename == "." || filename == ".." ||
		strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	return nil
}

// File is one blob held by a MemorySink.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// MemorySink keeps delivered blobs in memory.
type MemorySink struct {
	mu    sync.Mutex
	files []File
}

func (s *MemorySink) Deliver(ctx context.Context, data []byte, filename, mimeType string) error {
	if err := checkName(filename); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, File{Name: filename, MIMEType: mimeType, Data: append([]byte(nil), data...)})
	return nil
}

func (s *MemorySink) Files() []File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]File(nil), s.files...)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, data []byte, filename, mimeType string) error

func (f SinkFunc) Deliver(ctx context.Context, data []byte, filename, mimeType string) error {
	return f(ctx, data, filename, mimeType)
}
