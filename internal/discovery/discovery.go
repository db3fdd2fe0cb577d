// Package discovery finds image records for the gallery flow. Remote photo
// providers live outside this module; Static serves records from a file.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/moodboard/internal/scene"
)

var ErrNoResults = errors.New("discovery: no images found")

// Finder is the image discovery service the gallery flow consumes. It
// returns fewer than count records only when the source is exhausted.
type Finder interface {
	SearchImages(ctx context.Context, query string, count int) ([]scene.ImageRecord, error)
	ImagesByCategory(ctx context.Context, category string, count int) ([]scene.ImageRecord, error)
}

// Static answers queries from a fixed record list, in list order.
type Static struct {
	records []scene.ImageRecord
}

func NewStatic(records []scene.ImageRecord) *Static {
	return &Static{records: append([]scene.ImageRecord(nil), records...)}
}

// LoadStatic reads records from a YAML or JSON file holding either a list
// or an object with an "images" list.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("discovery: unsupported file type %q", filepath.Ext(path))
	}

	// JSON is valid YAML, so one decoder serves both.
	var list []scene.ImageRecord
	if err := yaml.Unmarshal(data, &list); err != nil {
		var wrapped struct {
			Images []scene.ImageRecord `yaml:"images"`
		}
		if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("discovery: decode %s: %w", path, err)
		}
		list = wrapped.Images
	}
	return NewStatic(list), nil
}

func (s *Static) Len() int { return len(s.records) }

// SearchImages matches every word of query against title and category.
// An empty query matches everything.
func (s *Static) SearchImages(ctx context.Context, query string, count int) ([]scene.ImageRecord, error) {
	terms := strings.Fields(strings.ToLower(query))
	return s.collect(ctx, count, func(r scene.ImageRecord) bool {
		hay := strings.ToLower(r.Title + " " + r.Category)
		for _, t := range terms {
			if !strings.Contains(hay, t) {
				return false
			}
		}
		return true
	})
}

func (s *Static) ImagesByCategory(ctx context.Context, category string, count int) ([]scene.ImageRecord, error) {
	return s.collect(ctx, count, func(r scene.ImageRecord) bool {
		return strings.EqualFold(r.Category, category)
	})
}

func (s *Static) collect(ctx context.Context, count int, match func(scene.ImageRecord) bool) ([]scene.ImageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []scene.ImageRecord
	for _, r := range s.records {
		if count > 0 && len(out) == count {
			break
		}
		if match(r) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoResults
	}
	return out, nil
}
