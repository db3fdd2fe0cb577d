package encoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ivlev/moodboard/internal/scene"
)

// DocumentVersion tags the JSON export layout. Readers reject other major
// versions.
const DocumentVersion = "1.0.0"

var ErrUnsupportedVersion = errors.New("encoder: unsupported document version")

// Document is the JSON export: the scene itself, not a raster.
type Document struct {
	Version    string       `json:"version"`
	Metadata   Metadata     `json:"metadata"`
	Scene      *scene.Scene `json:"scene"`
	ExportDate time.Time    `json:"exportDate"`
}

// EncodeDocument serializes s with its elements in paint order.
func EncodeDocument(s *scene.Scene, meta Metadata, exportDate time.Time) ([]byte, error) {
	snap := s.Clone()
	snap.Elements = snap.SortedByZIndex()

	doc := Document{
		Version:    DocumentVersion,
		Metadata:   meta,
		Scene:      snap,
		ExportDate: exportDate.UTC(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrEncoding, err)
	}
	return data, nil
}

// DecodeDocument parses a JSON export and validates its scene.
func DecodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encoder: parse document: %w", err)
	}
	if major(doc.Version) != major(DocumentVersion) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, doc.Version)
	}
	if doc.Scene == nil {
		return nil, fmt.Errorf("encoder: document has no scene")
	}
	if err := doc.Scene.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func major(v string) string {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}
