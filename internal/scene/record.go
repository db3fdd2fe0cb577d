package scene

// ImageRecord is a photo found by the image discovery service. The export
// pipeline only reads it.
type ImageRecord struct {
	ID           string `json:"id" yaml:"id"`
	URL          string `json:"url" yaml:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty" yaml:"thumbnailUrl,omitempty"`
	Title        string `json:"title" yaml:"title"`
	Width        int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height       int    `json:"height,omitempty" yaml:"height,omitempty"`
	Category     string `json:"category,omitempty" yaml:"category,omitempty"`
}
