package dimension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/moodboard/internal/config"
)

func newResolver() *Resolver {
	return NewResolver(config.DefaultPresets())
}

func TestResolveTemplateIsPure(t *testing.T) {
	r := newResolver()

	first, err := r.Resolve(Template("instagram-story"), Dimensions{Width: 10, Height: 10})
	require.NoError(t, err)
	second, err := r.Resolve(Template("instagram-story"), Dimensions{Width: 600, Height: 400})
	require.NoError(t, err)

	assert.Equal(t, Dimensions{Width: 1080, Height: 1920}, first)
	assert.Equal(t, first, second)
}

func TestResolve(t *testing.T) {
	r := newResolver()
	intrinsic := Dimensions{Width: 600, Height: 400}

	tests := []struct {
		name    string
		spec    Spec
		want    Dimensions
		wantErr error
	}{
		{"original", Original(), intrinsic, nil},
		{"custom passes through", Custom(1234, 567), Dimensions{Width: 1234, Height: 567}, nil},
		{"custom at limit", Custom(8000, 8000), Dimensions{Width: 8000, Height: 8000}, nil},
		{"negative width", Custom(-5, 100), Dimensions{}, ErrInvalidDimensions},
		{"zero height", Custom(100, 0), Dimensions{}, ErrInvalidDimensions},
		{"too wide", Custom(8001, 100), Dimensions{}, ErrInvalidDimensions},
		{"unknown template", Template("myspace"), Dimensions{}, ErrUnknownTemplate},
		{"unknown mode", Spec{Mode: "stretch"}, Dimensions{}, ErrInvalidDimensions},
		{"pinterest", Template("pinterest"), Dimensions{Width: 1000, Height: 1500}, nil},
		{"twitter", Template("twitter"), Dimensions{Width: 1200, Height: 675}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.spec, intrinsic)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveOriginalNeedsSize(t *testing.T) {
	_, err := newResolver().Resolve(Original(), Dimensions{})
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestQualityTable(t *testing.T) {
	r := newResolver()

	tests := []struct {
		quality Quality
		density float64
		lossy   int
		png     float64
		pdf     bool
	}{
		{QualityHigh, 2.0, 95, 1.0, false},
		{QualityStandard, 1.5, 85, 0.9, true},
		{QualityCompressed, 1.0, 70, 0.8, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.quality), func(t *testing.T) {
			s, err := r.Quality(tt.quality)
			require.NoError(t, err)
			assert.Equal(t, tt.density, s.Density)
			assert.Equal(t, tt.lossy, s.JPEGQuality())
			assert.Equal(t, tt.png, s.PNGQuality)
			assert.Equal(t, tt.pdf, s.PDFCompression)
		})
	}

	_, err := r.Quality("ultra")
	assert.ErrorIs(t, err, ErrUnknownQuality)
}

func TestTemplatesSorted(t *testing.T) {
	names := newResolver().Templates()
	assert.Equal(t, []string{"facebook", "instagram-post", "instagram-story", "linkedin", "pinterest", "twitter"}, names)
}
