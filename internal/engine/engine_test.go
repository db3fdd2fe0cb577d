package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/moodboard/internal/delivery"
	"github.com/ivlev/moodboard/internal/dimension"
	"github.com/ivlev/moodboard/internal/encoder"
	"github.com/ivlev/moodboard/internal/loader"
	"github.com/ivlev/moodboard/internal/renderer"
	"github.com/ivlev/moodboard/internal/scene"
	"github.com/ivlev/moodboard/internal/source"
	"github.com/ivlev/moodboard/internal/system"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tile(w, h int, base uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: base, G: uint8(x * 4), B: uint8(y * 4), A: 255})
		}
	}
	return img
}

// tileLoader serves tiles for any src except those starting with "bad".
func tileLoader() loader.Loader {
	return loader.LoaderFunc(func(ctx context.Context, src string) (image.Image, error) {
		if len(src) >= 3 && src[:3] == "bad" {
			return nil, errors.New("host unreachable")
		}
		return tile(60, 40, uint8(len(src)*20)), nil
	})
}

type recorder struct {
	mu     sync.Mutex
	events []Progress
}

func (r *recorder) record(p Progress) {
	r.mu.Lock()
	r.events = append(r.events, p)
	r.mu.Unlock()
}

func (r *recorder) all() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.events...)
}

type fixture struct {
	exporter *Exporter
	sink     *delivery.MemorySink
	events   *recorder
}

func newFixture(t *testing.T, l loader.Loader) *fixture {
	t.Helper()
	sink := &delivery.MemorySink{}
	e, err := New(Options{
		Rasterizer: renderer.New(renderer.Options{Loader: l, Logger: quietLogger(), Workers: 4}),
		Sink:       sink,
		Logger:     quietLogger(),
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	rec := &recorder{}
	e.Subscribe(rec.record)
	return &fixture{exporter: e, sink: sink, events: rec}
}

func twoImageScene() *scene.Scene {
	s := scene.New("Two tiles", 600, 400)
	first := scene.NewImage("first", "https://img.example/a.jpg", 0, 0, 300, 200)
	first.ZIndex = 2
	second := scene.NewImage("second", "https://img.example/bb.jpg", 150, 100, 300, 200)
	second.ZIndex = 1
	s.Add(first, second)
	return s
}

func TestExportPNGOriginalSize(t *testing.T) {
	f := newFixture(t, tileLoader())

	res := f.exporter.Run(context.Background(), renderer.FromScene(twoImageScene()), Request{
		Format:     encoder.PNG,
		Quality:    dimension.QualityStandard,
		Dimensions: dimension.Original(),
		Metadata:   &encoder.Metadata{Title: "Autumn Palette"},
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, KindNone, res.ErrorKind)
	assert.Equal(t, dimension.Dimensions{Width: 600, Height: 400}, res.Dimensions)
	assert.Equal(t, dimension.Dimensions{Width: 900, Height: 600}, res.Pixels)
	assert.Greater(t, res.ByteSize, 1000)
	assert.Equal(t, "autumn-palette-2026-10-19.png", res.Filename)
	assert.NotEmpty(t, res.ExportID)

	files := f.sink.Files()
	require.Len(t, files, 1)
	assert.Equal(t, res.Filename, files[0].Name)
	assert.Equal(t, "image/png", files[0].MIMEType)
	assert.Len(t, files[0].Data, res.ByteSize)

	img, err := png.Decode(bytes.NewReader(files[0].Data))
	require.NoError(t, err)
	assert.Equal(t, 900, img.Bounds().Dx())

	// tile red is len(src)*20 mod 256: "first" 244, "second" 8. zIndex 1
	// is painted under zIndex 2 where they overlap.
	r, _, _, _ := img.At(300, 225).RGBA()
	assert.InDelta(t, 244, r>>8, 2)
	r, _, _, _ = img.At(600, 400).RGBA()
	assert.InDelta(t, 8, r>>8, 2)
}

func TestProgressIsMonotonicAndCompletes(t *testing.T) {
	f := newFixture(t, tileLoader())
	res := f.exporter.Run(context.Background(), renderer.FromScene(twoImageScene()), Request{Format: encoder.JPEG})
	require.True(t, res.Success, res.Message)

	events := f.events.all()
	require.NotEmpty(t, events)
	last := -1
	order := map[Stage]int{StagePreparing: 0, StageProcessing: 1, StageEncoding: 2, StagePackaging: 3, StageComplete: 4}
	lastStage := -1
	seen := map[Stage]bool{}
	for _, ev := range events {
		assert.Greater(t, ev.Percent, last)
		last = ev.Percent
		assert.GreaterOrEqual(t, order[ev.Stage], lastStage, "stage %s out of order", ev.Stage)
		lastStage = order[ev.Stage]
		assert.Equal(t, res.ExportID, ev.ExportID)
		seen[ev.Stage] = true
	}
	for stage := range order {
		assert.True(t, seen[stage], "stage %s not reported", stage)
	}
	final := events[len(events)-1]
	assert.Equal(t, StageComplete, final.Stage)
	assert.Equal(t, 100, final.Percent)
	assert.Equal(t, 10, events[0].Percent)
}

func TestJSONRoundTrip(t *testing.T) {
	f := newFixture(t, tileLoader())
	s := twoImageScene()
	s.Add(scene.NewText("caption", "Slow mornings", 20, 360, 24, "#333333"))

	meta := &encoder.Metadata{Title: "Slow Mornings", Author: "A. Writer"}
	res := f.exporter.Run(context.Background(), renderer.FromScene(s), Request{
		Format:     encoder.JSON,
		Quality:    dimension.QualityHigh,
		Dimensions: dimension.Template("pinterest"),
		Metadata:   meta,
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "slow-mornings-2026-10-19.json", res.Filename)

	files := f.sink.Files()
	require.Len(t, files, 1)
	doc, err := encoder.DecodeDocument(files[0].Data)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Version)
	assert.Equal(t, s.SortedByZIndex(), doc.Scene.Elements)
	assert.Equal(t, *meta, doc.Metadata)
	assert.True(t, fixedNow.Equal(doc.ExportDate))
}

func TestPartialImageFailures(t *testing.T) {
	f := newFixture(t, tileLoader())
	s := scene.New("board", 400, 200)
	s.Add(
		scene.NewImage("ok-1", "https://img.example/1.jpg", 0, 0, 100, 100),
		scene.NewImage("broken", "bad://nowhere", 100, 0, 100, 100),
		scene.NewImage("ok-2", "https://img.example/2.jpg", 200, 0, 100, 100),
	)

	res := f.exporter.Run(context.Background(), renderer.FromScene(s), Request{Format: encoder.PNG})
	require.True(t, res.Success, res.Message)
	assert.Greater(t, res.ByteSize, 0)
	assert.Equal(t, []string{"broken"}, res.SkippedImages)
	assert.Equal(t, 3, res.ImagesTotal)
}

func TestPanickingLoaderSkipsOnlyThatImage(t *testing.T) {
	base := tileLoader()
	f := newFixture(t, loader.LoaderFunc(func(ctx context.Context, src string) (image.Image, error) {
		if src == "https://img.example/a.jpg" {
			panic("decoder exploded")
		}
		return base.Load(ctx, src)
	}))

	res := f.exporter.Run(context.Background(), renderer.FromScene(twoImageScene()), Request{Format: encoder.PNG})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"first"}, res.SkippedImages)
	assert.Len(t, f.sink.Files(), 1)
	assert.False(t, f.exporter.Busy())
}

func TestAllImagesFailed(t *testing.T) {
	f := newFixture(t, tileLoader())
	s := scene.New("board", 400, 200)
	s.Add(
		scene.NewImage("a", "bad-1", 0, 0, 100, 100),
		scene.NewImage("b", "bad-2", 100, 0, 100, 100),
	)

	res := f.exporter.Run(context.Background(), renderer.FromScene(s), Request{Format: encoder.PNG})
	assert.False(t, res.Success)
	assert.Equal(t, KindAllImagesFailed, res.ErrorKind)
	assert.Empty(t, f.sink.Files())

	events := f.events.all()
	require.NotEmpty(t, events)
	assert.Equal(t, StageError, events[len(events)-1].Stage)
}

func TestUnsupportedWebP(t *testing.T) {
	f := newFixture(t, tileLoader())
	f.exporter.encoders.Unregister(encoder.WebP)
	require.False(t, f.exporter.IsFormatSupported(encoder.WebP))

	res := f.exporter.Run(context.Background(), renderer.FromScene(twoImageScene()), Request{Format: encoder.WebP})
	assert.False(t, res.Success)
	assert.Equal(t, KindUnsupportedFormat, res.ErrorKind)
	assert.Empty(t, f.sink.Files())
	assert.Empty(t, f.events.all())
}

func TestInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"negative custom width", Request{Format: encoder.PNG, Dimensions: dimension.Custom(-5, 100)}},
		{"oversized custom", Request{Format: encoder.PNG, Dimensions: dimension.Custom(100, 9000)}},
		{"unknown template", Request{Format: encoder.PNG, Dimensions: dimension.Template("myspace")}},
		{"unknown format", Request{Format: "gif"}},
		{"unknown quality", Request{Format: encoder.PNG, Quality: "ultra"}},
		{"bad background", Request{Format: encoder.PNG, Background: "not-a-color"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tileLoader())
			res := f.exporter.Run(context.Background(), renderer.FromScene(twoImageScene()), tt.req)
			assert.False(t, res.Success)
			assert.Equal(t, KindInvalidRequest, res.ErrorKind)
			assert.Empty(t, f.events.all(), "no progress for rejected requests")
			assert.Empty(t, f.sink.Files())
		})
	}

	f := newFixture(t, tileLoader())
	res := f.exporter.Run(context.Background(), nil, Request{Format: encoder.PNG})
	assert.Equal(t, KindInvalidRequest, res.ErrorKind)

	// The original size is bounded before any stage starts.
	wide := scene.New("wide", 9000, 400)
	wide.Add(scene.NewShape("bar", scene.ShapeRectangle, 0, 0, 9000, 400, "#264653", "", 0))
	f = newFixture(t, tileLoader())
	res = f.exporter.Run(context.Background(), renderer.FromScene(wide), Request{Format: encoder.PNG})
	assert.Equal(t, KindInvalidRequest, res.ErrorKind)
	assert.Contains(t, res.Message, "exceeds 8000")
	assert.Empty(t, f.events.all())
}

func TestTemplateAndCustomDimensions(t *testing.T) {
	f := newFixture(t, tileLoader())
	src := renderer.FromScene(twoImageScene())

	res := f.exporter.Run(context.Background(), src, Request{
		Format:     encoder.JPEG,
		Quality:    dimension.QualityCompressed,
		Dimensions: dimension.Template("instagram-post"),
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, dimension.Dimensions{Width: 1080, Height: 1080}, res.Dimensions)
	assert.Equal(t, dimension.Dimensions{Width: 1080, Height: 1080}, res.Pixels)

	res = f.exporter.Run(context.Background(), src, Request{
		Format:     encoder.PDF,
		Quality:    dimension.QualityHigh,
		Dimensions: dimension.Custom(300, 200),
		Metadata:   &encoder.Metadata{Title: "Deck", Description: "Second page"},
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, dimension.Dimensions{Width: 300, Height: 200}, res.Dimensions)
	assert.Equal(t, dimension.Dimensions{Width: 600, Height: 400}, res.Pixels)
	assert.Equal(t, "deck-2026-10-19.pdf", res.Filename)
	assert.Equal(t, "application/pdf", res.MIMEType)
}

// blockingLoader parks every fetch until its context ends.
func blockingLoader(started chan<- struct{}) loader.Loader {
	var once sync.Once
	return loader.LoaderFunc(func(ctx context.Context, src string) (image.Image, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func TestCancelMidExport(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, blockingLoader(started))

	done := make(chan Result, 1)
	go func() {
		done <- f.exporter.Run(context.Background(), renderer.FromScene(twoImageScene()), Request{Format: encoder.PNG})
	}()

	<-started
	assert.True(t, f.exporter.Busy())
	f.exporter.Cancel()

	var res Result
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("export did not stop after cancel")
	}
	assert.False(t, res.Success)
	assert.Equal(t, KindCancelled, res.ErrorKind)
	assert.Equal(t, "cancelled", res.Message)
	assert.Empty(t, f.sink.Files())
	assert.False(t, f.exporter.Busy())

	events := f.events.all()
	require.NotEmpty(t, events)
	final := events[len(events)-1]
	assert.Equal(t, StageError, final.Stage)
	assert.Equal(t, "cancelled", final.Message)
	for _, ev := range events[:len(events)-1] {
		assert.NotEqual(t, StageError, ev.Stage)
		assert.NotEqual(t, StageComplete, ev.Stage)
	}

	f.exporter.Cancel() // idle cancel is a no-op
}

func TestSecondExportIsRejected(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, blockingLoader(started))

	done := make(chan Result, 1)
	go func() {
		done <- f.exporter.Run(context.Background(), renderer.FromScene(twoImageScene()), Request{Format: encoder.PNG})
	}()
	<-started

	second := f.exporter.Run(context.Background(), renderer.FromScene(twoImageScene()), Request{Format: encoder.JSON})
	assert.False(t, second.Success)
	assert.Equal(t, KindExportInProgress, second.ErrorKind)

	f.exporter.Cancel()
	first := <-done
	assert.Equal(t, KindCancelled, first.ErrorKind)

	third := f.exporter.Run(context.Background(), renderer.FromScene(twoImageScene()), Request{Format: encoder.JSON})
	assert.True(t, third.Success, third.Message)
}

func TestCallerContextCancellation(t *testing.T) {
	f := newFixture(t, tileLoader())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.exporter.Run(ctx, renderer.FromScene(twoImageScene()), Request{Format: encoder.PNG})
	assert.Equal(t, KindCancelled, res.ErrorKind)
	assert.Empty(t, f.sink.Files())
}

func TestDeliveryFailure(t *testing.T) {
	e, err := New(Options{
		Rasterizer: renderer.New(renderer.Options{Loader: tileLoader(), Logger: quietLogger()}),
		Sink: delivery.SinkFunc(func(ctx context.Context, data []byte, filename, mimeType string) error {
			return errors.New("disk full")
		}),
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	res := e.Run(context.Background(), renderer.FromScene(twoImageScene()), Request{Format: encoder.JPEG})
	assert.False(t, res.Success)
	assert.Equal(t, KindDeliveryFailure, res.ErrorKind)
	assert.Contains(t, res.Message, "disk full")
}

type panicEncoder struct{}

func (panicEncoder) Encode(w io.Writer, img image.Image, opts encoder.Options) error {
	panic("codec exploded")
}

func TestEncoderPanicBecomesEncodingFailure(t *testing.T) {
	f := newFixture(t, tileLoader())
	f.exporter.encoders.Register(encoder.PNG, panicEncoder{})

	res := f.exporter.Run(context.Background(), renderer.FromScene(twoImageScene()), Request{Format: encoder.PNG})
	assert.False(t, res.Success)
	assert.Equal(t, KindEncodingFailure, res.ErrorKind)
	assert.False(t, f.exporter.Busy())
}

func TestSurfaceExport(t *testing.T) {
	f := newFixture(t, tileLoader())
	surface := source.NewImageSurface(tile(320, 240, 90))
	src := renderer.FromSurface(surface)

	res := f.exporter.Run(context.Background(), src, Request{Format: encoder.PNG, Quality: dimension.QualityCompressed})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, dimension.Dimensions{Width: 320, Height: 240}, res.Dimensions)
	assert.Equal(t, "mood-board-2026-10-19.png", res.Filename)

	res = f.exporter.Run(context.Background(), src, Request{Format: encoder.JSON})
	assert.Equal(t, KindUnsupportedFormat, res.ErrorKind)
}

func TestSceneWithoutImages(t *testing.T) {
	f := newFixture(t, tileLoader())
	s := scene.New("Shapes only", 200, 200)
	s.Add(scene.NewShape("dot", scene.ShapeCircle, 50, 50, 100, 100, "#e63946", "", 0))

	res := f.exporter.Run(context.Background(), renderer.FromScene(s), Request{Format: encoder.PNG, Watermark: true})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 0, res.ImagesTotal)
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t, tileLoader())
	var count int
	unsubscribe := f.exporter.Subscribe(func(Progress) { count++ })
	unsubscribe()

	res := f.exporter.Run(context.Background(), renderer.FromScene(twoImageScene()), Request{Format: encoder.JSON})
	require.True(t, res.Success)
	assert.Zero(t, count)
	assert.NotEmpty(t, f.events.all())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("wrap: %w", ErrCancelled), KindCancelled},
		{context.DeadlineExceeded, KindCancelled},
		{fmt.Errorf("%w: %w", ErrInvalidRequest, dimension.ErrInvalidDimensions), KindInvalidRequest},
		{fmt.Errorf("x: %w", encoder.ErrUnsupportedFormat), KindUnsupportedFormat},
		{renderer.ErrAllImagesFailed, KindAllImagesFailed},
		{fmt.Errorf("guard: %w", system.ErrInsufficientMemory), KindResourceExhausted},
		{fmt.Errorf("%w: boom", ErrDelivery), KindDeliveryFailure},
		{ErrInProgress, KindExportInProgress},
		{errors.New("anything else"), KindEncodingFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.err), "%v", tt.err)
	}
}

func TestNewRequiresSink(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNoSink)
}

func TestInvalidSceneIsRejected(t *testing.T) {
	f := newFixture(t, tileLoader())
	s := twoImageScene()
	s.Elements[0].Opacity = 1.5

	res := f.exporter.Run(context.Background(), renderer.FromScene(s), Request{Format: encoder.PNG})
	assert.Equal(t, KindInvalidRequest, res.ErrorKind)
	assert.Contains(t, res.Message, "opacity")
	assert.Empty(t, f.events.all())

	lost := scene.New("board", 200, 200)
	lost.Add(scene.NewShape("box", scene.ShapeRectangle, math.NaN(), math.Inf(1), 50, 50, "#000000", "", 0))
	res = f.exporter.Run(context.Background(), renderer.FromScene(lost), Request{Format: encoder.PNG})
	assert.Equal(t, KindInvalidRequest, res.ErrorKind)
	assert.Contains(t, res.Message, "position")
	assert.Empty(t, f.sink.Files())
}
