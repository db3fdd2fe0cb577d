// Package engine runs exports: it validates a request, drives the stages
// (prepare, process, encode, package), reports progress, honours
// cancellation and hands the named result to a delivery sink.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ivlev/moodboard/internal/config"
	"github.com/ivlev/moodboard/internal/delivery"
	"github.com/ivlev/moodboard/internal/dimension"
	"github.com/ivlev/moodboard/internal/encoder"
	"github.com/ivlev/moodboard/internal/renderer"
	"github.com/ivlev/moodboard/internal/scene"
	"github.com/ivlev/moodboard/internal/system"
	"github.com/ivlev/moodboard/internal/telemetry"
)

type Options struct {
	Resolver          *dimension.Resolver
	Rasterizer        *renderer.Rasterizer
	Encoders          *encoder.Registry
	Sink              delivery.Sink
	Logger            *slog.Logger
	DefaultBackground string
	Now               func() time.Time

	// Nil providers fall back to the global ones set by telemetry.Init.
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Exporter runs at most one export at a time; a second Run while one is in
// flight returns ExportInProgress immediately.
type Exporter struct {
	resolver   *dimension.Resolver
	rasterizer *renderer.Rasterizer
	encoders   *encoder.Registry
	sink       delivery.Sink
	logger     *slog.Logger
	defaultBg  string
	now        func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelCauseFunc

	subMu   sync.Mutex
	subs    map[int]func(Progress)
	nextSub int

	tracer   trace.Tracer
	exports  metric.Int64Counter
	duration metric.Float64Histogram
	size     metric.Int64Histogram
}

func New(opts Options) (*Exporter, error) {
	if opts.Sink == nil {
		return nil, ErrNoSink
	}
	e := &Exporter{
		resolver:   opts.Resolver,
		rasterizer: opts.Rasterizer,
		encoders:   opts.Encoders,
		sink:       opts.Sink,
		logger:     opts.Logger,
		defaultBg:  opts.DefaultBackground,
		now:        opts.Now,
		subs:       make(map[int]func(Progress)),
	}
	if e.resolver == nil {
		e.resolver = dimension.NewResolver(config.DefaultPresets())
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.rasterizer == nil {
		e.rasterizer = renderer.New(renderer.Options{Logger: e.logger})
	}
	if e.encoders == nil {
		e.encoders = encoder.NewRegistry()
	}
	if e.now == nil {
		e.now = time.Now
	}

	e.tracer = telemetry.Tracer(opts.TracerProvider, "moodboard/engine")
	meter := telemetry.Meter(opts.MeterProvider, "moodboard/engine")
	e.exports, _ = meter.Int64Counter("moodboard.exports",
		metric.WithDescription("Finished exports by format and outcome"),
	)
	e.duration, _ = meter.Float64Histogram("moodboard.export.duration",
		metric.WithDescription("Wall time of an export (ms)"),
		metric.WithUnit("ms"),
	)
	e.size, _ = meter.Int64Histogram("moodboard.export.size",
		metric.WithDescription("Encoded artifact size"),
		metric.WithUnit("By"),
	)
	return e, nil
}

// Subscribe registers fn for progress events of every export. Calls are
// synchronous and never concurrent for one export, but image-loading events
// arrive on worker goroutines rather than the one calling Run.
func (e *Exporter) Subscribe(fn func(Progress)) (unsubscribe func()) {
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

func (e *Exporter) broadcast(p Progress) {
	e.subMu.Lock()
	fns := make([]func(Progress), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

// IsFormatSupported reports whether this build can produce f.
func (e *Exporter) IsFormatSupported(f encoder.Format) bool {
	return f.Valid() && e.encoders.Supports(f)
}

// Busy reports whether an export is in flight.
func (e *Exporter) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Cancel aborts the running export, if any.
func (e *Exporter) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel(ErrCancelled)
	}
}

func (e *Exporter) acquire(parent context.Context) (context.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil, false
	}
	ctx, cancel := context.WithCancelCause(parent)
	e.running = true
	e.cancel = cancel
	return ctx, true
}

func (e *Exporter) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel(nil)
	}
	e.cancel = nil
	e.running = false
}

// plan is a validated request.
type plan struct {
	format     encoder.Format
	settings   dimension.Settings
	dims       dimension.Dimensions
	background *color.NRGBA
	metadata   encoder.Metadata
	watermark  bool
}

// Run exports src as described by req. It never panics and always returns
// a Result; on failure nothing is delivered.
func (e *Exporter) Run(ctx context.Context, src renderer.Source, req Request) Result {
	start := e.now()
	res := Result{ExportID: uuid.NewString(), Format: req.Format}

	ctx, span := e.tracer.Start(ctx, "moodboard.export", trace.WithAttributes(
		attribute.String("export.id", res.ExportID),
		attribute.String("export.format", string(req.Format)),
	))
	defer span.End()

	p, err := e.validate(src, req)
	if err != nil {
		return e.finish(ctx, span, res, err, start)
	}

	runCtx, ok := e.acquire(ctx)
	if !ok {
		return e.finish(ctx, span, res, ErrInProgress, start)
	}
	defer e.release()

	rep := newReporter(runCtx, res.ExportID, func(ev Progress) {
		span.AddEvent(string(ev.Stage), trace.WithAttributes(attribute.Int("percent", ev.Percent)))
		e.broadcast(ev)
	})
	res, err = e.pipeline(runCtx, rep, src, p, res)
	if err != nil {
		kind := classify(err)
		msg := err.Error()
		if kind == KindCancelled {
			msg = "cancelled"
		}
		rep.fail(msg, string(kind))
	}
	return e.finish(ctx, span, res, err, start)
}

func (e *Exporter) validate(src renderer.Source, req Request) (plan, error) {
	var p plan
	if src == nil {
		return p, fmt.Errorf("%w: no source", ErrInvalidRequest)
	}
	if !req.Format.Valid() {
		return p, fmt.Errorf("%w: unknown format %q", ErrInvalidRequest, req.Format)
	}
	if ss, ok := src.(*renderer.SceneSource); ok {
		if err := ss.Scene().Validate(); err != nil {
			return p, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	quality := req.Quality
	if quality == "" {
		quality = dimension.QualityStandard
	}
	settings, err := e.resolver.Quality(quality)
	if err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	dims := req.Dimensions
	if dims.Mode == "" {
		dims = dimension.Original()
	}
	w, h := src.Size()
	resolved, err := e.resolver.Resolve(dims, dimension.Dimensions{Width: w, Height: h})
	if err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	bg, err := e.background(src, req.Background)
	if err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	p = plan{
		format:     req.Format,
		settings:   settings,
		dims:       resolved,
		background: bg,
		watermark:  req.Watermark,
	}
	if req.Metadata != nil {
		p.metadata = *req.Metadata
		p.metadata.Tags = append([]string(nil), req.Metadata.Tags...)
	}

	if !e.IsFormatSupported(p.format) {
		return p, fmt.Errorf("%w: %s is not available in this build", encoder.ErrUnsupportedFormat, p.format)
	}
	if _, isScene := src.(*renderer.SceneSource); p.format == encoder.JSON && !isScene {
		return p, fmt.Errorf("%w: json needs a scene, not a captured surface", encoder.ErrUnsupportedFormat)
	}
	return p, nil
}

func (e *Exporter) background(src renderer.Source, requested string) (*color.NRGBA, error) {
	value := requested
	if value == "" {
		if ss, ok := src.(*renderer.SceneSource); ok {
			value = ss.Scene().BackgroundColor
		}
	}
	if value == "" {
		value = e.defaultBg
	}
	if value == "" {
		return nil, nil
	}
	c, err := scene.ParseColor(value)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (e *Exporter) pipeline(ctx context.Context, rep *reporter, src renderer.Source, p plan, res Result) (out Result, err error) {
	out = res
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("export panicked", "export_id", res.ExportID, "panic", r)
			err = fmt.Errorf("%w: internal error: %v", encoder.ErrEncoding, r)
		}
	}()

	mark := e.now()
	lap := func() time.Duration {
		now := e.now()
		d := now.Sub(mark)
		mark = now
		return d
	}

	rep.report(StagePreparing, 10, "Preparing export...", p.format.Extension())
	dims := p.dims
	out.Dimensions = dims
	out.ImagesTotal = src.ImageCount()
	out.Timings.Prepare = lap()
	if err := checkpoint(ctx); err != nil {
		return out, err
	}

	var data []byte
	if p.format == encoder.JSON {
		ss := src.(*renderer.SceneSource)
		rep.report(StageProcessing, 30, "Serializing scene...", "")
		out.Timings.Process = lap()
		if err := checkpoint(ctx); err != nil {
			return out, err
		}

		rep.report(StageEncoding, 60, "Encoding JSON...", "")
		data, err = encoder.EncodeDocument(ss.Scene(), p.metadata, e.now())
		if err != nil {
			return out, err
		}
	} else {
		raster, err := e.rasterize(ctx, rep, src, p, dims)
		if err != nil {
			return out, err
		}
		defer raster.Release()
		b := raster.Image.Bounds()
		out.Pixels = dimension.Dimensions{Width: b.Dx(), Height: b.Dy()}
		out.SkippedImages = raster.Stats.Skipped
		out.Timings.Process = lap()
		if err := checkpoint(ctx); err != nil {
			return out, err
		}

		rep.report(StageEncoding, 60, fmt.Sprintf("Encoding %s...", p.format.Extension()), "")
		meta := p.metadata
		if meta.Date.IsZero() {
			meta.Date = e.now()
		}
		data, err = e.encoders.Encode(p.format, raster.Image, encoder.Options{
			Settings: p.settings,
			Width:    dims.Width,
			Height:   dims.Height,
			Metadata: meta,
		})
		if err != nil {
			return out, err
		}
	}
	rep.report(StageEncoding, 70, "Encoded", fmt.Sprintf("%d bytes", len(data)))
	out.Timings.Encode = lap()
	if err := checkpoint(ctx); err != nil {
		return out, err
	}

	filename := Filename(p.metadata.Title, p.format, e.now())
	rep.report(StagePackaging, 90, "Saving "+filename, "")
	if err := e.sink.Deliver(ctx, data, filename, p.format.MIMEType()); err != nil {
		if ctx.Err() != nil {
			return out, context.Cause(ctx)
		}
		return out, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	out.Timings.Deliver = lap()

	out.Success = true
	out.ByteSize = len(data)
	out.Filename = filename
	out.MIMEType = p.format.MIMEType()
	rep.report(StageComplete, 100, "Export complete", filename)
	return out, nil
}

func (e *Exporter) rasterize(ctx context.Context, rep *reporter, src renderer.Source, p plan, dims dimension.Dimensions) (*renderer.Raster, error) {
	total := src.ImageCount()
	detail := ""
	if total > 0 {
		detail = fmt.Sprintf("%d images", total)
	}
	rep.report(StageProcessing, 30, "Rendering board...", detail)

	target := renderer.Target{
		Width:     dims.Width,
		Height:    dims.Height,
		Density:   p.settings.Density,
		Watermark: p.watermark,
	}
	if p.background != nil {
		target.Background = *p.background
	}
	return e.rasterizer.Rasterize(ctx, src, target, func(done, total int) {
		rep.report(StageProcessing, 30+20*done/total, "Loading images...", fmt.Sprintf("%d/%d", done, total))
	})
}

func checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

// finish logs, records metrics and fills the failure fields of res.
func (e *Exporter) finish(ctx context.Context, span trace.Span, res Result, err error, start time.Time) Result {
	res.Timings.Total = e.now().Sub(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(classify(err)))
		res.Success = false
		res.ErrorKind = classify(err)
		res.Message = err.Error()
		if res.ErrorKind == KindCancelled {
			res.Message = "cancelled"
		}
		e.logger.Warn("export failed",
			"export_id", res.ExportID,
			"format", string(res.Format),
			"kind", string(res.ErrorKind),
			"error", err,
		)
	} else {
		e.logger.Info("export complete",
			"export_id", res.ExportID,
			"format", string(res.Format),
			"file", res.Filename,
			"bytes", res.ByteSize,
			"skipped", len(res.SkippedImages),
			"duration", res.Timings.Total,
		)
		e.size.Record(ctx, int64(res.ByteSize), metric.WithAttributes(attribute.String("format", string(res.Format))))
		span.SetAttributes(attribute.Int("export.bytes", res.ByteSize), attribute.String("export.file", res.Filename))
	}

	outcome := "success"
	if !res.Success {
		outcome = string(res.ErrorKind)
	}
	attrs := metric.WithAttributes(
		attribute.String("format", string(res.Format)),
		attribute.String("outcome", outcome),
	)
	e.exports.Add(ctx, 1, attrs)
	e.duration.Record(ctx, float64(res.Timings.Total.Milliseconds()), attrs)
	return res
}

// classify maps a pipeline error onto the kinds reported to callers.
func classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInProgress):
		return KindExportInProgress
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, encoder.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, renderer.ErrAllImagesFailed):
		return KindAllImagesFailed
	case errors.Is(err, system.ErrInsufficientMemory):
		return KindResourceExhausted
	case errors.Is(err, ErrDelivery):
		return KindDeliveryFailure
	}
	return KindEncodingFailure
}
