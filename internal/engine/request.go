package engine

import (
	"errors"
	"time"

	"github.com/ivlev/moodboard/internal/dimension"
	"github.com/ivlev/moodboard/internal/encoder"
)

var (
	ErrInvalidRequest = errors.New("engine: invalid export request")
	ErrInProgress     = errors.New("engine: an export is already running")
	ErrCancelled      = errors.New("engine: export cancelled")
	ErrDelivery       = errors.New("engine: delivery failed")
	ErrNoSink         = errors.New("engine: no delivery sink configured")
)

// Request is one export call. It is read once at Run and not retained.
type Request struct {
	Format     encoder.Format
	Quality    dimension.Quality // empty means standard
	Dimensions dimension.Spec    // zero value means original
	Metadata   *encoder.Metadata
	Background string // empty falls back to the scene, then the configured default
	Watermark  bool
}

type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindInvalidRequest    ErrorKind = "InvalidRequest"
	KindUnsupportedFormat ErrorKind = "UnsupportedFormat"
	KindAllImagesFailed   ErrorKind = "AllImagesFailed"
	KindEncodingFailure   ErrorKind = "EncodingFailure"
	KindCancelled         ErrorKind = "Cancelled"
	KindDeliveryFailure   ErrorKind = "DeliveryFailure"
	KindExportInProgress  ErrorKind = "ExportInProgress"
	KindResourceExhausted ErrorKind = "ResourceExhausted"
)

// Timings records how long each stage took.
type Timings struct {
	Prepare time.Duration
	Process time.Duration
	Encode  time.Duration
	Deliver time.Duration
	Total   time.Duration
}

// Result is the terminal outcome of one Run. Every call returns exactly one.
type Result struct {
	ExportID   string
	Success    bool
	Format     encoder.Format
	ByteSize   int
	Dimensions dimension.Dimensions // resolved size at density 1
	Pixels     dimension.Dimensions // size of the encoded raster
	Filename   string
	MIMEType   string
	ErrorKind  ErrorKind
	Message    string

	ImagesTotal   int
	SkippedImages []string
	Timings       Timings
}
