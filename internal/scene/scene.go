// Package scene describes a mood board composition: an ordered set of
// positioned image, text and shape elements on a fixed-size canvas.
package scene

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrInvalidCanvas   = errors.New("scene: canvas size must be positive")
	ErrMissingID       = errors.New("scene: element id is required")
	ErrDuplicateID     = errors.New("scene: duplicate element id")
	ErrInvalidOpacity  = errors.New("scene: opacity must be within [0,1]")
	ErrVariantMismatch = errors.New("scene: element type does not match its properties")
	ErrInvalidElement  = errors.New("scene: invalid element")
	ErrElementNotFound = errors.New("scene: element not found")
)

type Kind string

const (
	KindImage Kind = "image"
	KindText  Kind = "text"
	KindShape Kind = "shape"
)

type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
	ShapeLine      ShapeKind = "line"
)

// FitMode says how an image fills its box when the aspects differ.
type FitMode string

const (
	FitFill  FitMode = "fill"  // stretch to the box (default)
	FitCover FitMode = "cover" // crop to the box aspect, keeping proportions
)

// TextAlign anchors a text element horizontally on Position.X.
type TextAlign string

const (
	AlignLeft   TextAlign = "left" // default
	AlignCenter TextAlign = "center"
)

// Point is a top-left position in scene pixels.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

type ImageProps struct {
	Src  string  `json:"src" yaml:"src"`
	Size Size    `json:"size" yaml:"size"`
	Fit  FitMode `json:"fit,omitempty" yaml:"fit,omitempty"`
}

type TextProps struct {
	Text       string  `json:"text" yaml:"text"`
	FontSize   float64 `json:"fontSize" yaml:"fontSize"`
	FontFamily string    `json:"fontFamily,omitempty" yaml:"fontFamily,omitempty"`
	Color      string    `json:"color,omitempty" yaml:"color,omitempty"`
	Align      TextAlign `json:"align,omitempty" yaml:"align,omitempty"`
}

type ShapeProps struct {
	Kind        ShapeKind `json:"shapeKind" yaml:"shapeKind"`
	Size        Size      `json:"size" yaml:"size"`
	FillColor   string    `json:"fillColor,omitempty" yaml:"fillColor,omitempty"`
	StrokeColor string    `json:"strokeColor,omitempty" yaml:"strokeColor,omitempty"`
	StrokeWidth float64   `json:"strokeWidth,omitempty" yaml:"strokeWidth,omitempty"`
}

// Element is one visual item of a scene. Exactly one of Image, Text or Shape
// is set, matching Kind.
type Element struct {
	ID       string  `json:"id" yaml:"id"`
	Kind     Kind    `json:"type" yaml:"type"`
	Position Point   `json:"position" yaml:"position"`
	Rotation float64 `json:"rotation" yaml:"rotation"` // degrees, clockwise
	Opacity  float64 `json:"opacity" yaml:"opacity"`
	ZIndex   int     `json:"zIndex" yaml:"zIndex"`

	Image *ImageProps `json:"image,omitempty" yaml:"image,omitempty"`
	Text  *TextProps  `json:"text,omitempty" yaml:"text,omitempty"`
	Shape *ShapeProps `json:"shape,omitempty" yaml:"shape,omitempty"`
}

// NewImage returns a fully opaque image element.
func NewImage(id, src string, x, y, width, height float64) Element {
	return Element{
		ID:       id,
		Kind:     KindImage,
		Position: Point{X: x, Y: y},
		Opacity:  1,
		Image:    &ImageProps{Src: src, Size: Size{Width: width, Height: height}},
	}
}

// NewText returns a fully opaque text element.
func NewText(id, text string, x, y, fontSize float64, color string) Element {
	return Element{
		ID:       id,
		Kind:     KindText,
		Position: Point{X: x, Y: y},
		Opacity:  1,
		Text:     &TextProps{Text: text, FontSize: fontSize, Color: color},
	}
}

// NewShape returns a fully opaque shape element.
func NewShape(id string, kind ShapeKind, x, y, width, height float64, fill, stroke string, strokeWidth float64) Element {
	return Element{
		ID:       id,
		Kind:     KindShape,
		Position: Point{X: x, Y: y},
		Opacity:  1,
		Shape: &ShapeProps{
			Kind:        kind,
			Size:        Size{Width: width, Height: height},
			FillColor:   fill,
			StrokeColor: stroke,
			StrokeWidth: strokeWidth,
		},
	}
}

// Size reports the element box. Text elements have no intrinsic box and
// report zero; the renderer measures them.
func (e Element) Size() Size {
	switch {
	case e.Image != nil:
		return e.Image.Size
	case e.Shape != nil:
		return e.Shape.Size
	}
	return Size{}
}

func (e Element) clone() Element {
	c := e
	if e.Image != nil {
		img := *e.Image
		c.Image = &img
	}
	if e.Text != nil {
		txt := *e.Text
		c.Text = &txt
	}
	if e.Shape != nil {
		shp := *e.Shape
		c.Shape = &shp
	}
	return c
}

// Validate checks a single element independently of its scene.
func (e Element) Validate() error {
	if e.ID == "" {
		return ErrMissingID
	}
	if math.IsNaN(e.Opacity) || e.Opacity < 0 || e.Opacity > 1 {
		return fmt.Errorf("element %q: %w (got %v)", e.ID, ErrInvalidOpacity, e.Opacity)
	}
	if !finite(e.Rotation) {
		return fmt.Errorf("element %q: %w: rotation must be finite", e.ID, ErrInvalidElement)
	}
	if !finite(e.Position.X) || !finite(e.Position.Y) {
		return fmt.Errorf("element %q: %w: position must be finite", e.ID, ErrInvalidElement)
	}

	variants := 0
	for _, set := range []bool{e.Image != nil, e.Text != nil, e.Shape != nil} {
		if set {
			variants++
		}
	}
	if variants != 1 {
		return fmt.Errorf("element %q: %w", e.ID, ErrVariantMismatch)
	}

	switch e.Kind {
	case KindImage:
		if e.Image == nil {
			return fmt.Errorf("element %q: %w", e.ID, ErrVariantMismatch)
		}
		if e.Image.Src == "" {
			return fmt.Errorf("element %q: %w: image src is required", e.ID, ErrInvalidElement)
		}
		if !positive(e.Image.Size) {
			return fmt.Errorf("element %q: %w: image size must be positive", e.ID, ErrInvalidElement)
		}
		switch e.Image.Fit {
		case "", FitFill, FitCover:
		default:
			return fmt.Errorf("element %q: %w: unknown fit %q", e.ID, ErrInvalidElement, e.Image.Fit)
		}
	case KindText:
		if e.Text == nil {
			return fmt.Errorf("element %q: %w", e.ID, ErrVariantMismatch)
		}
		if !(e.Text.FontSize > 0) {
			return fmt.Errorf("element %q: %w: font size must be positive", e.ID, ErrInvalidElement)
		}
		if err := checkColor(e.Text.Color); err != nil {
			return fmt.Errorf("element %q: %w", e.ID, err)
		}
		switch e.Text.Align {
		case "", AlignLeft, AlignCenter:
		default:
			return fmt.Errorf("element %q: %w: unknown align %q", e.ID, ErrInvalidElement, e.Text.Align)
		}
	case KindShape:
		if e.Shape == nil {
			return fmt.Errorf("element %q: %w", e.ID, ErrVariantMismatch)
		}
		switch e.Shape.Kind {
		case ShapeRectangle, ShapeCircle:
			if !positive(e.Shape.Size) {
				return fmt.Errorf("element %q: %w: shape size must be positive", e.ID, ErrInvalidElement)
			}
		case ShapeLine:
			if e.Shape.Size.Width < 0 || e.Shape.Size.Height < 0 || e.Shape.Size.Width+e.Shape.Size.Height == 0 {
				return fmt.Errorf("element %q: %w: line needs a non-empty extent", e.ID, ErrInvalidElement)
			}
		default:
			return fmt.Errorf("element %q: %w: unknown shape %q", e.ID, ErrInvalidElement, e.Shape.Kind)
		}
		if e.Shape.StrokeWidth < 0 {
			return fmt.Errorf("element %q: %w: stroke width must not be negative", e.ID, ErrInvalidElement)
		}
		if err := checkColor(e.Shape.FillColor); err != nil {
			return fmt.Errorf("element %q: %w", e.ID, err)
		}
		if err := checkColor(e.Shape.StrokeColor); err != nil {
			return fmt.Errorf("element %q: %w", e.ID, err)
		}
	default:
		return fmt.Errorf("element %q: %w: unknown type %q", e.ID, ErrInvalidElement, e.Kind)
	}
	return nil
}

func positive(s Size) bool {
	return finite(s.Width) && finite(s.Height) && s.Width > 0 && s.Height > 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func checkColor(s string) error {
	if s == "" {
		return nil
	}
	_, err := ParseColor(s)
	return err
}

// Scene is a snapshot of a composition. The export pipeline treats it as
// read-only; callers that keep editing should hand over a Clone.
type Scene struct {
	Name            string    `json:"name,omitempty" yaml:"name,omitempty"`
	CanvasSize      Size      `json:"canvasSize" yaml:"canvasSize"`
	BackgroundColor string    `json:"backgroundColor,omitempty" yaml:"backgroundColor,omitempty"`
	Elements        []Element `json:"elements" yaml:"elements"`
}

func New(name string, width, height float64) *Scene {
	return &Scene{
		Name:       name,
		CanvasSize: Size{Width: width, Height: height},
		Elements:   []Element{},
	}
}

// Add appends elements in insertion order.
func (s *Scene) Add(elements ...Element) {
	s.Elements = append(s.Elements, elements...)
}

// Validate checks the canvas and every element, including id uniqueness.
func (s *Scene) Validate() error {
	if !positive(s.CanvasSize) {
		return ErrInvalidCanvas
	}
	if err := checkColor(s.BackgroundColor); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(s.Elements))
	for _, el := range s.Elements {
		if err := el.Validate(); err != nil {
			return err
		}
		if _, dup := seen[el.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateID, el.ID)
		}
		seen[el.ID] = struct{}{}
	}
	return nil
}

// SortedByZIndex returns the elements in paint order: ascending zIndex,
// ties kept in insertion order.
func (s *Scene) SortedByZIndex() []Element {
	sorted := make([]Element, len(s.Elements))
	copy(sorted, s.Elements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ZIndex < sorted[j].ZIndex
	})
	return sorted
}

// Clone returns a deep copy that shares nothing with s.
func (s *Scene) Clone() *Scene {
	c := *s
	c.Elements = make([]Element, len(s.Elements))
	for i, el := range s.Elements {
		c.Elements[i] = el.clone()
	}
	return &c
}

// PixelSize is the canvas size rounded up to whole pixels.
func (s *Scene) PixelSize() (width, height int) {
	return int(math.Ceil(s.CanvasSize.Width)), int(math.Ceil(s.CanvasSize.Height))
}

func (s *Scene) ImageCount() int {
	n := 0
	for _, el := range s.Elements {
		if el.Kind == KindImage {
			n++
		}
	}
	return n
}

func (s *Scene) index(id string) int {
	for i := range s.Elements {
		if s.Elements[i].ID == id {
			return i
		}
	}
	return -1
}
