package scene

import (
	"fmt"
	"math"
)

// Mutation is an edit message produced by the interactive canvas.
type Mutation interface {
	Target() string
	apply(*Element) error
}

type Move struct {
	ID       string
	Position Point
}

type Resize struct {
	ID   string
	Size Size
}

type Rotate struct {
	ID      string
	Degrees float64
}

type SetOpacity struct {
	ID      string
	Opacity float64
}

func (m Move) Target() string       { return m.ID }
func (m Resize) Target() string     { return m.ID }
func (m Rotate) Target() string     { return m.ID }
func (m SetOpacity) Target() string { return m.ID }

func (m Move) apply(e *Element) error {
	if !finite(m.Position.X) || !finite(m.Position.Y) {
		return fmt.Errorf("%w: position must be finite", ErrInvalidElement)
	}
	e.Position = m.Position
	return nil
}

func (m Resize) apply(e *Element) error {
	if !positive(m.Size) {
		return fmt.Errorf("%w: size must be positive", ErrInvalidElement)
	}
	switch {
	case e.Image != nil:
		e.Image.Size = m.Size
	case e.Shape != nil:
		e.Shape.Size = m.Size
	default:
		return fmt.Errorf("%w: %s elements cannot be resized", ErrInvalidElement, e.Kind)
	}
	return nil
}

func (m Rotate) apply(e *Element) error {
	if !finite(m.Degrees) {
		return fmt.Errorf("%w: rotation must be finite", ErrInvalidElement)
	}
	d := math.Mod(m.Degrees, 360)
	if d < 0 {
		d += 360
	}
	e.Rotation = d
	return nil
}

func (m SetOpacity) apply(e *Element) error {
	if math.IsNaN(m.Opacity) || m.Opacity < 0 || m.Opacity > 1 {
		return fmt.Errorf("%w (got %v)", ErrInvalidOpacity, m.Opacity)
	}
	e.Opacity = m.Opacity
	return nil
}

// Apply performs one edit. The element is left untouched on error.
func (s *Scene) Apply(m Mutation) error {
	i := s.index(m.Target())
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrElementNotFound, m.Target())
	}
	el := s.Elements[i].clone()
	if err := m.apply(&el); err != nil {
		return fmt.Errorf("element %q: %w", m.Target(), err)
	}
	s.Elements[i] = el
	return nil
}
