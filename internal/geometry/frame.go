package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
)

var (
	// ErrGeometryUnavailable is returned when the guide frame has not been measured yet
	ErrGeometryUnavailable = errors.New("capture frame not measured")

	// ErrInvalidScreen is returned when the viewport or photo dimensions cannot produce a scale
	ErrInvalidScreen = errors.New("invalid screen or photo dimensions")
)

// DefaultChrome returns the heights drawn above the guide in the scanning
// screen: top bar, button, margin. Each call returns a new slice.
func DefaultChrome() []float64 {
	return []float64{10, 35, 16}
}

// CaptureFrame is the on-screen guide rectangle in logical units
type CaptureFrame struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the frame has a usable size
func (f CaptureFrame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && f.X >= 0 && f.Y >= 0
}

// ScreenContext describes the viewport at the moment of capture
type ScreenContext struct {
	ViewportWidth float64   `json:"viewport_width"`
	SafeAreaTop   float64   `json:"safe_area_top"`
	Chrome        []float64 `json:"chrome,omitempty"`
}

// VerticalOffset is the distance between the top of the viewport and the guide's layout origin
func (s ScreenContext) VerticalOffset() float64 {
	offset := s.SafeAreaTop
	for _, h := range s.Chrome {
		offset += h
	}
	return offset
}

// CropRect is a region of the full-resolution photo in pixel units
type CropRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rectangle rounds the crop to whole pixels and clamps it to bounds
func (c CropRect) Rectangle(bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		int(math.Round(c.X)),
		int(math.Round(c.Y)),
		int(math.Round(c.X+c.Width)),
		int(math.Round(c.Y+c.Height)),
	).Add(bounds.Min)
	return r.Intersect(bounds)
}

// ComputeCrop translates the guide frame into photo pixel coordinates.
// The camera preview fills the viewport edge to edge, so a single horizontal
// scale applies to both axes.
func ComputeCrop(frame *CaptureFrame, photo image.Point, screen ScreenContext) (CropRect, error) {
	if frame == nil {
		return CropRect{}, ErrGeometryUnavailable
	}
	if screen.ViewportWidth <= 0 || photo.X <= 0 || photo.Y <= 0 {
		return CropRect{}, fmt.Errorf("%w: viewport %.2f, photo %dx%d", ErrInvalidScreen, screen.ViewportWidth, photo.X, photo.Y)
	}

	scale := float64(photo.X) / screen.ViewportWidth
	return CropRect{
		X:      frame.X * scale,
		Y:      (frame.Y + screen.VerticalOffset()) * scale,
		Width:  frame.Width * scale,
		Height: frame.Height * scale,
	}, nil
}
