// Package geom provides the pixel-space geometry shared by the detection,
// tracking and zone packages: axis-aligned rectangles, points and the
// similarity measures used for track association.
package geom

import (
	"image"
	"math"
)

// Rectangle is an axis-aligned bounding box in pixel coordinates.
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// NewRect creates a Rectangle from its top-left corner and size.
func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{X: x, Y: y, Width: width, Height: height}
}

// NewRectFrom converts a stdlib image.Rectangle.
func NewRectFrom(rect image.Rectangle) Rectangle {
	return Rectangle{
		X:      float64(rect.Min.X),
		Y:      float64(rect.Min.Y),
		Width:  float64(rect.Dx()),
		Height: float64(rect.Dy()),
	}
}

// Center returns the rectangle's center point.
func (r Rectangle) Center() Point {
	return Point{X: r.X + r.Width/2.0, Y: r.Y + r.Height/2.0}
}

// BottomCenter returns the bottom-center of the rectangle lifted by
// offset*Height. With offset 0 this is the exact bottom edge midpoint.
// Person boxes use a small offset so the reference point lands on the feet
// rather than the shadow below them.
func (r Rectangle) BottomCenter(offset float64) Point {
	return Point{
		X: r.X + r.Width/2.0,
		Y: r.Y + r.Height - r.Height*offset,
	}
}

// Diagonal returns the length of the rectangle's diagonal.
func (r Rectangle) Diagonal() float64 {
	return math.Sqrt(r.Width*r.Width + r.Height*r.Height)
}

// Scale returns the rectangle with all coordinates multiplied by f.
func (r Rectangle) Scale(f float64) Rectangle {
	return Rectangle{X: r.X * f, Y: r.Y * f, Width: r.Width * f, Height: r.Height * f}
}

// Point is a 2-D point in pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// NewPoint creates a Point.
func NewPoint(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Distance returns the euclidean distance to other.
func (p Point) Distance(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// IoU calculates intersection over union between two rectangles.
// Returns 0 when the rectangles do not overlap.
func IoU(r1, r2 Rectangle) float64 {
	xA := math.Max(r1.X, r2.X)
	yA := math.Max(r1.Y, r2.Y)
	xB := math.Min(r1.X+r1.Width, r2.X+r2.Width)
	yB := math.Min(r1.Y+r1.Height, r2.Y+r2.Height)

	interArea := math.Max(0, xB-xA) * math.Max(0, yB-yA)
	if interArea == 0 {
		return 0.0
	}

	r1Area := r1.Width * r1.Height
	r2Area := r2.Width * r2.Height

	return interArea / (r1Area + r2Area - interArea)
}
