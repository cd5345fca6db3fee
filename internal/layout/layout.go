// Package layout computes the raster and display size of a page for a
// given container width, zoom and device pixel density.
package layout

import (
	"errors"
	"math"
)

const (
	MinZoom = 0.25
	MaxZoom = 3.0

	// DefaultPadding is the horizontal space the container keeps free
	// around a page, in logical pixels.
	DefaultPadding = 40.0
)

// ErrInvalidContainer means the container has no usable width. Callers
// skip the layout pass and retry on the next viewport event.
var ErrInvalidContainer = errors.New("layout: container has no usable width")

// Input is everything a layout depends on.
type Input struct {
	ContainerWidth   float64
	PageWidth        float64 // intrinsic width at scale 1
	PageHeight       float64
	Zoom             float64
	DevicePixelRatio float64
	Padding          float64
}

// Layout is the computed size of one page.
type Layout struct {
	FitScale float64 // container fit alone
	Scale    float64 // FitScale * zoom, clamped

	// Logical (CSS) display size.
	Width  float64
	Height float64

	// Raster size in device pixels.
	DeviceWidth  int
	DeviceHeight int

	DevicePixelRatio float64
}

// RenderScale is the scale the page library draws at: document units to
// device pixels.
func (l Layout) RenderScale() float64 {
	return l.Scale * l.DevicePixelRatio
}

// ClampZoom limits z to [MinZoom, MaxZoom].
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return 1
	}
	return math.Min(MaxZoom, math.Max(MinZoom, z))
}

// Compute returns the layout for in. It has no side effects.
func Compute(in Input) (Layout, error) {
	avail := in.ContainerWidth - in.Padding
	if avail <= 0 || math.IsNaN(avail) {
		return Layout{}, ErrInvalidContainer
	}
	if in.PageWidth <= 0 || in.PageHeight <= 0 {
		return Layout{}, errors.New("layout: page has no size")
	}
	zoom := in.Zoom
	if zoom == 0 {
		zoom = 1
	}
	dpr := in.DevicePixelRatio
	if dpr <= 0 {
		dpr = 1
	}

	fit := avail / in.PageWidth
	scale := ClampZoom(fit * zoom)

	l := Layout{
		FitScale:         fit,
		Scale:            scale,
		Width:            in.PageWidth * scale,
		Height:           in.PageHeight * scale,
		DevicePixelRatio: dpr,
	}
	l.DeviceWidth = max(1, int(math.Round(l.Width*dpr)))
	l.DeviceHeight = max(1, int(math.Round(l.Height*dpr)))
	return l, nil
}
