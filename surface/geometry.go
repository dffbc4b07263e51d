package surface

import (
	"math"

	"recorder-agent/constant"
)

const (
	controlsHeight = 40
	minContentSize = 120
	circlePadding  = 24

	// Aspect-ratio drift larger than this many pixels triggers a corrective
	// resize; anything smaller is left alone to avoid resize loops.
	aspectTolerance = 2
)

type Dimensions struct {
	Width  float64
	Height float64
}

// Floating-window presets; the window carries its own chrome so presets are
// larger than the in-page overlay diameters.
var windowPresets = map[constant.SizePreset]Dimensions{
	constant.SizeSmall:  {Width: 200, Height: 200},
	constant.SizeMedium: {Width: 300, Height: 300},
	constant.SizeLarge:  {Width: 400, Height: 400},
}

// In-page overlay bubble diameters.
var overlayPresets = map[constant.SizePreset]float64{
	constant.SizeSmall:  120,
	constant.SizeMedium: 180,
	constant.SizeLarge:  240,
}

type ratio struct {
	w float64
	h float64
}

var aspectRatios = map[constant.WebcamShape]ratio{
	constant.WebcamShapeCircle:  {w: 1, h: 1},
	constant.WebcamShapeSquare:  {w: 1, h: 1},
	constant.WebcamShapeMobile:  {w: 9, h: 16},
	constant.WebcamShapeLaptop:  {w: 16, h: 9},
	constant.WebcamShapeClassic: {w: 3, h: 4},
}

func aspectRatioOf(shape constant.WebcamShape) float64 {
	r, ok := aspectRatios[shape]
	if !ok {
		return 1
	}
	return r.w / r.h
}

// MinimumSize is the floor below which the surface's controls stop being
// usable for the given shape.
func MinimumSize(shape constant.WebcamShape) Dimensions {
	if shape == constant.WebcamShapeCircle {
		minContent := float64(minContentSize + circlePadding)
		return Dimensions{
			Width:  minContent + circlePadding,
			Height: minContent + circlePadding + controlsHeight,
		}
	}
	a := aspectRatioOf(shape)
	minHeight := float64(minContentSize + controlsHeight)
	return Dimensions{Width: minHeight * a, Height: minHeight}
}

// PresetSize computes the window dimensions for a preset, preserving the
// shape's aspect ratio and respecting the minimum floor.
func PresetSize(preset constant.SizePreset, shape constant.WebcamShape) Dimensions {
	p, ok := windowPresets[preset]
	if !ok {
		p = windowPresets[constant.SizeMedium]
	}
	base := p.Width
	if p.Height < base {
		base = p.Height
	}
	a := aspectRatioOf(shape)
	d := Dimensions{Width: base * sqrt(a), Height: base / sqrt(a)}
	return clampToMinimum(d, shape)
}

// clampToMinimum raises either dimension to the floor, recomputing the other
// from the aspect ratio.
func clampToMinimum(d Dimensions, shape constant.WebcamShape) Dimensions {
	a := aspectRatioOf(shape)
	min := MinimumSize(shape)
	if d.Width < min.Width {
		d.Width = min.Width
		d.Height = d.Width / a
	}
	if d.Height < min.Height {
		d.Height = min.Height
		d.Width = d.Height * a
	}
	return d
}

// correctAspect returns the size the surface must adopt after a manual
// resize to (w, h), recomputing the dimension that did not drive the change.
// The boolean reports whether a corrective resize is required at all.
func correctAspect(w, h float64, widthChanged bool, shape constant.WebcamShape) (Dimensions, bool) {
	a := aspectRatioOf(shape)
	min := MinimumSize(shape)

	belowFloor := w < min.Width || h < min.Height
	expectedH := w / a
	expectedW := h * a
	drifted := abs(h-expectedH) > aspectTolerance && abs(w-expectedW) > aspectTolerance

	if !belowFloor && !drifted {
		return Dimensions{Width: w, Height: h}, false
	}

	var d Dimensions
	if widthChanged {
		d = Dimensions{Width: w, Height: w / a}
	} else {
		d = Dimensions{Width: h * a, Height: h}
	}
	return clampToMinimum(d, shape), true
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return math.Sqrt(v)
}

func abs(v float64) float64 {
	return math.Abs(v)
}
