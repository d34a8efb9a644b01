// Package geometry implements the axis-aligned box math used by the stowage
// engine: dimensions, the six item orientations, containment and overlap.
//
// Coordinates follow the station convention: W runs across the open face,
// D runs from the open face (D=0) towards the back wall and H runs upwards.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// Epsilon absorbs floating point noise in containment and overlap tests.
const Epsilon = 1e-9

var (
	// ErrInvalidDimensions reports zero, negative or non-finite extents.
	ErrInvalidDimensions = errors.New("geometry: invalid dimensions")
	// ErrInvalidOrientation reports an orientation code outside 0..5.
	ErrInvalidOrientation = errors.New("geometry: invalid orientation")
)

// Axis identifies one of the three container axes.
type Axis int

const (
	AxisWidth Axis = iota
	AxisDepth
	AxisHeight
)

func (a Axis) String() string {
	switch a {
	case AxisWidth:
		return "width"
	case AxisDepth:
		return "depth"
	case AxisHeight:
		return "height"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Vec is a point inside a container.
type Vec struct {
	W float64 `json:"width" yaml:"width"`
	D float64 `json:"depth" yaml:"depth"`
	H float64 `json:"height" yaml:"height"`
}

// Get returns the coordinate along axis a.
func (v Vec) Get(a Axis) float64 {
	switch a {
	case AxisWidth:
		return v.W
	case AxisDepth:
		return v.D
	default:
		return v.H
	}
}

func (v Vec) String() string {
	return fmt.Sprintf("(%g,%g,%g)", v.W, v.D, v.H)
}

// Dimensions holds extents along width, depth and height.
type Dimensions struct {
	Width  float64 `json:"width" yaml:"width"`
	Depth  float64 `json:"depth" yaml:"depth"`
	Height float64 `json:"height" yaml:"height"`
}

// Get returns the extent along axis a.
func (d Dimensions) Get(a Axis) float64 {
	switch a {
	case AxisWidth:
		return d.Width
	case AxisDepth:
		return d.Depth
	default:
		return d.Height
	}
}

// Validate rejects malformed extents.
func (d Dimensions) Validate() error {
	for _, v := range []float64{d.Width, d.Depth, d.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %gx%gx%g", ErrInvalidDimensions, d.Width, d.Depth, d.Height)
		}
	}
	return nil
}

// Volume returns width*depth*height.
func (d Dimensions) Volume() float64 { return d.Width * d.Depth * d.Height }

// FaceArea returns the footprint presented to the open face (width*height).
func (d Dimensions) FaceArea() float64 { return d.Width * d.Height }

func (d Dimensions) String() string {
	return fmt.Sprintf("%gx%gx%g", d.Width, d.Depth, d.Height)
}

// Orientation is one of the six axis permutations of an item's nominal
// (width, depth, height).
type Orientation uint8

const (
	OrientWDH Orientation = iota // identity
	OrientWHD
	OrientDWH
	OrientDHW
	OrientHWD
	OrientHDW
)

// OrientationCount is the number of distinct orientations.
const OrientationCount = 6

// Orientations lists every orientation in code order.
func Orientations() []Orientation {
	return []Orientation{OrientWDH, OrientWHD, OrientDWH, OrientDHW, OrientHWD, OrientHDW}
}

// Valid reports whether o is a known orientation code.
func (o Orientation) Valid() bool { return o < OrientationCount }

func (o Orientation) String() string {
	switch o {
	case OrientWDH:
		return "wdh"
	case OrientWHD:
		return "whd"
	case OrientDWH:
		return "dwh"
	case OrientDHW:
		return "dhw"
	case OrientHWD:
		return "hwd"
	case OrientHDW:
		return "hdw"
	default:
		return fmt.Sprintf("orientation(%d)", uint8(o))
	}
}

// Orient returns the effective extents of d rotated by o.
func Orient(d Dimensions, o Orientation) (Dimensions, error) {
	if err := d.Validate(); err != nil {
		return Dimensions{}, err
	}
	w, dp, h := d.Width, d.Depth, d.Height
	switch o {
	case OrientWDH:
		return Dimensions{Width: w, Depth: dp, Height: h}, nil
	case OrientWHD:
		return Dimensions{Width: w, Depth: h, Height: dp}, nil
	case OrientDWH:
		return Dimensions{Width: dp, Depth: w, Height: h}, nil
	case OrientDHW:
		return Dimensions{Width: dp, Depth: h, Height: w}, nil
	case OrientHWD:
		return Dimensions{Width: h, Depth: w, Height: dp}, nil
	case OrientHDW:
		return Dimensions{Width: h, Depth: dp, Height: w}, nil
	default:
		return Dimensions{}, fmt.Errorf("%w: %d", ErrInvalidOrientation, o)
	}
}

// Box is an axis-aligned box anchored at its minimum corner.
type Box struct {
	Origin Vec        `json:"origin"`
	Size   Dimensions `json:"size"`
}

// Max returns the far corner of the box.
func (b Box) Max() Vec {
	return Vec{W: b.Origin.W + b.Size.Width, D: b.Origin.D + b.Size.Depth, H: b.Origin.H + b.Size.Height}
}

// Intersects reports whether a and b share interior volume. Boxes that only
// touch along a face, edge or corner do not intersect.
func Intersects(a, b Box) bool {
	for _, axis := range []Axis{AxisWidth, AxisDepth, AxisHeight} {
		if !spanOverlap(a, b, axis) {
			return false
		}
	}
	return true
}

// OverlapsFace reports whether the width/height cross-sections of a and b
// overlap, i.e. whether one would collide with the other when slid along the
// depth axis.
func OverlapsFace(a, b Box) bool {
	return spanOverlap(a, b, AxisWidth) && spanOverlap(a, b, AxisHeight)
}

func spanOverlap(a, b Box, axis Axis) bool {
	aMin, aMax := a.Origin.Get(axis), a.Max().Get(axis)
	bMin, bMax := b.Origin.Get(axis), b.Max().Get(axis)
	return aMin < bMax-Epsilon && bMin < aMax-Epsilon
}

// Within reports whether b lies completely inside a container with the given
// extents anchored at the origin.
func Within(container Dimensions, b Box) bool {
	far := b.Max()
	return b.Origin.W >= -Epsilon && b.Origin.D >= -Epsilon && b.Origin.H >= -Epsilon &&
		far.W <= container.Width+Epsilon &&
		far.D <= container.Depth+Epsilon &&
		far.H <= container.Height+Epsilon
}
