// Package raster holds float64 image buffers and the conversions around them.
package raster

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/floats"

	"github.com/verte-zerg/lifelapse/internal/model"
)

// Channels is the fixed channel count of every raster.
const Channels = 3

// ErrShapeMismatch is returned when two rasters of different shapes meet.
var ErrShapeMismatch = errors.New("raster shape mismatch")

// Raster is a row-major, channel-interleaved RGB buffer of float64 samples.
type Raster struct {
	Shape model.Shape
	Pix   []float64
}

// New returns an all-zero raster of the given shape.
func New(shape model.Shape) *Raster {
	if shape.IsZero() {
		return &Raster{Shape: shape}
	}
	return &Raster{
		Shape: shape,
		Pix:   make([]float64, shape.Height*shape.Width*Channels),
	}
}

// ShapeOf returns the pixel size of img.
func ShapeOf(img image.Image) model.Shape {
	b := img.Bounds()
	return model.Shape{Height: b.Dy(), Width: b.Dx()}
}

// FromImage converts img to a raster, dropping alpha.
func FromImage(img image.Image) *Raster {
	src := imaging.Clone(img)
	shape := ShapeOf(src)
	r := New(shape)
	for y := 0; y < shape.Height; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+shape.Width*4]
		base := y * shape.Width * Channels
		for x := 0; x < shape.Width; x++ {
			r.Pix[base+x*Channels] = float64(row[x*4])
			r.Pix[base+x*Channels+1] = float64(row[x*4+1])
			r.Pix[base+x*Channels+2] = float64(row[x*4+2])
		}
	}
	return r
}

// At returns the sample at row y, column x, channel c.
func (r *Raster) At(y, x, c int) float64 {
	return r.Pix[(y*r.Shape.Width+x)*Channels+c]
}

// Set stores v at row y, column x, channel c.
func (r *Raster) Set(y, x, c int, v float64) {
	r.Pix[(y*r.Shape.Width+x)*Channels+c] = v
}

// Add sums o into r element-wise. Shapes must match exactly.
func (r *Raster) Add(o *Raster) error {
	if r.Shape != o.Shape {
		return fmt.Errorf("%w: %s vs %s", ErrShapeMismatch, r.Shape, o.Shape)
	}
	if len(r.Pix) == 0 {
		return nil
	}
	floats.Add(r.Pix, o.Pix)
	return nil
}

// Clone returns a deep copy of r.
func (r *Raster) Clone() *Raster {
	out := &Raster{Shape: r.Shape, Pix: make([]float64, len(r.Pix))}
	copy(out.Pix, r.Pix)
	return out
}

// Normalize min-max stretches r over all channels to 0..255. A constant
// raster maps to all zeros.
func Normalize(r *Raster) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, r.Shape.Width, r.Shape.Height))
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	if len(r.Pix) == 0 {
		return out
	}
	lo := floats.Min(r.Pix)
	hi := floats.Max(r.Pix)
	if hi == lo {
		return out
	}
	span := hi - lo
	for i, v := range r.Pix {
		scaled := (v - lo) / span * 255
		if scaled > 255 {
			scaled = 255
		}
		px := i / Channels
		out.Pix[px*4+i%Channels] = uint8(scaled)
	}
	return out
}
