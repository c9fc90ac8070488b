// Package moments turns a calibrated pixel cutout into a shapelet moment
// vector and the covariance of that vector under the cutout's noise model.
// Both share one deconvolution plan per exposure so that the point estimate
// and its covariance always see the identical PSF truncation mask.
package moments

import (
	"fmt"
	"math"
)

// Cutout is a rectangular postage stamp of calibrated pixel intensities.
// Pixels are row-major with X varying fastest. A Cutout is immutable once
// constructed; nothing in this package writes to Pix.
type Cutout struct {
	Pix    []float64
	Nx, Ny int
	// Scale is the pixel scale in arcseconds per pixel.
	Scale float64
	// X0, Y0 locate the stamp origin in the parent exposure, in pixels.
	X0, Y0 int
}

// NewCutout wraps pix as an nx-by-ny stamp. The pixel slice is used
// directly, not copied; the caller gives up ownership.
func NewCutout(pix []float64, nx, ny int, scale float64) (*Cutout, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("moments: cutout dimensions %dx%d invalid", nx, ny)
	}
	if len(pix) != nx*ny {
		return nil, fmt.Errorf("moments: pixel slice length %d does not match %dx%d", len(pix), nx, ny)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("moments: pixel scale must be positive, got %g", scale)
	}
	return &Cutout{Pix: pix, Nx: nx, Ny: ny, Scale: scale}, nil
}

// At returns the pixel at (ix, iy) with no bounds checking beyond the
// slice's own.
func (c *Cutout) At(ix, iy int) float64 { return c.Pix[iy*c.Nx+ix] }

// Sum returns the total of all pixels (the aperture-free flux estimate).
func (c *Cutout) Sum() float64 {
	var s float64
	for _, v := range c.Pix {
		s += v
	}
	return s
}

// IsFinite reports whether every pixel is a finite number.
func (c *Cutout) IsFinite() bool {
	for _, v := range c.Pix {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Peak is a detection record handed in by the external detection layer:
// the integer peak position in the parent exposure, whether the detector
// considers it a true peak rather than an artifact, and a mask proximity
// flag for downstream quality cuts.
type Peak struct {
	X, Y      int
	IsPeak    bool
	MaskValue int
}

// CenterResize returns a copy of c cropped or zero-padded around its center
// to the target shape. Larger inputs lose their outer rows and columns;
// smaller inputs gain zero borders. The pixel scale is preserved.
func CenterResize(c *Cutout, nx, ny int) *Cutout {
	out := &Cutout{
		Pix:   make([]float64, nx*ny),
		Nx:    nx,
		Ny:    ny,
		Scale: c.Scale,
		X0:    c.X0 + (c.Nx-nx)/2,
		Y0:    c.Y0 + (c.Ny-ny)/2,
	}
	offX := (c.Nx - nx) / 2
	offY := (c.Ny - ny) / 2
	for oy := 0; oy < ny; oy++ {
		sy := oy + offY
		if sy < 0 || sy >= c.Ny {
			continue
		}
		for ox := 0; ox < nx; ox++ {
			sx := ox + offX
			if sx < 0 || sx >= c.Nx {
				continue
			}
			out.Pix[oy*nx+ox] = c.Pix[sy*c.Nx+sx]
		}
	}
	return out
}

// ExtractStamp cuts an nx-by-ny stamp centred on the peak out of a parent
// exposure image. Regions falling outside the exposure are zero-filled.
func ExtractStamp(exposure *Cutout, pk Peak, nx, ny int) *Cutout {
	out := &Cutout{
		Pix:   make([]float64, nx*ny),
		Nx:    nx,
		Ny:    ny,
		Scale: exposure.Scale,
		X0:    pk.X - nx/2,
		Y0:    pk.Y - ny/2,
	}
	for oy := 0; oy < ny; oy++ {
		sy := out.Y0 + oy
		if sy < 0 || sy >= exposure.Ny {
			continue
		}
		for ox := 0; ox < nx; ox++ {
			sx := out.X0 + ox
			if sx < 0 || sx >= exposure.Nx {
				continue
			}
			out.Pix[oy*nx+ox] = exposure.Pix[sy*exposure.Nx+sx]
		}
	}
	return out
}
