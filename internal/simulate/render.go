// Package simulate renders small test scenes: sheared Gaussian galaxies,
// Gaussian and Moffat PSFs, and pixel noise. It exists for calibration runs
// and tests; nothing in the measurement path depends on it.
package simulate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/lensmetry/anashear/internal/moments"
	"github.com/lensmetry/anashear/internal/shapelet"
)

// Gaussian is an elliptical Gaussian surface-brightness profile described
// by its total flux and second-moment matrix
//
//	Q = sigma^2 * [[1+e1, e2], [e2, 1-e1]]
//
// in sky coordinates. Shearing is exact for Gaussians: the lensing map
// A = [[1+g1, g2], [g2, 1-g1]] carries Q to A Q A^T, and convolution with a
// Gaussian PSF adds second-moment matrices.
type Gaussian struct {
	Flux   float64
	Qxx    float64
	Qxy    float64
	Qyy    float64
}

// NewGaussian builds the profile from size and intrinsic ellipticity.
func NewGaussian(flux, sigma, e1, e2 float64) Gaussian {
	s2 := sigma * sigma
	return Gaussian{
		Flux: flux,
		Qxx:  s2 * (1 + e1),
		Qxy:  s2 * e2,
		Qyy:  s2 * (1 - e1),
	}
}

// Rotated90 returns the profile rotated by 90 degrees, which negates both
// ellipticity components. Pairing each object with its rotation cancels
// shape noise in simulations.
func (g Gaussian) Rotated90() Gaussian {
	cxx := g.Qyy
	cyy := g.Qxx
	return Gaussian{Flux: g.Flux, Qxx: cxx, Qxy: -g.Qxy, Qyy: cyy}
}

// Sheared applies the reduced shear (g1, g2) to the profile.
func (g Gaussian) Sheared(g1, g2 float64) Gaussian {
	a11, a12 := 1+g1, g2
	a21, a22 := g2, 1-g1
	// A Q A^T.
	bxx := a11*g.Qxx + a12*g.Qxy
	bxy := a11*g.Qxy + a12*g.Qyy
	byx := a21*g.Qxx + a22*g.Qxy
	byy := a21*g.Qxy + a22*g.Qyy
	return Gaussian{
		Flux: g.Flux,
		Qxx:  bxx*a11 + bxy*a12,
		Qxy:  bxx*a21 + bxy*a22,
		Qyy:  byx*a21 + byy*a22,
	}
}

// ConvolvedWith returns the profile convolved with another Gaussian.
func (g Gaussian) ConvolvedWith(o Gaussian) Gaussian {
	return Gaussian{
		Flux: g.Flux * o.Flux,
		Qxx:  g.Qxx + o.Qxx,
		Qxy:  g.Qxy + o.Qxy,
		Qyy:  g.Qyy + o.Qyy,
	}
}

// Render samples the profile at pixel centers on an nx x ny stamp centered
// at (nx/2, ny/2), matching the centering convention of the measurement
// stamps. Pixel values are surface brightness times pixel area, so the
// stamp sums to approximately Flux.
func (g Gaussian) Render(nx, ny int, scale float64) (*moments.Cutout, error) {
	det := g.Qxx*g.Qyy - g.Qxy*g.Qxy
	if det <= 0 {
		return nil, fmt.Errorf("%w: Gaussian moment matrix not positive definite", shapelet.ErrInvalidConfiguration)
	}
	// Inverse of Q.
	ixx := g.Qyy / det
	ixy := -g.Qxy / det
	iyy := g.Qxx / det
	amp := g.Flux * scale * scale / (2 * math.Pi * math.Sqrt(det))

	pix := make([]float64, nx*ny)
	cx, cy := nx/2, ny/2
	for iy := 0; iy < ny; iy++ {
		y := float64(iy-cy) * scale
		for ix := 0; ix < nx; ix++ {
			x := float64(ix-cx) * scale
			q := ixx*x*x + 2*ixy*x*y + iyy*y*y
			pix[iy*nx+ix] = amp * math.Exp(-0.5*q)
		}
	}
	return moments.NewCutout(pix, nx, ny, scale)
}

// Moffat is a circular Moffat profile, the standard model for
// atmosphere-dominated PSFs. Beta controls the wing strength; beta -> inf
// recovers a Gaussian.
type Moffat struct {
	FWHM float64
	Beta float64
}

// Render samples the profile on a centered stamp and normalizes it to unit
// flux, as a PSF model should be.
func (m Moffat) Render(nx, ny int, scale float64) (*moments.Cutout, error) {
	if m.FWHM <= 0 || m.Beta <= 1 {
		return nil, fmt.Errorf("%w: Moffat needs fwhm > 0 and beta > 1, got fwhm=%g beta=%g", shapelet.ErrInvalidConfiguration, m.FWHM, m.Beta)
	}
	rd := m.FWHM / (2 * math.Sqrt(math.Pow(2, 1/(m.Beta-1))-1))
	pix := make([]float64, nx*ny)
	cx, cy := nx/2, ny/2
	var sum float64
	for iy := 0; iy < ny; iy++ {
		y := float64(iy-cy) * scale
		for ix := 0; ix < nx; ix++ {
			x := float64(ix-cx) * scale
			r2 := (x*x + y*y) / (rd * rd)
			v := math.Pow(1+r2, -m.Beta)
			pix[iy*nx+ix] = v
			sum += v
		}
	}
	for i := range pix {
		pix[i] /= sum
	}
	return moments.NewCutout(pix, nx, ny, scale)
}

// Convolve convolves two same-shape centered stamps by pointwise
// multiplication of their DFTs, with circular wrap-around. Stamps must be
// large enough that both profiles are negligible at the edges.
func Convolve(a, b *moments.Cutout) (*moments.Cutout, error) {
	if a.Nx != b.Nx || a.Ny != b.Ny || a.Scale != b.Scale {
		return nil, fmt.Errorf("%w: convolution stamps must share geometry", shapelet.ErrInvalidConfiguration)
	}
	nx, ny := a.Nx, a.Ny
	fa := dft2(shiftToOrigin(a.Pix, nx, ny), nx, ny)
	fb := dft2(shiftToOrigin(b.Pix, nx, ny), nx, ny)
	for i := range fa {
		fa[i] *= fb[i]
	}
	out := idft2(fa, nx, ny)
	pix := make([]float64, nx*ny)
	centered := shiftToCenter(out, nx, ny)
	for i, v := range centered {
		pix[i] = real(v)
	}
	return moments.NewCutout(pix, nx, ny, a.Scale)
}

func dft2(in []complex128, nx, ny int) []complex128 {
	out := make([]complex128, nx*ny)
	copy(out, in)
	row := fourier.NewCmplxFFT(nx)
	for y := 0; y < ny; y++ {
		row.Coefficients(out[y*nx:(y+1)*nx], out[y*nx:(y+1)*nx])
	}
	col := fourier.NewCmplxFFT(ny)
	tmp := make([]complex128, ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			tmp[y] = out[y*nx+x]
		}
		col.Coefficients(tmp, tmp)
		for y := 0; y < ny; y++ {
			out[y*nx+x] = tmp[y]
		}
	}
	return out
}

func idft2(in []complex128, nx, ny int) []complex128 {
	out := make([]complex128, nx*ny)
	copy(out, in)
	row := fourier.NewCmplxFFT(nx)
	for y := 0; y < ny; y++ {
		row.Sequence(out[y*nx:(y+1)*nx], out[y*nx:(y+1)*nx])
	}
	col := fourier.NewCmplxFFT(ny)
	tmp := make([]complex128, ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			tmp[y] = out[y*nx+x]
		}
		col.Sequence(tmp, tmp)
		for y := 0; y < ny; y++ {
			out[y*nx+x] = tmp[y]
		}
	}
	n := complex(float64(nx*ny), 0)
	for i := range out {
		out[i] /= n
	}
	return out
}

// shiftToOrigin moves the stamp center (nx/2, ny/2) to pixel (0, 0).
func shiftToOrigin(pix []float64, nx, ny int) []complex128 {
	out := make([]complex128, nx*ny)
	sx, sy := nx/2, ny/2
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			out[((y-sy+ny)%ny)*nx+(x-sx+nx)%nx] = complex(pix[y*nx+x], 0)
		}
	}
	return out
}

// shiftToCenter is the inverse of shiftToOrigin.
func shiftToCenter(in []complex128, nx, ny int) []complex128 {
	out := make([]complex128, nx*ny)
	sx, sy := nx/2, ny/2
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			out[((y+sy)%ny)*nx+(x+sx)%nx] = in[y*nx+x]
		}
	}
	return out
}
