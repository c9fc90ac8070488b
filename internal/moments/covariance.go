package moments

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/lensmetry/anashear/internal/shapelet"
)

// Covariance is the symmetric positive-semidefinite covariance of a moment
// vector under the cutout's noise model. It is paired one-to-one with the
// Vector it was propagated for and carries the same basis fingerprint.
type Covariance struct {
	Sym         *mat.SymDense
	Fingerprint string
}

// At returns Cov(M_i, M_j).
func (c *Covariance) At(i, j int) float64 { return c.Sym.At(i, j) }

// Var returns Var(M_i).
func (c *Covariance) Var(i int) float64 { return c.Sym.At(i, i) }

// Quad returns the quadratic form x^T Cov y.
func (c *Covariance) Quad(x, y []float64) float64 {
	var s float64
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		for j, yj := range y {
			if yj != 0 {
				s += xi * yj * c.Sym.At(i, j)
			}
		}
	}
	return s
}

// RowDot returns the contraction sum_j Cov(M_i, M_j) x_j.
func (c *Covariance) RowDot(i int, x []float64) float64 {
	var s float64
	for j, xj := range x {
		if xj != 0 {
			s += xj * c.Sym.At(i, j)
		}
	}
	return s
}

// NoiseModel describes the pixel noise of a cutout as a stationary process.
// powerSpectrum returns the noise power at every DFT mode of the plan grid.
type NoiseModel interface {
	powerSpectrum(nx, ny int) ([]float64, error)
}

// WhiteNoise is uncorrelated pixel noise with a single per-pixel variance.
type WhiteNoise struct {
	Variance float64
}

func (w WhiteNoise) powerSpectrum(nx, ny int) ([]float64, error) {
	if w.Variance < 0 {
		return nil, fmt.Errorf("%w: noise variance must be non-negative, got %g", shapelet.ErrInvalidConfiguration, w.Variance)
	}
	p := make([]float64, nx*ny)
	for i := range p {
		p[i] = w.Variance
	}
	return p, nil
}

// CorrelatedNoise is stationary correlated noise described by its two-point
// correlation function, supplied as a centered stamp the same shape as the
// cutout. Its DFT is the noise power spectrum. Non-stationary pixel
// covariances have no diagonal Fourier representation and are rejected.
type CorrelatedNoise struct {
	Corr *Cutout
}

func (cn CorrelatedNoise) powerSpectrum(nx, ny int) ([]float64, error) {
	if cn.Corr == nil {
		return nil, fmt.Errorf("%w: correlated noise model requires a correlation stamp", shapelet.ErrInvalidConfiguration)
	}
	if cn.Corr.Nx != nx || cn.Corr.Ny != ny {
		return nil, fmt.Errorf("%w: noise correlation stamp %dx%d does not match cutout %dx%d",
			shapelet.ErrInvalidConfiguration, cn.Corr.Nx, cn.Corr.Ny, nx, ny)
	}
	d := fft2(ifftshift(cn.Corr.Pix, nx, ny), nx, ny)
	p := make([]float64, nx*ny)
	for i := range p {
		// A valid correlation function has a real, non-negative spectrum;
		// clamp small negative excursions from numerical round-off.
		p[i] = real(d[i])
		if p[i] < 0 {
			p[i] = 0
		}
	}
	return p, nil
}

// Propagate maps the noise model through the identical linear projection and
// truncation mask as Extract, by the quadratic-form rule
//
//	Cov_qq' = N_pix * sum_k P(k) W_q(k) W_q'(k) / |T(k)|^2
//
// where P is the noise power spectrum and T the PSF transfer function. The
// mask is taken from the plan, so a covariance can never disagree with the
// point estimate it accompanies about which modes were dropped.
func Propagate(plan *DeconvPlan, noise NoiseModel) (*Covariance, error) {
	p, err := noise.powerSpectrum(plan.nx, plan.ny)
	if err != nil {
		return nil, err
	}

	nm := len(plan.proj)
	npix := float64(plan.nx * plan.ny)
	cov := mat.NewSymDense(nm, nil)
	for q := 0; q < nm; q++ {
		for r := q; r < nm; r++ {
			var s float64
			for k, keep := range plan.keep {
				if !keep {
					continue
				}
				// |proj|^2-style product: W_q W_r / |T|^2 is real because
				// the weights are real.
				wq := real(plan.proj[q][k])*real(plan.proj[r][k]) + imag(plan.proj[q][k])*imag(plan.proj[r][k])
				s += p[k] * wq
			}
			cov.SetSym(q, r, npix*s)
		}
	}
	return &Covariance{Sym: cov, Fingerprint: plan.fprint}, nil
}
