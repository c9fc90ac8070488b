package moments

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/lensmetry/anashear/internal/shapelet"
)

// DefaultPSFFloor is the fraction of the peak PSF transfer amplitude below
// which a Fourier mode is excluded from the projection instead of being
// amplified by a near-zero division. The truncation itself is a source of
// finite-PSF bias; the estimator's response absorbs it rather than hiding
// it, so the same mask must be used for the moments and their covariance.
const DefaultPSFFloor = 1e-4

// Vector is the moment vector of one object: one real number per basis
// mode, stamped with the basis fingerprint it was computed under. Never
// mutated after creation.
type Vector struct {
	Data        []float64
	Fingerprint string
}

// DeconvPlan is the per-exposure combination of basis weights and PSF
// transfer function: the full linear map from a cutout's Fourier transform
// to deconvolved moments, plus the truncation mask. It is read-only after
// construction and shared across all objects of the exposure.
type DeconvPlan struct {
	nx, ny int
	scale  float64
	// proj[q][k] = W_q(k) * conj(T(k)) / |T(k)|^2 on kept modes, 0 elsewhere.
	proj [][]complex128
	// invPower[k] = 1 / |T(k)|^2 on kept modes, 0 elsewhere; used by the
	// covariance propagation so that it shares this plan's mask exactly.
	invPower []float64
	keep     []bool
	nkept    int
	fprint   string
}

// Nx returns the planned stamp width.
func (p *DeconvPlan) Nx() int { return p.nx }

// Ny returns the planned stamp height.
func (p *DeconvPlan) Ny() int { return p.ny }

// PixelScale returns the pixel scale the plan was built for.
func (p *DeconvPlan) PixelScale() float64 { return p.scale }

// Fingerprint returns the generating basis fingerprint.
func (p *DeconvPlan) Fingerprint() string { return p.fprint }

// KeptFraction reports the fraction of Fourier modes surviving both the
// basis truncation and the PSF floor. Useful as an exposure diagnostic.
func (p *DeconvPlan) KeptFraction() float64 {
	return float64(p.nkept) / float64(len(p.keep))
}

// NewDeconvPlan builds the deconvolution plan for one exposure from its PSF
// stamp. The PSF must be centered on its stamp and is normalized to unit
// flux internally. psfFloor <= 0 selects DefaultPSFFloor.
func NewDeconvPlan(basis *shapelet.Basis, psf *Cutout, psfFloor float64) (*DeconvPlan, error) {
	if psf == nil {
		return nil, fmt.Errorf("moments: nil PSF model")
	}
	if psf.Scale != basis.Config().PixelScale {
		return nil, fmt.Errorf("moments: PSF pixel scale %g does not match basis %g", psf.Scale, basis.Config().PixelScale)
	}
	sum := psf.Sum()
	if sum == 0 || !psf.IsFinite() {
		return nil, fmt.Errorf("moments: PSF stamp has zero or non-finite flux")
	}
	if psfFloor <= 0 {
		psfFloor = DefaultPSFFloor
	}

	nx, ny := psf.Nx, psf.Ny
	t := fft2(ifftshift(psf.Pix, nx, ny), nx, ny)
	var peak float64
	for i := range t {
		t[i] /= complex(sum, 0)
		if a := cmplx.Abs(t[i]); a > peak {
			peak = a
		}
	}
	floor := psfFloor * peak

	ws := basis.FourierWeights(nx, ny)
	plan := &DeconvPlan{
		nx:       nx,
		ny:       ny,
		scale:    psf.Scale,
		proj:     make([][]complex128, len(ws.W)),
		invPower: make([]float64, nx*ny),
		keep:     make([]bool, nx*ny),
		fprint:   ws.Fingerprint,
	}
	for q := range plan.proj {
		plan.proj[q] = make([]complex128, nx*ny)
	}
	for k := range plan.keep {
		if !ws.Keep[k] {
			continue
		}
		power := real(t[k])*real(t[k]) + imag(t[k])*imag(t[k])
		if math.Sqrt(power) < floor {
			continue
		}
		plan.keep[k] = true
		plan.nkept++
		plan.invPower[k] = 1 / power
		inv := cmplx.Conj(t[k]) / complex(power, 0)
		for q := range plan.proj {
			plan.proj[q][k] = complex(ws.W[q][k], 0) * inv
		}
	}
	if plan.nkept == 0 {
		return nil, fmt.Errorf("moments: PSF floor %g leaves no usable Fourier modes", psfFloor)
	}
	return plan, nil
}

// Extract projects a cutout onto the deconvolved basis, producing its
// moment vector. The cutout must match the plan's stamp geometry; it is
// assumed centered on the object (the detection layer supplies centers).
// Extract is a pure function: identical inputs give identical outputs.
func Extract(plan *DeconvPlan, cut *Cutout) (*Vector, error) {
	if cut.Nx != plan.nx || cut.Ny != plan.ny {
		return nil, fmt.Errorf("moments: cutout %dx%d does not match plan %dx%d", cut.Nx, cut.Ny, plan.nx, plan.ny)
	}
	if cut.Scale != plan.scale {
		return nil, fmt.Errorf("moments: cutout pixel scale %g does not match plan %g", cut.Scale, plan.scale)
	}

	d := fft2(ifftshift(cut.Pix, cut.Nx, cut.Ny), cut.Nx, cut.Ny)
	vec := &Vector{
		Data:        make([]float64, len(plan.proj)),
		Fingerprint: plan.fprint,
	}
	for q, proj := range plan.proj {
		var s float64
		for k, keep := range plan.keep {
			if keep {
				s += real(d[k]) * real(proj[k]) - imag(d[k])*imag(proj[k])
			}
		}
		vec.Data[q] = s
	}
	return vec, nil
}
