// Package estimator turns one moment vector and its covariance into a
// per-object shear estimate: an ellipticity pair, its analytic response to
// shear, a smooth selection weight, and the noise- and selection-bias
// corrected summands the ensemble aggregator actually sums.
//
// The ellipticity is the size-normalized quadrupole
//
//	e1 = M22c / (M00 + C),   e2 = M22s / (M00 + C)
//
// whose orientation average is linear in shear to first order. Its response
// is the exact shear derivative obtained by pushing the shear transfer
// tables of the basis through the ratio; no pixel-level finite differencing
// is involved, so the response carries no re-measurement noise. Pixel noise
// biases the ratio; the correction subtracts the second-order Taylor term
// (Hessian contracted with the moment covariance) from every nonlinear
// output. Selection on measured significance correlates with shear; the
// correction adds the shear derivative of the selection weight to the
// response denominator.
package estimator

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lensmetry/anashear/internal/moments"
	"github.com/lensmetry/anashear/internal/shapelet"
	"github.com/lensmetry/anashear/internal/units"
)

// ErrMeasurementDegenerate flags a single object whose moments cannot
// support a stable estimate (zero flux, non-finite pixels, vanishing
// denominator). It is non-fatal: the object is skipped and counted, never
// silently replaced by a default value.
var ErrMeasurementDegenerate = errors.New("estimator: measurement degenerate")

// ErrInconsistentBasis flags a moment vector and covariance produced under
// different bases. This is a programming-contract violation, not a data
// condition; callers should treat it as fatal.
var ErrInconsistentBasis = errors.New("estimator: inconsistent basis")

// Config fixes the estimator definition for a run.
type Config struct {
	// WeightC is the denominator regularization constant C, in the same
	// units as M00. Zero reproduces the bare ratio; a value near the M00 of
	// the faintest trusted objects tempers the low-flux tail.
	WeightC float64
	// SNRMin and SNRWidth define the raised-cosine selection ramp on
	// detection significance M00/sigma(M00). A non-positive width disables
	// selection (every object gets unit weight).
	SNRMin, SNRWidth float64
	// DegenerateFloor is the absolute floor on M00 + C below which an
	// object is flagged MeasurementDegenerate rather than divided by.
	DegenerateFloor float64
	// MagZero is the magnitude zero point used for the reported magnitude.
	MagZero float64
}

// DefaultConfig mirrors the survey defaults.
func DefaultConfig() Config {
	return Config{
		WeightC:         1.0,
		SNRMin:          10,
		SNRWidth:        2,
		DegenerateFloor: 1e-8,
		MagZero:         units.DefaultMagZero,
	}
}

// Result is the immutable per-object product consumed by the aggregator.
type Result struct {
	// E1, E2 are the raw ellipticity components.
	E1, E2 float64
	// Response[j][k] = d e_j / d g_k, the analytic shear response.
	Response [2][2]float64
	// Weight is the smooth selection weight in [0, 1]; DWeight[k] is its
	// analytic shear derivative.
	Weight  float64
	DWeight [2]float64

	// Num[j] is the bias-corrected numerator summand w*e_j, and Den[j][k]
	// the corrected denominator summand w*R_jk + e_j*dw/dg_k. The ensemble
	// shear is sum(Num) / sum(Den), a ratio of sums. NumRaw and DenRaw are
	// the same summands without the noise-bias correction.
	Num    [2]float64
	Den    [2][2]float64
	NumRaw [2]float64
	DenRaw [2][2]float64

	// Diagnostics.
	SNR        float64
	Flux       float64
	Mag        float64
	Resolution float64

	Fingerprint string
}

// Builder computes Results for one fixed basis and estimator configuration.
// All derivative coefficient tables are assembled once here; Build performs
// only fixed linear and quadratic contractions. A Builder is immutable and
// safe for concurrent use.
type Builder struct {
	basis *shapelet.Basis
	cfg   Config
	ramp  Ramp

	i00, i20 int
	// gN[j] is the coefficient vector of the numerator N_j (unit vector of
	// m22c or m22s); gA[j][k] the transfer row giving dN_j/dg_k; dDdg[k]
	// the transfer row giving dM00/dg_k; negDdg its negation.
	gN     [2][]float64
	gA     [2][2][]float64
	dDdg   [2][]float64
	negDdg [2][]float64
}

// NewBuilder validates cfg against the basis and precomputes the derivative
// coefficient tables.
func NewBuilder(basis *shapelet.Basis, cfg Config) (*Builder, error) {
	if cfg.WeightC < 0 {
		return nil, fmt.Errorf("%w: weight constant C must be non-negative, got %g", shapelet.ErrInvalidConfiguration, cfg.WeightC)
	}
	if cfg.DegenerateFloor < 0 {
		return nil, fmt.Errorf("%w: degenerate floor must be non-negative, got %g", shapelet.ErrInvalidConfiguration, cfg.DegenerateFloor)
	}
	if cfg.SNRWidth > 0 && cfg.SNRMin <= 0 {
		return nil, fmt.Errorf("%w: snr_min must be positive when selection is enabled, got %g", shapelet.ErrInvalidConfiguration, cfg.SNRMin)
	}

	nm := basis.NumModes()
	i00 := basis.IndexOf("m00")
	i20 := basis.IndexOf("m20")
	i22c := basis.IndexOf("m22c")
	i22s := basis.IndexOf("m22s")

	b := &Builder{
		basis: basis,
		cfg:   cfg,
		ramp:  Ramp{Min: cfg.SNRMin, Width: cfg.SNRWidth},
		i00:   i00,
		i20:   i20,
	}
	b.gN[0] = unit(nm, i22c)
	b.gN[1] = unit(nm, i22s)
	b.gA[0][0] = basis.TransferG1(i22c)
	b.gA[0][1] = basis.TransferG2(i22c)
	b.gA[1][0] = basis.TransferG1(i22s)
	b.gA[1][1] = basis.TransferG2(i22s)
	b.dDdg[0] = basis.TransferG1(i00)
	b.dDdg[1] = basis.TransferG2(i00)
	for k := 0; k < 2; k++ {
		neg := make([]float64, nm)
		for i, c := range b.dDdg[k] {
			neg[i] = -c
		}
		b.negDdg[k] = neg
	}
	return b, nil
}

// Basis returns the basis the builder was configured with.
func (b *Builder) Basis() *shapelet.Basis { return b.basis }

// Config returns the configuration the builder was created with.
func (b *Builder) Config() Config { return b.cfg }

// Build computes the Result for one object. Build is a pure function of its
// inputs; it never returns NaN or Inf inside a non-nil Result.
func (b *Builder) Build(vec *moments.Vector, cov *moments.Covariance) (*Result, error) {
	if vec.Fingerprint != b.basis.Fingerprint() {
		return nil, fmt.Errorf("%w: moment vector from %q, builder uses %q", ErrInconsistentBasis, vec.Fingerprint, b.basis.Fingerprint())
	}
	if cov.Fingerprint != vec.Fingerprint {
		return nil, fmt.Errorf("%w: covariance from %q, moments from %q", ErrInconsistentBasis, cov.Fingerprint, vec.Fingerprint)
	}
	m := vec.Data

	allZero := true
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite moment", ErrMeasurementDegenerate)
		}
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		return nil, fmt.Errorf("%w: zero flux and size", ErrMeasurementDegenerate)
	}

	d := m[b.i00] + b.cfg.WeightC
	if d <= b.cfg.DegenerateFloor {
		return nil, fmt.Errorf("%w: denominator %g at or below floor %g", ErrMeasurementDegenerate, d, b.cfg.DegenerateFloor)
	}

	a := &algebra{m: m, cov: cov, d: d, i00: b.i00, varD: cov.Var(b.i00)}
	sigma00 := math.Sqrt(a.varD)
	invS00 := 0.0
	if sigma00 > 0 {
		invS00 = 1 / sigma00
	}
	// covS returns Cov(s, grad.M) for the significance s = M00/sigma00;
	// with noiseless input it is identically zero.
	covS := func(grad []float64) float64 {
		if invS00 == 0 {
			return 0
		}
		return cov.RowDot(b.i00, grad) * invS00
	}

	res := &Result{Fingerprint: vec.Fingerprint}
	res.Flux = m[b.i00]
	res.Resolution = 1 + m[b.i20]/d
	res.Mag = units.MagFromFlux(res.Flux, b.cfg.MagZero)
	if invS00 > 0 {
		res.SNR = m[b.i00] * invS00
	} else {
		res.SNR = math.Inf(1)
	}

	// Selection weight and its shear derivative.
	w, w1, w2, w3 := b.ramp.Eval(res.SNR)
	res.Weight = w
	var sdot [2]float64
	for k := 0; k < 2; k++ {
		sdot[k] = dot(b.dDdg[k], m) * invS00
		res.DWeight[k] = w1 * sdot[k]
	}

	var e [2]float64
	var gradE [2][]float64
	var biasE [2]float64
	for j := 0; j < 2; j++ {
		e[j], gradE[j], biasE[j] = a.linRatio(b.gN[j])
	}
	res.E1, res.E2 = e[0], e[1]

	for j := 0; j < 2; j++ {
		// Numerator summand w*e_j and its second-order bias.
		numRaw := w * e[j]
		numBias := w*biasE[j] + 0.5*w2*e[j] + w1*covS(gradE[j])
		if invS00 == 0 {
			numBias = 0
		}
		res.NumRaw[j] = numRaw
		res.Num[j] = numRaw - numBias

		for k := 0; k < 2; k++ {
			// Response R_jk = (dN_j/dg_k)/D + N_j*(-dD/dg_k)/D^2.
			lv, lg, lb := a.linRatio(b.gA[j][k])
			qv, qg, qb := a.prodRatio2(b.gN[j], b.negDdg[k])
			rjk := lv + qv
			res.Response[j][k] = rjk

			gradR := make([]float64, len(m))
			for i := range gradR {
				gradR[i] = lg[i] + qg[i]
			}
			biasR := lb + qb

			// Selection term e_j * dw/dg_k = w'(s) * N_j*(dM00/dg_k)/(D*sigma00).
			gv, gg, gb := a.prodRatio1(b.gN[j], b.dDdg[k])
			gv *= invS00
			gb *= invS00
			for i := range gg {
				gg[i] *= invS00
			}

			denRaw := w*rjk + w1*gv
			denBias := w*biasR + 0.5*w2*rjk + w1*covS(gradR) +
				0.5*w3*gv + w2*covS(gg) + w1*gb
			if invS00 == 0 {
				denBias = 0
			}
			res.DenRaw[j][k] = denRaw
			res.Den[j][k] = denRaw - denBias
		}
	}

	for j := 0; j < 2; j++ {
		if !isFinite(res.Num[j]) || !isFinite(res.E1) || !isFinite(res.E2) {
			return nil, fmt.Errorf("%w: non-finite summand", ErrMeasurementDegenerate)
		}
		for k := 0; k < 2; k++ {
			if !isFinite(res.Den[j][k]) {
				return nil, fmt.Errorf("%w: non-finite summand", ErrMeasurementDegenerate)
			}
		}
	}
	return res, nil
}

// BuildPaired builds a Result from a source measurement and a paired
// measurement of a pure-noise stamp taken through the identical basis and
// deconvolution. The noise moments are subtracted from the source moments,
// cancelling additive noise rendering residuals at first order, and the
// covariance is doubled to account for the second, independent noise
// realization.
func (b *Builder) BuildPaired(src, noise *moments.Vector, cov *moments.Covariance) (*Result, error) {
	if noise == nil {
		return b.Build(src, cov)
	}
	if src.Fingerprint != noise.Fingerprint {
		return nil, fmt.Errorf("%w: source from %q, noise from %q", ErrInconsistentBasis, src.Fingerprint, noise.Fingerprint)
	}
	diff := &moments.Vector{
		Data:        make([]float64, len(src.Data)),
		Fingerprint: src.Fingerprint,
	}
	for i := range diff.Data {
		diff.Data[i] = src.Data[i] - noise.Data[i]
	}
	n := len(src.Data)
	doubled := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			doubled.SetSym(i, j, 2*cov.At(i, j))
		}
	}
	return b.Build(diff, &moments.Covariance{Sym: doubled, Fingerprint: cov.Fingerprint})
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
