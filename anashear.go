package anashear

import (
	"github.com/lensmetry/anashear/internal/ensemble"
	"github.com/lensmetry/anashear/internal/estimator"
	"github.com/lensmetry/anashear/internal/moments"
	"github.com/lensmetry/anashear/internal/shapelet"
)

// ── Basis ────────────────────────────────────────────────────────────

type BasisConfig = shapelet.Config
type Basis = shapelet.Basis

var NewBasis = shapelet.New
var DefaultBasisConfig = shapelet.DefaultConfig
var ErrInvalidConfiguration = shapelet.ErrInvalidConfiguration

// ── Moments ──────────────────────────────────────────────────────────

type Cutout = moments.Cutout
type Peak = moments.Peak
type MomentVector = moments.Vector
type MomentCovariance = moments.Covariance
type DeconvPlan = moments.DeconvPlan
type NoiseModel = moments.NoiseModel
type WhiteNoise = moments.WhiteNoise
type CorrelatedNoise = moments.CorrelatedNoise

var NewCutout = moments.NewCutout
var ExtractStamp = moments.ExtractStamp
var NewDeconvPlan = moments.NewDeconvPlan
var Extract = moments.Extract
var Propagate = moments.Propagate

// ── Estimator ────────────────────────────────────────────────────────

type EstimatorConfig = estimator.Config
type Builder = estimator.Builder
type Result = estimator.Result

var NewBuilder = estimator.NewBuilder
var DefaultEstimatorConfig = estimator.DefaultConfig
var ErrMeasurementDegenerate = estimator.ErrMeasurementDegenerate
var ErrInconsistentBasis = estimator.ErrInconsistentBasis

// ── Ensemble ─────────────────────────────────────────────────────────

type Accumulator = ensemble.Accumulator
type Shear = ensemble.Shear
type Pool = ensemble.Pool
type Job = ensemble.Job

var NewAccumulator = ensemble.NewAccumulator
var Jackknife = ensemble.Jackknife
var ErrEmptyEnsemble = ensemble.ErrEmptyEnsemble

// ── Measurer ─────────────────────────────────────────────────────────

// Measurer bundles one exposure's deconvolution plan, noise covariance and
// estimator into a single per-object call. Build one per exposure with
// NewMeasurer; it is immutable and safe for concurrent use.
type Measurer struct {
	plan    *moments.DeconvPlan
	cov     *moments.Covariance
	builder *estimator.Builder
}

// NewMeasurer prepares measurement of one exposure: psf is the centered
// PSF stamp, noise the exposure's stationary noise model, cfg the
// estimator configuration. psfFloor <= 0 selects the default Fourier
// truncation floor.
func NewMeasurer(basis *Basis, psf *Cutout, psfFloor float64, noise NoiseModel, cfg EstimatorConfig) (*Measurer, error) {
	plan, err := moments.NewDeconvPlan(basis, psf, psfFloor)
	if err != nil {
		return nil, err
	}
	cov, err := moments.Propagate(plan, noise)
	if err != nil {
		return nil, err
	}
	builder, err := estimator.NewBuilder(basis, cfg)
	if err != nil {
		return nil, err
	}
	return &Measurer{plan: plan, cov: cov, builder: builder}, nil
}

// Plan exposes the deconvolution plan, for stamp-geometry queries.
func (m *Measurer) Plan() *DeconvPlan { return m.plan }

// Covariance exposes the propagated moment covariance of the exposure.
func (m *Measurer) Covariance() *MomentCovariance { return m.cov }

// Measure extracts moments from a centered cutout and builds its shear
// estimate. Errors wrapping ErrMeasurementDegenerate mark objects to skip
// and count, not failures.
func (m *Measurer) Measure(cut *Cutout) (*Result, error) {
	vec, err := moments.Extract(m.plan, cut)
	if err != nil {
		return nil, err
	}
	return m.builder.Build(vec, m.cov)
}

// MeasurePaired measures a source cutout together with a pure-noise stamp
// drawn from the same noise field, cancelling noise rendering residuals at
// first order at the cost of doubled noise covariance.
func (m *Measurer) MeasurePaired(src, noise *Cutout) (*Result, error) {
	vec, err := moments.Extract(m.plan, src)
	if err != nil {
		return nil, err
	}
	nvec, err := moments.Extract(m.plan, noise)
	if err != nil {
		return nil, err
	}
	return m.builder.BuildPaired(vec, nvec, m.cov)
}

// NewPool returns a worker pool measuring through this Measurer.
func (m *Measurer) NewPool(workers int, retain bool) *Pool {
	return &Pool{Plan: m.plan, Cov: m.cov, Builder: m.builder, Workers: workers, Retain: retain}
}
