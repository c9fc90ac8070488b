// Package shapelet provides the Gauss-Hermite (polar shapelet) basis used to
// reduce a galaxy cutout to a finite moment vector. Basis functions are
// Gaussian-weighted Laguerre polynomials in polar coordinates,
//
//	chi_nm(r, phi) = N_nm r^|m| L^|m|_p(r^2) exp(-r^2/2) exp(i m phi)
//
// with p = (n-|m|)/2 and N_nm chosen so the set is orthonormal under the
// continuous inner product. Projection onto the basis is therefore a single
// linear sum per moment, not an iterative fit.
//
// Moments are defined as real-space shapelet projections of the
// PSF-deconvolved galaxy, but are evaluated in Fourier space where the
// deconvolution is a division. The Fourier transform of a shapelet is the
// same shapelet at the reciprocal scale times i^n, so the Fourier-side
// weights carry an alternating sign for n = 2 mod 4.
package shapelet

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfiguration reports basis parameters that fail validation.
// Configuration errors are fatal to a run and are raised before any
// per-object work begins.
var ErrInvalidConfiguration = errors.New("shapelet: invalid configuration")

// Part distinguishes the two real members of an |m| > 0 pair.
type Part uint8

const (
	// PartRadial marks an m = 0 mode, which has no angular partner.
	PartRadial Part = iota
	// PartCos is the cos(m*phi) member of a real pair.
	PartCos
	// PartSin is the sin(m*phi) member of a real pair.
	PartSin
)

// Mode identifies one real basis function by radial order n, angular order m
// and, for m > 0, the cosine/sine split of the complex pair.
type Mode struct {
	N    int
	M    int
	Part Part
}

// Name returns the catalog column name of the mode (m00, m22c, ...).
func (md Mode) Name() string {
	switch md.Part {
	case PartCos:
		return fmt.Sprintf("m%d%dc", md.N, md.M)
	case PartSin:
		return fmt.Sprintf("m%d%ds", md.N, md.M)
	default:
		return fmt.Sprintf("m%d%d", md.N, md.M)
	}
}

// Config holds the basis parameters fixed at configuration time and shared
// read-only across a run.
type Config struct {
	// SigmaArcsec is the Gaussian kernel scale of the shapelet basis in
	// arcseconds.
	SigmaArcsec float64
	// PixelScale is the cutout pixel scale in arcseconds per pixel.
	PixelScale float64
	// MaxOrder is the highest radial order n in the index set. Only 4 and 6
	// are supported; the estimator algebra is derived for these two sets.
	MaxOrder int
	// StabilityLimit caps MaxOrder. Laguerre recurrences above this order
	// are not validated for this kernel and are refused outright.
	StabilityLimit int
	// KmaxPerSigma truncates the Fourier grid at |k|*sigma <= KmaxPerSigma.
	// Beyond this radius the Gaussian weight has decayed below 1e-2 and
	// deconvolution only amplifies noise.
	KmaxPerSigma float64
}

// DefaultConfig mirrors the survey defaults: a 0.52" kernel on 0.2" pixels
// with radial order 4 and the standard Fourier truncation.
func DefaultConfig() Config {
	return Config{
		SigmaArcsec:    0.52,
		PixelScale:     0.2,
		MaxOrder:       4,
		StabilityLimit: 12,
		KmaxPerSigma:   3.05,
	}
}

// Basis is an immutable, validated basis: the ordered index set, its name
// table, and the precomputed first-order shear transfer matrices. A Basis is
// safe for concurrent use.
type Basis struct {
	cfg         Config
	modes       []Mode
	index       map[string]int
	t1, t2      [][]float64 // shear transfer tables, dM_q/dg = sum_p t[q][p] M_p
	fingerprint string
}

// New validates cfg and builds the basis. Violations return an error
// wrapping ErrInvalidConfiguration and perform no further work.
func New(cfg Config) (*Basis, error) {
	if cfg.SigmaArcsec <= 0 {
		return nil, fmt.Errorf("%w: sigma_arcsec must be positive, got %g", ErrInvalidConfiguration, cfg.SigmaArcsec)
	}
	if cfg.PixelScale <= 0 {
		return nil, fmt.Errorf("%w: pixel_scale must be positive, got %g", ErrInvalidConfiguration, cfg.PixelScale)
	}
	if cfg.StabilityLimit <= 0 {
		return nil, fmt.Errorf("%w: stability_limit must be positive, got %d", ErrInvalidConfiguration, cfg.StabilityLimit)
	}
	if cfg.MaxOrder > cfg.StabilityLimit {
		return nil, fmt.Errorf("%w: max_order %d exceeds stability limit %d", ErrInvalidConfiguration, cfg.MaxOrder, cfg.StabilityLimit)
	}
	if cfg.MaxOrder != 4 && cfg.MaxOrder != 6 {
		return nil, fmt.Errorf("%w: max_order must be 4 or 6, got %d", ErrInvalidConfiguration, cfg.MaxOrder)
	}
	if cfg.KmaxPerSigma <= 0 {
		return nil, fmt.Errorf("%w: kmax_per_sigma must be positive, got %g", ErrInvalidConfiguration, cfg.KmaxPerSigma)
	}

	b := &Basis{
		cfg:   cfg,
		modes: indexSet(cfg.MaxOrder),
		index: make(map[string]int),
	}
	for i, md := range b.modes {
		b.index[md.Name()] = i
	}
	b.t1, b.t2 = transferTables(b.modes, b.index)
	b.fingerprint = fmt.Sprintf("nord%d:sigma%.6g:scale%.6g:kmax%.6g",
		cfg.MaxOrder, cfg.SigmaArcsec, cfg.PixelScale, cfg.KmaxPerSigma)
	return b, nil
}

// indexSet returns the ordered (n, m) set for the given radial order. The
// ordering and names match the survey catalog columns.
func indexSet(maxOrder int) []Mode {
	modes := []Mode{
		{0, 0, PartRadial},
		{2, 0, PartRadial},
		{2, 2, PartCos},
		{2, 2, PartSin},
		{4, 0, PartRadial},
		{4, 2, PartCos},
		{4, 2, PartSin},
		{4, 4, PartCos},
		{4, 4, PartSin},
	}
	if maxOrder >= 6 {
		modes = append(modes,
			Mode{6, 0, PartRadial},
			Mode{6, 2, PartCos},
			Mode{6, 2, PartSin},
		)
	}
	return modes
}

// Config returns a copy of the validated configuration.
func (b *Basis) Config() Config { return b.cfg }

// Modes returns the ordered index set. Callers must not mutate it.
func (b *Basis) Modes() []Mode { return b.modes }

// NumModes returns the length of the moment vector.
func (b *Basis) NumModes() int { return len(b.modes) }

// Names returns the catalog column name of every mode, in vector order.
func (b *Basis) Names() []string {
	names := make([]string, len(b.modes))
	for i, md := range b.modes {
		names[i] = md.Name()
	}
	return names
}

// IndexOf returns the vector index of the named mode, or -1 if the mode is
// not in the index set.
func (b *Basis) IndexOf(name string) int {
	i, ok := b.index[name]
	if !ok {
		return -1
	}
	return i
}

// Fingerprint identifies the basis parameters. Moment vectors and covariance
// matrices are stamped with it so that mixing products of different bases is
// detected instead of silently producing garbage.
func (b *Basis) Fingerprint() string { return b.fingerprint }

// radial evaluates the radial part R_nm(r) of the unit-scale shapelet,
// including the orthonormal prefactor (-1)^p sqrt(p!/(pi q!)).
func radial(n, m int, r float64) float64 {
	p := (n - m) / 2
	q := (n + m) / 2
	norm := math.Sqrt(factorial(p) / (math.Pi * factorial(q)))
	if p%2 == 1 {
		norm = -norm
	}
	x := r * r
	v := norm * laguerre(p, float64(m), x) * math.Exp(-x/2)
	for i := 0; i < m; i++ {
		v *= r
	}
	return v
}

// laguerre evaluates the generalized Laguerre polynomial L^alpha_p(x) by the
// standard three-term upward recurrence. The recurrence is forward stable
// for the argument range used here; an expanded monomial form is not, which
// is why no closed-form polynomial tables appear in this package.
func laguerre(p int, alpha, x float64) float64 {
	if p == 0 {
		return 1
	}
	prev := 1.0
	cur := 1 + alpha - x
	for k := 1; k < p; k++ {
		fk := float64(k)
		next := ((2*fk+1+alpha-x)*cur - (fk+alpha)*prev) / (fk + 1)
		prev, cur = cur, next
	}
	return cur
}

func factorial(n int) float64 {
	f := 1.0
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return f
}
