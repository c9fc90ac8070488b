package ensemble

import (
	"errors"
	"fmt"

	"github.com/lensmetry/anashear/internal/estimator"
)

// ErrEmptyEnsemble is returned by Estimate when no usable object has been
// accumulated, or when the response matrix of the accumulated set is
// singular.
var ErrEmptyEnsemble = errors.New("ensemble: no invertible response accumulated")

// Shear is an ensemble shear estimate with its bookkeeping.
type Shear struct {
	G1, G2 float64
	// NGood and NSkipped count objects that entered the sums and objects
	// dropped as degenerate. A large skipped fraction invalidates the
	// selection-bias correction, which only covers the smooth ramp.
	NGood    int
	NSkipped int
}

// SkippedFraction is the degenerate fraction of all objects seen.
func (s Shear) SkippedFraction() float64 {
	n := s.NGood + s.NSkipped
	if n == 0 {
		return 0
	}
	return float64(s.NSkipped) / float64(n)
}

// Summand is one object's contribution to the ensemble sums, retained when
// the accumulator is configured for resampling.
type Summand struct {
	Num [2]float64
	Den [2][2]float64
}

// Accumulator collects bias-corrected summands. It is not safe for
// concurrent use; run one per worker and Merge them. Exact accumulation
// makes Merge associative and commutative, so the final estimate does not
// depend on how objects were distributed across accumulators.
type Accumulator struct {
	num  [2]expansion
	den  [2][2]expansion
	good int
	skip int

	retain   bool
	retained []Summand
}

// NewAccumulator returns an empty accumulator. With retain set, every
// summand is kept for jackknife resampling; leave it off for large
// catalogs where only the point estimate is needed.
func NewAccumulator(retain bool) *Accumulator {
	return &Accumulator{retain: retain}
}

// Add folds one object's corrected summands into the sums.
func (a *Accumulator) Add(r *estimator.Result) {
	a.good++
	for j := 0; j < 2; j++ {
		a.num[j].add(r.Num[j])
		for k := 0; k < 2; k++ {
			a.den[j][k].add(r.Den[j][k])
		}
	}
	if a.retain {
		a.retained = append(a.retained, Summand{Num: r.Num, Den: r.Den})
	}
}

// AddSkip records one object dropped as degenerate.
func (a *Accumulator) AddSkip() { a.skip++ }

// Merge folds another accumulator into this one. The other accumulator is
// not modified.
func (a *Accumulator) Merge(o *Accumulator) {
	a.good += o.good
	a.skip += o.skip
	for j := 0; j < 2; j++ {
		a.num[j].merge(&o.num[j])
		for k := 0; k < 2; k++ {
			a.den[j][k].merge(&o.den[j][k])
		}
	}
	if a.retain {
		a.retained = append(a.retained, o.retained...)
	}
}

// NGood returns the number of accumulated objects.
func (a *Accumulator) NGood() int { return a.good }

// NSkipped returns the number of degenerate objects recorded.
func (a *Accumulator) NSkipped() int { return a.skip }

// Sums returns the rounded numerator and denominator sums.
func (a *Accumulator) Sums() (num [2]float64, den [2][2]float64) {
	for j := 0; j < 2; j++ {
		num[j] = a.num[j].value()
		for k := 0; k < 2; k++ {
			den[j][k] = a.den[j][k].value()
		}
	}
	return num, den
}

// Retained returns the per-object summands kept for resampling, in
// accumulation order. Nil unless the accumulator was created with retain.
func (a *Accumulator) Retained() []Summand { return a.retained }

// Estimate solves the 2x2 response system sum(Den) g = sum(Num) for the
// ensemble shear.
func (a *Accumulator) Estimate() (Shear, error) {
	num, den := a.Sums()
	g, err := solve2(den, num)
	if err != nil {
		return Shear{}, err
	}
	return Shear{G1: g[0], G2: g[1], NGood: a.good, NSkipped: a.skip}, nil
}

func solve2(den [2][2]float64, num [2]float64) ([2]float64, error) {
	det := den[0][0]*den[1][1] - den[0][1]*den[1][0]
	if det == 0 {
		return [2]float64{}, fmt.Errorf("%w: det=0 over %v", ErrEmptyEnsemble, den)
	}
	return [2]float64{
		(num[0]*den[1][1] - num[1]*den[0][1]) / det,
		(num[1]*den[0][0] - num[0]*den[1][0]) / det,
	}, nil
}
