// Package ensemble aggregates per-object shear summands into an ensemble
// estimate. The shear is a ratio of sums, not a mean of ratios: the
// numerator and denominator (response) sums are accumulated separately and
// divided once at the end, which keeps per-object noise out of the
// denominator.
//
// Accumulation is exact. Each running sum is kept as a Shewchuk expansion,
// a list of non-overlapping floats whose mathematical sum is the exact sum
// of every value added so far. Exactness buys a strong operational
// property: merging partial accumulators is associative and commutative at
// the bit level, so an ensemble estimate is identical no matter how the
// catalog was sharded across workers.
package ensemble

// expansion is a non-overlapping floating-point expansion, least
// significant component first. The zero value is an empty sum.
type expansion struct {
	c []float64
}

// add grows the expansion by one value (Shewchuk's GROW-EXPANSION built on
// TWO-SUM). Every step is an error-free transformation, so the components
// always sum to the exact running total.
func (e *expansion) add(v float64) {
	var out []float64
	if cap(e.c) > len(e.c) {
		out = e.c[:0]
	} else {
		out = make([]float64, 0, len(e.c)+1)
	}
	for _, c := range e.c {
		s := c + v
		bv := s - c
		err := (c - (s - bv)) + (v - bv)
		if err != 0 {
			out = append(out, err)
		}
		v = s
	}
	e.c = append(out, v)
}

// merge folds another expansion into this one. Because add is exact the
// result is the expansion of the combined sum, independent of merge order.
func (e *expansion) merge(o *expansion) {
	for _, c := range o.c {
		e.add(c)
	}
}

// value rounds the exact sum to the nearest float64. The components are
// ordered by increasing magnitude and non-overlapping, so summing upward
// commits each low-order bit exactly once.
func (e *expansion) value() float64 {
	var s float64
	for _, c := range e.c {
		s += c
	}
	return s
}

// components returns a copy of the raw expansion, exposing the exact
// representation to tests.
func (e *expansion) components() []float64 {
	out := make([]float64, len(e.c))
	copy(out, e.c)
	return out
}

// fromComponents rebuilds an expansion from its components.
func fromComponents(c []float64) expansion {
	var e expansion
	for _, v := range c {
		e.add(v)
	}
	return e
}
