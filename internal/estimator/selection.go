package estimator

import "math"

// Ramp is a smooth raised-cosine step used as the selection function: zero
// below Min, one above Min+Width, and half a cosine wave in between. The
// smoothness matters twice over: the shear derivative of the pass
// probability (the selection-bias term) and the second-order noise terms
// both need derivatives of the selection function, which a hard cut does
// not have.
type Ramp struct {
	Min   float64
	Width float64
}

// Enabled reports whether the ramp does anything; a non-positive width
// disables selection entirely (every object passes with unit weight).
func (r Ramp) Enabled() bool { return r.Width > 0 }

// Eval returns the ramp value and its first three derivatives at s. The
// third derivative appears in the noise correction of the selection term,
// which multiplies the first derivative of the ramp by a ratio of moments.
func (r Ramp) Eval(s float64) (w, d1, d2, d3 float64) {
	if !r.Enabled() {
		return 1, 0, 0, 0
	}
	t := s - r.Min
	switch {
	case t <= 0:
		return 0, 0, 0, 0
	case t >= r.Width:
		return 1, 0, 0, 0
	}
	a := math.Pi / r.Width
	sin, cos := math.Sincos(a * t)
	w = 0.5 * (1 - cos)
	d1 = 0.5 * a * sin
	d2 = 0.5 * a * a * cos
	d3 = -0.5 * a * a * a * sin
	return w, d1, d2, d3
}
