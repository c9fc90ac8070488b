package estimator

import (
	"math"
	"testing"
)

func TestRampDisabled(t *testing.T) {
	for _, r := range []Ramp{{}, {Min: 5, Width: 0}, {Min: 5, Width: -1}} {
		if r.Enabled() {
			t.Errorf("ramp %+v should be disabled", r)
		}
		w, d1, d2, d3 := r.Eval(-100)
		if w != 1 || d1 != 0 || d2 != 0 || d3 != 0 {
			t.Errorf("disabled ramp Eval = (%g, %g, %g, %g), want (1, 0, 0, 0)", w, d1, d2, d3)
		}
	}
}

func TestRampEndpoints(t *testing.T) {
	r := Ramp{Min: 10, Width: 2}
	if w, _, _, _ := r.Eval(9.999); w != 0 {
		t.Errorf("below ramp: w = %g, want 0", w)
	}
	if w, _, _, _ := r.Eval(12.001); w != 1 {
		t.Errorf("above ramp: w = %g, want 1", w)
	}
	if w, _, _, _ := r.Eval(math.Inf(1)); w != 1 {
		t.Errorf("at +Inf: w = %g, want 1", w)
	}
	if w, _, _, _ := r.Eval(11); math.Abs(w-0.5) > 1e-15 {
		t.Errorf("at midpoint: w = %g, want 0.5", w)
	}
}

// Each returned derivative must be the finite difference of the one before
// it, everywhere inside the ramp.
func TestRampDerivativesConsistent(t *testing.T) {
	r := Ramp{Min: 10, Width: 3}
	const h = 1e-5
	for s := 10.2; s < 12.9; s += 0.3 {
		wp, d1p, d2p, _ := r.Eval(s + h)
		wm, d1m, d2m, _ := r.Eval(s - h)
		_, d1, d2, d3 := r.Eval(s)

		if got := (wp - wm) / (2 * h); math.Abs(got-d1) > 1e-8 {
			t.Errorf("s=%g: d1 = %g, finite difference %g", s, d1, got)
		}
		if got := (d1p - d1m) / (2 * h); math.Abs(got-d2) > 1e-7 {
			t.Errorf("s=%g: d2 = %g, finite difference %g", s, d2, got)
		}
		if got := (d2p - d2m) / (2 * h); math.Abs(got-d3) > 1e-6 {
			t.Errorf("s=%g: d3 = %g, finite difference %g", s, d3, got)
		}
	}
}

func TestRampMonotonic(t *testing.T) {
	r := Ramp{Min: 8, Width: 4}
	prev := -1.0
	for s := 7.0; s < 13; s += 0.05 {
		w, d1, _, _ := r.Eval(s)
		if w < prev {
			t.Fatalf("ramp decreases at s=%g", s)
		}
		if d1 < 0 {
			t.Fatalf("negative slope %g at s=%g", d1, s)
		}
		prev = w
	}
}
