package estimator

import "github.com/lensmetry/anashear/internal/moments"

// The estimator outputs are rational functions of the moment vector with a
// common linear denominator D = M00 + C. Their second-order noise biases are
// Hessian-covariance contractions, bias(f) = 1/2 sum_ij d2f/dMi dMj Cov_ij,
// which close in a handful of quadratic forms because every numerator is
// linear or a product of two linear forms. The helpers below evaluate value,
// gradient and bias for the three shapes that occur:
//
//	u/D      (ellipticity, linear response term)
//	u*v/D    (selection-derivative term)
//	u*v/D^2  (quadratic response term)
//
// All derivative coefficients are fixed at configuration time (the linear
// forms come straight from the shear transfer tables); at measurement time
// only contractions with the covariance remain.

// algebra bundles the per-object quantities every contraction needs: the
// moment vector, its covariance, the denominator value and the denominator's
// (unit) gradient index.
type algebra struct {
	m    []float64
	cov  *moments.Covariance
	d    float64
	i00  int
	varD float64
}

func dot(u, m []float64) float64 {
	var s float64
	for i, c := range u {
		if c != 0 {
			s += c * m[i]
		}
	}
	return s
}

// covD returns Cov(u . M, D) = sum_j u_j Cov(M00, M_j).
func (a *algebra) covD(u []float64) float64 {
	return a.cov.RowDot(a.i00, u)
}

// linRatio evaluates f = (u . M)/D.
func (a *algebra) linRatio(u []float64) (val float64, grad []float64, bias float64) {
	uv := dot(u, a.m)
	val = uv / a.d
	grad = make([]float64, len(a.m))
	for i, c := range u {
		grad[i] = c / a.d
	}
	grad[a.i00] -= uv / (a.d * a.d)
	bias = -a.covD(u)/(a.d*a.d) + uv*a.varD/(a.d*a.d*a.d)
	return val, grad, bias
}

// prodRatio1 evaluates f = (u . M)(v . M)/D.
func (a *algebra) prodRatio1(u, v []float64) (val float64, grad []float64, bias float64) {
	uv := dot(u, a.m)
	vv := dot(v, a.m)
	d := a.d
	val = uv * vv / d

	grad = make([]float64, len(a.m))
	for i := range a.m {
		grad[i] = (u[i]*vv + v[i]*uv) / d
	}
	grad[a.i00] -= uv * vv / (d * d)

	covUV := a.cov.Quad(u, v)
	bias = covUV/d - (uv*a.covD(v)+vv*a.covD(u))/(d*d) + uv*vv*a.varD/(d*d*d)
	return val, grad, bias
}

// prodRatio2 evaluates f = (u . M)(v . M)/D^2.
func (a *algebra) prodRatio2(u, v []float64) (val float64, grad []float64, bias float64) {
	uv := dot(u, a.m)
	vv := dot(v, a.m)
	d := a.d
	d2 := d * d
	val = uv * vv / d2

	grad = make([]float64, len(a.m))
	for i := range a.m {
		grad[i] = (u[i]*vv + v[i]*uv) / d2
	}
	grad[a.i00] -= 2 * uv * vv / (d2 * d)

	covUV := a.cov.Quad(u, v)
	bias = covUV/d2 - 2*(uv*a.covD(v)+vv*a.covD(u))/(d2*d) + 3*uv*vv*a.varD/(d2*d2)
	return val, grad, bias
}

// unit returns the n-length unit coefficient vector for index i.
func unit(n, i int) []float64 {
	u := make([]float64, n)
	u[i] = 1
	return u
}
