package shapelet

import "math"

// Shear mixes shapelet modes of adjacent angular order. To first order an
// applied shear (g1, g2) maps the moment vector M to M + g1*T1*M + g2*T2*M,
// where T1 and T2 are fixed sparse matrices determined entirely by the basis.
// The coefficients below are the projections of the shear generator
// (k1 d/dk1 - k2 d/dk2 for g1, k2 d/dk1 + k1 d/dk2 for g2) acting on each
// basis function, re-expanded on the basis. Because the generator field is
// divergence free, the in-set transfer matrices are exactly antisymmetric
// under the orthonormal inner product; transferTables builds only the upper
// entries and mirrors them, and TestTransferAntisymmetry pins the property.
//
// Entries that couple to modes above the configured order (m64, m66, m8x)
// are truncated. The truncation never touches the ellipticity response:
// dM00/dg and dM22/dg close exactly on the order-4 set.

type transferEntry struct {
	q, p string  // dM_q/dg += c * M_p
	c    float64 // coefficient for the named pair; mirrored as -c for (p, q)
}

var (
	sqrt2  = math.Sqrt(2)
	sqrt3  = math.Sqrt(3)
	sqrt6  = math.Sqrt(6)
	invSq2 = 1 / math.Sqrt(2)
)

// g1Entries lists the independent coefficients of T1. The mirror image
// (p, q, -c) is implied.
var g1Entries = []transferEntry{
	{"m00", "m22c", -1},
	{"m20", "m42c", -sqrt3},
	{"m22c", "m40", -1},
	{"m22c", "m44c", -sqrt3},
	{"m22s", "m44s", -sqrt3},
	{"m40", "m62c", -sqrt6},
	{"m42c", "m60", -sqrt3},
	{"m44c", "m62c", -invSq2},
	{"m44s", "m62s", -invSq2},
}

// g2Entries lists the independent coefficients of T2.
var g2Entries = []transferEntry{
	{"m00", "m22s", -1},
	{"m20", "m42s", -sqrt3},
	{"m22s", "m40", -1},
	{"m22s", "m44c", sqrt3},
	{"m22c", "m44s", -sqrt3},
	{"m40", "m62s", -sqrt6},
	{"m42s", "m60", -sqrt3},
	{"m44c", "m62s", invSq2},
	{"m44s", "m62c", -invSq2},
}

// transferTables materializes T1 and T2 as dense matrices over the index
// set. Pairs whose partner lies above the configured order are dropped.
func transferTables(modes []Mode, index map[string]int) (t1, t2 [][]float64) {
	n := len(modes)
	t1 = zeros(n)
	t2 = zeros(n)
	fill := func(t [][]float64, entries []transferEntry) {
		for _, e := range entries {
			q, okq := index[e.q]
			p, okp := index[e.p]
			if !okq || !okp {
				continue
			}
			t[q][p] += e.c
			t[p][q] -= e.c
		}
	}
	fill(t1, g1Entries)
	fill(t2, g2Entries)
	return t1, t2
}

func zeros(n int) [][]float64 {
	t := make([][]float64, n)
	for i := range t {
		t[i] = make([]float64, n)
	}
	return t
}

// TransferG1 returns row q of T1: the linear combination of moments giving
// dM_q/dg1. The returned slice is shared and must not be mutated.
func (b *Basis) TransferG1(q int) []float64 { return b.t1[q] }

// TransferG2 returns row q of T2.
func (b *Basis) TransferG2(q int) []float64 { return b.t2[q] }

// ShearDerivative returns T_j * M, the first derivative of every moment with
// respect to shear component j (1 or 2), evaluated at the given moments.
func (b *Basis) ShearDerivative(moments []float64, j int) []float64 {
	t := b.t1
	if j == 2 {
		t = b.t2
	}
	out := make([]float64, len(moments))
	for q := range t {
		var s float64
		for p, c := range t[q] {
			if c != 0 {
				s += c * moments[p]
			}
		}
		out[q] = s
	}
	return out
}

// ApplyShear returns the moment vector after an infinitesimal shear,
// M + g1*T1*M + g2*T2*M. It is first order by construction and is the
// transformation rule against which analytic responses are validated.
func (b *Basis) ApplyShear(moments []float64, g1, g2 float64) []float64 {
	d1 := b.ShearDerivative(moments, 1)
	d2 := b.ShearDerivative(moments, 2)
	out := make([]float64, len(moments))
	for i := range moments {
		out[i] = moments[i] + g1*d1[i] + g2*d2[i]
	}
	return out
}
