package ensemble

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/lensmetry/anashear/internal/estimator"
	"github.com/lensmetry/anashear/internal/moments"
	"github.com/lensmetry/anashear/internal/shapelet"
)

// TestSelectionCorrectionOnZeroShearEnsemble aggregates a zero-shear
// ensemble of 90-degree-rotated object pairs under an SNR selection ramp
// and correlated M00/M22c noise. Pairing cancels intrinsic shape exactly,
// so any aggregate offset is noise and selection bias: the raw summands
// must show it, the corrected aggregate must not.
func TestSelectionCorrectionOnZeroShearEnsemble(t *testing.T) {
	if testing.Short() {
		t.Skip("Monte Carlo ensemble check skipped in short mode")
	}
	basis, err := shapelet.New(shapelet.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	cfg := estimator.DefaultConfig()
	cfg.SNRMin = 18
	cfg.SNRWidth = 6
	builder, err := estimator.NewBuilder(basis, cfg)
	if err != nil {
		t.Fatal(err)
	}

	const (
		a     = 0.5  // sigma of M00 noise, so true SNR = 20 sits on the ramp
		r     = 0.15 // correlated part of M22c noise
		s     = 0.2  // independent part of M22c noise
		pairs = 50000
	)
	nm := basis.NumModes()
	i00 := basis.IndexOf("m00")
	i22c := basis.IndexOf("m22c")
	sym := mat.NewSymDense(nm, nil)
	sym.SetSym(i00, i00, a*a)
	sym.SetSym(i00, i22c, a*r)
	sym.SetSym(i22c, i22c, r*r+s*s)
	cov := &moments.Covariance{Sym: sym, Fingerprint: basis.Fingerprint()}

	base := make([]float64, nm)
	set := func(name string, v float64) { base[basis.IndexOf(name)] = v }
	set("m00", 10)
	set("m20", -3)
	set("m40", 1.2)
	set("m44c", 0.1)
	set("m44s", 0.05)
	// Spin-2 moments flip under the pair rotation; spin-0 and spin-4 do not.
	spin2 := map[string]float64{"m22c": 0.8, "m22s": -0.5, "m42c": 0.3, "m42s": -0.2}

	acc := NewAccumulator(false)
	var rawNum [2]float64
	var rawDen [2][2]float64
	rng := rand.New(rand.NewPCG(5, 11))
	for p := 0; p < pairs; p++ {
		for _, sgn := range []float64{1, -1} {
			m := make([]float64, nm)
			copy(m, base)
			for name, v := range spin2 {
				m[basis.IndexOf(name)] = sgn * v
			}
			z0 := rng.NormFloat64()
			z1 := rng.NormFloat64()
			m[i00] += a * z0
			m[i22c] += r*z0 + s*z1

			res, err := builder.Build(&moments.Vector{Data: m, Fingerprint: basis.Fingerprint()}, cov)
			if err != nil {
				t.Fatal(err)
			}
			acc.Add(res)
			for j := 0; j < 2; j++ {
				rawNum[j] += res.NumRaw[j]
				for k := 0; k < 2; k++ {
					rawDen[j][k] += res.DenRaw[j][k]
				}
			}
		}
	}

	corrected, err := acc.Estimate()
	if err != nil {
		t.Fatal(err)
	}
	raw, err := solve2(rawDen, rawNum)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(raw[0]) < 5e-3 {
		t.Errorf("uncorrected aggregate g1 = %+.5f, expected a visible noise/selection offset", raw[0])
	}
	if math.Abs(corrected.G1) > 1e-3 {
		t.Errorf("corrected aggregate g1 = %+.5f, want consistent with zero", corrected.G1)
	}
	if math.Abs(corrected.G2) > 1e-3 {
		t.Errorf("corrected aggregate g2 = %+.5f, want consistent with zero", corrected.G2)
	}
	if corrected.NGood != 2*pairs {
		t.Errorf("NGood = %d, want %d", corrected.NGood, 2*pairs)
	}
}
