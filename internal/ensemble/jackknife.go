package ensemble

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// JackknifeResult is a delete-one-patch jackknife over the retained
// summands: the point estimate, the per-component standard errors, and the
// number of patches actually used.
type JackknifeResult struct {
	Shear    Shear
	StdErrG1 float64
	StdErrG2 float64
	NPatches int
}

// Jackknife estimates the ensemble shear and its uncertainty by cyclically
// assigning retained summands to npatches groups and re-solving the ratio
// of sums with each group deleted in turn. Because the shear is a ratio of
// sums, deleting a patch is a subtraction of partial sums, not a
// re-measurement.
func Jackknife(a *Accumulator, npatches int) (JackknifeResult, error) {
	summands := a.Retained()
	if summands == nil {
		return JackknifeResult{}, fmt.Errorf("ensemble: jackknife requires an accumulator with retained summands")
	}
	if npatches < 2 {
		return JackknifeResult{}, fmt.Errorf("ensemble: jackknife needs at least 2 patches, got %d", npatches)
	}
	if npatches > len(summands) {
		npatches = len(summands)
	}
	if npatches < 2 {
		return JackknifeResult{}, fmt.Errorf("ensemble: jackknife needs at least 2 summands, got %d", len(summands))
	}

	full, err := a.Estimate()
	if err != nil {
		return JackknifeResult{}, err
	}

	// Per-patch partial sums.
	pnum := make([][2]float64, npatches)
	pden := make([][2][2]float64, npatches)
	for i, s := range summands {
		p := i % npatches
		for j := 0; j < 2; j++ {
			pnum[p][j] += s.Num[j]
			for k := 0; k < 2; k++ {
				pden[p][j][k] += s.Den[j][k]
			}
		}
	}
	tnum, tden := a.Sums()

	g1 := make([]float64, 0, npatches)
	g2 := make([]float64, 0, npatches)
	for p := 0; p < npatches; p++ {
		var num [2]float64
		var den [2][2]float64
		for j := 0; j < 2; j++ {
			num[j] = tnum[j] - pnum[p][j]
			for k := 0; k < 2; k++ {
				den[j][k] = tden[j][k] - pden[p][j][k]
			}
		}
		g, err := solve2(den, num)
		if err != nil {
			return JackknifeResult{}, fmt.Errorf("ensemble: jackknife patch %d: %w", p, err)
		}
		g1 = append(g1, g[0])
		g2 = append(g2, g[1])
	}

	// Jackknife variance: (n-1)/n * sum (g_p - mean)^2.
	n := float64(npatches)
	scale := (n - 1) * (n - 1) / n // stat.Variance divides by n-1
	res := JackknifeResult{
		Shear:    full,
		StdErrG1: math.Sqrt(scale * stat.Variance(g1, nil)),
		StdErrG2: math.Sqrt(scale * stat.Variance(g2, nil)),
		NPatches: npatches,
	}
	return res, nil
}
