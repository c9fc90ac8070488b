package shapelet

import "math"

// WeightSet holds the basis weights sampled on the DFT grid of an nx-by-ny
// cutout, in DFT index order (row-major, frequencies unshifted). Weight
// values include the i^n phase of the shapelet Fourier transform and the
// quadrature factor 2*pi*sigma/(nx*ny), so that
//
//	M_q = sum_k DFT(f)[k] * W[q][k]
//
// equals the real-space shapelet projection of f. All weights are real
// because the index set contains only even (n, m).
type WeightSet struct {
	Nx, Ny int
	// W[q] is the flattened weight plane of mode q.
	W [][]float64
	// Keep marks modes inside the |k|*sigma <= kmax truncation. Modes
	// outside it carry zero weight and are excluded from every sum,
	// including the covariance propagation.
	Keep []bool
	// Fingerprint of the generating basis.
	Fingerprint string
}

// FourierWeights samples every basis function on the DFT frequency grid of
// an nx-by-ny cutout. The grid is in physical units: k_j = 2*pi*j/(n*scale)
// with j wrapped to [-n/2, n/2). The result is deterministic and read-only;
// one WeightSet is typically shared across all objects of an exposure.
func (b *Basis) FourierWeights(nx, ny int) *WeightSet {
	sigma := b.cfg.SigmaArcsec
	n := len(b.modes)
	ws := &WeightSet{
		Nx:          nx,
		Ny:          ny,
		W:           make([][]float64, n),
		Keep:        make([]bool, nx*ny),
		Fingerprint: b.fingerprint,
	}
	for q := range ws.W {
		ws.W[q] = make([]float64, nx*ny)
	}

	quad := 2 * math.Pi * sigma / float64(nx*ny)
	kx := freqGrid(nx, b.cfg.PixelScale)
	ky := freqGrid(ny, b.cfg.PixelScale)
	kmax := b.cfg.KmaxPerSigma

	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			i := iy*nx + ix
			r := math.Hypot(kx[ix], ky[iy]) * sigma
			if r > kmax {
				continue
			}
			ws.Keep[i] = true
			phi := math.Atan2(ky[iy], kx[ix])
			for q, md := range b.modes {
				v := radial(md.N, md.M, r)
				switch md.Part {
				case PartCos:
					v *= sqrt2 * math.Cos(float64(md.M)*phi)
				case PartSin:
					v *= sqrt2 * math.Sin(float64(md.M)*phi)
				}
				// i^n phase of the shapelet Fourier transform; n is even
				// throughout the set so the weight stays real.
				if md.N%4 == 2 {
					v = -v
				}
				ws.W[q][i] = v * quad
			}
		}
	}
	return ws
}

// freqGrid returns the physical angular frequencies of an n-point DFT with
// the given pixel scale, in DFT output order (0, positive, negative).
func freqGrid(n int, scale float64) []float64 {
	dk := 2 * math.Pi / (float64(n) * scale)
	k := make([]float64, n)
	for j := 0; j < n; j++ {
		jj := j
		if jj >= (n+1)/2 {
			jj -= n
		}
		k[j] = float64(jj) * dk
	}
	return k
}
