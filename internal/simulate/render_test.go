package simulate

import (
	"math"
	"testing"
)

func TestGaussianRenderFluxAndCenter(t *testing.T) {
	g := NewGaussian(40, 0.4, 0, 0)
	cut, err := g.Render(64, 64, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	if got := cut.Sum(); math.Abs(got-40) > 1e-3*40 {
		t.Errorf("rendered flux = %g, want 40", got)
	}
	// Peak at the stamp center.
	peak := cut.At(32, 32)
	for _, v := range cut.Pix {
		if v > peak {
			t.Fatal("brightest pixel is off-center")
		}
	}
}

func TestGaussianShearedMatrix(t *testing.T) {
	g := NewGaussian(1, 1, 0, 0) // unit circular: Q = I
	const g1, g2 = 0.05, -0.02
	s := g.Sheared(g1, g2)

	// A Q A^T with Q = I is A A^T.
	a11, a12, a21, a22 := 1+g1, g2, g2, 1-g1
	wantXX := a11*a11 + a12*a12
	wantXY := a11*a21 + a12*a22
	wantYY := a21*a21 + a22*a22
	if math.Abs(s.Qxx-wantXX) > 1e-15 || math.Abs(s.Qxy-wantXY) > 1e-15 || math.Abs(s.Qyy-wantYY) > 1e-15 {
		t.Errorf("sheared Q = (%g, %g, %g), want (%g, %g, %g)", s.Qxx, s.Qxy, s.Qyy, wantXX, wantXY, wantYY)
	}
	if s.Flux != g.Flux {
		t.Errorf("shear changed flux to %g", s.Flux)
	}
}

func TestRotated90NegatesEllipticity(t *testing.T) {
	g := NewGaussian(10, 0.5, 0.3, -0.2)
	r := g.Rotated90()
	if r.Qxx != g.Qyy || r.Qyy != g.Qxx || r.Qxy != -g.Qxy {
		t.Errorf("rotation gave Q = (%g, %g, %g) from (%g, %g, %g)",
			r.Qxx, r.Qxy, r.Qyy, g.Qxx, g.Qxy, g.Qyy)
	}
	// Rotating twice restores the profile.
	rr := r.Rotated90()
	if rr != g {
		t.Errorf("double rotation changed the profile: %+v vs %+v", rr, g)
	}
}

func TestGaussianConvolutionAddsMoments(t *testing.T) {
	a := NewGaussian(5, 0.4, 0.2, 0.1)
	b := NewGaussian(1, 0.3, 0, 0)
	c := a.ConvolvedWith(b)
	if math.Abs(c.Qxx-(a.Qxx+b.Qxx)) > 1e-15 || math.Abs(c.Qyy-(a.Qyy+b.Qyy)) > 1e-15 {
		t.Error("convolution did not add second moments")
	}
	if c.Flux != 5 {
		t.Errorf("flux after unit-flux convolution = %g, want 5", c.Flux)
	}
}

func TestGaussianRenderRejectsDegenerateMatrix(t *testing.T) {
	g := Gaussian{Flux: 1, Qxx: 1, Qxy: 1, Qyy: 1} // det = 0
	if _, err := g.Render(16, 16, 0.2); err == nil {
		t.Error("singular moment matrix accepted")
	}
}

func TestMoffatNormalizedAndValidated(t *testing.T) {
	m := Moffat{FWHM: 0.7, Beta: 3.5}
	cut, err := m.Render(64, 64, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	if got := cut.Sum(); math.Abs(got-1) > 1e-12 {
		t.Errorf("Moffat sum = %.15g, want 1", got)
	}
	if _, err := (Moffat{FWHM: 0, Beta: 3}).Render(16, 16, 0.2); err == nil {
		t.Error("zero FWHM accepted")
	}
	if _, err := (Moffat{FWHM: 0.7, Beta: 1}).Render(16, 16, 0.2); err == nil {
		t.Error("beta = 1 accepted")
	}
}

// Convolution with a centered delta stamp is the identity.
func TestConvolveDeltaIdentity(t *testing.T) {
	g := NewGaussian(10, 0.4, 0.2, -0.1)
	img, err := g.Render(32, 32, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	deltaPix := make([]float64, 32*32)
	deltaPix[16*32+16] = 1
	delta, err := NewGaussian(1, 0.1, 0, 0).Render(32, 32, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	copy(delta.Pix, deltaPix)

	out, err := Convolve(img, delta)
	if err != nil {
		t.Fatal(err)
	}
	for i := range img.Pix {
		if math.Abs(out.Pix[i]-img.Pix[i]) > 1e-12 {
			t.Fatalf("pixel %d changed under delta convolution: %g vs %g", i, out.Pix[i], img.Pix[i])
		}
	}
}

// FFT convolution with a Gaussian must agree with the analytic
// moment-matrix addition.
func TestConvolveMatchesAnalyticGaussian(t *testing.T) {
	gal := NewGaussian(20, 0.45, 0.2, -0.1)
	psf := NewGaussian(1, 0.3, 0, 0)
	const n, scale = 64, 0.2

	galStamp, err := gal.Render(n, n, scale)
	if err != nil {
		t.Fatal(err)
	}
	psfStamp, err := psf.Render(n, n, scale)
	if err != nil {
		t.Fatal(err)
	}
	numeric, err := Convolve(galStamp, psfStamp)
	if err != nil {
		t.Fatal(err)
	}
	analytic, err := gal.ConvolvedWith(psf).Render(n, n, scale)
	if err != nil {
		t.Fatal(err)
	}

	peak := analytic.At(n/2, n/2)
	for i := range analytic.Pix {
		if math.Abs(numeric.Pix[i]-analytic.Pix[i]) > 1e-4*peak {
			t.Fatalf("pixel %d: FFT %g vs analytic %g", i, numeric.Pix[i], analytic.Pix[i])
		}
	}
}

func TestConvolveRejectsMismatchedStamps(t *testing.T) {
	a, _ := NewGaussian(1, 0.3, 0, 0).Render(32, 32, 0.2)
	b, _ := NewGaussian(1, 0.3, 0, 0).Render(16, 16, 0.2)
	if _, err := Convolve(a, b); err == nil {
		t.Error("mismatched stamp shapes accepted")
	}
}
