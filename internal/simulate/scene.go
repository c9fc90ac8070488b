package simulate

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lensmetry/anashear/internal/moments"
	"github.com/lensmetry/anashear/internal/units"
)

// Scene renders a stream of galaxy stamps under one PSF and one constant
// applied shear. Each call to RenderPair draws a fresh intrinsic
// ellipticity and returns the galaxy alongside its 90-degree rotation;
// averaging over such pairs cancels intrinsic shape noise exactly at the
// population level, isolating the shear signal.
type Scene struct {
	cfg   *SceneConfig
	psf   *moments.Cutout
	gpsf  Gaussian // valid when the PSF model is gaussian
	shape distuv.Normal
	noise *NoiseSource
}

// NewScene validates the configuration and pre-renders the PSF stamp.
func NewScene(cfg *SceneConfig) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.GetStampSize()
	scale := cfg.GetPixelScale()
	seed := uint64(cfg.GetSeed())

	s := &Scene{
		cfg: cfg,
		shape: distuv.Normal{
			Mu:    0,
			Sigma: cfg.GetEllipticityRMS(),
			Src:   rand.NewPCG(seed, seed^0x5851f42d4c957f2d),
		},
	}

	fwhm := cfg.GetPSFFWHM()
	switch cfg.GetPSFModel() {
	case "moffat":
		psf, err := Moffat{FWHM: fwhm, Beta: cfg.GetPSFBeta()}.Render(n, n, scale)
		if err != nil {
			return nil, err
		}
		s.psf = psf
	default:
		s.gpsf = NewGaussian(1, units.SigmaFromFWHM(fwhm), 0, 0)
		psf, err := s.gpsf.Render(n, n, scale)
		if err != nil {
			return nil, err
		}
		s.psf = psf
	}

	noise, err := NewNoiseSource(cfg.GetNoiseSigma(), seed+1)
	if err != nil {
		return nil, err
	}
	s.noise = noise
	return s, nil
}

// PSF returns the rendered PSF stamp shared by every object.
func (s *Scene) PSF() *moments.Cutout { return s.psf }

// NoiseSigma returns the configured per-pixel noise standard deviation.
func (s *Scene) NoiseSigma() float64 { return s.cfg.GetNoiseSigma() }

// NoiseStamp draws a pure-noise stamp with the scene geometry, for the
// paired measurement channel.
func (s *Scene) NoiseStamp() (*moments.Cutout, error) {
	return s.noise.Stamp(s.psf.Nx, s.psf.Ny, s.psf.Scale)
}

// RenderPair draws one intrinsic ellipticity and renders the galaxy and
// its 90-degree rotation, both sheared, PSF-convolved and (if configured)
// noisy.
func (s *Scene) RenderPair() (*moments.Cutout, *moments.Cutout, error) {
	var e1, e2 float64
	for {
		e1 = s.shape.Rand()
		e2 = s.shape.Rand()
		if e1*e1+e2*e2 < 0.9 {
			break
		}
	}
	gal := NewGaussian(s.cfg.GetGalaxyFlux(), s.cfg.GetGalaxySigma(), e1, e2)
	a, err := s.renderOne(gal)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.renderOne(gal.Rotated90())
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (s *Scene) renderOne(gal Gaussian) (*moments.Cutout, error) {
	sheared := gal.Sheared(s.cfg.GetShearG1(), s.cfg.GetShearG2())
	n := s.psf.Nx
	scale := s.psf.Scale

	var cut *moments.Cutout
	var err error
	if s.cfg.GetPSFModel() == "moffat" {
		cut, err = sheared.Render(n, n, scale)
		if err == nil {
			cut, err = Convolve(cut, s.psf)
		}
	} else {
		cut, err = sheared.ConvolvedWith(s.gpsf).Render(n, n, scale)
	}
	if err != nil {
		return nil, fmt.Errorf("simulate: rendering galaxy: %w", err)
	}
	return s.noise.AddTo(cut), nil
}
