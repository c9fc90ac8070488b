package simulate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SceneConfig is the JSON configuration of a simulation run: stamp
// geometry, PSF model, galaxy population and the applied shear. Fields
// omitted from the JSON keep their defaults via the Get* methods, so
// partial configs are safe.
type SceneConfig struct {
	StampSize  *int     `json:"stamp_size,omitempty"`
	PixelScale *float64 `json:"pixel_scale,omitempty"`

	// PSF model: "gaussian" or "moffat".
	PSFModel *string  `json:"psf_model,omitempty"`
	PSFFWHM  *float64 `json:"psf_fwhm,omitempty"`
	PSFBeta  *float64 `json:"psf_beta,omitempty"`

	GalaxyFlux     *float64 `json:"galaxy_flux,omitempty"`
	GalaxySigma    *float64 `json:"galaxy_sigma,omitempty"`
	EllipticityRMS *float64 `json:"ellipticity_rms,omitempty"`

	ShearG1 *float64 `json:"shear_g1,omitempty"`
	ShearG2 *float64 `json:"shear_g2,omitempty"`

	NPairs     *int     `json:"n_pairs,omitempty"`
	NoiseSigma *float64 `json:"noise_sigma,omitempty"`
	PairNoise  *bool    `json:"pair_noise,omitempty"`
	Seed       *int64   `json:"seed,omitempty"`
}

// EmptySceneConfig returns a SceneConfig with all fields unset.
func EmptySceneConfig() *SceneConfig {
	return &SceneConfig{}
}

// LoadSceneConfig loads a SceneConfig from a JSON file.
func LoadSceneConfig(path string) (*SceneConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("scene config must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene config: %w", err)
	}
	cfg := EmptySceneConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scene config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scene config: %w", err)
	}
	return cfg, nil
}

// Validate checks that any set values are usable.
func (c *SceneConfig) Validate() error {
	if c.StampSize != nil && *c.StampSize < 16 {
		return fmt.Errorf("stamp_size must be at least 16, got %d", *c.StampSize)
	}
	if c.PixelScale != nil && *c.PixelScale <= 0 {
		return fmt.Errorf("pixel_scale must be positive, got %g", *c.PixelScale)
	}
	if c.PSFModel != nil && *c.PSFModel != "gaussian" && *c.PSFModel != "moffat" {
		return fmt.Errorf("psf_model must be \"gaussian\" or \"moffat\", got %q", *c.PSFModel)
	}
	if c.PSFFWHM != nil && *c.PSFFWHM <= 0 {
		return fmt.Errorf("psf_fwhm must be positive, got %g", *c.PSFFWHM)
	}
	if c.PSFBeta != nil && *c.PSFBeta <= 1 {
		return fmt.Errorf("psf_beta must be greater than 1, got %g", *c.PSFBeta)
	}
	if c.EllipticityRMS != nil && (*c.EllipticityRMS < 0 || *c.EllipticityRMS >= 1) {
		return fmt.Errorf("ellipticity_rms must be in [0, 1), got %g", *c.EllipticityRMS)
	}
	if c.NPairs != nil && *c.NPairs < 1 {
		return fmt.Errorf("n_pairs must be positive, got %d", *c.NPairs)
	}
	if c.NoiseSigma != nil && *c.NoiseSigma < 0 {
		return fmt.Errorf("noise_sigma must be non-negative, got %g", *c.NoiseSigma)
	}
	return nil
}

// GetStampSize returns the stamp side length or the default.
func (c *SceneConfig) GetStampSize() int {
	if c.StampSize == nil {
		return 64
	}
	return *c.StampSize
}

// GetPixelScale returns the pixel scale in arcsec or the default.
func (c *SceneConfig) GetPixelScale() float64 {
	if c.PixelScale == nil {
		return 0.2
	}
	return *c.PixelScale
}

// GetPSFModel returns the PSF model name or the default.
func (c *SceneConfig) GetPSFModel() string {
	if c.PSFModel == nil {
		return "gaussian"
	}
	return *c.PSFModel
}

// GetPSFFWHM returns the PSF FWHM in arcsec or the default.
func (c *SceneConfig) GetPSFFWHM() float64 {
	if c.PSFFWHM == nil {
		return 0.7
	}
	return *c.PSFFWHM
}

// GetPSFBeta returns the Moffat beta or the default.
func (c *SceneConfig) GetPSFBeta() float64 {
	if c.PSFBeta == nil {
		return 3.5
	}
	return *c.PSFBeta
}

// GetGalaxyFlux returns the galaxy flux or the default.
func (c *SceneConfig) GetGalaxyFlux() float64 {
	if c.GalaxyFlux == nil {
		return 100
	}
	return *c.GalaxyFlux
}

// GetGalaxySigma returns the galaxy size in arcsec or the default.
func (c *SceneConfig) GetGalaxySigma() float64 {
	if c.GalaxySigma == nil {
		return 0.35
	}
	return *c.GalaxySigma
}

// GetEllipticityRMS returns the per-component intrinsic ellipticity
// scatter or the default.
func (c *SceneConfig) GetEllipticityRMS() float64 {
	if c.EllipticityRMS == nil {
		return 0.2
	}
	return *c.EllipticityRMS
}

// GetShearG1 returns the applied g1 or the default.
func (c *SceneConfig) GetShearG1() float64 {
	if c.ShearG1 == nil {
		return 0.02
	}
	return *c.ShearG1
}

// GetShearG2 returns the applied g2 or the default.
func (c *SceneConfig) GetShearG2() float64 {
	if c.ShearG2 == nil {
		return 0
	}
	return *c.ShearG2
}

// GetNPairs returns the number of orthogonal galaxy pairs or the default.
func (c *SceneConfig) GetNPairs() int {
	if c.NPairs == nil {
		return 1000
	}
	return *c.NPairs
}

// GetNoiseSigma returns the pixel noise sigma or the default.
func (c *SceneConfig) GetNoiseSigma() float64 {
	if c.NoiseSigma == nil {
		return 0
	}
	return *c.NoiseSigma
}

// GetPairNoise reports whether each stamp gets a paired pure-noise
// measurement.
func (c *SceneConfig) GetPairNoise() bool {
	if c.PairNoise == nil {
		return false
	}
	return *c.PairNoise
}

// GetSeed returns the RNG seed or the default.
func (c *SceneConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 42
	}
	return *c.Seed
}
