package simulate

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lensmetry/anashear/internal/moments"
	"github.com/lensmetry/anashear/internal/shapelet"
)

// NoiseSource draws white Gaussian pixel noise from a seeded stream, so a
// simulation run is reproducible from its seed alone.
type NoiseSource struct {
	dist distuv.Normal
}

// NewNoiseSource returns a source with per-pixel standard deviation sigma.
func NewNoiseSource(sigma float64, seed uint64) (*NoiseSource, error) {
	if sigma < 0 {
		return nil, fmt.Errorf("%w: noise sigma must be non-negative, got %g", shapelet.ErrInvalidConfiguration, sigma)
	}
	return &NoiseSource{
		dist: distuv.Normal{Mu: 0, Sigma: sigma, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)},
	}, nil
}

// Stamp draws a pure-noise stamp, the second channel of a paired
// measurement.
func (n *NoiseSource) Stamp(nx, ny int, scale float64) (*moments.Cutout, error) {
	pix := make([]float64, nx*ny)
	if n.dist.Sigma > 0 {
		for i := range pix {
			pix[i] = n.dist.Rand()
		}
	}
	return moments.NewCutout(pix, nx, ny, scale)
}

// AddTo adds noise to an existing stamp in place and returns it.
func (n *NoiseSource) AddTo(cut *moments.Cutout) *moments.Cutout {
	if n.dist.Sigma > 0 {
		for i := range cut.Pix {
			cut.Pix[i] += n.dist.Rand()
		}
	}
	return cut
}
