package shapelet

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	base := DefaultConfig()
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sigma", func(c *Config) { c.SigmaArcsec = 0 }},
		{"negative sigma", func(c *Config) { c.SigmaArcsec = -0.5 }},
		{"zero pixel scale", func(c *Config) { c.PixelScale = 0 }},
		{"zero stability limit", func(c *Config) { c.StabilityLimit = 0 }},
		{"order above stability limit", func(c *Config) { c.MaxOrder = 6; c.StabilityLimit = 5 }},
		{"odd order", func(c *Config) { c.MaxOrder = 5 }},
		{"order 8 unsupported", func(c *Config) { c.MaxOrder = 8 }},
		{"zero kmax", func(c *Config) { c.KmaxPerSigma = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			b, err := New(cfg)
			if b != nil {
				t.Errorf("New returned a basis for invalid config %+v", cfg)
			}
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("error = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	b, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New(DefaultConfig()) failed: %v", err)
	}
	if got := b.NumModes(); got != 9 {
		t.Errorf("order-4 basis has %d modes, want 9", got)
	}
}

func TestIndexSetNames(t *testing.T) {
	b4, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	want4 := []string{"m00", "m20", "m22c", "m22s", "m40", "m42c", "m42s", "m44c", "m44s"}
	if diff := cmp.Diff(want4, b4.Names()); diff != "" {
		t.Errorf("order-4 names mismatch (-want +got):\n%s", diff)
	}

	cfg := DefaultConfig()
	cfg.MaxOrder = 6
	b6, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := b6.NumModes(); got != 12 {
		t.Errorf("order-6 basis has %d modes, want 12", got)
	}
	for _, name := range []string{"m60", "m62c", "m62s"} {
		if b6.IndexOf(name) < 0 {
			t.Errorf("order-6 basis is missing %s", name)
		}
	}
	if b4.IndexOf("m60") != -1 {
		t.Error("order-4 basis should not index m60")
	}
	if b4.IndexOf("nonsense") != -1 {
		t.Error("IndexOf should return -1 for unknown names")
	}
}

func TestFingerprintDistinguishesConfigs(t *testing.T) {
	a, _ := New(DefaultConfig())
	cfg := DefaultConfig()
	cfg.SigmaArcsec = 0.6
	b, _ := New(cfg)
	if a.Fingerprint() == b.Fingerprint() {
		t.Errorf("different configs share fingerprint %q", a.Fingerprint())
	}
	c, _ := New(DefaultConfig())
	if a.Fingerprint() != c.Fingerprint() {
		t.Errorf("identical configs disagree: %q vs %q", a.Fingerprint(), c.Fingerprint())
	}
}

func TestLaguerreKnownValues(t *testing.T) {
	// L^a_2(x) = (a+1)(a+2)/2 - (a+2)x + x^2/2.
	l2 := func(a, x float64) float64 { return (a+1)*(a+2)/2 - (a+2)*x + x*x/2 }
	cases := []struct {
		p     int
		a, x  float64
		want  float64
	}{
		{0, 0, 1.7, 1},
		{1, 0, 0.3, 0.7},     // 1 - x
		{1, 2, 0.5, 2.5},     // 1 + a - x
		{2, 0, 1.2, l2(0, 1.2)},
		{2, 2, 0.8, l2(2, 0.8)},
		{3, 0, 0.4, 1 - 3*0.4 + 3*0.4*0.4/2 - 0.4*0.4*0.4/6},
	}
	for _, tc := range cases {
		got := laguerre(tc.p, tc.a, tc.x)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("laguerre(%d, %g, %g) = %.15g, want %.15g", tc.p, tc.a, tc.x, got, tc.want)
		}
	}
}

// TestRadialOrthonormality integrates pairs of real basis functions over the
// plane and checks the continuous orthonormality the normalization constants
// promise. A coarse midpoint rule suffices: the integrands are smooth and
// decay like exp(-r^2).
func TestRadialOrthonormality(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOrder = 6
	b, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	eval := func(md Mode, x, y float64) float64 {
		r := math.Hypot(x, y)
		v := radial(md.N, md.M, r)
		phi := math.Atan2(y, x)
		switch md.Part {
		case PartCos:
			v *= sqrt2 * math.Cos(float64(md.M)*phi)
		case PartSin:
			v *= sqrt2 * math.Sin(float64(md.M)*phi)
		}
		return v
	}

	const (
		lim  = 7.0
		step = 0.05
	)
	modes := b.Modes()
	gram := make([][]float64, len(modes))
	for i := range gram {
		gram[i] = make([]float64, len(modes))
	}
	for y := -lim; y < lim; y += step {
		for x := -lim; x < lim; x += step {
			vals := make([]float64, len(modes))
			for q, md := range modes {
				vals[q] = eval(md, x+step/2, y+step/2)
			}
			for q := range modes {
				for p := q; p < len(modes); p++ {
					gram[q][p] += vals[q] * vals[p] * step * step
				}
			}
		}
	}

	for q := range modes {
		for p := q; p < len(modes); p++ {
			want := 0.0
			if p == q {
				want = 1.0
			}
			if math.Abs(gram[q][p]-want) > 1e-3 {
				t.Errorf("<%s, %s> = %.6f, want %.0f", modes[q].Name(), modes[p].Name(), gram[q][p], want)
			}
		}
	}
}

func TestFourierWeightsGrid(t *testing.T) {
	b, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	const nx, ny = 32, 32
	ws := b.FourierWeights(nx, ny)
	if ws.Nx != nx || ws.Ny != ny {
		t.Fatalf("weight grid %dx%d, want %dx%d", ws.Nx, ws.Ny, nx, ny)
	}
	if ws.Fingerprint != b.Fingerprint() {
		t.Errorf("weight fingerprint %q, want %q", ws.Fingerprint, b.Fingerprint())
	}

	if !ws.Keep[0] {
		t.Error("k = 0 mode should always be kept")
	}
	// At k = 0 only the m = 0 modes survive and carry the quadrature factor.
	quad := 2 * math.Pi * b.Config().SigmaArcsec / float64(nx*ny)
	want00 := quad * radial(0, 0, 0)
	if got := ws.W[b.IndexOf("m00")][0]; math.Abs(got-want00) > 1e-15 {
		t.Errorf("W[m00] at k=0 = %g, want %g", got, want00)
	}
	if got := ws.W[b.IndexOf("m22c")][0]; got != 0 {
		t.Errorf("W[m22c] at k=0 = %g, want 0", got)
	}

	// Dropped modes must carry exactly zero weight for every q.
	for k, keep := range ws.Keep {
		if keep {
			continue
		}
		for q := range ws.W {
			if ws.W[q][k] != 0 {
				t.Fatalf("mode %d carries weight %g outside the truncation", k, ws.W[q][k])
			}
		}
	}

	// Truncation must actually drop the grid corners for this config.
	if ws.Keep[ny/2*nx+nx/2] {
		t.Error("Nyquist corner unexpectedly kept; kmax truncation inactive")
	}
}

func TestFreqGridWrapsNegative(t *testing.T) {
	k := freqGrid(8, 0.2)
	if k[0] != 0 {
		t.Errorf("k[0] = %g, want 0", k[0])
	}
	if k[1] <= 0 {
		t.Errorf("k[1] = %g, want positive", k[1])
	}
	if k[7] >= 0 {
		t.Errorf("k[7] = %g, want negative", k[7])
	}
	if math.Abs(k[1]+k[7]) > 1e-15 {
		t.Errorf("k[1] and k[7] should mirror, got %g and %g", k[1], k[7])
	}
}
