// shearsim renders simulated galaxy scenes, measures them through the full
// analytic shear pipeline and stores per-object and ensemble results in a
// catalog database. Running it over a list of applied shears yields the
// multiplicative and additive calibration biases of the estimator.
//
// Usage:
//
//	shearsim -db catalog.sqlite -shears 0.02,-0.02 -pairs 5000
//	shearsim -config scene.json -db catalog.sqlite
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/lensmetry/anashear/internal/catalogdb"
	"github.com/lensmetry/anashear/internal/ensemble"
	"github.com/lensmetry/anashear/internal/estimator"
	"github.com/lensmetry/anashear/internal/moments"
	"github.com/lensmetry/anashear/internal/monitoring"
	"github.com/lensmetry/anashear/internal/shapelet"
	"github.com/lensmetry/anashear/internal/simulate"
	"github.com/lensmetry/anashear/internal/version"
)

func parseCSVFloatSlice(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func main() {
	var (
		configPath = flag.String("config", "", "scene config JSON (optional; flags override nothing in it)")
		dbPath     = flag.String("db", "catalog.sqlite", "catalog database path")
		shears     = flag.String("shears", "", "comma-separated list of applied g1 values (overrides config shear)")
		pairs      = flag.Int("pairs", 0, "galaxy pairs per run (0 = config value)")
		sigma      = flag.Float64("sigma", 0.52, "shapelet scale in arcsec")
		order      = flag.Int("order", 4, "maximum shapelet order (4 or 6)")
		weightC    = flag.Float64("c", 1.0, "denominator constant C")
		snrMin     = flag.Float64("snr-min", 10, "selection ramp start in units of sigma(M00)")
		snrWidth   = flag.Float64("snr-width", 2, "selection ramp width (0 disables selection)")
		workers    = flag.Int("workers", runtime.NumCPU(), "measurement worker goroutines")
		patches    = flag.Int("jackknife", 50, "jackknife patches (0 disables)")
		notes      = flag.String("notes", "", "free-form run notes")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("shearsim", version.String())
		return
	}

	cfg := simulate.EmptySceneConfig()
	if *configPath != "" {
		loaded, err := simulate.LoadSceneConfig(*configPath)
		if err != nil {
			log.Fatalf("loading scene config: %v", err)
		}
		cfg = loaded
	}

	shearList, err := parseCSVFloatSlice(*shears)
	if err != nil {
		log.Fatalf("parsing -shears: %v", err)
	}
	if len(shearList) == 0 {
		shearList = []float64{cfg.GetShearG1()}
	}

	basis, err := shapelet.New(shapelet.Config{
		SigmaArcsec:    *sigma,
		PixelScale:     cfg.GetPixelScale(),
		MaxOrder:       *order,
		StabilityLimit: shapelet.DefaultConfig().StabilityLimit,
		KmaxPerSigma:   shapelet.DefaultConfig().KmaxPerSigma,
	})
	if err != nil {
		log.Fatalf("configuring basis: %v", err)
	}

	builder, err := estimator.NewBuilder(basis, estimator.Config{
		WeightC:         *weightC,
		SNRMin:          *snrMin,
		SNRWidth:        *snrWidth,
		DegenerateFloor: estimator.DefaultConfig().DegenerateFloor,
		MagZero:         estimator.DefaultConfig().MagZero,
	})
	if err != nil {
		log.Fatalf("configuring estimator: %v", err)
	}

	db, err := catalogdb.Open(*dbPath)
	if err != nil {
		log.Fatalf("opening catalog: %v", err)
	}
	defer db.Close()

	measured := make([]float64, 0, len(shearList))
	for _, g1 := range shearList {
		runCfg := *cfg
		runCfg.ShearG1 = &g1
		if *pairs > 0 {
			n := *pairs
			runCfg.NPairs = &n
		}
		est, err := runScene(&runCfg, basis, builder, db, *workers, *patches, *notes)
		if err != nil {
			log.Fatalf("run at g1=%g: %v", g1, err)
		}
		measured = append(measured, est)
	}

	if len(shearList) >= 2 {
		// m and c from ghat = (1+m) g + c.
		alpha, beta := stat.LinearRegression(shearList, measured, nil, false)
		monitoring.Logf("calibration over %d shears: m = %+.2e, c = %+.2e", len(shearList), beta-1, alpha)
	}
}

// runScene measures one scene at one applied shear and returns the
// recovered g1.
func runScene(cfg *simulate.SceneConfig, basis *shapelet.Basis, builder *estimator.Builder,
	db *catalogdb.CatalogDB, workers, patches int, notes string) (float64, error) {

	scene, err := simulate.NewScene(cfg)
	if err != nil {
		return 0, err
	}
	plan, err := moments.NewDeconvPlan(basis, scene.PSF(), 0)
	if err != nil {
		return 0, err
	}
	noiseVar := scene.NoiseSigma() * scene.NoiseSigma()
	cov, err := moments.Propagate(plan, moments.WhiteNoise{Variance: noiseVar})
	if err != nil {
		return 0, err
	}

	return measureScene(scene, plan, cov, builder, db, cfg, workers, patches, notes)
}

func measureScene(scene *simulate.Scene, plan *moments.DeconvPlan, cov *moments.Covariance,
	builder *estimator.Builder, db *catalogdb.CatalogDB, cfg *simulate.SceneConfig,
	workers, patches int, notes string) (float64, error) {

	ecfg := builder.Config()
	runID, err := db.StartRun(catalogdb.RunMeta{
		BasisFingerprint: plan.Fingerprint(),
		WeightC:          ecfg.WeightC,
		SNRMin:           ecfg.SNRMin,
		SNRWidth:         ecfg.SNRWidth,
		NoiseSigma:       scene.NoiseSigma(),
		ShearG1:          cfg.GetShearG1(),
		ShearG2:          cfg.GetShearG2(),
		Notes:            notes,
	})
	if err != nil {
		return 0, err
	}

	stats := monitoring.NewMeasureStats()
	pool := &ensemble.Pool{
		Plan:    plan,
		Cov:     cov,
		Builder: builder,
		Workers: workers,
		Retain:  patches > 0,
		OnResult: func(id int64, r *estimator.Result, err error) {
			switch {
			case errors.Is(err, estimator.ErrMeasurementDegenerate):
				stats.AddDegenerate()
				if dbErr := db.RecordDegenerate(runID, id); dbErr != nil {
					monitoring.Logf("recording degenerate object %d: %v", id, dbErr)
				}
			case err != nil:
				// Hard failure; the pool aborts the run after this callback.
				stats.AddFailed()
				monitoring.Logf("measuring object %d: %v", id, err)
			default:
				stats.AddMeasured()
				if dbErr := db.RecordObject(runID, id, r); dbErr != nil {
					monitoring.Logf("recording object %d: %v", id, dbErr)
				}
			}
		},
	}

	jobs := make(chan ensemble.Job, workers)
	renderErr := make(chan error, 1)
	go func() {
		defer close(jobs)
		var id int64
		for i := 0; i < cfg.GetNPairs(); i++ {
			a, b, err := scene.RenderPair()
			if err != nil {
				renderErr <- err
				return
			}
			for _, cut := range []*moments.Cutout{a, b} {
				job := ensemble.Job{ID: id, Source: cut}
				if cfg.GetPairNoise() {
					ns, err := scene.NoiseStamp()
					if err != nil {
						renderErr <- err
						return
					}
					job.Noise = ns
				}
				jobs <- job
				id++
			}
		}
		renderErr <- nil
	}()

	acc, err := pool.Run(context.Background(), jobs)
	if err != nil {
		return 0, err
	}
	if rerr := <-renderErr; rerr != nil {
		return 0, rerr
	}

	shear, err := acc.Estimate()
	if err != nil {
		return 0, err
	}
	seG1, seG2 := math.NaN(), math.NaN()
	if patches > 0 {
		jk, err := ensemble.Jackknife(acc, patches)
		if err != nil {
			monitoring.Logf("jackknife skipped: %v", err)
		} else {
			seG1, seG2 = jk.StdErrG1, jk.StdErrG2
		}
	}
	if err := db.RecordEnsemble(runID, shear, seG1, seG2); err != nil {
		return 0, err
	}

	stats.LogStats("run " + runID)
	monitoring.Logf("run %s: g1 = %+.5f +- %.5f, g2 = %+.5f +- %.5f (true %+.3f, %+.3f; %d good, %d skipped)",
		runID, shear.G1, seG1, shear.G2, seG2,
		cfg.GetShearG1(), cfg.GetShearG2(), shear.NGood, shear.NSkipped)
	if f := shear.SkippedFraction(); f > 0.05 {
		monitoring.Logf("warning: %.1f%% of objects degenerate; selection-bias correction does not cover hard skips", 100*f)
	}
	if _, err := fmt.Fprintf(os.Stdout, "%g %g %g %g\n", cfg.GetShearG1(), shear.G1, cfg.GetShearG2(), shear.G2); err != nil {
		return 0, err
	}
	return shear.G1, nil
}
