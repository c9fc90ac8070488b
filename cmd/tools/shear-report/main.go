// shear-report renders calibration reports from a shearsim catalog: a PNG
// of recovered versus applied shear with the fitted calibration line, a
// PNG histogram of object significance for the latest run, and an
// interactive HTML page with the same content.
//
// Usage:
//
//	shear-report -db catalog.sqlite -out report/
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/lensmetry/anashear/internal/catalogdb"
	"github.com/lensmetry/anashear/internal/version"
)

func main() {
	var (
		dbPath  = flag.String("db", "catalog.sqlite", "catalog database path")
		outDir  = flag.String("out", "report", "output directory")
		showVer = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("shear-report", version.String())
		return
	}

	db, err := catalogdb.Open(*dbPath)
	if err != nil {
		log.Fatalf("opening catalog: %v", err)
	}
	defer db.Close()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("creating output dir: %v", err)
	}

	rows, err := db.Ensembles()
	if err != nil {
		log.Fatalf("reading ensembles: %v", err)
	}
	if len(rows) == 0 {
		log.Fatalf("catalog %s holds no ensemble results", *dbPath)
	}

	if err := calibrationPNG(rows, filepath.Join(*outDir, "calibration.png")); err != nil {
		log.Fatalf("calibration plot: %v", err)
	}

	latest := rows[len(rows)-1].RunID
	snrs, err := db.ObjectSNRs(latest)
	if err != nil {
		log.Fatalf("reading snrs: %v", err)
	}
	if len(snrs) > 0 {
		if err := snrHistPNG(snrs, filepath.Join(*outDir, "snr.png")); err != nil {
			log.Fatalf("snr histogram: %v", err)
		}
	}

	if err := htmlReport(rows, snrs, filepath.Join(*outDir, "report.html")); err != nil {
		log.Fatalf("html report: %v", err)
	}
	fmt.Printf("report written to %s\n", *outDir)
}

// calibrationPNG plots recovered g1 against applied g1 with error bars and
// the identity line, annotated with the fitted m and c.
func calibrationPNG(rows []catalogdb.EnsembleRow, path string) error {
	p := plot.New()
	p.X.Label.Text = "applied g1"
	p.Y.Label.Text = "recovered g1"

	pts := make(plotter.XYs, len(rows))
	yerrs := make(plotter.YErrors, len(rows))
	xs := make([]float64, len(rows))
	ys := make([]float64, len(rows))
	for i, r := range rows {
		pts[i].X = r.TrueG1
		pts[i].Y = r.G1
		xs[i] = r.TrueG1
		ys[i] = r.G1
		if r.StdErrG1.Valid {
			yerrs[i].Low = r.StdErrG1.Float64
			yerrs[i].High = r.StdErrG1.Float64
		}
	}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	p.Add(scatter)

	bars, err := plotter.NewYErrorBars(struct {
		plotter.XYer
		plotter.YErrorer
	}{pts, yerrs})
	if err != nil {
		return err
	}
	p.Add(bars)

	ident := plotter.NewFunction(func(x float64) float64 { return x })
	p.Add(ident)

	if len(rows) >= 2 {
		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		p.Title.Text = fmt.Sprintf("m = %+.2e, c = %+.2e", beta-1, alpha)
	} else {
		p.Title.Text = "shear calibration"
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// snrHistPNG plots the object significance distribution of one run.
func snrHistPNG(snrs []float64, path string) error {
	p := plot.New()
	p.X.Label.Text = "M00 / sigma(M00)"
	p.Y.Label.Text = "objects"
	vals := make(plotter.Values, len(snrs))
	copy(vals, snrs)
	h, err := plotter.NewHist(vals, 40)
	if err != nil {
		return err
	}
	p.Add(h)
	p.Title.Text = "object significance"
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// htmlReport writes an interactive page with the calibration scatter and
// the significance histogram.
func htmlReport(rows []catalogdb.EnsembleRow, snrs []float64, path string) error {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Shear calibration"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "applied g1"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "recovered g1"}),
	)
	data := make([]opts.ScatterData, len(rows))
	axis := make([]float64, len(rows))
	for i, r := range rows {
		axis[i] = r.TrueG1
		data[i] = opts.ScatterData{Value: []float64{r.TrueG1, r.G1}}
	}
	scatter.SetXAxis(axis).AddSeries("runs", data)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := scatter.Render(f); err != nil {
		return err
	}

	if len(snrs) > 0 {
		bins, counts := histogram(snrs, 40)
		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: "Object significance"}),
			charts.WithXAxisOpts(opts.XAxis{Name: "M00 / sigma(M00)"}),
		)
		barData := make([]opts.BarData, len(counts))
		labels := make([]string, len(counts))
		for i, c := range counts {
			barData[i] = opts.BarData{Value: c}
			labels[i] = fmt.Sprintf("%.1f", bins[i])
		}
		bar.SetXAxis(labels).AddSeries("objects", barData)
		if err := bar.Render(f); err != nil {
			return err
		}
	}
	return nil
}

// histogram bins values into n equal-width bins and returns the bin left
// edges and counts.
func histogram(vals []float64, n int) ([]float64, []int) {
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		hi = lo + 1
	}
	width := (hi - lo) / float64(n)
	edges := make([]float64, n)
	counts := make([]int, n)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	for _, v := range vals {
		b := int((v - lo) / width)
		if b >= n {
			b = n - 1
		}
		counts[b]++
	}
	return edges, counts
}
