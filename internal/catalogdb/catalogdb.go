// Package catalogdb persists measurement runs to an embedded SQLite
// catalog: run metadata, per-object estimates and ensemble results. A
// catalog file is the hand-off point between measurement and reporting.
package catalogdb

import (
	"database/sql"
	_ "embed"
	"fmt"
	"math"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lensmetry/anashear/internal/ensemble"
	"github.com/lensmetry/anashear/internal/estimator"
	"github.com/lensmetry/anashear/internal/monitoring"
)

type CatalogDB struct {
	*sql.DB
}

// schema.sql defines the runs, objects and ensembles tables.
//
//go:embed schema.sql
var schemaSQL string

// Open opens (creating if needed) a catalog database at path.
func Open(path string) (*CatalogDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	monitoring.Logf("initialized catalog database at %s", path)
	return &CatalogDB{db}, nil
}

// RunMeta describes one measurement run.
type RunMeta struct {
	BasisFingerprint string
	WeightC          float64
	SNRMin           float64
	SNRWidth         float64
	NoiseSigma       float64
	ShearG1          float64
	ShearG2          float64
	Notes            string
}

// StartRun records a new run and returns its generated ID.
func (c *CatalogDB) StartRun(meta RunMeta) (string, error) {
	id := uuid.NewString()
	_, err := c.Exec(`
		INSERT INTO runs (id, basis_fingerprint, weight_c, snr_min, snr_width, noise_sigma, shear_g1, shear_g2, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, meta.BasisFingerprint, meta.WeightC, meta.SNRMin, meta.SNRWidth,
		meta.NoiseSigma, meta.ShearG1, meta.ShearG2, meta.Notes)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// RecordObject stores one per-object estimate.
func (c *CatalogDB) RecordObject(runID string, objectID int64, r *estimator.Result) error {
	_, err := c.Exec(`
		INSERT INTO objects (run_id, object_id, e1, e2, r11, r12, r21, r22, weight, snr, flux, mag, resolution, degenerate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		runID, objectID, r.E1, r.E2,
		r.Response[0][0], r.Response[0][1], r.Response[1][0], r.Response[1][1],
		r.Weight, finite(r.SNR), r.Flux, finite(r.Mag), r.Resolution)
	if err != nil {
		return fmt.Errorf("failed to insert object %d: %w", objectID, err)
	}
	return nil
}

// RecordDegenerate stores a skipped object so the catalog accounts for
// every input.
func (c *CatalogDB) RecordDegenerate(runID string, objectID int64) error {
	_, err := c.Exec(`
		INSERT INTO objects (run_id, object_id, e1, e2, r11, r12, r21, r22, weight, snr, flux, mag, resolution, degenerate)
		VALUES (?, ?, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1)`,
		runID, objectID)
	if err != nil {
		return fmt.Errorf("failed to insert degenerate object %d: %w", objectID, err)
	}
	return nil
}

// RecordEnsemble stores the aggregated shear for a run. Standard errors
// may be NaN when no jackknife was run; they are stored as NULL.
func (c *CatalogDB) RecordEnsemble(runID string, s ensemble.Shear, stderrG1, stderrG2 float64) error {
	_, err := c.Exec(`
		INSERT OR REPLACE INTO ensembles (run_id, g1, g2, stderr_g1, stderr_g2, n_good, n_skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, s.G1, s.G2, nullable(stderrG1), nullable(stderrG2), s.NGood, s.NSkipped)
	if err != nil {
		return fmt.Errorf("failed to insert ensemble for run %s: %w", runID, err)
	}
	return nil
}

// EnsembleRow is one aggregated result read back for reporting.
type EnsembleRow struct {
	RunID            string
	BasisFingerprint string
	TrueG1, TrueG2   float64
	G1, G2           float64
	StdErrG1         sql.NullFloat64
	StdErrG2         sql.NullFloat64
	NGood, NSkipped  int
}

// Ensembles returns every stored ensemble result joined with its run
// metadata, oldest first.
func (c *CatalogDB) Ensembles() ([]EnsembleRow, error) {
	rows, err := c.Query(`
		SELECT e.run_id, r.basis_fingerprint, r.shear_g1, r.shear_g2,
		       e.g1, e.g2, e.stderr_g1, e.stderr_g2, e.n_good, e.n_skipped
		FROM ensembles e JOIN runs r ON r.id = e.run_id
		ORDER BY r.created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ensembles: %w", err)
	}
	defer rows.Close()

	var out []EnsembleRow
	for rows.Next() {
		var e EnsembleRow
		if err := rows.Scan(&e.RunID, &e.BasisFingerprint, &e.TrueG1, &e.TrueG2,
			&e.G1, &e.G2, &e.StdErrG1, &e.StdErrG2, &e.NGood, &e.NSkipped); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ObjectSNRs returns the per-object significance values of a run, for
// histogram reporting. Degenerate objects are excluded.
func (c *CatalogDB) ObjectSNRs(runID string) ([]float64, error) {
	rows, err := c.Query(`SELECT snr FROM objects WHERE run_id = ? AND degenerate = 0`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query object snrs: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ObjectEllipticities returns (e1, e2, weight) triples of a run's
// non-degenerate objects.
func (c *CatalogDB) ObjectEllipticities(runID string) (e1, e2, w []float64, err error) {
	rows, err := c.Query(`SELECT e1, e2, weight FROM objects WHERE run_id = ? AND degenerate = 0`, runID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to query object ellipticities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a, b, c float64
		if err := rows.Scan(&a, &b, &c); err != nil {
			return nil, nil, nil, err
		}
		e1 = append(e1, a)
		e2 = append(e2, b)
		w = append(w, c)
	}
	return e1, e2, w, rows.Err()
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func nullable(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
