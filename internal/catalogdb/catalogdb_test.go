package catalogdb

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lensmetry/anashear/internal/ensemble"
	"github.com/lensmetry/anashear/internal/estimator"
)

func openTestDB(t *testing.T) *CatalogDB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "catalog.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunObjectEnsembleRoundTrip(t *testing.T) {
	db := openTestDB(t)

	runID, err := db.StartRun(RunMeta{
		BasisFingerprint: "nord4:sigma0.52:scale0.2:kmax3.05",
		WeightC:          1,
		SNRMin:           10,
		SNRWidth:         2,
		NoiseSigma:       0.5,
		ShearG1:          0.02,
		Notes:            "round trip",
	})
	if err != nil {
		t.Fatal(err)
	}
	if runID == "" {
		t.Fatal("empty run ID")
	}

	res := &estimator.Result{
		E1: 0.03, E2: -0.01,
		Response: [2][2]float64{{0.8, 0.01}, {-0.01, 0.79}},
		Weight:   0.9,
		SNR:      15.5,
		Flux:     120,
		Mag:      24.8,
	}
	if err := db.RecordObject(runID, 1, res); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordDegenerate(runID, 2); err != nil {
		t.Fatal(err)
	}

	shear := ensemble.Shear{G1: 0.0198, G2: -0.0003, NGood: 1, NSkipped: 1}
	if err := db.RecordEnsemble(runID, shear, 0.002, math.NaN()); err != nil {
		t.Fatal(err)
	}

	rows, err := db.Ensembles()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d ensembles, want 1", len(rows))
	}
	row := rows[0]
	if row.RunID != runID || row.TrueG1 != 0.02 || row.G1 != 0.0198 {
		t.Errorf("row = %+v", row)
	}
	if !row.StdErrG1.Valid || row.StdErrG1.Float64 != 0.002 {
		t.Errorf("stderr_g1 = %+v, want valid 0.002", row.StdErrG1)
	}
	if row.StdErrG2.Valid {
		t.Error("NaN stderr should round-trip as NULL")
	}
	if row.NGood != 1 || row.NSkipped != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", row.NGood, row.NSkipped)
	}

	snrs, err := db.ObjectSNRs(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(snrs) != 1 || snrs[0] != 15.5 {
		t.Errorf("snrs = %v, want [15.5] (degenerate objects excluded)", snrs)
	}

	e1, e2, w, err := db.ObjectEllipticities(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(e1) != 1 || e1[0] != 0.03 || e2[0] != -0.01 || w[0] != 0.9 {
		t.Errorf("ellipticities = (%v, %v, %v)", e1, e2, w)
	}
}

func TestRecordObjectSanitizesNonFinite(t *testing.T) {
	db := openTestDB(t)
	runID, err := db.StartRun(RunMeta{BasisFingerprint: "fp"})
	if err != nil {
		t.Fatal(err)
	}
	res := &estimator.Result{SNR: math.Inf(1), Mag: math.Inf(1), Flux: 10}
	if err := db.RecordObject(runID, 7, res); err != nil {
		t.Fatalf("infinite SNR should be stored sanitized: %v", err)
	}
	snrs, err := db.ObjectSNRs(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(snrs) != 1 || math.IsInf(snrs[0], 0) {
		t.Errorf("snrs = %v, want one finite value", snrs)
	}
}

func TestRecordEnsembleUpsert(t *testing.T) {
	db := openTestDB(t)
	runID, err := db.StartRun(RunMeta{BasisFingerprint: "fp"})
	require.NoError(t, err)

	require.NoError(t, db.RecordEnsemble(runID, ensemble.Shear{G1: 0.01, NGood: 5}, math.NaN(), math.NaN()))
	// A re-aggregation of the same run replaces the previous row.
	require.NoError(t, db.RecordEnsemble(runID, ensemble.Shear{G1: 0.02, NGood: 10}, math.NaN(), math.NaN()))

	rows, err := db.Ensembles()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 0.02, rows[0].G1)
	require.Equal(t, 10, rows[0].NGood)
}
