package ensemble

import (
	"context"
	"errors"
	"sync"

	"github.com/lensmetry/anashear/internal/estimator"
	"github.com/lensmetry/anashear/internal/moments"
)

// Job is one object to measure: its cutout and, optionally, a paired
// pure-noise stamp measured through the identical deconvolution so its
// moments can cancel noise rendering residuals.
type Job struct {
	ID     int64
	Source *moments.Cutout
	Noise  *moments.Cutout
}

// Pool fans cutout measurement out over a fixed number of goroutines. Each
// worker owns a private Accumulator; the merged result is bit-identical
// for any worker count because accumulation is exact. The deconvolution
// plan, covariance and builder are shared read-only.
type Pool struct {
	Plan    *moments.DeconvPlan
	Cov     *moments.Covariance
	Builder *estimator.Builder
	Workers int
	Retain  bool

	// OnResult, when set, observes every per-object outcome (result or
	// skip reason) from worker goroutines; it must be safe for concurrent
	// use. Persistence layers hang off this hook.
	OnResult func(id int64, r *estimator.Result, err error)
}

// Run consumes jobs until the channel closes or ctx is cancelled and
// returns the merged accumulator. Degenerate objects are counted and
// skipped; any other per-object error aborts the run.
func (p *Pool) Run(ctx context.Context, jobs <-chan Job) (*Accumulator, error) {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	accs := make([]*Accumulator, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		acc := NewAccumulator(p.Retain)
		accs[w] = acc
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			errs[w] = p.drain(ctx, jobs, acc)
		}(w)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	out := accs[0]
	for _, acc := range accs[1:] {
		out.Merge(acc)
	}
	return out, nil
}

func (p *Pool) drain(ctx context.Context, jobs <-chan Job, acc *Accumulator) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			if err := p.measure(job, acc); err != nil {
				return err
			}
		}
	}
}

func (p *Pool) measure(job Job, acc *Accumulator) error {
	res, err := p.measureOne(job)
	if p.OnResult != nil {
		p.OnResult(job.ID, res, err)
	}
	switch {
	case errors.Is(err, estimator.ErrMeasurementDegenerate):
		acc.AddSkip()
		return nil
	case err != nil:
		return err
	}
	acc.Add(res)
	return nil
}

func (p *Pool) measureOne(job Job) (*estimator.Result, error) {
	vec, err := moments.Extract(p.Plan, job.Source)
	if err != nil {
		return nil, err
	}
	if job.Noise == nil {
		return p.Builder.Build(vec, p.Cov)
	}
	nvec, err := moments.Extract(p.Plan, job.Noise)
	if err != nil {
		return nil, err
	}
	return p.Builder.BuildPaired(vec, nvec, p.Cov)
}
