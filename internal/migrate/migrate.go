// Package migrate runs the per-entity pipelines (extract, check, load,
// verify) and assembles the run report.
package migrate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"moviemigrate/internal/config"
	"moviemigrate/internal/etlerr"
	"moviemigrate/internal/extract"
	etlio "moviemigrate/internal/io"
	"moviemigrate/internal/load"
	"moviemigrate/internal/logging"
	"moviemigrate/internal/mapping"
	"moviemigrate/internal/quality"
	"moviemigrate/internal/records"
	"moviemigrate/internal/report"
	"moviemigrate/internal/verify"

	"golang.org/x/sync/errgroup"
)

// Options tune one run.
type Options struct {
	PageSize    int
	Workers     int
	UpsertMode  string
	Verify      bool
	SampleLimit int
	// VerifyOnly skips extraction and loading and only verifies.
	VerifyOnly bool
	// OnStatus, if set, observes every status change. It is called from
	// worker goroutines.
	OnStatus func(kind records.Kind, status report.Status)
}

// OptionsFromConfig derives run options from a loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PageSize:    cfg.Migration.PageSize,
		Workers:     cfg.Migration.Workers,
		UpsertMode:  cfg.Migration.UpsertMode,
		Verify:      cfg.Verification.IsEnabled(),
		SampleLimit: cfg.Verification.SampleLimit,
	}
}

// Orchestrator migrates the five entities. Independent entities run in
// parallel; join tables wait for the entities they reference and are
// skipped when one of them did not finish Done.
type Orchestrator struct {
	opts      Options
	extractor *extract.Extractor
	loader    *load.Loader
	verifier  *verify.Verifier
	quality   *quality.Checker

	mu     sync.Mutex
	status map[records.Kind]report.Status
}

// New wires an Orchestrator. A nil mapping means the built-in one; a nil
// checker disables quality rules.
func New(src etlio.SourceStore, tgt etlio.TargetStore, m *mapping.Mapping, qc *quality.Checker, opts Options) (*Orchestrator, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = config.DefaultPageSize
	}
	if opts.Workers <= 0 {
		opts.Workers = config.DefaultWorkers
	}
	if m == nil {
		m = mapping.Default()
	}
	loader, err := load.New(tgt, opts.UpsertMode)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		opts:      opts,
		extractor: extract.New(src, m),
		loader:    loader,
		verifier:  verify.New(src, tgt, m),
		quality:   qc,
		status:    make(map[records.Kind]report.Status, len(records.Kinds())),
	}
	for _, k := range records.Kinds() {
		o.status[k] = report.StatusIdle
	}
	return o, nil
}

// Status returns the current status of kind.
func (o *Orchestrator) Status(kind records.Kind) report.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status[kind]
}

func (o *Orchestrator) setStatus(kind records.Kind, s report.Status) {
	o.mu.Lock()
	prev := o.status[kind]
	o.status[kind] = s
	o.mu.Unlock()
	if prev == s {
		return
	}
	logging.For(kind.String()).Logf(logging.Debug, "%s -> %s", prev, s)
	if o.opts.OnStatus != nil {
		o.opts.OnStatus(kind, s)
	}
}

// Run migrates (or, with VerifyOnly, verifies) every entity and returns the
// report. Failures are contained per entity and never abort the others.
// The returned error is non-nil only when ctx was cancelled during the run.
func (o *Orchestrator) Run(ctx context.Context) (*report.Run, error) {
	kinds := records.Kinds()
	run := &report.Run{
		StartedAt:  time.Now().UTC(),
		VerifyOnly: o.opts.VerifyOnly,
		Entities:   make([]report.Entity, len(kinds)),
	}
	done := make(map[records.Kind]chan struct{}, len(kinds))
	for _, k := range kinds {
		done[k] = make(chan struct{})
	}

	logging.Logf(logging.Info, "Starting %s of %d entities (workers=%d, page size=%d)", o.mode(), len(kinds), o.opts.Workers, o.opts.PageSize)

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	// Kinds() lists every dependency before its dependents, so a waiting
	// join only ever blocks on entities that already hold or held a slot.
	for i, k := range kinds {
		i, k := i, k
		g.Go(func() error {
			defer close(done[k])
			if !o.opts.VerifyOnly {
				if failed, ok := o.awaitDependencies(k, done); !ok {
					run.Entities[i] = o.dependencyFailed(k, failed)
					return nil
				}
			}
			run.Entities[i] = o.MigrateEntity(ctx, k)
			return nil
		})
	}
	_ = g.Wait()
	run.FinishedAt = time.Now().UTC()

	read, written := run.Totals()
	logging.Logf(logging.Info, "Finished %s in %s: %d row(s) read, %d written, ok=%v",
		o.mode(), run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond), read, written, run.OK())

	if err := ctx.Err(); err != nil {
		return run, fmt.Errorf("run interrupted: %w (%v)", etlerr.ErrCanceled, context.Cause(ctx))
	}
	return run, nil
}

func (o *Orchestrator) mode() string {
	if o.opts.VerifyOnly {
		return "verification"
	}
	return "migration"
}

// awaitDependencies blocks until every dependency of k is terminal and
// reports the ones that did not finish Done.
func (o *Orchestrator) awaitDependencies(k records.Kind, done map[records.Kind]chan struct{}) ([]string, bool) {
	deps := records.Dependencies(k)
	if len(deps) == 0 {
		return nil, true
	}
	var failed []string
	for _, d := range deps {
		<-done[d]
		if s := o.Status(d); s != report.StatusDone {
			failed = append(failed, fmt.Sprintf("%s is %s", d, s))
		}
	}
	return failed, len(failed) == 0
}

func (o *Orchestrator) dependencyFailed(k records.Kind, failed []string) report.Entity {
	err := fmt.Errorf("%w: %s", etlerr.ErrDependencyFailed, strings.Join(failed, ", "))
	o.setStatus(k, report.StatusDependencyFailed)
	logging.For(k.String()).Logf(logging.Warning, "skipped: %v", err)
	return report.Entity{
		Entity:    k.String(),
		Status:    report.StatusDependencyFailed,
		ErrorKind: etlerr.Kind(err),
		Error:     err.Error(),
	}
}

// MigrateEntity runs one entity's pipeline regardless of its dependencies
// and returns its report entry. It is safe to call again for the same kind
// (for example from a retry policy): loads are idempotent.
func (o *Orchestrator) MigrateEntity(ctx context.Context, kind records.Kind) report.Entity {
	start := time.Now()
	e := report.Entity{Entity: kind.String()}
	log := logging.For(kind.String())

	fail := func(err error) report.Entity {
		e.Status = report.StatusFailed
		e.ErrorKind = etlerr.Kind(err)
		e.Error = err.Error()
		e.Duration = time.Since(start)
		o.setStatus(kind, report.StatusFailed)
		log.Logf(logging.Error, "failed after %d batch(es), %d row(s) written: %v", e.Batches, e.RowsWritten, err)
		return e
	}

	if !o.opts.VerifyOnly {
		if err := o.transfer(ctx, kind, &e); err != nil {
			return fail(err)
		}
		log.Logf(logging.Info, "loaded %d row(s) in %d batch(es), %d quality issue(s)", e.RowsWritten, e.Batches, e.QualityIssues)
	}

	if o.opts.Verify || o.opts.VerifyOnly {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("%s before verification: %w (%v)", kind, etlerr.ErrCanceled, err))
		}
		o.setStatus(kind, report.StatusVerifying)
		e.Verification = o.verify(ctx, kind)
		if !e.Verification.OK() && e.Verification.Error == "" {
			err := verificationError(kind, e.Verification)
			e.ErrorKind = etlerr.Kind(err)
			e.Error = err.Error()
		}
	}

	e.Status = report.StatusDone
	e.Duration = time.Since(start)
	o.setStatus(kind, report.StatusDone)
	return e
}

// transfer streams kind page by page. Each page is checked and loaded in
// full before the next fetch; cancellation is observed between pages. The
// status alternates between Extracting and Loading per page.
func (o *Orchestrator) transfer(ctx context.Context, kind records.Kind, e *report.Entity) error {
	o.setStatus(kind, report.StatusExtracting)
	cur, err := o.extractor.Stream(ctx, kind, o.opts.PageSize)
	if err != nil {
		return err
	}
	defer cur.Close()

	for batch := 0; ; batch++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s stopped before page %d: %w (%v)", kind, batch, etlerr.ErrCanceled, err)
		}
		o.setStatus(kind, report.StatusExtracting)
		page, err := cur.Next(ctx)
		if err != nil {
			return err
		}
		if page == nil {
			return nil
		}
		e.RowsRead += int64(len(page))
		if o.quality != nil {
			e.QualityIssues += o.quality.CheckPage(kind, page)
		}

		o.setStatus(kind, report.StatusLoading)
		n, err := o.loader.UpsertBatch(ctx, kind, batch, page)
		if err != nil {
			return err
		}
		e.RowsWritten += n
		e.Batches++
	}
}

func (o *Orchestrator) verify(ctx context.Context, kind records.Kind) *report.Verification {
	v := &report.Verification{}
	res, err := o.verifier.Verify(ctx, kind)
	if err != nil {
		v.Error = err.Error()
		logging.For(kind.String()).Logf(logging.Error, "verification could not run: %v", err)
		return v
	}
	v.CountSource, v.CountTarget, v.Match = res.CountSource, res.CountTarget, res.Match
	if o.opts.SampleLimit <= 0 {
		return v
	}
	sample, err := o.verifier.SampleEquality(ctx, kind, o.opts.SampleLimit)
	if err != nil {
		v.Error = err.Error()
		logging.For(kind.String()).Logf(logging.Error, "sample comparison could not run: %v", err)
		return v
	}
	v.Sample = &sample
	return v
}

func verificationError(kind records.Kind, v *report.Verification) error {
	if !v.Match {
		return verify.Result{Entity: kind.String(), CountSource: v.CountSource, CountTarget: v.CountTarget}.Err()
	}
	return v.Sample.Err()
}
