// Package importer runs bulk imports of candidate rows into the archive.
//
// A run is strictly sequential: one store call at a time, in input order,
// with a fixed pause between consecutive calls. The first failed call ends
// the run; nothing is retried or rolled back. Progress is published to a
// Channel after every call.
//
// Two strategies exist:
//
//	append            create every row
//	clear-and-replace delete every existing record, then create every row
//
// Only one run may be active at a time. Runs can be cancelled; the
// cancellation is observed between calls and during the pause.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JonMunkholm/archive/internal/gateway"
	"github.com/JonMunkholm/archive/internal/logging"
	"github.com/JonMunkholm/archive/internal/schema"
)

var (
	// ErrRunInProgress is returned when a run is started while another is active.
	ErrRunInProgress = errors.New("import already running")

	// ErrCancelled ends a run that was cancelled before finishing.
	ErrCancelled = errors.New("import cancelled")

	// ErrNoStrategy is returned for an unknown strategy.
	ErrNoStrategy = errors.New("upload option not provided")

	// ErrNoRun is returned by Cancel and Wait when nothing is running.
	ErrNoRun = errors.New("no import running")
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_import_runs_total",
		Help: "Import runs by strategy and outcome.",
	}, []string{"strategy", "outcome"})
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archive_import_run_duration_seconds",
		Help:    "Duration of import runs.",
		Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900, 1800},
	}, []string{"strategy"})
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_import_steps_total",
		Help: "Store calls made by import runs.",
	}, []string{"op"})
)

// Strategy selects how staged rows are applied.
type Strategy string

const (
	StrategyAppend          Strategy = "add-excel-file"
	StrategyClearAndReplace Strategy = "clear-and-add-excel-file"
)

// ParseStrategy accepts the canonical names and the short forms
// "append" and "replace".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(StrategyAppend), "append":
		return StrategyAppend, nil
	case string(StrategyClearAndReplace), "replace", "clear-and-replace":
		return StrategyClearAndReplace, nil
	}
	return "", ErrNoStrategy
}

// RecordGateway is the subset of the gateway a run needs.
type RecordGateway interface {
	Snapshot(ctx context.Context) gateway.Result[[]schema.Record]
	Create(ctx context.Context, fields schema.Fields) gateway.Result[schema.Record]
	Delete(ctx context.Context, id string) gateway.Result[struct{}]
}

// Options tune an Orchestrator.
type Options struct {
	// StepDelay is the pause between consecutive store calls.
	StepDelay time.Duration
	// Timeout bounds a whole run. 0 means no bound.
	Timeout time.Duration
}

// Orchestrator executes import runs one at a time.
type Orchestrator struct {
	gw        RecordGateway
	progress  *Channel
	limiter   *RunLimiter
	stepDelay time.Duration
	timeout   time.Duration

	mu     sync.Mutex
	latest *runHandle // most recent run, nil before the first
}

// runHandle tracks one run. err is written before done is closed, so a
// reader that saw done closed may read err without the lock.
type runHandle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// wait blocks until the run finishes and returns its error.
func (h *runHandle) wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// New creates an orchestrator publishing to progress.
func New(gw RecordGateway, progress *Channel, opts Options) *Orchestrator {
	return &Orchestrator{
		gw:        gw,
		progress:  progress,
		limiter:   NewRunLimiter(1),
		stepDelay: opts.StepDelay,
		timeout:   opts.Timeout,
	}
}

// Progress returns the channel the orchestrator publishes to.
func (o *Orchestrator) Progress() *Channel {
	return o.progress
}

// Current returns the latest progress value.
func (o *Orchestrator) Current() Progress {
	return o.progress.Current()
}

// Status reports the limiter state.
func (o *Orchestrator) Status() LimiterStatus {
	return o.limiter.Status()
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	return o.limiter.ActiveCount() > 0
}

// begin claims the single run slot and prepares the run context.
func (o *Orchestrator) begin(parent context.Context) (context.Context, *runHandle, error) {
	if !o.limiter.TryAcquire() {
		return nil, nil, ErrRunInProgress
	}

	ctx, cancel := context.WithCancel(parent)
	if o.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, o.timeout)
		inner := cancel
		cancel = func() {
			cancelTimeout()
			inner()
		}
	}

	h := &runHandle{
		id:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	o.mu.Lock()
	o.latest = h
	o.mu.Unlock()

	return ctx, h, nil
}

// end releases the slot before closing done so that waiters observe an
// idle orchestrator.
func (o *Orchestrator) end(h *runHandle, err error) {
	h.cancel()
	h.err = err
	o.limiter.Release()
	close(h.done)
}

// Run executes a run in the calling goroutine and returns its error.
// It returns ErrRunInProgress without touching progress if a run is active.
func (o *Orchestrator) Run(ctx context.Context, rows []schema.CandidateRow, strategy Strategy) error {
	runCtx, h, err := o.begin(ctx)
	if err != nil {
		return err
	}

	err = o.execute(runCtx, h.id, rows, strategy)
	o.end(h, err)
	return err
}

// Start executes a run in the background and returns its id. The run keeps
// the values of ctx (request id for logging) but not its cancellation.
func (o *Orchestrator) Start(ctx context.Context, rows []schema.CandidateRow, strategy Strategy) (string, error) {
	runCtx, h, err := o.begin(context.WithoutCancel(ctx))
	if err != nil {
		return "", err
	}
	runID := h.id

	rows = append([]schema.CandidateRow(nil), rows...)
	go func() {
		var runErr error
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in import run", "run_id", runID, "panic", r)
				runErr = fmt.Errorf("internal error: %v", r)
				o.progress.Publish(Failed{Err: runErr})
			}
			o.end(h, runErr)
		}()
		runErr = o.execute(runCtx, runID, rows, strategy)
	}()

	return runID, nil
}

// Cancel stops the active run. Further store calls are not issued; the
// run ends failed with ErrCancelled.
func (o *Orchestrator) Cancel() error {
	h := o.latestRun()
	if h == nil || isClosed(h.done) {
		return ErrNoRun
	}
	h.cancel()
	return nil
}

// Wait blocks until the most recent run finishes and returns its error.
// A run started after Wait was called does not change the result.
func (o *Orchestrator) Wait(ctx context.Context) error {
	h := o.latestRun()
	if h == nil {
		return ErrNoRun
	}
	return h.wait(ctx)
}

func (o *Orchestrator) latestRun() *runHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest
}

// Reset returns progress to idle. It makes no store calls and does not
// cancel an active run.
func (o *Orchestrator) Reset() Progress {
	return o.progress.Publish(Reset{})
}

// Shutdown waits for the active run. If ctx ends first the run is cancelled
// and ctx's error returned.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if err := o.limiter.WaitForDrain(ctx); err != nil {
		_ = o.Cancel()
		return err
	}
	return nil
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) execute(ctx context.Context, runID string, rows []schema.CandidateRow, strategy Strategy) error {
	logger := logging.WithFields(ctx,
		"run_id", runID,
		"strategy", string(strategy),
		"rows", len(rows),
	)
	start := time.Now()

	o.progress.Publish(Started{RunID: runID, Strategy: string(strategy), Total: len(rows)})
	logger.Info("import started")

	r := &run{o: o, ctx: ctx}
	var err error
	switch strategy {
	case StrategyAppend:
		err = r.createAll(rows, 0, len(rows))
	case StrategyClearAndReplace:
		err = r.clearAndReplace(rows)
	default:
		err = ErrNoStrategy
	}

	label := string(strategy)
	if errors.Is(err, ErrNoStrategy) {
		label = "unknown"
	}
	runDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	if err != nil {
		o.progress.Publish(Failed{Err: err})
		runsTotal.WithLabelValues(label, "failed").Inc()
		logger.Warn("import failed",
			"error", err,
			"deleted", r.deleted,
			"created", r.created,
			"duration", time.Since(start),
		)
		return err
	}

	o.progress.Publish(Succeeded{})
	runsTotal.WithLabelValues(label, "succeeded").Inc()
	logger.Info("import completed",
		"deleted", r.deleted,
		"created", r.created,
		"duration", time.Since(start),
	)
	return nil
}

// run carries the state of one execution.
type run struct {
	o       *Orchestrator
	ctx     context.Context
	calls   int
	deleted int
	created int
}

// pace waits StepDelay before every call but the first.
func (r *run) pace() error {
	if err := r.interrupted(); err != nil {
		return err
	}
	defer func() { r.calls++ }()

	if r.calls == 0 || r.o.stepDelay <= 0 {
		return nil
	}

	t := time.NewTimer(r.o.stepDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-r.ctx.Done():
		return r.interrupted()
	}
}

// interrupted converts a done run context into the run's error.
func (r *run) interrupted() error {
	switch err := r.ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w (deleted %d, created %d)", ErrCancelled, r.deleted, r.created)
	default:
		return fmt.Errorf("import timed out (deleted %d, created %d): %w", r.deleted, r.created, err)
	}
}

// failure prefers the cancellation error over a store error caused by it.
func (r *run) failure(err error) error {
	if ierr := r.interrupted(); ierr != nil {
		return ierr
	}
	return err
}

// createAll creates rows in order. offset and total place these calls on
// the run's shared progress scale.
func (r *run) createAll(rows []schema.CandidateRow, offset, total int) error {
	for i, row := range rows {
		if err := r.pace(); err != nil {
			return err
		}

		res := r.o.gw.Create(r.ctx, row)
		stepsTotal.WithLabelValues("create").Inc()
		if !res.Success {
			return r.failure(fmt.Errorf("failed to upload document %d/%d (deleted %d, created %d): %w",
				i+1, len(rows), r.deleted, r.created, res.Err()))
		}
		r.created++

		r.o.progress.Publish(Stepped{
			Done:    offset + i + 1,
			Total:   total,
			Message: fmt.Sprintf("Uploading %d/%d...", i+1, len(rows)),
		})
	}
	return nil
}

func (r *run) clearAndReplace(rows []schema.CandidateRow) error {
	if err := r.interrupted(); err != nil {
		return err
	}

	listed := r.o.gw.Snapshot(r.ctx)
	if !listed.Success {
		return r.failure(fmt.Errorf("failed to fetch documents: %w", listed.Err()))
	}

	existing := listed.Data
	total := len(existing) + len(rows)

	for i, rec := range existing {
		if err := r.pace(); err != nil {
			return err
		}

		res := r.o.gw.Delete(r.ctx, rec.ID)
		stepsTotal.WithLabelValues("delete").Inc()
		if !res.Success {
			return r.failure(fmt.Errorf("failed to delete document %d/%d (deleted %d, created %d): %w",
				i+1, len(existing), r.deleted, r.created, res.Err()))
		}
		r.deleted++

		r.o.progress.Publish(Stepped{
			Done:    i + 1,
			Total:   total,
			Message: fmt.Sprintf("Deleting %d/%d...", i+1, len(existing)),
		})
	}

	return r.createAll(rows, len(existing), total)
}
