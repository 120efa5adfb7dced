package importer

// service.go tracks import runs. A run is one asynchronous dry-run or
// execution pass over a set of rows: callers get a run id back
// immediately, subscribe to progress, and fetch the result when the
// run's Done channel closes. Execution runs start from a completed
// dry run so no write ever happens before every verdict exists.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contentful/apps-sub004/internal/repository"
	"github.com/contentful/apps-sub004/internal/schema"
)

// ErrRunNotFound is returned for run ids the registry does not know,
// including runs already evicted after their retention window.
var ErrRunNotFound = errors.New("run not found")

// ErrRunInProgress is returned when a result is requested before the
// run has finished.
var ErrRunInProgress = errors.New("run still in progress")

// RunKind distinguishes the two pass types.
type RunKind string

const (
	RunDryRun  RunKind = "dryrun"
	RunExecute RunKind = "execute"
)

// RunPhase is the coarse state of a run, for progress reporting.
type RunPhase string

const (
	PhaseStarting   RunPhase = "starting"
	PhaseValidating RunPhase = "validating"
	PhaseExecuting  RunPhase = "executing"
	PhaseComplete   RunPhase = "complete"
	PhaseFailed     RunPhase = "failed"
	PhaseCancelled  RunPhase = "cancelled"
)

// RunProgress is a snapshot of a run's progress.
type RunProgress struct {
	RunID     string   `json:"runId"`
	Kind      RunKind  `json:"kind"`
	TypeID    string   `json:"typeId"`
	Phase     RunPhase `json:"phase"`
	Completed int      `json:"completed"`
	Total     int      `json:"total"`
	Error     string   `json:"error,omitempty"`
}

// RunResult is the final output of a run.
type RunResult struct {
	RunID    string            `json:"runId"`
	Kind     RunKind           `json:"kind"`
	TypeID   string            `json:"typeId"`
	Report   *DryRunReport     `json:"report,omitempty"`
	Outcome  *ExecutionOutcome `json:"outcome,omitempty"`
	Duration time.Duration     `json:"duration"`
	Error    string            `json:"error,omitempty"`
}

// ServiceOptions configures the run service.
type ServiceOptions struct {
	Concurrency       int           // executor pool width
	MaxConcurrentRuns int           // limiter slots
	RunWaitTime       time.Duration // limiter acquire timeout
	RunTimeout        time.Duration // per-run deadline
	RetainFor         time.Duration // how long finished runs stay queryable
}

// Service owns the run registry and drives the pipeline.
type Service struct {
	repo        repository.Repository
	limiter     *RunLimiter
	concurrency int
	runTimeout  time.Duration
	retainFor   time.Duration

	catalogMu sync.Mutex
	catalog   *schema.Catalog

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	ID       string
	Kind     RunKind
	ctx      context.Context
	Cancel   context.CancelFunc
	Signal   *Canceller
	Done     chan struct{}
	Result   *RunResult
	Progress RunProgress

	Listeners  []chan RunProgress
	ListenerMu sync.Mutex

	// Dry-run inputs retained so an execution run can start from them.
	rows     []ParsedRow
	mappings []ColumnMapping
	opts     Options
}

// NewService creates a run service on the given repository.
func NewService(repo repository.Repository, opts ServiceOptions) *Service {
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 10 * time.Minute
	}
	if opts.RetainFor <= 0 {
		opts.RetainFor = 5 * time.Minute
	}
	return &Service{
		repo:        repo,
		limiter:     NewRunLimiter(opts.MaxConcurrentRuns, opts.RunWaitTime),
		concurrency: opts.Concurrency,
		runTimeout:  opts.RunTimeout,
		retainFor:   opts.RetainFor,
		runs:        make(map[string]*activeRun),
	}
}

// Catalog returns the schema catalog, loading it from the repository on
// first use.
func (s *Service) Catalog(ctx context.Context) (*schema.Catalog, error) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	if s.catalog != nil {
		return s.catalog, nil
	}

	types, err := s.repo.GetSchemaTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema types: %w", err)
	}
	locales, err := s.repo.GetLocales(ctx)
	if err != nil {
		return nil, fmt.Errorf("load locales: %w", err)
	}
	catalog, err := schema.NewCatalog(types, locales)
	if err != nil {
		return nil, err
	}
	s.catalog = catalog
	return catalog, nil
}

// StartDryRun begins an asynchronous validation pass and returns its
// run id.
func (s *Service) StartDryRun(ctx context.Context, rows []ParsedRow, mappings []ColumnMapping, opts Options) (string, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return "", err
	}
	entityType, ok := catalog.Type(opts.TypeID)
	if !ok {
		return "", fmt.Errorf("unknown entity type: %s", opts.TypeID)
	}
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = catalog.DefaultLocale()
	}
	if opts.Mode == "" {
		opts.Mode = ModeCreate
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	run := s.newRun(RunDryRun, opts, rows, mappings)
	run.Progress.Total = len(rows)

	go s.processDryRun(run, entityType)
	return run.ID, nil
}

// StartExecution begins writing the rows a completed dry run approved.
// It fails if the dry run is unknown, still in progress, or errored.
func (s *Service) StartExecution(ctx context.Context, dryRunID string) (string, error) {
	dryRun, err := s.finishedRun(dryRunID, RunDryRun)
	if err != nil {
		return "", err
	}
	report := dryRun.Result.Report

	catalog, err := s.Catalog(ctx)
	if err != nil {
		return "", err
	}
	entityType, ok := catalog.Type(dryRun.opts.TypeID)
	if !ok {
		return "", fmt.Errorf("unknown entity type: %s", dryRun.opts.TypeID)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	run := s.newRun(RunExecute, dryRun.opts, dryRun.rows, dryRun.mappings)
	tasks := BuildTasks(dryRun.rows, dryRun.mappings, entityType, dryRun.opts, report)
	run.Progress.Total = len(tasks)

	go s.processExecution(run, tasks, RejectedRows(report))
	return run.ID, nil
}

func (s *Service) newRun(kind RunKind, opts Options, rows []ParsedRow, mappings []ColumnMapping) *activeRun {
	runCtx, cancel := context.WithTimeout(context.Background(), s.runTimeout)

	run := &activeRun{
		ID:     uuid.New().String(),
		Kind:   kind,
		Cancel: cancel,
		Signal: &Canceller{},
		Done:   make(chan struct{}),
		Progress: RunProgress{
			Kind:   kind,
			TypeID: opts.TypeID,
			Phase:  PhaseStarting,
		},
		rows:     rows,
		mappings: mappings,
		opts:     opts,
	}
	run.Progress.RunID = run.ID
	run.ctx = runCtx

	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
	return run
}

func (s *Service) processDryRun(run *activeRun, entityType schema.EntityTypeSchema) {
	started := time.Now()
	defer s.finishRun(run)

	run.setPhase(PhaseValidating)

	report, err := NewDryRun(s.repo).Run(run.ctx, run.rows, run.mappings, entityType, run.opts, func(completed, total int) {
		run.setProgress(completed, total)
	})

	result := &RunResult{
		RunID:    run.ID,
		Kind:     RunDryRun,
		TypeID:   run.opts.TypeID,
		Report:   report,
		Duration: time.Since(started),
	}

	switch {
	case err != nil && run.Signal.Cancelled():
		result.Error = "cancelled"
		run.setFailure(PhaseCancelled, result.Error)
	case err != nil:
		result.Error = err.Error()
		run.setFailure(PhaseFailed, result.Error)
	default:
		run.setPhase(PhaseComplete)
		slog.Info("dry run complete",
			"run_id", run.ID,
			"type", run.opts.TypeID,
			"rows", len(run.rows),
			"ok", report.OKCount(),
		)
	}
	run.Result = result
}

func (s *Service) processExecution(run *activeRun, tasks []ImportTask, rejected []FailedRow) {
	started := time.Now()
	defer s.finishRun(run)

	run.setPhase(PhaseExecuting)

	outcome := NewExecutor(s.repo, s.concurrency).Run(run.ctx, tasks, run.opts, run.Signal, func(completed, total int) {
		run.setProgress(completed, total)
	})

	// The summary accounts for every input row: rows the dry run
	// rejected are failures too, ahead of the execution-time ones.
	if len(rejected) > 0 {
		outcome.Failed = append(append([]FailedRow{}, rejected...), outcome.Failed...)
	}

	result := &RunResult{
		RunID:    run.ID,
		Kind:     RunExecute,
		TypeID:   run.opts.TypeID,
		Outcome:  outcome,
		Duration: time.Since(started),
	}

	if run.Signal.Cancelled() {
		run.setFailure(PhaseCancelled, "cancelled")
		result.Error = "cancelled"
	} else {
		run.setPhase(PhaseComplete)
	}
	slog.Info("execution complete",
		"run_id", run.ID,
		"type", run.opts.TypeID,
		"created", outcome.Created,
		"updated", outcome.Updated,
		"published", outcome.Published,
		"failed", len(outcome.Failed),
	)
	run.Result = result
}

// finishRun releases the limiter slot, wakes waiters, and schedules
// registry cleanup.
func (s *Service) finishRun(run *activeRun) {
	run.closeListeners()
	close(run.Done)
	run.Cancel()
	s.limiter.Release()

	time.AfterFunc(s.retainFor, func() {
		s.mu.Lock()
		delete(s.runs, run.ID)
		s.mu.Unlock()
	})
}

// SubscribeProgress returns a channel receiving progress updates for a
// run. The channel closes when the run finishes.
func (s *Service) SubscribeProgress(runID string) (<-chan RunProgress, error) {
	run, err := s.run(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan RunProgress, 10)
	run.ListenerMu.Lock()
	run.Listeners = append(run.Listeners, ch)
	select {
	case ch <- run.Progress:
	default:
	}
	run.ListenerMu.Unlock()
	return ch, nil
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(runID string) (RunProgress, error) {
	run, err := s.run(runID)
	if err != nil {
		return RunProgress{}, err
	}
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()
	return run.Progress, nil
}

// CancelRun requests cooperative cancellation. Tasks that have not
// started will fail with reason "cancelled"; in-flight tasks finish
// naturally.
func (s *Service) CancelRun(runID string) error {
	run, err := s.run(runID)
	if err != nil {
		return err
	}
	run.Signal.Cancel()
	run.Cancel()
	return nil
}

// GetResult blocks until the run completes and returns its result.
func (s *Service) GetResult(runID string) (*RunResult, error) {
	run, err := s.run(runID)
	if err != nil {
		return nil, err
	}
	<-run.Done
	return run.Result, nil
}

// Result returns the final result without blocking. It fails while the
// run is still in progress.
func (s *Service) Result(runID string) (*RunResult, error) {
	run, err := s.run(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.Done:
	default:
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, runID)
	}
	return run.Result, nil
}

// LimiterStatus exposes the run limiter for monitoring and shutdown.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until all active runs finish or ctx is cancelled.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) run(runID string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// finishedRun returns a run that has completed successfully.
func (s *Service) finishedRun(runID string, kind RunKind) (*activeRun, error) {
	run, err := s.run(runID)
	if err != nil {
		return nil, err
	}
	if run.Kind != kind {
		return nil, fmt.Errorf("run %s is a %s run", runID, run.Kind)
	}
	select {
	case <-run.Done:
	default:
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, runID)
	}
	if run.Result == nil || run.Result.Error != "" {
		return nil, fmt.Errorf("run %s did not complete successfully", runID)
	}
	return run, nil
}

// setPhase, setProgress, and setFailure mutate the progress snapshot
// under the listener lock and fan it out.
func (r *activeRun) setPhase(phase RunPhase) {
	r.ListenerMu.Lock()
	r.Progress.Phase = phase
	r.notifyLocked()
	r.ListenerMu.Unlock()
}

func (r *activeRun) setProgress(completed, total int) {
	r.ListenerMu.Lock()
	r.Progress.Completed = completed
	r.Progress.Total = total
	r.notifyLocked()
	r.ListenerMu.Unlock()
}

func (r *activeRun) setFailure(phase RunPhase, msg string) {
	r.ListenerMu.Lock()
	r.Progress.Phase = phase
	r.Progress.Error = msg
	r.notifyLocked()
	r.ListenerMu.Unlock()
}

func (r *activeRun) notifyLocked() {
	for _, ch := range r.Listeners {
		select {
		case ch <- r.Progress:
		default:
			// Listener is slow, skip this update.
		}
	}
}

func (r *activeRun) closeListeners() {
	r.ListenerMu.Lock()
	defer r.ListenerMu.Unlock()
	for _, ch := range r.Listeners {
		close(ch)
	}
	r.Listeners = nil
}
