package importer

// execute.go drives validated rows through a bounded worker pool. Each
// task runs independently: create (or get-merge-update) with retries on
// transient repository errors, then a best-effort publish. Results feed
// a single-threaded aggregator, so no outcome state needs locking.

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/contentful/apps-sub004/internal/repository"
	"github.com/contentful/apps-sub004/internal/schema"
)

// DefaultConcurrency is the worker pool width unless configured
// otherwise.
const DefaultConcurrency = 4

// maxAttempts bounds transient-error retries per repository operation,
// first attempt included.
const maxAttempts = 3

// defaultBackoffBase is the delay before the first retry; it doubles
// per subsequent attempt.
const defaultBackoffBase = 500 * time.Millisecond

// Backoff returns the delay before retry number attempt (0-based):
// base * 2^attempt. Pure so the retry policy is testable apart from
// the queue.
func Backoff(base time.Duration, attempt int) time.Duration {
	return base << attempt
}

// Canceller is the cooperative cancellation signal. Once fired it only
// prevents not-yet-started tasks from beginning; in-flight repository
// calls run to completion.
type Canceller struct {
	fired atomic.Bool
}

// Cancel fires the signal. Safe to call more than once.
func (c *Canceller) Cancel() { c.fired.Store(true) }

// Cancelled reports whether the signal has fired.
func (c *Canceller) Cancelled() bool { return c.fired.Load() }

// Executor runs import tasks against the repository.
type Executor struct {
	repo        repository.Repository
	concurrency int
	backoffBase time.Duration

	// wait is swappable so retry tests do not sleep for real.
	wait func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor with the given pool width. Width and
// backoff fall back to defaults when out of range.
func NewExecutor(repo repository.Repository, concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Executor{
		repo:        repo,
		concurrency: concurrency,
		backoffBase: defaultBackoffBase,
		wait:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BuildTasks turns the rows whose verdict passed into import tasks,
// carrying over the resolved target entity in update mode.
func BuildTasks(rows []ParsedRow, mappings []ColumnMapping, t schema.EntityTypeSchema, opts Options, report *DryRunReport) []ImportTask {
	okRows := make(map[int]bool, len(report.Verdicts))
	for _, v := range report.Verdicts {
		okRows[v.RowIndex] = v.OK
	}

	var tasks []ImportTask
	for _, row := range rows {
		if !okRows[row.RowIndex] {
			continue
		}
		tasks = append(tasks, ImportTask{
			RowIndex: row.RowIndex,
			EntityID: report.Matches[row.RowIndex],
			Fields:   BuildPayload(MapRow(row, mappings, t, opts.DefaultLocale)),
		})
	}
	return tasks
}

// RejectedRows lists the rows a dry run rejected as failure entries,
// so the execution summary enumerates every input row: the reason is
// the row's first error-severity issue.
func RejectedRows(report *DryRunReport) []FailedRow {
	var failed []FailedRow
	for _, v := range report.Verdicts {
		if v.OK {
			continue
		}
		reason := "rejected during validation"
		for _, issue := range v.Issues {
			if issue.Severity == SeverityError {
				reason = issue.Message
				break
			}
		}
		failed = append(failed, FailedRow{RowIndex: v.RowIndex, Reason: reason})
	}
	return failed
}

// Run executes all tasks with bounded concurrency and aggregates their
// results. The progress callback fires exactly once per settled task
// with cumulative counts. Run returns once every task has settled.
func (e *Executor) Run(ctx context.Context, tasks []ImportTask, opts Options, cancel *Canceller, progress ProgressFunc) *ExecutionOutcome {
	if cancel == nil {
		cancel = &Canceller{}
	}

	queue := make(chan ImportTask)
	results := make(chan ImportResult)

	var wg sync.WaitGroup
	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				results <- e.runTask(ctx, task, opts, cancel)
			}
		}()
	}

	go func() {
		for _, task := range tasks {
			queue <- task
		}
		close(queue)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single-threaded reducer: the only writer to progress and outcome.
	agg := NewAggregator(opts.Mode)
	completed := 0
	for res := range results {
		agg.Add(res)
		completed++
		if progress != nil {
			progress(completed, len(tasks))
		}
	}
	return agg.Outcome()
}

// runTask performs one row's write. queued -> running -> terminal;
// retries stay inside running and are invisible to the caller.
func (e *Executor) runTask(ctx context.Context, task ImportTask, opts Options, cancel *Canceller) ImportResult {
	result := ImportResult{RowIndex: task.RowIndex, EntityID: task.EntityID}

	if cancel.Cancelled() {
		result.Cancelled = true
		result.Reason = "cancelled"
		return result
	}

	var entity *repository.Entity
	var attempts int
	var err error

	switch opts.Mode {
	case ModeUpdate:
		entity, attempts, err = e.withRetry(ctx, func() (*repository.Entity, error) {
			current, getErr := e.repo.GetEntity(ctx, task.EntityID)
			if getErr != nil {
				return nil, getErr
			}
			return e.repo.UpdateEntity(ctx, task.EntityID, mergeFields(current.Fields, task.Fields))
		})
	default:
		entity, attempts, err = e.withRetry(ctx, func() (*repository.Entity, error) {
			return e.repo.CreateEntity(ctx, opts.TypeID, task.Fields)
		})
	}

	result.Attempts = attempts
	if err != nil {
		result.Reason = err.Error()
		return result
	}

	result.Success = true
	result.EntityID = entity.ID

	if opts.Publish {
		published, _, pubErr := e.withRetry(ctx, func() (*repository.Entity, error) {
			return e.repo.PublishEntity(ctx, entity.ID, entity.Version)
		})
		if pubErr != nil {
			// Best effort: the create/update still counts.
			result.PublishErr = pubErr.Error()
		} else if published != nil {
			result.Published = true
		}
	}

	return result
}

// withRetry runs op up to maxAttempts times, backing off exponentially
// between attempts on transient errors and failing immediately on
// anything else.
func (e *Executor) withRetry(ctx context.Context, op func() (*repository.Entity, error)) (*repository.Entity, int, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := e.wait(ctx, Backoff(e.backoffBase, attempt-1)); err != nil {
				return nil, attempt, lastErr
			}
		}

		entity, err := op()
		if err == nil {
			return entity, attempt + 1, nil
		}
		lastErr = err
		if !repository.IsTransient(err) {
			return nil, attempt + 1, err
		}
	}
	return nil, maxAttempts, lastErr
}

// mergeFields overlays the task's payload onto the entity's existing
// fields: task values win per (field, locale) key, everything else is
// preserved.
func mergeFields(existing, incoming repository.FieldsPayload) repository.FieldsPayload {
	merged := make(repository.FieldsPayload, len(existing)+len(incoming))
	for fieldID, locales := range existing {
		copied := make(map[string]any, len(locales))
		for locale, v := range locales {
			copied[locale] = v
		}
		merged[fieldID] = copied
	}
	for fieldID, locales := range incoming {
		target, ok := merged[fieldID]
		if !ok {
			target = make(map[string]any, len(locales))
			merged[fieldID] = target
		}
		for locale, v := range locales {
			target[locale] = v
		}
	}
	return merged
}
