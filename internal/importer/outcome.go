package importer

// outcome.go reduces the stream of per-task results into the final
// execution summary. The aggregator is driven from a single goroutine
// (the executor's result loop), so it carries no locking of its own.

// Aggregator folds ImportResults into an ExecutionOutcome.
type Aggregator struct {
	mode    Mode
	outcome ExecutionOutcome
}

// NewAggregator creates an aggregator for the given import mode.
func NewAggregator(mode Mode) *Aggregator {
	return &Aggregator{mode: mode}
}

// Add records one settled task.
func (a *Aggregator) Add(res ImportResult) {
	if !res.Success {
		a.outcome.Failed = append(a.outcome.Failed, FailedRow{
			RowIndex: res.RowIndex,
			Reason:   res.Reason,
			EntityID: res.EntityID,
		})
		return
	}

	if a.mode == ModeUpdate {
		a.outcome.Updated++
	} else {
		a.outcome.Created++
	}

	if res.Published {
		a.outcome.Published++
	}
	if res.PublishErr != "" {
		a.outcome.PublishErrors = append(a.outcome.PublishErrors, PublishError{
			RowIndex: res.RowIndex,
			EntityID: res.EntityID,
			Reason:   res.PublishErr,
		})
	}
}

// Outcome returns the summary accumulated so far.
func (a *Aggregator) Outcome() *ExecutionOutcome {
	out := a.outcome
	return &out
}
