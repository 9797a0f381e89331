package pipeline

import (
	"time"

	"starload/internal/catalog"
	"starload/internal/history"
	"starload/pkg/errors"
)

// StatementResult is the outcome of one statement.
type StatementResult struct {
	Name         string        `json:"name"`
	Table        string        `json:"table"`
	Duration     time.Duration `json:"duration"`
	RowsAffected int64         `json:"rows_affected"`
	Skipped      bool          `json:"skipped,omitempty"`
	Err          error         `json:"-"`
}

// StageReport is the outcome of one statement group.
type StageReport struct {
	Stage      catalog.Stage     `json:"stage"`
	Statements []StatementResult `json:"statements"`
	Total      int               `json:"total"`
	Duration   time.Duration     `json:"duration"`
	Completed  bool              `json:"completed"`
}

// Failure identifies the statement a run stopped at.
type Failure struct {
	Stage     catalog.Stage `json:"stage"`
	Statement string        `json:"statement"`
	Index     int           `json:"index"`
	Err       error         `json:"-"`
}

// CheckResult is the value of one post-load check.
type CheckResult struct {
	Name     string            `json:"name"`
	Table    string            `json:"table"`
	Kind     catalog.CheckKind `json:"kind"`
	Value    int64             `json:"value"`
	Violated bool              `json:"violated"`
}

// Report describes a run from start to finish or to the first failure.
type Report struct {
	RunID      string        `json:"run_id"`
	Dialect    string        `json:"dialect"`
	DryRun     bool          `json:"dry_run"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stages     []StageReport `json:"stages"`
	Failed     *Failure      `json:"failed,omitempty"`
	Checks     []CheckResult `json:"checks,omitempty"`

	requested []catalog.Stage
}

// Completed reports whether every requested stage ran to the end.
func (r *Report) Completed() bool {
	if r.Failed != nil || len(r.Stages) != len(r.requested) {
		return false
	}
	for _, s := range r.Stages {
		if !s.Completed {
			return false
		}
	}
	return true
}

// LastCompletedStage returns the last stage whose statements all succeeded,
// or "" when none did.
func (r *Report) LastCompletedStage() catalog.Stage {
	var last catalog.Stage
	for _, s := range r.Stages {
		if !s.Completed {
			break
		}
		last = s.Stage
	}
	return last
}

// Violations returns the checks that found a data quality problem.
func (r *Report) Violations() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if c.Violated {
			out = append(out, c)
		}
	}
	return out
}

// Status summarizes the outcome as one of the history statuses.
func (r *Report) Status() string {
	switch {
	case r.DryRun:
		return history.StatusDryRun
	case r.Failed != nil && errors.HasCode(r.Failed.Err, errors.ErrCodeCancelled):
		return history.StatusCancelled
	case r.Completed():
		return history.StatusSucceeded
	default:
		return history.StatusFailed
	}
}

// Record converts the report to its history form.
func (r *Report) Record() history.Record {
	rec := history.Record{
		RunID:              r.RunID,
		StartedAt:          r.StartedAt,
		FinishedAt:         r.FinishedAt,
		Dialect:            r.Dialect,
		Status:             r.Status(),
		LastCompletedStage: string(r.LastCompletedStage()),
	}

	for _, s := range r.Stages {
		executed := 0
		for _, st := range s.Statements {
			if st.Err == nil && !st.Skipped {
				executed++
			}
		}
		rec.Stages = append(rec.Stages, history.StageSummary{
			Stage:      string(s.Stage),
			Statements: s.Total,
			Executed:   executed,
			Duration:   s.Duration,
		})
	}

	if r.Failed != nil {
		rec.Failure = &history.FailureSummary{
			Stage:     string(r.Failed.Stage),
			Statement: r.Failed.Statement,
			Index:     r.Failed.Index,
			Code:      string(errors.GetErrorCode(r.Failed.Err)),
		}
		if ae, ok := r.Failed.Err.(*errors.AppError); ok {
			rec.Failure.Message = ae.Message
			if ae.Cause != nil {
				rec.Failure.Message += ": " + ae.Cause.Error()
			}
		} else if r.Failed.Err != nil {
			rec.Failure.Message = r.Failed.Err.Error()
		}
	}

	for _, c := range r.Checks {
		switch c.Kind {
		case catalog.CheckDuplicateKeys:
			if rec.DuplicateKeys == nil {
				rec.DuplicateKeys = make(map[string]int64)
			}
			rec.DuplicateKeys[c.Table] = c.Value
		case catalog.CheckRowCount:
			if rec.RowCounts == nil {
				rec.RowCounts = make(map[string]int64)
			}
			rec.RowCounts[c.Table] = c.Value
		}
	}
	return rec
}
