// Package pipeline drives a full rebuild: it executes the catalog's
// statement groups in order on one warehouse connection, stops at the first
// failure and records how far the run got.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"starload/internal/catalog"
	"starload/internal/history"
	"starload/internal/logging"
	"starload/internal/metrics"
	"starload/internal/warehouse"
	"starload/pkg/errors"
)

// Options selects what a run does.
type Options struct {
	// Stages restricts the run to these stages. They always execute in
	// catalog.ExecutionOrder. Empty means every stage.
	Stages     []catalog.Stage
	DryRun     bool
	SkipChecks bool
}

// Observer is notified as a run progresses.
type Observer interface {
	StageStarted(stage catalog.Stage, total int)
	StatementFinished(stage catalog.Stage, index int, result StatementResult)
	StageFinished(report StageReport)
}

// HistoryRecorder persists run summaries.
type HistoryRecorder interface {
	Save(ctx context.Context, r history.Record) error
}

// Runner executes a catalog against a warehouse.
type Runner struct {
	Exec    warehouse.Executor
	Catalog *catalog.Catalog

	// Optional collaborators.
	History     HistoryRecorder
	Metrics     *metrics.Metrics
	PushGateway string
	Observer    Observer
	Log         *logrus.Entry
}

func (r *Runner) logger() *logrus.Entry {
	if r.Log != nil {
		return r.Log
	}
	return logging.For("pipeline")
}

// Run executes the selected stages, then the post-load checks. The report is
// returned even when err is not nil.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if r.Catalog == nil {
		return nil, errors.New(errors.ErrCodeInternal, "Runner has no catalog")
	}
	if r.Exec == nil && !opts.DryRun {
		return nil, errors.New(errors.ErrCodeInternal, "Runner has no warehouse executor")
	}

	stages, runChecks := selectStages(opts)
	report := &Report{
		RunID:     uuid.NewString(),
		Dialect:   r.Catalog.Dialect().Name(),
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
		requested: stages,
	}

	log := r.logger().WithField("run_id", report.RunID)
	log.WithFields(logrus.Fields{
		"stages":  stages,
		"dialect": report.Dialect,
		"dry_run": opts.DryRun,
	}).Info("run started")

	err := r.runStages(ctx, log, report, stages, opts.DryRun)
	if err == nil && runChecks && !opts.DryRun && !opts.SkipChecks {
		err = r.runChecks(ctx, log, report)
	}

	report.FinishedAt = time.Now()
	r.finish(ctx, log, report)

	if err != nil {
		return report, err
	}
	if violations := report.Violations(); len(violations) > 0 {
		return report, duplicateError(violations)
	}
	return report, nil
}

func selectStages(opts Options) ([]catalog.Stage, bool) {
	if len(opts.Stages) == 0 {
		return append([]catalog.Stage(nil), catalog.ExecutionOrder...), true
	}

	wanted := make(map[catalog.Stage]bool, len(opts.Stages))
	for _, s := range opts.Stages {
		wanted[s] = true
	}

	var stages []catalog.Stage
	for _, s := range catalog.ExecutionOrder {
		if wanted[s] {
			stages = append(stages, s)
		}
	}
	return stages, wanted[catalog.StageInsert] || wanted[catalog.StageCheck]
}

func (r *Runner) runStages(ctx context.Context, log *logrus.Entry, report *Report, stages []catalog.Stage, dryRun bool) error {
	for _, stage := range stages {
		stmts := r.Catalog.Statements(stage)
		sr := StageReport{Stage: stage, Total: len(stmts)}
		stageLog := log.WithField("stage", stage)
		stageLog.WithField("statements", len(stmts)).Info("stage started")
		if r.Observer != nil {
			r.Observer.StageStarted(stage, len(stmts))
		}

		start := time.Now()
		var failure error
		for i, stmt := range stmts {
			if err := ctx.Err(); err != nil {
				failure = errors.Wrap(err, errors.ErrCodeCancelled, "Run cancelled").
					WithContext("statement", stmt.Name).
					WithContext("stage", string(stage)).
					WithSeverity(errors.SeverityWarning)
				report.Failed = &Failure{Stage: stage, Statement: stmt.Name, Index: i, Err: failure}
				break
			}

			result := StatementResult{Name: stmt.Name, Table: stmt.Table}
			if dryRun {
				result.Skipped = true
				stageLog.WithField("statement", stmt.Name).Debug(stmt.SQL)
			} else {
				res, err := r.Exec.Exec(ctx, stmt)
				result.Duration = res.Duration
				result.RowsAffected = res.RowsAffected
				result.Err = err
				if r.Metrics != nil {
					r.Metrics.ObserveStatement(string(stage), res.Duration, err)
				}
			}

			sr.Statements = append(sr.Statements, result)
			if r.Observer != nil {
				r.Observer.StatementFinished(stage, i, result)
			}

			if result.Err != nil {
				failure = withIndex(result.Err, i, len(stmts))
				if ctxErr := ctx.Err(); ctxErr != nil {
					failure = errors.Wrap(ctxErr, errors.ErrCodeCancelled, "Run cancelled").
						WithContext("statement", stmt.Name).
						WithContext("stage", string(stage)).
						WithContext("index", i).
						WithSeverity(errors.SeverityWarning)
				}
				report.Failed = &Failure{Stage: stage, Statement: stmt.Name, Index: i, Err: failure}
				stageLog.WithFields(logrus.Fields{
					"statement": stmt.Name,
					"index":     i,
					"code":      errors.GetErrorCode(result.Err),
				}).WithError(result.Err).Error("statement failed")
				break
			}
		}

		sr.Duration = time.Since(start)
		sr.Completed = failure == nil
		report.Stages = append(report.Stages, sr)
		if r.Observer != nil {
			r.Observer.StageFinished(sr)
		}

		if failure != nil {
			return failure
		}
		stageLog.WithField("duration", sr.Duration.Round(time.Millisecond).String()).Info("stage finished")
	}
	return nil
}

func withIndex(err error, index, total int) error {
	if ae, ok := err.(*errors.AppError); ok {
		return ae.WithContext("index", index).WithContext("total_statements", total)
	}
	return err
}

func (r *Runner) runChecks(ctx context.Context, log *logrus.Entry, report *Report) error {
	for i, check := range r.Catalog.CheckStatements() {
		if err := ctx.Err(); err != nil {
			failure := errors.Wrap(err, errors.ErrCodeCancelled, "Run cancelled during checks").
				WithSeverity(errors.SeverityWarning)
			report.Failed = &Failure{Stage: catalog.StageCheck, Statement: check.Name, Index: i, Err: failure}
			return failure
		}

		value, err := r.Exec.QueryInt(ctx, check.Statement)
		if err != nil {
			failure := withIndex(err, i, len(r.Catalog.CheckStatements()))
			report.Failed = &Failure{Stage: catalog.StageCheck, Statement: check.Name, Index: i, Err: failure}
			log.WithField("check", check.Name).WithError(err).Error("check failed")
			return failure
		}

		result := CheckResult{
			Name:     check.Name,
			Table:    check.Table,
			Kind:     check.Kind,
			Value:    value,
			Violated: check.Violated(value),
		}
		report.Checks = append(report.Checks, result)
		if r.Metrics != nil {
			r.Metrics.ObserveCheck(check.Table, check.Kind == catalog.CheckDuplicateKeys, value)
		}

		entry := log.WithFields(logrus.Fields{"check": check.Name, "value": value})
		if result.Violated {
			entry.Warn("duplicate natural keys")
		} else {
			entry.Debug("check passed")
		}
	}
	return nil
}

// finish records the run. Failures to record are logged, never returned, so
// they cannot mask the run's own outcome.
func (r *Runner) finish(ctx context.Context, log *logrus.Entry, report *Report) {
	fields := logrus.Fields{
		"status":   report.Status(),
		"duration": report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String(),
	}
	if last := report.LastCompletedStage(); last != "" {
		fields["last_completed_stage"] = last
	}
	log.WithFields(fields).Info("run finished")

	if report.DryRun {
		return
	}

	// History is written even for a cancelled run.
	saveCtx := context.WithoutCancel(ctx)

	if r.History != nil {
		if err := r.History.Save(saveCtx, report.Record()); err != nil {
			log.WithError(err).Warn("failed to record run history")
		}
	}

	if r.Metrics != nil {
		if report.Completed() {
			r.Metrics.MarkSuccess(report.FinishedAt)
		}
		if r.PushGateway != "" {
			pushCtx, cancel := context.WithTimeout(saveCtx, 10*time.Second)
			defer cancel()
			if err := r.Metrics.Push(pushCtx, r.PushGateway, report.RunID); err != nil {
				log.WithError(err).Warn("failed to push metrics")
			}
		}
	}
}

func duplicateError(violations []CheckResult) error {
	tables := make([]string, 0, len(violations))
	for _, v := range violations {
		tables = append(tables, fmt.Sprintf("%s (%d)", v.Table, v.Value))
	}
	err := errors.New(errors.ErrCodeDuplicateEntry,
		fmt.Sprintf("Duplicate natural keys after load: %v", tables)).
		WithSeverity(errors.SeverityWarning).
		WithSuggestions(
			"The warehouse does not enforce PRIMARY KEY; inspect the staging rows for these keys",
			"Run 'starload render --stage check' to see the check queries",
		)
	for _, v := range violations {
		_ = err.WithContext(v.Table, v.Value)
	}
	return err
}
