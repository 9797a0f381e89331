package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starload/internal/catalog"
	"starload/internal/history"
	"starload/internal/metrics"
	tu "starload/internal/testutil"
	"starload/pkg/errors"
)

type recordingObserver struct {
	started  []catalog.Stage
	finished []StageReport
	results  int
}

func (o *recordingObserver) StageStarted(stage catalog.Stage, total int) {
	o.started = append(o.started, stage)
}

func (o *recordingObserver) StatementFinished(stage catalog.Stage, index int, result StatementResult) {
	o.results++
}

func (o *recordingObserver) StageFinished(report StageReport) {
	o.finished = append(o.finished, report)
}

func newRunner(t *testing.T) (*Runner, *tu.MockWarehouse, *history.Store) {
	t.Helper()
	store, err := history.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	wh := tu.NewMockWarehouse()
	return &Runner{
		Exec:    wh,
		Catalog: tu.Catalog(t, catalog.Redshift),
		History: store,
		Metrics: metrics.New(),
	}, wh, store
}

func TestRunExecutesStagesInOrder(t *testing.T) {
	r, wh, store := newRunner(t)
	obs := &recordingObserver{}
	r.Observer = obs

	report, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)

	var want []string
	for _, step := range r.Catalog.Plan() {
		for _, s := range step.Statements {
			want = append(want, s.Name)
		}
	}
	assert.Equal(t, want, wh.ExecutedNames())
	assert.Len(t, want, 21)

	assert.True(t, report.Completed())
	assert.Equal(t, catalog.StageInsert, report.LastCompletedStage())
	assert.Equal(t, history.StatusSucceeded, report.Status())
	assert.Nil(t, report.Failed)
	assert.Len(t, report.Checks, 11)
	assert.Len(t, wh.Queried, 11)
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, catalog.ExecutionOrder, obs.started)
	assert.Len(t, obs.finished, 4)
	assert.Equal(t, 21, obs.results)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, report.RunID, latest.RunID)
	assert.Equal(t, history.StatusSucceeded, latest.Status)
	assert.Equal(t, "insert", latest.LastCompletedStage)
	assert.Len(t, latest.RowCounts, 7)

	assert.Equal(t, 7.0, testutil.ToFloat64(r.Metrics.Statements.WithLabelValues("drop", metrics.StatusOK)))
	assert.NotZero(t, testutil.ToFloat64(r.Metrics.LastSuccess))
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	r, wh, store := newRunner(t)
	wh.Errors["copy_staging_songs"] = fmt.Errorf("Load into table 'staging_songs' failed. Check 'stl_load_errors' system table for details.")

	report, err := r.Run(context.Background(), Options{})
	require.Error(t, err)

	names := wh.ExecutedNames()
	assert.Equal(t, "copy_staging_songs", names[len(names)-1])
	assert.Len(t, names, 16)
	assert.Empty(t, wh.Queried, "checks must not run after a failure")

	require.NotNil(t, report.Failed)
	assert.Equal(t, catalog.StageCopy, report.Failed.Stage)
	assert.Equal(t, "copy_staging_songs", report.Failed.Statement)
	assert.Equal(t, 1, report.Failed.Index)
	assert.False(t, report.Completed())
	assert.Equal(t, catalog.StageCreate, report.LastCompletedStage())
	assert.Equal(t, history.StatusFailed, report.Status())

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, history.StatusFailed, latest.Status)
	assert.Equal(t, "create", latest.LastCompletedStage)
	require.NotNil(t, latest.Failure)
	assert.Equal(t, "copy_staging_songs", latest.Failure.Statement)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.Statements.WithLabelValues("copy", metrics.StatusFailed)))
	assert.Zero(t, testutil.ToFloat64(r.Metrics.LastSuccess))
}

func TestRunClassifiedWarehouseError(t *testing.T) {
	r, wh, _ := newRunner(t)
	wh.Errors["insert_dim_users"] = errors.SQLError("Statement insert_dim_users failed", "INSERT",
		fmt.Errorf(`duplicate key value violates unique constraint "dim_users_pkey"`))

	report, err := r.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateEntry))
	assert.Equal(t, catalog.StageCopy, report.LastCompletedStage())

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 1, appErr.Context["index"])
}

func TestRunDropCreateIsIdempotent(t *testing.T) {
	r, wh, _ := newRunner(t)
	opts := Options{Stages: []catalog.Stage{catalog.StageCreate, catalog.StageDrop}}

	for i := 0; i < 2; i++ {
		report, err := r.Run(context.Background(), opts)
		require.NoError(t, err, "run %d", i+1)
		assert.True(t, report.Completed())
	}
	assert.Len(t, wh.Tables, 7)

	// a second create without the drop must also succeed
	report, err := r.Run(context.Background(), Options{Stages: []catalog.Stage{catalog.StageCreate}})
	require.NoError(t, err)
	assert.Equal(t, catalog.StageCreate, report.LastCompletedStage())
	assert.Empty(t, wh.Queried)
}

func TestRunRestrictedStagesKeepCanonicalOrder(t *testing.T) {
	r, wh, _ := newRunner(t)
	_, err := r.Run(context.Background(), Options{
		Stages:     []catalog.Stage{catalog.StageInsert, catalog.StageCreate},
		SkipChecks: true,
	})
	require.NoError(t, err)

	names := wh.ExecutedNames()
	require.Len(t, names, 12)
	assert.Equal(t, "create_staging_events", names[0])
	assert.Equal(t, "insert_fact_songplays", names[7])
	assert.Empty(t, wh.Queried)
}

func TestRunDuplicateKeysFlagged(t *testing.T) {
	r, wh, store := newRunner(t)
	wh.Values["check_duplicates_dim_songs"] = 2

	report, err := r.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateEntry))
	assert.Contains(t, err.Error(), "dim_songs")

	assert.True(t, report.Completed())
	violations := report.Violations()
	require.Len(t, violations, 1)
	assert.Equal(t, catalog.TableSongs, violations[0].Table)
	assert.Equal(t, int64(2), violations[0].Value)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.DuplicateKeys["dim_songs"])
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Metrics.DuplicateKeys.WithLabelValues("dim_songs")))
}

func TestRunCheckQueryFailure(t *testing.T) {
	r, wh, _ := newRunner(t)
	wh.Errors["check_rows_dim_time"] = fmt.Errorf("permission denied for relation dim_time")

	report, err := r.Run(context.Background(), Options{})
	require.Error(t, err)
	require.NotNil(t, report.Failed)
	assert.Equal(t, catalog.StageCheck, report.Failed.Stage)
	assert.Equal(t, catalog.StageInsert, report.LastCompletedStage())
}

func TestRunCancellation(t *testing.T) {
	r, wh, store := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wh.BeforeExec = func(stmt catalog.Statement) {
		if stmt.Name == "create_dim_users" {
			cancel()
		}
	}

	report, err := r.Run(ctx, Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCancelled))
	assert.Equal(t, history.StatusCancelled, report.Status())

	assert.Equal(t, catalog.StageDrop, report.LastCompletedStage())
	assert.False(t, report.Completed())
	assert.NotContains(t, wh.ExecutedNames(), "create_dim_songs")

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, report.RunID, latest.RunID)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	r, wh, _ := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Run(ctx, Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCancelled))
	assert.Empty(t, wh.Executed)
	assert.Equal(t, history.StatusCancelled, report.Status())
	assert.Equal(t, catalog.Stage(""), report.LastCompletedStage())
}

func TestRunDryRun(t *testing.T) {
	r, wh, store := newRunner(t)

	report, err := r.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, wh.Executed)
	assert.Empty(t, wh.Queried)
	assert.Equal(t, history.StatusDryRun, report.Status())
	for _, s := range report.Stages {
		for _, st := range s.Statements {
			assert.True(t, st.Skipped)
		}
	}

	_, err = store.Latest()
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound), "dry runs are not recorded")
}

func TestRunWithoutCollaborators(t *testing.T) {
	r := &Runner{Exec: tu.NewMockWarehouse(), Catalog: tu.Catalog(t, catalog.Snowflake)}
	report, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, catalog.DialectSnowflake, report.Dialect)

	_, err = (&Runner{}).Run(context.Background(), Options{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInternal))
}
