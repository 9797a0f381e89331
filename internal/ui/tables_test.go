package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"starload/internal/catalog"
	"starload/internal/history"
	"starload/internal/pipeline"
)

func sampleRecord() history.Record {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return history.Record{
		RunID:              "0f8fad5b-d9cb-469f-a165-70867728950e",
		StartedAt:          started,
		FinishedAt:         started.Add(95 * time.Second),
		Dialect:            catalog.DialectRedshift,
		Status:             history.StatusFailed,
		LastCompletedStage: "create",
		Stages: []history.StageSummary{
			{Stage: "drop", Statements: 7, Executed: 7, Duration: time.Second},
			{Stage: "copy", Statements: 2, Executed: 1, Duration: time.Minute},
		},
		Failure: &history.FailureSummary{
			Stage:     "copy",
			Statement: "copy_staging_songs",
			Index:     1,
			Code:      "SLE2006",
			Message:   "Statement copy_staging_songs failed",
		},
		RowCounts:     map[string]int64{catalog.TableUsers: 97},
		DuplicateKeys: map[string]int64{catalog.TableUsers: 3},
	}
}

func TestRenderHistory(t *testing.T) {
	buf := capture(t)
	RenderHistory([]history.Record{sampleRecord()})

	out := buf.String()
	assert.Contains(t, out, "0f8fad5b")
	assert.NotContains(t, out, "d9cb-469f")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "copy_staging_songs #1 [SLE2006]")
	assert.Contains(t, out, "1m35s")
}

func TestRenderHistoryEmpty(t *testing.T) {
	buf := capture(t)
	RenderHistory(nil)
	assert.Contains(t, buf.String(), "No runs recorded yet")
}

func TestRenderRecord(t *testing.T) {
	buf := capture(t)
	r := sampleRecord()
	RenderRecord(&r)

	out := buf.String()
	assert.Contains(t, out, r.RunID)
	assert.Contains(t, out, "copy/copy_staging_songs (statement 1)")
	assert.Contains(t, out, catalog.TableUsers)
	assert.Contains(t, out, "97")
}

func TestRenderChecksAndPlan(t *testing.T) {
	buf := capture(t)
	RenderChecks([]pipeline.CheckResult{
		{Name: "check_duplicates_dim_songs", Table: catalog.TableSongs, Kind: catalog.CheckDuplicateKeys, Value: 2, Violated: true},
		{Name: "check_rows_dim_songs", Table: catalog.TableSongs, Kind: catalog.CheckRowCount, Value: 14896},
	})
	assert.Contains(t, buf.String(), "duplicates")
	assert.Contains(t, buf.String(), "14896")

	buf.Reset()
	RenderPlan([]catalog.Step{{
		Stage:      catalog.StageCopy,
		Statements: []catalog.Statement{{Name: "copy_staging_events", Table: catalog.TableStagingEvents}},
	}})
	assert.Contains(t, buf.String(), "copy_staging_events")
}
