package ui

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"starload/internal/catalog"
	"starload/internal/history"
	"starload/internal/pipeline"
)

func newTable(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// StatusText colors a run status.
func StatusText(status string) string {
	switch status {
	case history.StatusSucceeded:
		return color.GreenString(status)
	case history.StatusFailed:
		return color.RedString(status)
	case history.StatusCancelled:
		return color.YellowString(status)
	default:
		return color.CyanString(status)
	}
}

// RenderHistory lists recorded runs, newest first.
func RenderHistory(records []history.Record) {
	if len(records) == 0 {
		ShowInfo("No runs recorded yet")
		return
	}

	table := newTable("Run", "Started", "Dialect", "Status", "Last Stage", "Duration", "Failure")
	for _, r := range records {
		failure := ""
		if r.Failure != nil {
			failure = fmt.Sprintf("%s #%d [%s]", r.Failure.Statement, r.Failure.Index, r.Failure.Code)
		}
		table.Append([]string{
			shortID(r.RunID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Dialect,
			StatusText(r.Status),
			r.LastCompletedStage,
			FormatDuration(r.Duration()),
			failure,
		})
	}
	table.Render()
}

// RenderRecord shows one run in detail.
func RenderRecord(r *history.Record) {
	PrintSection("Run " + r.RunID)
	PrintKeyValue("Status", StatusText(r.Status))
	PrintKeyValue("Dialect", r.Dialect)
	PrintKeyValue("Started", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	PrintKeyValue("Duration", FormatDuration(r.Duration()))
	if r.LastCompletedStage != "" {
		PrintKeyValue("Last stage", r.LastCompletedStage)
	}
	if r.Failure != nil {
		PrintKeyValue("Failed at", fmt.Sprintf("%s/%s (statement %d)", r.Failure.Stage, r.Failure.Statement, r.Failure.Index))
		PrintKeyValue("Error", r.Failure.Message)
	}

	if len(r.Stages) > 0 {
		fmt.Fprintln(out)
		table := newTable("Stage", "Executed", "Statements", "Duration")
		for _, s := range r.Stages {
			table.Append([]string{
				s.Stage,
				strconv.Itoa(s.Executed),
				strconv.Itoa(s.Statements),
				FormatDuration(s.Duration),
			})
		}
		table.Render()
	}

	if len(r.RowCounts) > 0 {
		fmt.Fprintln(out)
		table := newTable("Table", "Rows", "Duplicate Keys")
		for _, t := range catalog.Tables() {
			name := t.Name
			rows, ok := r.RowCounts[name]
			if !ok {
				continue
			}
			dups := "-"
			if n, ok := r.DuplicateKeys[name]; ok {
				dups = strconv.FormatInt(n, 10)
				if n > 0 {
					dups = color.RedString(dups)
				}
			}
			table.Append([]string{name, strconv.FormatInt(rows, 10), dups})
		}
		table.Render()
	}
}

// RenderChecks shows post-load check values.
func RenderChecks(checks []pipeline.CheckResult) {
	if len(checks) == 0 {
		return
	}
	table := newTable("Check", "Table", "Value", "Result")
	for _, c := range checks {
		result := color.GreenString("ok")
		if c.Violated {
			result = color.RedString("duplicates")
		} else if c.Kind == catalog.CheckRowCount {
			result = "-"
		}
		table.Append([]string{c.Name, c.Table, strconv.FormatInt(c.Value, 10), result})
	}
	table.Render()
}

// RenderPlan lists the statements of each step without their SQL.
func RenderPlan(steps []catalog.Step) {
	table := newTable("#", "Stage", "Statement", "Table")
	n := 0
	for _, step := range steps {
		for _, s := range step.Statements {
			n++
			table.Append([]string{strconv.Itoa(n), string(step.Stage), s.Name, s.Table})
		}
	}
	table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
