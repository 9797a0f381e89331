package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"starload/internal/catalog"
	"starload/internal/config"
	"starload/internal/history"
	"starload/internal/logging"
	"starload/internal/metrics"
	"starload/internal/pipeline"
	"starload/internal/ui"
	"starload/pkg/errors"
)

var (
	runStages     []string
	runDryRun     bool
	runYes        bool
	runPreflight  bool
	runSkipChecks bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rebuild the star schema",
	Long: `Run executes the catalog on one warehouse connection: drop, create, copy,
insert, then the post-load checks. It stops at the first failing statement
and records the run in the history.`,
	Example: `  starload run
  starload run --preflight --yes
  starload run --stage insert
  starload run --dry-run`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVarP(&runStages, "stage", "s", nil, "run only these stages, in canonical order (repeatable)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "report what would run without connecting")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "do not ask before dropping tables")
	runCmd.Flags().BoolVar(&runPreflight, "preflight", false, "verify the object-storage sources before loading")
	runCmd.Flags().BoolVar(&runSkipChecks, "skip-checks", false, "skip the post-load checks")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logging.For("cmd")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := cfg.Catalog()
	if err != nil {
		return err
	}

	opts := pipeline.Options{DryRun: runDryRun, SkipChecks: runSkipChecks}
	if len(runStages) > 0 {
		if opts.Stages, err = parseStages(runStages); err != nil {
			return err
		}
	}
	executes := func(stage catalog.Stage) bool {
		if len(opts.Stages) == 0 {
			return true
		}
		for _, s := range opts.Stages {
			if s == stage {
				return true
			}
		}
		return false
	}

	ui.ShowHeader(fmt.Sprintf("starload %s rebuild", cat.Dialect().Name()))

	if runPreflight && executes(catalog.StageCopy) {
		if err := preflight(cmd, cfg, cat); err != nil {
			return err
		}
	}

	if !opts.DryRun && executes(catalog.StageDrop) && cfg.Run.ConfirmDrop && !runYes {
		ok, err := confirm(fmt.Sprintf("Drop and recreate all %d tables?", len(catalog.Tables())), false)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New(errors.ErrCodeCancelled, "Run cancelled before any statement was executed")
		}
	}

	runner := &pipeline.Runner{
		Catalog:     cat,
		Metrics:     metrics.New(),
		PushGateway: cfg.Run.PushGateway,
		Log:         log,
	}
	progress := ui.NewProgressBar()
	runner.Observer = progress

	if !opts.DryRun {
		store, err := history.Open(cfg.Run.HistoryDir)
		if err != nil {
			// A missing history must not block a rebuild.
			ui.ShowWarning(fmt.Sprintf("Run history unavailable: %v", err))
		} else {
			defer store.Close()
			runner.History = store
		}

		spinner := ui.NewSpinner("Connecting to the warehouse")
		spinner.Start()
		conn, err := connectWarehouse(ctx, cfg)
		if err != nil {
			spinner.Stop(false, "Connection failed")
			return err
		}
		spinner.Stop(true, "Connected")
		defer conn.Close()
		runner.Exec = conn
	}

	report, runErr := runner.Run(ctx, opts)
	progress.Finish()
	if report == nil {
		return runErr
	}

	if len(report.Checks) > 0 {
		ui.PrintSection("Checks")
		ui.RenderChecks(report.Checks)
	}
	summarize(report)
	return runErr
}

func summarize(report *pipeline.Report) {
	switch report.Status() {
	case history.StatusDryRun:
		ui.ShowInfo(fmt.Sprintf("Dry run: %d stages rendered, nothing executed", len(report.Stages)))
	case history.StatusSucceeded:
		if len(report.Violations()) > 0 {
			ui.ShowWarning(fmt.Sprintf("Run %s loaded every table but found duplicate keys", report.RunID))
			return
		}
		ui.ShowSuccess(fmt.Sprintf("Run %s completed", report.RunID))
	default:
		last := string(report.LastCompletedStage())
		if last == "" {
			last = "none"
		}
		msg := fmt.Sprintf("Run %s %s; last completed stage: %s", report.RunID, report.Status(), last)
		if report.Failed != nil {
			msg += fmt.Sprintf(" (stopped at %s/%s)", report.Failed.Stage, report.Failed.Statement)
		}
		ui.ShowWarning(msg)
	}
}

func preflight(cmd *cobra.Command, cfg *config.Config, cat *catalog.Catalog) error {
	checker := newSourceChecker(cfg)
	defer checker.Close()

	ui.PrintSection("Sources")
	results, err := checker.Preflight(cmd.Context(), cat.Sources())
	for _, r := range results {
		status := ui.ColorSuccess("ok")
		detail := r.Location
		switch {
		case r.Err != nil:
			status = ui.ColorError("missing")
		case r.Prefix != nil:
			detail = fmt.Sprintf("%s (%s)", r.Location, describePrefix(r.Prefix.Objects, r.Prefix.Truncated, r.Prefix.Sample))
		case strings.EqualFold(strings.Trim(r.Location, "' "), "auto"):
			status = ui.ColorDim("skipped")
		}
		ui.PrintKeyValue(r.Key, status+" "+detail)
	}
	return err
}

func describePrefix(objects int, truncated bool, sample []string) string {
	count := fmt.Sprintf("%d objects", objects)
	if truncated {
		count = fmt.Sprintf("at least %d objects", objects)
	}
	if len(sample) > 0 {
		count += ", e.g. " + sample[0]
	}
	return count
}
