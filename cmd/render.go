package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"starload/internal/catalog"
	"starload/pkg/errors"
)

const (
	formatSQL  = "sql"
	formatYAML = "yaml"
	formatJSON = "json"
)

var (
	renderStages []string
	renderFormat string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the rendered SQL catalog",
	Long: `Render prints every statement the rebuild would run, in execution order.
No connection is made. Use --stage to print selected groups only.`,
	Example: `  starload render
  starload render --stage copy --stage insert
  starload render --stage check --format yaml`,
	Args: cobra.NoArgs,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringSliceVarP(&renderStages, "stage", "s", nil, "stage to print: drop, create, copy, insert, check (repeatable)")
	renderCmd.Flags().StringVarP(&renderFormat, "format", "f", formatSQL, "output format: sql, yaml or json")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := cfg.Catalog()
	if err != nil {
		return err
	}

	stages := catalog.ExecutionOrder
	if len(renderStages) > 0 {
		if stages, err = parseStages(renderStages); err != nil {
			return err
		}
	}

	steps := make([]catalog.Step, 0, len(stages))
	for _, stage := range stages {
		steps = append(steps, catalog.Step{Stage: stage, Statements: cat.Statements(stage)})
	}
	return writeSteps(cmd.OutOrStdout(), renderFormat, steps)
}

// parseStages resolves stage names, dropping duplicates and keeping the
// canonical order with check last.
func parseStages(names []string) ([]catalog.Stage, error) {
	wanted := make(map[catalog.Stage]bool, len(names))
	for _, n := range names {
		stage, err := catalog.ParseStage(n)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, err.Error()).
				WithContext("stage", n)
		}
		wanted[stage] = true
	}

	var stages []catalog.Stage
	for _, s := range append(append([]catalog.Stage(nil), catalog.ExecutionOrder...), catalog.StageCheck) {
		if wanted[s] {
			stages = append(stages, s)
		}
	}
	return stages, nil
}

func writeSteps(w io.Writer, format string, steps []catalog.Step) error {
	switch format {
	case formatSQL:
		for _, step := range steps {
			fmt.Fprintf(w, "-- stage: %s\n\n", step.Stage)
			for _, s := range step.Statements {
				fmt.Fprintf(w, "-- %s\n%s;\n\n", s.Name, s.SQL)
			}
		}
		return nil
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(steps); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "Failed to encode catalog")
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(steps); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "Failed to encode catalog")
		}
		return nil
	default:
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown format %q (want sql, yaml or json)", format))
	}
}
