package cmd

import (
	"github.com/spf13/cobra"

	"starload/internal/config"
	"starload/internal/history"
	"starload/internal/ui"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs, or show one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent run and where it stopped",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to list (0 lists all)")
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
}

// openHistory opens the store without requiring a complete configuration.
func openHistory() (*history.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.Run.HistoryDir)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		record, err := store.Get(args[0])
		if err != nil {
			return err
		}
		ui.RenderRecord(record)
		return nil
	}

	records, err := store.List(historyLimit)
	if err != nil {
		return err
	}
	ui.RenderHistory(records)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	record, err := store.Latest()
	if err != nil {
		return err
	}
	ui.RenderRecord(record)
	return nil
}
