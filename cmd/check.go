package cmd

import (
	"github.com/spf13/cobra"

	"starload/internal/ui"
)

var checkConnect bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and the bulk-load sources",
	Long: `Check validates dwh.cfg, confirms that LOG_DATA and SONG_DATA contain
objects and that the LOG_JSONPATH file exists. With --connect it also pings
the warehouse.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkConnect, "connect", false, "also open a warehouse connection")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := cfg.Catalog()
	if err != nil {
		return err
	}

	ui.PrintSection("Configuration")
	file := cfg.File
	if file == "" {
		file = "(environment only)"
	}
	ui.PrintKeyValue("File", file)
	ui.PrintKeyValue("Dialect", cat.Dialect().Name())
	ui.PrintKeyValue("Role", cat.Sources().IAMRoleARN)

	if err := preflight(cmd, cfg, cat); err != nil {
		return err
	}

	if checkConnect {
		ui.PrintSection("Warehouse")
		conn, err := connectWarehouse(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := conn.Ping(cmd.Context()); err != nil {
			return err
		}
		ui.PrintKeyValue("Connection", ui.ColorSuccess("ok"))
	}

	ui.ShowSuccess("Configuration and sources look good")
	return nil
}
