package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"starload/internal/config"
	"starload/internal/logging"
	"starload/internal/ui"
	"starload/pkg/errors"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	rootCmd = &cobra.Command{
		Use:   "starload",
		Short: "Rebuild the song-play star schema in a cloud warehouse",
		Long: `starload drops and recreates the song-play star schema, bulk-loads the
raw event logs and song metadata from object storage into staging tables,
and fills the fact and dimension tables from them.

Settings come from dwh.cfg and STARLOAD_<SECTION>_<KEY> environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.SetOutput(cmd.OutOrStdout())
			return logging.Setup(logLevel, logFormat, cmd.ErrOrStderr())
		},
	}
)

// Execute runs the root command and exits non-zero on failure. SIGINT and
// SIGTERM cancel the running command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		ui.ShowError(err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.HasCode(err, errors.ErrCodeCancelled):
		return 130
	case errors.HasCode(err, errors.ErrCodeDuplicateEntry):
		return 3
	default:
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default ./dwh.cfg or ~/.starload/dwh.cfg)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "log format: text or json")
}

// loadConfig reads and validates the configuration selected by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
