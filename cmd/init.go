package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"starload/internal/config"
	"starload/internal/ui"
)

var (
	initPath  string
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create dwh.cfg interactively",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initPath, "output", "o", config.DefaultFileName, "where to write the configuration")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := ui.NewConfigWizard().Run()
	if err != nil {
		return err
	}
	if err := config.Write(cfg, initPath, initForce); err != nil {
		return err
	}
	ui.ShowSuccess(fmt.Sprintf("Wrote %s", initPath))
	ui.ShowInfo("Run 'starload login' to store the warehouse password, then 'starload check'")
	return nil
}
