package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"starload/internal/config"
	"starload/internal/credentials"
	"starload/internal/ui"
	"starload/internal/warehouse"
	"starload/pkg/errors"
)

var (
	loginPasswordStdin bool
	loginDelete        bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the warehouse password in the system keyring",
	Long: `Login stores the password for the CLUSTER.DSN user in the system keyring,
so dwh.cfg never needs to hold it. The entry is keyed by user@host.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "read the password from standard input")
	loginCmd.Flags().BoolVar(&loginDelete, "delete", false, "remove the stored password")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Cluster.DSN == "" {
		return errors.MissingConfigError(warehouse.KeyDSN)
	}
	endpoint, err := warehouse.ParseDSN(cfg.Cluster.DSN, "")
	if err != nil {
		return err
	}
	if endpoint.User == "" {
		return errors.ConfigError("CLUSTER.DSN has no user name", warehouse.KeyDSN).
			WithSuggestions("Use a URL such as redshift://dwhuser@host:5439/dwh")
	}

	account := endpoint.Account()
	keyring := credentials.NewKeyring()

	if loginDelete {
		if err := keyring.Delete(account); err != nil {
			return err
		}
		ui.ShowSuccess(fmt.Sprintf("Removed stored password for %s", account))
		return nil
	}

	var password string
	if loginPasswordStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return errors.Wrap(err, errors.ErrCodeInvalidInput, "Failed to read password from stdin")
		}
		password = strings.TrimRight(line, "\r\n")
	} else {
		if password, err = ui.PromptPassword(fmt.Sprintf("Password for %s:", account)); err != nil {
			return err
		}
	}
	if password == "" {
		return errors.New(errors.ErrCodeInvalidInput, "Password must not be empty")
	}

	if err := keyring.Store(account, password); err != nil {
		return err
	}
	ui.ShowSuccess(fmt.Sprintf("Stored password for %s", account))
	return nil
}
