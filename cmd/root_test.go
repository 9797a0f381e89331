package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starload/internal/config"
	"starload/internal/testutil"
	"starload/pkg/errors"
)

// resetFlags restores every flag to its default so commands can be executed
// repeatedly within one test binary.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCommandHelp(t *testing.T) {
	out, _, err := execute(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "Available Commands:")
	for _, name := range []string{"render", "run", "check", "status", "history", "login", "init", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestInvalidCommand(t *testing.T) {
	_, _, err := execute(t, "invalid-command")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "starload version dev")
}

func TestInvalidLogLevel(t *testing.T) {
	h := testutil.NewTestHelper(t)
	path := h.WriteConfig("")
	_, _, err := execute(t, "render", "--config", path, "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoadConfigValidates(t *testing.T) {
	h := testutil.NewTestHelper(t)
	path := h.WriteFile(t.TempDir(), config.DefaultFileName, "[S3]\nLOG_DATA = 's3://bucket/log_data'\n")

	_, _, err := execute(t, "render", "--config", path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigMissing))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(errors.New(errors.ErrCodeSQLExecution, "boom")))
	assert.Equal(t, 3, exitCode(errors.New(errors.ErrCodeDuplicateEntry, "dups")))
	assert.Equal(t, 130, exitCode(errors.New(errors.ErrCodeCancelled, "stop")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := errors.Retry(ctx, errors.DefaultRetryConfig(), func(context.Context) error {
		return errors.New(errors.ErrCodeNetworkUnavailable, "unreachable").AsRecoverable()
	})
	assert.Equal(t, 130, exitCode(err))
}
