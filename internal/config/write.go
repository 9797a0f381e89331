package config

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"starload/internal/common"
	"starload/pkg/errors"
)

// fileLayout is the on-disk shape of dwh.cfg.
type fileLayout struct {
	S3 struct {
		LogData     string `toml:"LOG_DATA"`
		LogJSONPath string `toml:"LOG_JSONPATH"`
		SongData    string `toml:"SONG_DATA"`
		Region      string `toml:"REGION,omitempty"`
	} `toml:"S3"`
	IAMRole struct {
		ARN string `toml:"ARN"`
	} `toml:"IAM_ROLE"`
	Cluster struct {
		DSN     string `toml:"DSN,omitempty"`
		Dialect string `toml:"DIALECT,omitempty"`
		Timeout string `toml:"TIMEOUT,omitempty"`
	} `toml:"CLUSTER"`
	Run struct {
		HistoryDir  string `toml:"HISTORY_DIR,omitempty"`
		PushGateway string `toml:"PUSHGATEWAY,omitempty"`
		ConfirmDrop bool   `toml:"CONFIRM_DROP"`
	} `toml:"RUN"`
}

// Marshal renders c as dwh.cfg content. The output is TOML restricted to
// quoted strings and booleans, which the INI reader accepts unchanged. The
// cluster password is never written; it belongs in the keyring or
// STARLOAD_CLUSTER_PASSWORD.
func Marshal(c *Config) ([]byte, error) {
	var f fileLayout
	f.S3.LogData = c.S3.LogData
	f.S3.LogJSONPath = c.S3.LogJSONPath
	f.S3.SongData = c.S3.SongData
	f.S3.Region = c.S3.Region
	f.IAMRole.ARN = c.IAMRole.ARN
	f.Cluster.DSN = c.Cluster.DSN
	f.Cluster.Dialect = c.Cluster.Dialect
	if c.Cluster.Timeout > 0 {
		f.Cluster.Timeout = c.Cluster.Timeout.String()
	}
	f.Run.HistoryDir = c.Run.HistoryDir
	f.Run.PushGateway = c.Run.PushGateway
	f.Run.ConfirmDrop = c.Run.ConfirmDrop

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(f); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to encode configuration")
	}
	return buf.Bytes(), nil
}

// Write saves c to path with owner-only permissions. An existing file is
// only replaced when overwrite is set.
func Write(c *Config, path string, overwrite bool) error {
	cleaned, err := common.CleanPath(path)
	if err != nil {
		return errors.ConfigError(err.Error(), "config")
	}
	if _, err := os.Stat(cleaned); err == nil && !overwrite {
		return errors.New(errors.ErrCodeConfigInvalid, "Configuration file already exists").
			WithContext("file", cleaned).
			WithSuggestions("Pass --force to replace it")
	}

	data, err := Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cleaned), common.DirPermissionSecure); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to create configuration directory")
	}
	if err := os.WriteFile(cleaned, data, common.FilePermissionSecure); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to write configuration file").
			WithContext("file", cleaned)
	}
	return nil
}
