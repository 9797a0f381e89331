package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starload/internal/catalog"
	"starload/pkg/errors"
)

const sampleConfig = `
[S3]
LOG_DATA = 's3://udacity-dend/log_data'
LOG_JSONPATH = 's3://udacity-dend/log_json_path.json'
SONG_DATA = 's3://udacity-dend/song_data'

[IAM_ROLE]
ARN = 'arn:aws:iam::123456789012:role/dwhRole'

[CLUSTER]
DSN = 'redshift://dwhuser@dwhcluster.abc123.us-west-2.redshift.amazonaws.com:5439/dwh'
TIMEOUT = '15m'
`

// isolate points HOME at an empty directory so no real configuration leaks
// into the test, and returns that directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvConfig, "")
	return home
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	home := isolate(t)
	path := writeConfig(t, t.TempDir(), DefaultFileName, sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "s3://udacity-dend/log_data", cfg.S3.LogData)
	assert.Equal(t, "s3://udacity-dend/log_json_path.json", cfg.S3.LogJSONPath)
	assert.Equal(t, "s3://udacity-dend/song_data", cfg.S3.SongData)
	assert.Equal(t, "arn:aws:iam::123456789012:role/dwhRole", cfg.IAMRole.ARN)
	assert.Equal(t, 15*time.Minute, cfg.Cluster.Timeout)

	// defaults
	assert.Equal(t, catalog.DefaultRegion, cfg.S3.Region)
	assert.Equal(t, catalog.DialectRedshift, cfg.Cluster.Dialect)
	assert.Equal(t, filepath.Join(home, ".starload", "history"), cfg.Run.HistoryDir)
	assert.True(t, cfg.Run.ConfirmDrop)

	require.NoError(t, cfg.Validate())
}

const classicConfig = `
[CLUSTER]
HOST=dwhcluster.abc123.us-west-2.redshift.amazonaws.com
DB_NAME=dwh
DB_USER=dwhuser
DB_PASSWORD=Passw0rd#1
DB_PORT=5439

[IAM_ROLE]
ARN=arn:aws:iam::123456789012:role/dwhRole

[S3]
LOG_DATA='s3://udacity-dend/log_data'
LOG_JSONPATH='s3://udacity-dend/log_json_path.json'
SONG_DATA='s3://udacity-dend/song_data'
`

func TestLoadClassicINI(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), DefaultFileName, classicConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "arn:aws:iam::123456789012:role/dwhRole", cfg.IAMRole.ARN)
	assert.Equal(t, "s3://udacity-dend/log_data", cfg.S3.LogData)
	assert.Equal(t, "s3://udacity-dend/log_json_path.json", cfg.S3.LogJSONPath)
	assert.Equal(t, "s3://udacity-dend/song_data", cfg.S3.SongData)
	assert.Equal(t, "redshift://dwhuser@dwhcluster.abc123.us-west-2.redshift.amazonaws.com:5439/dwh", cfg.Cluster.DSN)
	assert.Equal(t, "Passw0rd#1", cfg.Cluster.Password)
	require.NoError(t, cfg.Validate())

	t.Run("env overrides ini", func(t *testing.T) {
		t.Setenv("STARLOAD_CLUSTER_DB_PORT", "5440")
		t.Setenv("STARLOAD_IAM_ROLE_ARN", "arn:aws:iam::123456789012:role/other")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "redshift://dwhuser@dwhcluster.abc123.us-west-2.redshift.amazonaws.com:5440/dwh", cfg.Cluster.DSN)
		assert.Equal(t, "arn:aws:iam::123456789012:role/other", cfg.IAMRole.ARN)
	})

	t.Run("explicit dsn wins", func(t *testing.T) {
		t.Setenv("STARLOAD_CLUSTER_DSN", "postgres://loader@localhost:5432/dwh")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "postgres://loader@localhost:5432/dwh", cfg.Cluster.DSN)
	})
}

func TestLoadTOMLExtension(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), "dwh.toml", sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3://udacity-dend/log_data", cfg.S3.LogData)
	assert.Equal(t, 15*time.Minute, cfg.Cluster.Timeout)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), DefaultFileName, sampleConfig)

	t.Setenv("STARLOAD_S3_SONG_DATA", "s3://other-bucket/song_data")
	t.Setenv("STARLOAD_CLUSTER_DIALECT", "Snowflake")
	t.Setenv("STARLOAD_RUN_CONFIRM_DROP", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3://other-bucket/song_data", cfg.S3.SongData)
	assert.Equal(t, "snowflake", cfg.Cluster.Dialect)
	assert.False(t, cfg.Run.ConfirmDrop)

	d, err := cfg.Dialect()
	require.NoError(t, err)
	assert.Equal(t, catalog.Snowflake, d)
}

func TestLoadFromEnvironmentOnly(t *testing.T) {
	isolate(t)
	chdir(t, t.TempDir())

	t.Setenv("STARLOAD_S3_LOG_DATA", "s3://bucket/log_data")
	t.Setenv("STARLOAD_S3_LOG_JSONPATH", "s3://bucket/log_json_path.json")
	t.Setenv("STARLOAD_S3_SONG_DATA", "s3://bucket/song_data")
	t.Setenv("STARLOAD_IAM_ROLE_ARN", "arn:aws:iam::123456789012:role/loader")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.File)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "s3://bucket/log_data", cfg.Sources().LogData)
}

func TestLoadSearchesStateDirectory(t *testing.T) {
	home := isolate(t)
	chdir(t, t.TempDir())

	dir := filepath.Join(home, ".starload")
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := writeConfig(t, dir, DefaultFileName, sampleConfig)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
}

func TestLoadErrors(t *testing.T) {
	isolate(t)

	t.Run("explicit file missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.cfg"))
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeConfigNotFound))
	})

	t.Run("unclosed ini section", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), DefaultFileName, "[IAM_ROLE\nARN=arn:aws:iam::1:role/x\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
	})

	t.Run("malformed toml", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "dwh.toml", "[S3]\nLOG_DATA = s3://unquoted\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
	})

	t.Run("config env var", func(t *testing.T) {
		t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "nope.cfg"))
		_, err := Load("")
		assert.True(t, errors.HasCode(err, errors.ErrCodeConfigNotFound))
	})
}

func validConfig() *Config {
	return &Config{
		S3: S3Config{
			LogData:     "s3://udacity-dend/log_data",
			LogJSONPath: "s3://udacity-dend/log_json_path.json",
			SongData:    "s3://udacity-dend/song_data",
			Region:      "us-west-2",
		},
		IAMRole: IAMRoleConfig{ARN: "arn:aws:iam::123456789012:role/dwhRole"},
		Cluster: ClusterConfig{Dialect: "redshift", Timeout: time.Minute},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   errors.ErrorCode
		key    string
	}{
		{name: "missing log data", mutate: func(c *Config) { c.S3.LogData = "" }, code: errors.ErrCodeConfigMissing, key: "S3.LOG_DATA"},
		{name: "missing json path", mutate: func(c *Config) { c.S3.LogJSONPath = "" }, code: errors.ErrCodeConfigMissing, key: "S3.LOG_JSONPATH"},
		{name: "missing song data", mutate: func(c *Config) { c.S3.SongData = "" }, code: errors.ErrCodeConfigMissing, key: "S3.SONG_DATA"},
		{name: "missing role", mutate: func(c *Config) { c.IAMRole.ARN = "" }, code: errors.ErrCodeConfigMissing, key: "IAM_ROLE.ARN"},
		{name: "malformed role", mutate: func(c *Config) { c.IAMRole.ARN = "dwhRole" }, code: errors.ErrCodeConfigInvalid, key: "IAM_ROLE.ARN"},
		{name: "not a role", mutate: func(c *Config) { c.IAMRole.ARN = "arn:aws:s3:::udacity-dend" }, code: errors.ErrCodeConfigInvalid, key: "IAM_ROLE.ARN"},
		{name: "unknown dialect", mutate: func(c *Config) { c.Cluster.Dialect = "bigquery" }, code: errors.ErrCodeConfigInvalid, key: "CLUSTER.DIALECT"},
		{name: "zero timeout", mutate: func(c *Config) { c.Cluster.Timeout = 0 }, code: errors.ErrCodeConfigInvalid, key: "CLUSTER.TIMEOUT"},
		{name: "bad pushgateway", mutate: func(c *Config) { c.Run.PushGateway = "not a url" }, code: errors.ErrCodeConfigInvalid, key: "RUN.PUSHGATEWAY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)

			var appErr *errors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.key, appErr.Context["field"])
		})
	}
}

func TestValidateAcceptsQuotedRole(t *testing.T) {
	cfg := validConfig()
	cfg.IAMRole.ARN = "'arn:aws:iam::123456789012:role/dwhRole'"
	assert.NoError(t, cfg.Validate())
}

func TestCatalog(t *testing.T) {
	cfg := validConfig()
	cfg.Cluster.Dialect = "sf"

	c, err := cfg.Catalog()
	require.NoError(t, err)
	assert.Equal(t, catalog.DialectSnowflake, c.Dialect().Name())
	assert.Contains(t, c.CopyStatements()[0].SQL, cfg.S3.LogData)

	cfg.IAMRole.ARN = ""
	c, err = cfg.Catalog()
	assert.Nil(t, c)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigMissing))
}

func TestWriteThenLoad(t *testing.T) {
	isolate(t)
	cfg := validConfig()
	cfg.Cluster.DSN = "postgres://dwhuser@localhost:5439/dwh"
	cfg.Cluster.Password = "secret"
	cfg.Run.ConfirmDrop = false

	path := filepath.Join(t.TempDir(), "nested", DefaultFileName)
	require.NoError(t, Write(cfg, path, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[IAM_ROLE]")
	assert.NotContains(t, string(data), "secret")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.S3, loaded.S3)
	assert.Equal(t, cfg.IAMRole, loaded.IAMRole)
	assert.Equal(t, cfg.Cluster.DSN, loaded.Cluster.DSN)
	assert.Equal(t, time.Minute, loaded.Cluster.Timeout)
	assert.False(t, loaded.Run.ConfirmDrop)
	assert.Empty(t, loaded.Cluster.Password)

	err = Write(cfg, path, false)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
	assert.NoError(t, Write(cfg, path, true))
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
