// Package config loads dwh.cfg and its environment overrides into a Config.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"starload/internal/catalog"
	"starload/internal/common"
	"starload/pkg/errors"
)

const (
	// EnvPrefix prefixes every environment override, e.g. STARLOAD_S3_LOG_DATA.
	EnvPrefix = "STARLOAD"
	// EnvConfig names an explicit configuration file.
	EnvConfig = "STARLOAD_CONFIG"
	// DefaultFileName is the file looked up in the working and state directories.
	DefaultFileName = "dwh.cfg"

	DefaultDialect = catalog.DialectRedshift
	DefaultTimeout = 10 * time.Minute

	// DefaultClusterPort is used when CLUSTER.HOST is given without DB_PORT.
	DefaultClusterPort = "5439"
)

// Config is the full configuration of a rebuild.
type Config struct {
	S3      S3Config      `cfg:"S3"`
	IAMRole IAMRoleConfig `cfg:"IAM_ROLE"`
	Cluster ClusterConfig `cfg:"CLUSTER"`
	Run     RunConfig     `cfg:"RUN"`

	// File is the configuration file that was read, empty when only
	// environment variables were used.
	File string `cfg:"-"`
}

// S3Config holds the bulk-load sources.
type S3Config struct {
	LogData     string `cfg:"LOG_DATA" validate:"required"`
	LogJSONPath string `cfg:"LOG_JSONPATH" validate:"required"`
	SongData    string `cfg:"SONG_DATA" validate:"required"`
	Region      string `cfg:"REGION"`
}

// IAMRoleConfig holds the role the warehouse assumes to read the buckets.
type IAMRoleConfig struct {
	ARN string `cfg:"ARN" validate:"required"`
}

// ClusterConfig describes the warehouse connection.
type ClusterConfig struct {
	DSN      string        `cfg:"DSN"`
	Password string        `cfg:"PASSWORD"`
	Dialect  string        `cfg:"DIALECT" validate:"omitempty,oneof=redshift rs postgres snowflake sf"`
	Timeout  time.Duration `cfg:"TIMEOUT" validate:"gt=0"`
}

// RunConfig controls the load driver.
type RunConfig struct {
	HistoryDir  string `cfg:"HISTORY_DIR"`
	PushGateway string `cfg:"PUSHGATEWAY" validate:"omitempty,url"`
	ConfirmDrop bool   `cfg:"CONFIRM_DROP"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get("cfg")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads the configuration file at path, or the first one found in the
// usual locations when path is empty, and applies STARLOAD_* overrides.
// The result is not validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file, err := locate(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		if err := readFile(v, file); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		S3: S3Config{
			LogData:     v.GetString("s3.log_data"),
			LogJSONPath: v.GetString("s3.log_jsonpath"),
			SongData:    v.GetString("s3.song_data"),
			Region:      v.GetString("s3.region"),
		},
		IAMRole: IAMRoleConfig{
			ARN: v.GetString("iam_role.arn"),
		},
		Cluster: ClusterConfig{
			DSN:      clusterDSN(v),
			Password: firstNonEmpty(v.GetString("cluster.password"), v.GetString("cluster.db_password")),
			Dialect:  strings.ToLower(v.GetString("cluster.dialect")),
			Timeout:  v.GetDuration("cluster.timeout"),
		},
		Run: RunConfig{
			HistoryDir:  common.ExpandHome(v.GetString("run.history_dir")),
			PushGateway: v.GetString("run.pushgateway"),
			ConfirmDrop: v.GetBool("run.confirm_drop"),
		},
		File: file,
	}
	return cfg, nil
}

// readFile loads file into v. dwh.cfg and other .cfg, .ini or extensionless
// files are INI; .toml, .yaml and .json go through viper's own codecs.
func readFile(v *viper.Viper, file string) error {
	switch strings.ToLower(filepath.Ext(file)) {
	case "", ".cfg", ".ini":
		values, err := readINI(file)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to read configuration file").
				WithContext("file", file).
				WithSuggestions(
					"dwh.cfg is an INI file: [SECTION] headers followed by KEY=value lines",
				)
		}
		if err := v.MergeConfigMap(values); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to read configuration file").
				WithContext("file", file)
		}
		return nil
	}

	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to read configuration file").
			WithContext("file", file).
			WithSuggestions("Check the file syntax matches its extension")
	}
	return nil
}

// readINI returns the sections of file as nested maps keyed by lower-case
// section and key names. Keys outside any section are ignored.
func readINI(file string) (map[string]interface{}, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:         true,
		IgnoreInlineComment: true,
	}, file)
	if err != nil {
		return nil, err
	}

	values := make(map[string]interface{})
	for _, section := range f.Sections() {
		if strings.EqualFold(section.Name(), ini.DefaultSection) {
			continue
		}
		keys := make(map[string]interface{})
		for _, key := range section.Keys() {
			keys[key.Name()] = key.Value()
		}
		values[section.Name()] = keys
	}
	return values, nil
}

// clusterDSN returns CLUSTER.DSN, or composes one from the HOST, DB_NAME,
// DB_USER and DB_PORT keys of a classic dwh.cfg.
func clusterDSN(v *viper.Viper) string {
	if dsn := v.GetString("cluster.dsn"); dsn != "" {
		return dsn
	}
	host := v.GetString("cluster.host")
	if host == "" {
		return ""
	}

	port := firstNonEmpty(v.GetString("cluster.db_port"), DefaultClusterPort)
	u := url.URL{
		Scheme: catalog.DialectRedshift,
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + v.GetString("cluster.db_name"),
	}
	if user := v.GetString("cluster.db_user"); user != "" {
		u.User = url.User(user)
	}
	return u.String()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("s3.region", catalog.DefaultRegion)
	v.SetDefault("cluster.dialect", DefaultDialect)
	v.SetDefault("cluster.timeout", DefaultTimeout)
	v.SetDefault("run.history_dir", filepath.Join(common.StateDir(), "history"))
	v.SetDefault("run.confirm_drop", true)
}

// locate resolves the configuration file. An explicit path must exist; the
// fallback locations are optional.
func locate(path string) (string, error) {
	explicit := path
	if explicit == "" {
		explicit = os.Getenv(EnvConfig)
	}
	if explicit != "" {
		cleaned, err := common.CleanPath(explicit)
		if err != nil {
			return "", errors.ConfigError(err.Error(), "config")
		}
		if _, err := os.Stat(cleaned); err != nil {
			return "", errors.Wrap(err, errors.ErrCodeConfigNotFound, "Configuration file not found").
				WithContext("file", cleaned).
				WithSuggestions("Check the --config flag or STARLOAD_CONFIG")
		}
		return cleaned, nil
	}

	for _, candidate := range []string{
		DefaultFileName,
		filepath.Join(common.StateDir(), DefaultFileName),
	} {
		cleaned, err := common.CleanPath(candidate)
		if err != nil {
			continue
		}
		if _, err := os.Stat(cleaned); err == nil {
			return cleaned, nil
		}
	}
	return "", nil
}

// Validate checks required keys and value formats. The returned error names
// the offending SECTION.KEY.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	roleARN := strings.Trim(strings.TrimSpace(c.IAMRole.ARN), "'")
	if err := checkRoleARN(roleARN); err != nil {
		return errors.ConfigError(err.Error(), catalog.KeyIAMRoleARN).
			WithContext("value", roleARN)
	}

	if _, err := catalog.DialectByName(c.Cluster.Dialect); err != nil {
		return errors.ConfigError(err.Error(), "CLUSTER.DIALECT")
	}
	return nil
}

func checkRoleARN(value string) error {
	parsed, err := arn.Parse(value)
	if err != nil {
		return fmt.Errorf("IAM role ARN is malformed: %w", err)
	}
	if parsed.Service != "iam" || !strings.HasPrefix(parsed.Resource, "role/") {
		return fmt.Errorf("ARN %q does not name an IAM role", value)
	}
	return nil
}

// formatValidationError reports the first failing field with the same codes
// the catalog uses for missing and invalid values.
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Configuration validation failed")
	}

	e := validationErrors[0]
	key := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "required":
		return errors.MissingConfigError(key)
	case "oneof":
		return errors.ConfigError(fmt.Sprintf("%s must be one of: %s", key, e.Param()), key).
			WithContext("value", e.Value())
	case "url":
		return errors.ConfigError(fmt.Sprintf("%s must be a valid URL", key), key).
			WithContext("value", e.Value())
	case "gt":
		return errors.ConfigError(fmt.Sprintf("%s must be positive", key), key)
	default:
		return errors.ConfigError(fmt.Sprintf("%s is invalid", key), key)
	}
}

// Sources returns the bulk-load settings in the form the catalog consumes.
func (c *Config) Sources() catalog.Sources {
	return catalog.Sources{
		LogData:     c.S3.LogData,
		LogJSONPath: c.S3.LogJSONPath,
		SongData:    c.S3.SongData,
		IAMRoleARN:  c.IAMRole.ARN,
		Region:      c.S3.Region,
	}
}

// Dialect resolves the configured warehouse dialect.
func (c *Config) Dialect() (catalog.Dialect, error) {
	return catalog.DialectByName(c.Cluster.Dialect)
}

// Catalog validates the configuration and renders the catalog for it.
func (c *Config) Catalog() (*catalog.Catalog, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	d, err := c.Dialect()
	if err != nil {
		return nil, err
	}
	return catalog.New(c.Sources(), catalog.WithDialect(d))
}
