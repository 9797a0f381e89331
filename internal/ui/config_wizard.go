package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"starload/internal/catalog"
	"starload/internal/config"
	"starload/pkg/errors"
)

// askFunc matches survey.Ask so tests can answer prompts directly.
type askFunc func(qs []*survey.Question, response interface{}, opts ...survey.AskOpt) error

type sourceAnswers struct {
	LogData     string
	LogJSONPath string
	SongData    string
	Region      string
}

type roleAnswers struct {
	ARN string
}

type clusterAnswers struct {
	Dialect string
	DSN     string
	Timeout string
}

type reviewAnswers struct {
	Save bool
}

// ConfigWizard builds a dwh.cfg interactively.
type ConfigWizard struct {
	currentStep int
	totalSteps  int
	ask         askFunc
}

// NewConfigWizard creates a new configuration wizard
func NewConfigWizard() *ConfigWizard {
	return &ConfigWizard{
		currentStep: 1,
		totalSteps:  4,
		ask:         survey.Ask,
	}
}

// Run executes the configuration wizard. The returned configuration has
// passed validation.
func (w *ConfigWizard) Run() (*config.Config, error) {
	ShowHeader("starload - dwh.cfg setup")

	cfg := &config.Config{
		Run: config.RunConfig{ConfirmDrop: true},
	}
	steps := []func(*config.Config) error{
		w.configureSourcesStep,
		w.configureRoleStep,
		w.configureClusterStep,
		w.reviewConfiguration,
	}
	for _, step := range steps {
		if err := step(cfg); err != nil {
			if err == terminal.InterruptErr {
				return nil, errors.New(errors.ErrCodeCancelled, "Configuration cancelled")
			}
			return nil, err
		}
	}
	return cfg, nil
}

func (w *ConfigWizard) configureSourcesStep(cfg *config.Config) error {
	w.showProgress("Bulk-load Sources")

	questions := []*survey.Question{
		{
			Name: "logData",
			Prompt: &survey.Input{
				Message: "Event log prefix (S3.LOG_DATA):",
				Default: "s3://udacity-dend/log_data",
				Help:    "Object-storage prefix holding the JSON event logs",
			},
			Validate: survey.ComposeValidators(survey.Required, validateLocation),
		},
		{
			Name: "logJSONPath",
			Prompt: &survey.Input{
				Message: "JSONPaths file (S3.LOG_JSONPATH):",
				Default: "s3://udacity-dend/log_json_path.json",
				Help:    "JSONPaths file mapping event fields to staging columns, or 'auto'",
			},
			Validate: survey.Required,
		},
		{
			Name: "songData",
			Prompt: &survey.Input{
				Message: "Song metadata prefix (S3.SONG_DATA):",
				Default: "s3://udacity-dend/song_data",
			},
			Validate: survey.ComposeValidators(survey.Required, validateLocation),
		},
		{
			Name: "region",
			Prompt: &survey.Input{
				Message: "Bucket region:",
				Default: catalog.DefaultRegion,
			},
			Validate: survey.Required,
		},
	}

	var answers sourceAnswers
	if err := w.ask(questions, &answers); err != nil {
		return err
	}

	cfg.S3 = config.S3Config{
		LogData:     strings.TrimSpace(answers.LogData),
		LogJSONPath: strings.TrimSpace(answers.LogJSONPath),
		SongData:    strings.TrimSpace(answers.SongData),
		Region:      strings.TrimSpace(answers.Region),
	}
	w.currentStep++
	return nil
}

func (w *ConfigWizard) configureRoleStep(cfg *config.Config) error {
	w.showProgress("IAM Role")

	questions := []*survey.Question{
		{
			Name: "arn",
			Prompt: &survey.Input{
				Message: "Role ARN (IAM_ROLE.ARN):",
				Help:    "Role the warehouse assumes to read the buckets, e.g. arn:aws:iam::123456789012:role/dwhRole",
			},
			Validate: survey.Required,
		},
	}

	var answers roleAnswers
	if err := w.ask(questions, &answers); err != nil {
		return err
	}
	cfg.IAMRole.ARN = strings.TrimSpace(answers.ARN)
	w.currentStep++
	return nil
}

func (w *ConfigWizard) configureClusterStep(cfg *config.Config) error {
	w.showProgress("Warehouse Connection")

	questions := []*survey.Question{
		{
			Name: "dialect",
			Prompt: &survey.Select{
				Message: "Warehouse:",
				Options: []string{catalog.DialectRedshift, catalog.DialectSnowflake},
				Default: catalog.DialectRedshift,
			},
		},
		{
			Name: "dsn",
			Prompt: &survey.Input{
				Message: "Connection URL (CLUSTER.DSN):",
				Help:    "e.g. redshift://dwhuser@dwhcluster.abc123.us-west-2.redshift.amazonaws.com:5439/dwh; leave the password out",
			},
		},
		{
			Name: "timeout",
			Prompt: &survey.Input{
				Message: "Statement timeout:",
				Default: config.DefaultTimeout.String(),
			},
			Validate: validateDuration,
		},
	}

	var answers clusterAnswers
	if err := w.ask(questions, &answers); err != nil {
		return err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(answers.Timeout))
	if err != nil {
		return errors.ConfigError(err.Error(), "CLUSTER.TIMEOUT")
	}
	cfg.Cluster = config.ClusterConfig{
		Dialect: answers.Dialect,
		DSN:     strings.TrimSpace(answers.DSN),
		Timeout: timeout,
	}
	w.currentStep++
	return nil
}

func (w *ConfigWizard) reviewConfiguration(cfg *config.Config) error {
	w.showProgress("Review Configuration")

	if err := cfg.Validate(); err != nil {
		return err
	}

	PrintSection("Configuration Summary")
	PrintKeyValue("LOG_DATA", cfg.S3.LogData)
	PrintKeyValue("LOG_JSONPATH", cfg.S3.LogJSONPath)
	PrintKeyValue("SONG_DATA", cfg.S3.SongData)
	PrintKeyValue("REGION", cfg.S3.Region)
	PrintKeyValue("ARN", cfg.IAMRole.ARN)
	PrintKeyValue("DIALECT", cfg.Cluster.Dialect)
	if cfg.Cluster.DSN != "" {
		PrintKeyValue("DSN", cfg.Cluster.DSN)
	}
	PrintKeyValue("TIMEOUT", cfg.Cluster.Timeout.String())

	questions := []*survey.Question{
		{
			Name:   "save",
			Prompt: &survey.Confirm{Message: "Save this configuration?", Default: true},
		},
	}
	var answers reviewAnswers
	if err := w.ask(questions, &answers); err != nil {
		return err
	}
	if !answers.Save {
		return errors.New(errors.ErrCodeCancelled, "Configuration cancelled")
	}
	return nil
}

func (w *ConfigWizard) showProgress(step string) {
	fmt.Fprintf(out, "\n%s [Step %d/%d] %s\n\n",
		ColorProgress(">"),
		w.currentStep,
		w.totalSteps,
		ColorBold(step),
	)
}

func validateLocation(val interface{}) error {
	s, _ := val.(string)
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "://") {
		return fmt.Errorf("expected a URL such as s3://bucket/prefix")
	}
	return nil
}

func validateDuration(val interface{}) error {
	s, _ := val.(string)
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
