package pipeline

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/housereg/pkg/errors"
	"github.com/YuminosukeSato/housereg/pkg/log"
	"github.com/YuminosukeSato/housereg/sklearn/impute"
)

// Config holds every setting of a run. Zero-valued optional fields
// (PlotPath, ModelPath, ReportPath) disable the corresponding output.
type Config struct {
	DataPath        string   `yaml:"data_path"`
	LabelColumn     string   `yaml:"label_column"`
	ImputeColumns   []string `yaml:"impute_columns"`
	ImputeStrategy  string   `yaml:"impute_strategy"`
	ImputeFillValue float64  `yaml:"impute_fill_value"`
	TestSize        float64  `yaml:"test_size"`
	SplitSeed       int64    `yaml:"split_seed"`
	Model           string   `yaml:"model"`
	ModelSeed       int64    `yaml:"model_seed"`
	NEstimators     int      `yaml:"n_estimators"`
	MaxDepth        int      `yaml:"max_depth"`
	NJobs           int      `yaml:"n_jobs"`
	PlotPath        string   `yaml:"plot_path"`
	ModelPath       string   `yaml:"model_path"`
	ReportPath      string   `yaml:"report_path"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
}

// DefaultConfig returns the settings of the reference experiment: the
// housing table, "price" as label, mean imputation of "area", a 20% test
// split and seed 0 everywhere.
func DefaultConfig() Config {
	return Config{
		DataPath:       "data/housing.csv",
		LabelColumn:    "price",
		ImputeColumns:  []string{"area"},
		ImputeStrategy: "mean",
		TestSize:       0.2,
		Model:          ModelRandomForest,
		NEstimators:    100,
		NJobs:          1,
		LogLevel:       "info",
		LogFormat:      log.FormatConsole,
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Keys absent from the file
// keep their defaults; unknown keys are rejected. Values are not validated
// here, so callers can apply overrides before calling Validate.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.NewIOError("LoadConfig", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			return cfg, errors.NewParseError("LoadConfig", 0, "invalid configuration value", err)
		}
		return cfg, errors.NewParseError("LoadConfig", 0, "malformed YAML", err)
	}
	return cfg, nil
}

// Validate checks the configuration before anything is loaded.
func (c Config) Validate() error {
	if c.DataPath == "" {
		return errors.NewValidationError("data_path", "must not be empty", c.DataPath)
	}
	return c.validateSettings()
}

// validateSettings checks everything but the data source, which Execute
// does not use.
func (c Config) validateSettings() error {
	switch {
	case c.LabelColumn == "":
		return errors.NewValidationError("label_column", "must not be empty", c.LabelColumn)
	case !(c.TestSize > 0 && c.TestSize < 1):
		return errors.NewValidationError("test_size", "must be in the open interval (0, 1)", c.TestSize)
	case c.NEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be >= 1", c.NEstimators)
	case c.MaxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0 (0 means unlimited)", c.MaxDepth)
	}
	for _, col := range c.ImputeColumns {
		if col == c.LabelColumn {
			return errors.NewValidationError("impute_columns", "must not contain the label column", col)
		}
	}
	switch c.Model {
	case ModelRandomForest, ModelLinearRegression:
	default:
		return errors.NewValidationError("model", "must be random_forest or linear_regression", c.Model)
	}
	if _, err := impute.ParseStrategy(c.ImputeStrategy, c.ImputeFillValue); err != nil {
		return err
	}
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return errors.NewValidationError("log_level", "must be one of debug, info, warn, error", c.LogLevel)
	}
	switch c.LogFormat {
	case log.FormatJSON, log.FormatConsole:
	default:
		return errors.NewValidationError("log_format", "must be json or console", c.LogFormat)
	}
	return nil
}
