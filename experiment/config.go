package experiment

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
	"github.com/YuminosukeSato/modelsearch/pkg/log"
	"github.com/YuminosukeSato/modelsearch/sklearn/model_selection"
)

// Config describes one search experiment. The zero value is not usable;
// start from DefaultConfig or LoadConfig.
type Config struct {
	CV          int     `yaml:"cv"`
	NJobs       int     `yaml:"n_jobs"`
	RandomState int64   `yaml:"random_state"`
	TestSize    float64 `yaml:"test_size"`
	ResultsDir  string  `yaml:"results_dir"`
	Scaler      string  `yaml:"scaler"` // "standard" or "minmax"

	// Grids replaces the built-in grid of a model key (lr, rf, svm, mlp).
	Grids map[string]model_selection.ParamGrid `yaml:"grids"`

	Plot  bool `yaml:"plot"`
	Table bool `yaml:"table"`

	Log log.Config `yaml:"log"`
}

// DefaultConfig returns the settings the experiment was designed with.
func DefaultConfig() Config {
	return Config{
		CV:          5,
		NJobs:       -1,
		RandomState: 42,
		TestSize:    0.33,
		ResultsDir:  "../results",
		Scaler:      "standard",
		Table:       true,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. Keys absent from
// the file keep their default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the ranges of the numeric settings and the grid keys.
func (c Config) Validate() error {
	if c.CV < 2 {
		return errors.NewValidationError("cv", "must be at least 2", c.CV)
	}
	if c.NJobs == 0 || c.NJobs < -1 {
		return errors.NewValidationError("n_jobs", "must be -1 or positive", c.NJobs)
	}
	if c.TestSize <= 0 || (c.TestSize >= 1 && c.TestSize != float64(int(c.TestSize))) {
		return errors.NewValidationError("test_size", "must be in (0, 1) or a whole count", c.TestSize)
	}
	if c.ResultsDir == "" {
		return errors.NewValidationError("results_dir", "must not be empty", c.ResultsDir)
	}
	if err := model.OneOf("scaler", c.Scaler, "standard", "minmax"); err != nil {
		return err
	}
	for key := range c.Grids {
		if _, ok := displayNames[key]; !ok {
			return errors.NewValidationError("grids", "unknown model key", key)
		}
	}
	return nil
}

// grids returns the built-in grids with the configured overrides applied.
func (c Config) grids() map[string]model_selection.ParamGrid {
	out := GetGrids()
	for key, g := range c.Grids {
		out[key] = g
	}
	return out
}
