// Command gridsearch runs the hyperparameter search over the LR, RF, SVM and
// MLP pipelines on a CSV dataset, or reduces a dataset to per-row summary
// statistics.
package main

import (
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/YuminosukeSato/modelsearch/dataset"
	"github.com/YuminosukeSato/modelsearch/experiment"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
	"github.com/YuminosukeSato/modelsearch/pkg/log"
	"github.com/YuminosukeSato/modelsearch/preprocessing"
)

const (
	flagConfig      = "config"
	flagLogLevel    = "log-level"
	flagLogFormat   = "log-format"
	flagVerbose     = "verbose"
	flagData        = "data"
	flagNoHeader    = "no-header"
	flagLabelColumn = "label-column"
	flagCV          = "cv"
	flagJobs        = "jobs"
	flagSeed        = "seed"
	flagTestSize    = "test-size"
	flagResults     = "results"
	flagScaler      = "scaler"
	flagSub         = "sub"
	flagName        = "name"
	flagOut         = "out"
	flagPlot        = "plot"
	flagNoTable     = "no-table"
)

func main() {
	app := &cli.App{
		Name:  "gridsearch",
		Usage: "grid-search LR, RF, SVM and MLP classifiers with cross-validation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load experiment configuration from `FILE`",
			},
			&cli.StringFlag{Name: flagLogLevel, Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: flagLogFormat, Usage: "console, json or slog"},
			&cli.BoolFlag{Name: flagVerbose, Aliases: []string{"v"}, Usage: "enable debug logging"},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "fit the four grid searches and write result files",
				UsageText: "gridsearch run --data FILE [options]",
				Flags: append(dataFlags(),
					&cli.IntFlag{Name: flagCV, Usage: "number of cross-validation folds"},
					&cli.IntFlag{Name: flagJobs, Usage: "workers for the RF and SVM searches (-1 for all CPUs)"},
					&cli.Int64Flag{Name: flagSeed, Usage: "random state of the split and the classifiers"},
					&cli.Float64Flag{Name: flagTestSize, Usage: "held-out fraction, or a whole sample count"},
					&cli.StringFlag{Name: flagResults, Usage: "results `DIR` (models/ and counts/ are created in it)"},
					&cli.StringFlag{Name: flagScaler, Usage: "standard or minmax"},
					&cli.StringFlag{Name: flagSub, Value: "all", Usage: "subset tag written to the summary"},
					&cli.StringFlag{Name: flagName, Usage: "dataset name used in file names (default: data file base name)"},
					&cli.StringFlag{Name: flagOut, Usage: "append the summary to `FILE` instead of stdout"},
					&cli.BoolFlag{Name: flagPlot, Usage: "write a CV score chart per model"},
					&cli.BoolFlag{Name: flagNoTable, Usage: "do not print the summary table"},
				),
				Action: runAction,
			},
			{
				Name:      "preprocess",
				Usage:     "impute, wavelet-transform and describe every row of a dataset",
				UsageText: "gridsearch preprocess --data FILE [--out FILE]",
				Flags: append(dataFlags(),
					&cli.StringFlag{Name: flagOut, Usage: "write the statistics to `FILE` instead of stdout"},
				),
				Action: preprocessAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.GetLogger().Error("gridsearch failed", err)
		os.Exit(1)
	}
}

func dataFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagData, Aliases: []string{"d"}, Required: true, Usage: "input CSV `FILE`"},
		&cli.BoolFlag{Name: flagNoHeader, Usage: "the CSV has no header row"},
		&cli.IntFlag{Name: flagLabelColumn, Value: -1, Usage: "label column index (-1 for the last column)"},
	}
}

// loadConfig reads the configuration file, when given, and applies the
// command-line overrides.
func loadConfig(c *cli.Context) (experiment.Config, error) {
	cfg := experiment.DefaultConfig()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = experiment.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagLogFormat) {
		cfg.Log.Format = c.String(flagLogFormat)
	}
	cfg.Log.Verbose = c.Bool(flagVerbose)
	return cfg, nil
}

func setupLogging(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return log.Setup(os.Stderr, cfg.Log)
}

func loadDataset(c *cli.Context) (*dataset.Dataset, error) {
	opts := dataset.DefaultOptions()
	opts.HasHeader = !c.Bool(flagNoHeader)
	opts.LabelColumn = c.Int(flagLabelColumn)
	return dataset.LoadCSV(c.String(flagData), opts)
}

// openOut returns stdout, or path opened for appending.
func openOut(path string, appendMode bool) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create directory for %s", path)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet(flagCV) {
		cfg.CV = c.Int(flagCV)
	}
	if c.IsSet(flagJobs) {
		cfg.NJobs = c.Int(flagJobs)
	}
	if c.IsSet(flagSeed) {
		cfg.RandomState = c.Int64(flagSeed)
	}
	if c.IsSet(flagTestSize) {
		cfg.TestSize = c.Float64(flagTestSize)
	}
	if c.IsSet(flagResults) {
		cfg.ResultsDir = c.String(flagResults)
	}
	if c.IsSet(flagScaler) {
		cfg.Scaler = c.String(flagScaler)
	}
	if c.Bool(flagPlot) {
		cfg.Plot = true
	}
	if c.Bool(flagNoTable) {
		cfg.Table = false
	}

	ds, err := loadDataset(c)
	if err != nil {
		return err
	}
	name := c.String(flagName)
	if name == "" {
		base := filepath.Base(c.String(flagData))
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	out, err := openOut(c.String(flagOut), true)
	if err != nil {
		return err
	}
	defer out.Close()

	runner, err := experiment.NewRunner(cfg,
		experiment.WithClassNames(ds.Classes),
		experiment.WithConsole(os.Stderr),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	_, err = runner.RunPipeline(ctx, ds.X, ds.Y, cfg.CV, out, c.String(flagSub), name)
	return err
}

func preprocessAction(c *cli.Context) error {
	ds, err := loadDataset(c)
	if err != nil {
		return err
	}
	summary, err := preprocessing.Preprocess(ds.X, math.NaN())
	if err != nil {
		return err
	}
	out, err := openOut(c.String(flagOut), false)
	if err != nil {
		return err
	}
	defer out.Close()
	return summary.WriteCSV(out)
}
