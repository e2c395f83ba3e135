package experiment

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/metrics"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
	"github.com/YuminosukeSato/modelsearch/pkg/log"
	"github.com/YuminosukeSato/modelsearch/sklearn/model_selection"
)

// countsHeader is the first line of every counts file.
var countsHeader = []string{"Class", "Correct", "incorrect"}

// Result is the outcome of one model's search.
type Result struct {
	Model       string
	Sub         string
	BestParams  map[string]interface{}
	BestCVScore float64
	Accuracy    float64
	MSE         float64
	Elapsed     time.Duration
	Counts      []metrics.ClassCount
	CVResults   *model_selection.CVResults

	ScoresPath string
	CountsPath string
	PlotPath   string
}

// SummaryFields returns the summary stream fields of r:
// model, sub, accuracy (2 decimals), MSE (3 decimals) and seconds (2 decimals).
// Exact ties round half to even, as printf does.
func (r Result) SummaryFields() []string {
	return []string{
		r.Model,
		r.Sub,
		strconv.FormatFloat(r.Accuracy, 'f', 2, 64),
		strconv.FormatFloat(r.MSE, 'f', 3, 64),
		strconv.FormatFloat(r.Elapsed.Seconds(), 'f', 2, 64),
	}
}

// Runner fits the grid searches of a Config and writes their results.
type Runner struct {
	cfg        Config
	logger     log.Logger
	classNames []string
	console    io.Writer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger of the runner and its searches.
func WithLogger(l log.Logger) RunnerOption { return func(r *Runner) { r.logger = l } }

// WithClassNames makes counts files show names[i] for class i instead of
// the numeric label.
func WithClassNames(names []string) RunnerOption {
	return func(r *Runner) { r.classNames = names }
}

// WithConsole sets where the summary table is printed when cfg.Table is on.
func WithConsole(w io.Writer) RunnerOption { return func(r *Runner) { r.console = w } }

// NewRunner validates cfg and returns a Runner for it.
func NewRunner(cfg Config, opts ...RunnerOption) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.GetLoggerWithName("experiment")
	}
	return r, nil
}

// Config returns the runner's configuration.
func (r *Runner) Config() Config { return r.cfg }

// RunPipeline splits X, y into train and held-out parts, then for each model
// in the order LR, RF, SVM, MLP fits its grid search with cv folds on the
// train part, writes models/<MODEL>_<name>.csv and
// counts/count_<MODEL>_<name>.csv under the results directory and appends
// one summary line to out. The first failure stops the run.
func (r *Runner) RunPipeline(ctx context.Context, X, y mat.Matrix, cv int, out io.Writer,
	sub, name string) ([]Result, error) {
	pipes, err := NewPipes(r.cfg.Scaler, r.cfg.RandomState)
	if err != nil {
		return nil, err
	}
	searches, names := generate(pipes, r.cfg.grids(), cv, r.cfg.NJobs,
		model_selection.WithLogger(r.logger.With(log.ComponentKey, "GridSearchCV")))

	split, err := model_selection.TrainTestSplit(X, y, r.cfg.TestSize, r.cfg.RandomState)
	if err != nil {
		return nil, err
	}
	nTrain, _ := split.XTrain.Dims()
	nTest, _ := split.XTest.Dims()
	r.logger.Info("Data split",
		"train_samples", nTrain,
		"test_samples", nTest,
		log.RandomSeedKey, r.cfg.RandomState,
	)

	summary := csv.NewWriter(out)
	results := make([]Result, 0, len(searches))
	for idx, gs := range searches {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := r.runSearch(ctx, gs, names[idx], split, sub, name)
		if err != nil {
			return results, errors.Wrapf(err, "%s search", names[idx])
		}
		if err := summary.Write(res.SummaryFields()); err != nil {
			return results, errors.Wrap(err, "write summary")
		}
		summary.Flush()
		if err := summary.Error(); err != nil {
			return results, errors.Wrap(err, "write summary")
		}
		results = append(results, *res)
	}

	if best := BestResult(results); best >= 0 {
		r.logger.Info("Best model",
			log.ModelNameKey, results[best].Model,
			log.AccuracyKey, results[best].Accuracy,
			log.ParamsKey, results[best].BestParams,
		)
		if r.cfg.Table && r.console != nil {
			fmt.Fprintln(r.console, RenderTable(results))
		}
	}
	return results, nil
}

func (r *Runner) runSearch(ctx context.Context, gs *model_selection.GridSearchCV, label string,
	split *model_selection.Split, sub, name string) (*Result, error) {
	start := time.Now()
	logger := r.logger.With(log.ModelNameKey, label)

	res := &Result{
		Model:      label,
		Sub:        sub,
		ScoresPath: filepath.Join(r.cfg.ResultsDir, "models", label+"_"+name+".csv"),
		CountsPath: filepath.Join(r.cfg.ResultsDir, "counts", "count_"+label+"_"+name+".csv"),
	}

	if err := gs.Fit(ctx, split.XTrain, split.YTrain); err != nil {
		return nil, err
	}
	cvr := gs.CVResults()
	res.CVResults = cvr
	res.BestParams = gs.BestParams()
	res.BestCVScore = gs.BestScore()

	rows := make([][]string, len(cvr.Params))
	for c, params := range cvr.Params {
		keys := model.SortedKeys(params)
		row := make([]string, 0, len(keys)+1)
		for _, k := range keys {
			row = append(row, model.FormatParam(params[k]))
		}
		rows[c] = append(row, model.FormatParam(cvr.MeanTestScore[c]))
		logger.Info(fmt.Sprintf("%0.3f (+/-%0.03f) for %s",
			cvr.MeanTestScore[c], cvr.StdTestScore[c]*2, formatParams(params)),
			log.CandidateKey, c,
		)
	}
	if err := writeCSV(res.ScoresPath, nil, rows); err != nil {
		return nil, err
	}
	logger.Info("Best params",
		log.ParamsKey, formatParams(res.BestParams),
		log.CVMeanScoreKey, res.BestCVScore,
	)

	pred, err := gs.Predict(split.XTest)
	if err != nil {
		return nil, err
	}
	if res.Accuracy, err = metrics.AccuracyMatrix(split.YTest, pred); err != nil {
		return nil, err
	}
	if res.MSE, err = metrics.MSEMatrix(split.YTest, pred); err != nil {
		return nil, err
	}
	if res.Counts, err = metrics.ClassCounts(split.YTest, pred); err != nil {
		return nil, err
	}
	countRows := make([][]string, len(res.Counts))
	for i, c := range res.Counts {
		countRows[i] = []string{r.className(c.Class), strconv.Itoa(c.Correct), strconv.Itoa(c.Incorrect)}
	}
	if err := writeCSV(res.CountsPath, countsHeader, countRows); err != nil {
		return nil, err
	}

	if r.cfg.Plot {
		res.PlotPath = filepath.Join(r.cfg.ResultsDir, "plots", label+"_"+name+".png")
		if err := PlotScores(res.PlotPath, label+" "+name, cvr); err != nil {
			return nil, err
		}
	}

	res.Elapsed = time.Since(start)
	logger.Info("Model evaluated",
		log.OperationKey, log.OperationScore,
		log.PhaseKey, log.PhaseTesting,
		log.AccuracyKey, res.Accuracy,
		log.MSEKey, res.MSE,
		log.DurationMsKey, res.Elapsed.Milliseconds(),
		log.PathKey, res.ScoresPath,
	)
	return res, nil
}

func (r *Runner) className(c float64) string {
	if i := int(c); float64(i) == c && i >= 0 && i < len(r.classNames) {
		return r.classNames[i]
	}
	return strconv.FormatFloat(c, 'f', -1, 64)
}

// BestResult returns the index of the result with the highest held-out
// accuracy, the first one on ties, or -1 when results is empty.
func BestResult(results []Result) int {
	best := -1
	for i, res := range results {
		if best < 0 || res.Accuracy > results[best].Accuracy {
			best = i
		}
	}
	return best
}

// formatParams renders params as {'k': v, ...} in sorted key order.
func formatParams(params map[string]interface{}) string {
	keys := model.SortedKeys(params)
	parts := make([]string, len(keys))
	for i, k := range keys {
		v := model.FormatParam(params[k])
		if _, ok := params[k].(string); ok {
			v = "'" + v + "'"
		}
		parts[i] = "'" + k + "': " + v
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// writeCSV creates path (and its directory) and writes header, when
// non-nil, followed by rows.
func writeCSV(path string, header []string, rows [][]string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()

	w := csv.NewWriter(f)
	if header != nil {
		if err := w.Write(header); err != nil {
			return errors.Wrapf(err, "write %s", path)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
