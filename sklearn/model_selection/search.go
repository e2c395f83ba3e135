package model_selection

import (
	"context"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/core/parallel"
	"github.com/YuminosukeSato/modelsearch/metrics"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
	"github.com/YuminosukeSato/modelsearch/pkg/log"
)

// Scorer rates predictions; higher is better.
type Scorer func(yTrue, yPred mat.Matrix) (float64, error)

var scorers = map[string]Scorer{
	"accuracy":               metrics.AccuracyMatrix,
	"neg_mean_squared_error": negMSE,
}

func negMSE(yTrue, yPred mat.Matrix) (float64, error) {
	mse, err := metrics.MSEMatrix(yTrue, yPred)
	return -mse, err
}

// CVResults holds per-candidate cross-validation results, indexed like
// Params.
type CVResults struct {
	Params          []map[string]interface{}
	SplitTestScores [][]float64 // [candidate][fold]
	MeanTestScore   []float64
	StdTestScore    []float64
	RankTestScore   []int
	MeanFitTime     []float64 // seconds
	StdFitTime      []float64
	MeanScoreTime   []float64
}

// GridSearchCV evaluates every parameter combination of a grid with
// cross-validation and refits the best one on the whole input.
type GridSearchCV struct {
	estimator model.Estimator
	grids     []ParamGrid
	cv        interface{}
	scoring   string
	nJobs     int
	refit     bool
	logger    log.Logger

	cvResults_     *CVResults
	bestIndex_     int
	bestEstimator_ model.Estimator
	refitTime_     float64
	nSplits_       int
}

// Option configures a GridSearchCV.
type Option func(*GridSearchCV)

// WithCV sets the cross-validation strategy: an int number of folds or a
// Splitter.
func WithCV(cv interface{}) Option { return func(g *GridSearchCV) { g.cv = cv } }

// WithScoring selects the scorer: accuracy or neg_mean_squared_error.
func WithScoring(s string) Option { return func(g *GridSearchCV) { g.scoring = s } }

// WithNJobs sets the number of concurrent fits (-1 for all CPUs).
func WithNJobs(n int) Option { return func(g *GridSearchCV) { g.nJobs = n } }

// WithRefit toggles refitting the best candidate on the whole input.
func WithRefit(b bool) Option { return func(g *GridSearchCV) { g.refit = b } }

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(g *GridSearchCV) { g.logger = l } }

// NewGridSearchCV searches the parameter grids of estimator.
func NewGridSearchCV(estimator model.Estimator, grids []ParamGrid, opts ...Option) *GridSearchCV {
	g := &GridSearchCV{
		estimator:  estimator,
		grids:      grids,
		cv:         5,
		scoring:    "accuracy",
		nJobs:      1,
		refit:      true,
		bestIndex_: -1,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.GetLoggerWithName("GridSearchCV")
	}
	return g
}

// Fit runs the search. Candidates and folds are fitted concurrently on up
// to n_jobs workers; results do not depend on the worker count. The first
// failing fit aborts the search with a CandidateError.
func (g *GridSearchCV) Fit(ctx context.Context, X, y mat.Matrix) error {
	g.bestIndex_, g.bestEstimator_, g.cvResults_ = -1, nil, nil

	scorer, ok := scorers[g.scoring]
	if !ok {
		return errors.NewValidationError("scoring", "unsupported scorer", g.scoring)
	}
	candidates, err := ParameterGrid(g.grids...)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return errors.NewValueError("GridSearchCV.Fit", "no parameter candidates")
	}
	_, isClassifier := g.estimator.(model.Classifier)
	splitter, err := CheckCV(g.cv, isClassifier)
	if err != nil {
		return err
	}
	folds, err := splitter.Split(X, y)
	if err != nil {
		return err
	}

	nFolds := len(folds)
	workers := parallel.Workers(g.nJobs)
	logger := g.logger.With(log.OperationKey, log.OperationSearch)
	logger.Info("Fitting folds for each candidate",
		log.FoldsKey, nFolds,
		log.CandidatesKey, len(candidates),
		"total_fits", nFolds*len(candidates),
		log.JobsKey, workers,
	)

	scores := make([][]float64, len(candidates))
	fitTimes := make([][]float64, len(candidates))
	scoreTimes := make([][]float64, len(candidates))
	for c := range candidates {
		scores[c] = make([]float64, nFolds)
		fitTimes[c] = make([]float64, nFolds)
		scoreTimes[c] = make([]float64, nFolds)
	}

	err = parallel.ForEach(ctx, workers, len(candidates)*nFolds, func(ctx context.Context, task int) error {
		c, f := task/nFolds, task%nFolds
		fold := folds[f]
		var score, fitSec, scoreSec float64
		err := errors.SafeExecute("GridSearchCV.fit_and_score", func() error {
			var err error
			score, fitSec, scoreSec, err = fitAndScore(g.estimator, candidates[c], scorer,
				TakeRows(X, fold.TrainIndices), TakeRows(y, fold.TrainIndices),
				TakeRows(X, fold.TestIndices), TakeRows(y, fold.TestIndices))
			return err
		})
		if err != nil {
			return errors.NewCandidateError(c, f, candidates[c], err)
		}
		scores[c][f], fitTimes[c][f], scoreTimes[c][f] = score, fitSec, scoreSec
		logger.Debug("Fold scored",
			log.PhaseKey, log.PhaseValidation,
			log.CandidateKey, c,
			log.FoldKey, f,
			"score", score,
			log.DurationMsKey, fitSec*1000,
		)
		return nil
	})
	if err != nil {
		logger.Error("Grid search failed", err)
		return err
	}

	res := &CVResults{
		Params:          candidates,
		SplitTestScores: scores,
		MeanTestScore:   make([]float64, len(candidates)),
		StdTestScore:    make([]float64, len(candidates)),
		MeanFitTime:     make([]float64, len(candidates)),
		StdFitTime:      make([]float64, len(candidates)),
		MeanScoreTime:   make([]float64, len(candidates)),
	}
	for c := range candidates {
		res.MeanTestScore[c], res.StdTestScore[c] = meanStd(scores[c])
		res.MeanFitTime[c], res.StdFitTime[c] = meanStd(fitTimes[c])
		res.MeanScoreTime[c], _ = meanStd(scoreTimes[c])
	}
	res.RankTestScore = rankMin(res.MeanTestScore)
	g.cvResults_ = res
	g.nSplits_ = nFolds
	for c, r := range res.RankTestScore {
		if r == 1 {
			g.bestIndex_ = c
			break
		}
	}
	logger.Info("Best candidate",
		log.CandidateKey, g.bestIndex_,
		log.ParamsKey, g.BestParams(),
		log.CVMeanScoreKey, g.BestScore(),
		log.CVStdScoreKey, res.StdTestScore[g.bestIndex_],
	)

	if !g.refit {
		return nil
	}
	start := time.Now()
	best := g.estimator.Clone()
	if err := best.SetParams(candidates[g.bestIndex_]); err != nil {
		return errors.Wrap(err, "refit best candidate")
	}
	if err := best.Fit(X, y); err != nil {
		return errors.Wrap(err, "refit best candidate")
	}
	g.refitTime_ = time.Since(start).Seconds()
	g.bestEstimator_ = best
	logger.Debug("Best candidate refitted",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.DurationMsKey, g.refitTime_*1000,
	)
	return nil
}

func fitAndScore(base model.Estimator, params map[string]interface{}, scorer Scorer,
	XTrain, yTrain, XTest, yTest *mat.Dense) (score, fitSec, scoreSec float64, err error) {
	est := base.Clone()
	if err = est.SetParams(params); err != nil {
		return 0, 0, 0, err
	}
	start := time.Now()
	if err = est.Fit(XTrain, yTrain); err != nil {
		return 0, 0, 0, err
	}
	fitSec = time.Since(start).Seconds()

	start = time.Now()
	pred, err := est.Predict(XTest)
	if err != nil {
		return 0, 0, 0, err
	}
	score, err = scorer(yTest, pred)
	if err != nil {
		return 0, 0, 0, err
	}
	return score, fitSec, time.Since(start).Seconds(), nil
}

// meanStd returns the unweighted mean and population standard deviation.
func meanStd(xs []float64) (float64, float64) {
	mean, err := stats.Mean(xs)
	if err != nil {
		return 0, 0
	}
	std, _ := stats.StandardDeviationPopulation(xs)
	return mean, std
}

// rankMin ranks scores descending; ties share the lowest rank.
func rankMin(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	ranks := make([]int, len(scores))
	for pos, idx := range order {
		if pos > 0 && scores[idx] == scores[order[pos-1]] {
			ranks[idx] = ranks[order[pos-1]]
		} else {
			ranks[idx] = pos + 1
		}
	}
	return ranks
}

func (g *GridSearchCV) requireFitted(method string) error {
	if g.cvResults_ == nil {
		return errors.NewNotFittedError("GridSearchCV", method)
	}
	return nil
}

// Predict predicts with the refitted best estimator.
func (g *GridSearchCV) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := g.requireFitted("Predict"); err != nil {
		return nil, err
	}
	if g.bestEstimator_ == nil {
		return nil, errors.NewNotFittedError("GridSearchCV (refit=false)", "Predict")
	}
	return g.bestEstimator_.Predict(X)
}

// Score returns the configured score of the best estimator on X, y.
func (g *GridSearchCV) Score(X, y mat.Matrix) (float64, error) {
	pred, err := g.Predict(X)
	if err != nil {
		return 0, err
	}
	return scorers[g.scoring](y, pred)
}

// CVResults returns the per-candidate results of the last Fit.
func (g *GridSearchCV) CVResults() *CVResults { return g.cvResults_ }

// BestIndex returns the index of the first candidate ranked 1, or -1.
func (g *GridSearchCV) BestIndex() int { return g.bestIndex_ }

// BestParams returns the parameters of the best candidate.
func (g *GridSearchCV) BestParams() map[string]interface{} {
	if g.bestIndex_ < 0 {
		return nil
	}
	return g.cvResults_.Params[g.bestIndex_]
}

// BestScore returns the mean cross-validated score of the best candidate.
func (g *GridSearchCV) BestScore() float64 {
	if g.bestIndex_ < 0 {
		return 0
	}
	return g.cvResults_.MeanTestScore[g.bestIndex_]
}

// BestEstimator returns the refitted best estimator.
func (g *GridSearchCV) BestEstimator() model.Estimator { return g.bestEstimator_ }

// RefitTime returns the seconds spent refitting the best estimator.
func (g *GridSearchCV) RefitTime() float64 { return g.refitTime_ }

// NSplits returns the number of folds used by the last Fit.
func (g *GridSearchCV) NSplits() int { return g.nSplits_ }

// NJobs returns the configured number of concurrent fits.
func (g *GridSearchCV) NJobs() int { return g.nJobs }

// Estimator returns the unfitted base estimator.
func (g *GridSearchCV) Estimator() model.Estimator { return g.estimator }

// ParamGrids returns the searched grids.
func (g *GridSearchCV) ParamGrids() []ParamGrid { return g.grids }
