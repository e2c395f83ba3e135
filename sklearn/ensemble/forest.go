// Package ensemble implements a random forest classifier on top of the
// CART trees in sklearn/tree.
package ensemble

import (
	"math"
	"math/rand"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/core/parallel"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
	"github.com/YuminosukeSato/modelsearch/sklearn/tree"
)

// RandomForestClassifier averages the class probabilities of bootstrapped
// decision trees, compatible with scikit-learn's RandomForestClassifier.
type RandomForestClassifier struct {
	state *model.StateManager

	// Hyperparameters
	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     interface{}
	bootstrap       bool
	randomState     int64
	nJobs           int

	// Fitted attributes
	estimators_ []*tree.DecisionTreeClassifier
	classes_    []float64
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// NewRandomForestClassifier creates a forest with scikit-learn defaults.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		randomState:     -1,
		nJobs:           1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion sets the impurity measure of every tree.
func WithCriterion(c string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = c }
}

// WithMaxDepth limits tree depth. 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = d }
}

// WithMinSamplesSplit sets the minimum number of samples to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the features examined per split.
func WithMaxFeatures(v interface{}) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = v }
}

// WithBootstrap toggles bootstrap sampling.
func WithBootstrap(b bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = b }
}

// WithRandomState sets the random seed.
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs sets the number of trees fitted concurrently (-1 for all CPUs).
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// Fit grows nEstimators trees on bootstrap samples of the data.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	}
	labels, err := model.CheckXy("RandomForestClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	classes, idx := model.EncodeLabels(labels)
	nSamples, nFeatures := X.Dims()
	Xd := mat.DenseCopyOf(X)

	rng := rand.New(rand.NewSource(rf.seed()))
	seeds := lo.Times(rf.nEstimators, func(int) int64 {
		return rng.Int63n(math.MaxInt32)
	})

	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	errs := make([]error, rf.nEstimators)
	parallel.ParallelizeN(parallel.Workers(rf.nJobs), rf.nEstimators, func(start, end int) {
		for t := start; t < end; t++ {
			trees[t], errs[t] = rf.fitTree(Xd, idx, classes, seeds[t], nSamples)
		}
	})
	if err, ok := lo.Find(errs, func(e error) bool { return e != nil }); ok {
		return errors.Wrap(err, "fit tree")
	}

	rf.estimators_ = trees
	rf.classes_ = classes
	rf.state.SetClasses(classes)
	rf.state.SetFitted(nFeatures, nSamples)
	return nil
}

func (rf *RandomForestClassifier) seed() int64 {
	if rf.randomState < 0 {
		return rand.Int63()
	}
	return rf.randomState
}

func (rf *RandomForestClassifier) fitTree(X *mat.Dense, y []int, classes []float64, seed int64, n int) (*tree.DecisionTreeClassifier, error) {
	dt := tree.NewDecisionTreeClassifier(
		tree.WithCriterion(rf.criterion),
		tree.WithMaxDepth(rf.maxDepth),
		tree.WithMinSamplesSplit(rf.minSamplesSplit),
		tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
		tree.WithMaxFeatures(rf.maxFeatures),
		tree.WithRandomState(seed),
	)

	weights := make([]float64, n)
	if rf.bootstrap {
		r := rand.New(rand.NewSource(seed))
		for i := 0; i < n; i++ {
			weights[r.Intn(n)]++
		}
	} else {
		for i := range weights {
			weights[i] = 1
		}
	}
	if err := dt.FitEncoded(X, y, classes, weights); err != nil {
		return nil, err
	}
	return dt, nil
}

// PredictProba returns the mean class probabilities of the trees.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.CheckPredictInput("RandomForestClassifier", "PredictProba", X); err != nil {
		return nil, err
	}
	return rf.predictProba(X)
}

func (rf *RandomForestClassifier) predictProba(X mat.Matrix) (*mat.Dense, error) {
	r, _ := X.Dims()
	partial := make([]*mat.Dense, len(rf.estimators_))
	errs := make([]error, len(rf.estimators_))
	parallel.ParallelizeN(parallel.Workers(rf.nJobs), len(rf.estimators_), func(start, end int) {
		for t := start; t < end; t++ {
			p, err := rf.estimators_[t].PredictProba(X)
			if err != nil {
				errs[t] = err
				continue
			}
			partial[t] = mat.DenseCopyOf(p)
		}
	})
	if err, ok := lo.Find(errs, func(e error) bool { return e != nil }); ok {
		return nil, err
	}

	out := mat.NewDense(r, len(rf.classes_), nil)
	for _, p := range partial {
		out.Add(out, p)
	}
	out.Scale(1/float64(len(partial)), out)
	return out, nil
}

// Predict returns the class with the highest mean probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.CheckPredictInput("RandomForestClassifier", "Predict", X); err != nil {
		return nil, err
	}
	proba, err := rf.predictProba(X)
	if err != nil {
		return nil, err
	}
	r, _ := proba.Dims()
	labels := make([]float64, r)
	for i := range labels {
		row := proba.RawRowView(i)
		best := 0
		for k, v := range row {
			if v > row[best] {
				best = k
			}
		}
		labels[i] = rf.classes_[best]
	}
	return model.LabelColumn(labels), nil
}

// Score returns the mean accuracy on the given data.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	return model.ScoreAccuracy(rf, X, y)
}

// Classes returns the sorted labels seen during Fit.
func (rf *RandomForestClassifier) Classes() []float64 {
	return rf.state.Classes()
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return rf.estimators_
}

// FeatureImportances returns the mean of the trees' importances.
func (rf *RandomForestClassifier) FeatureImportances() []float64 {
	if len(rf.estimators_) == 0 {
		return nil
	}
	nFeatures, _ := rf.state.GetDimensions()
	out := make([]float64, nFeatures)
	for _, t := range rf.estimators_ {
		for j, v := range t.GetFeatureImportances() {
			out[j] += v / float64(len(rf.estimators_))
		}
	}
	return out
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

// SetParams sets hyperparameters by name.
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		var err error
		switch k {
		case "n_estimators":
			rf.nEstimators, err = model.ToInt(k, v)
		case "criterion":
			rf.criterion, err = model.ToString(k, v)
		case "max_depth":
			rf.maxDepth, err = model.ToOptionalInt(k, v)
		case "min_samples_split":
			rf.minSamplesSplit, err = model.ToInt(k, v)
		case "min_samples_leaf":
			rf.minSamplesLeaf, err = model.ToInt(k, v)
		case "max_features":
			rf.maxFeatures = v
		case "bootstrap":
			rf.bootstrap, err = model.ToBool(k, v)
		case "random_state":
			var seed int
			seed, err = model.ToInt(k, v)
			rf.randomState = int64(seed)
		case "n_jobs":
			rf.nJobs, err = model.ToInt(k, v)
		default:
			err = model.UnknownParam("RandomForestClassifier", k)
		}
		if err != nil {
			return err
		}
	}
	rf.state.Reset()
	return nil
}

// Clone returns an unfitted forest with the same hyperparameters.
func (rf *RandomForestClassifier) Clone() model.Estimator {
	return NewRandomForestClassifier(
		WithNEstimators(rf.nEstimators),
		WithCriterion(rf.criterion),
		WithMaxDepth(rf.maxDepth),
		WithMinSamplesSplit(rf.minSamplesSplit),
		WithMinSamplesLeaf(rf.minSamplesLeaf),
		WithMaxFeatures(rf.maxFeatures),
		WithBootstrap(rf.bootstrap),
		WithRandomState(rf.randomState),
		WithNJobs(rf.nJobs),
	)
}
