// Package tree implements a CART decision tree classifier.
package tree

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// featureThreshold is the smallest gap between two sorted feature values
// that still yields a candidate split.
const featureThreshold = 1e-7

// DecisionTreeClassifier is a CART classifier compatible with
// scikit-learn's DecisionTreeClassifier.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string      // "gini" or "entropy"
	maxDepth        int         // 0 means unlimited
	minSamplesSplit int         // Minimum samples required to split a node
	minSamplesLeaf  int         // Minimum samples in each leaf
	maxFeatures     interface{} // nil, "sqrt", "log2", "all" or an int
	randomState     int64       // Random seed, -1 for nondeterministic

	// Fitted attributes
	root                *node
	classes_            []float64
	nClasses_           int
	nFeatures_          int
	featureImportances_ []float64
	depth_              int
	nLeaves_            int
}

type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	value     []float64 // weighted class counts
}

func (n *node) isLeaf() bool { return n.left == nil }

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates a tree with scikit-learn defaults.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithCriterion sets the impurity measure.
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth limits the depth of the tree. 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many features are examined per split.
func WithMaxFeatures(v interface{}) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = v }
}

// WithRandomState sets the random seed.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

// Fit builds the tree from the training data.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	labels, err := model.CheckXy("DecisionTreeClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	classes, idx := model.EncodeLabels(labels)
	return dt.FitEncoded(X, idx, classes, nil)
}

// FitEncoded builds the tree from class indices into classes. sampleWeight
// may be nil; samples with zero weight are ignored. Ensembles use it to pass
// bootstrap counts while keeping the full class list.
func (dt *DecisionTreeClassifier) FitEncoded(X mat.Matrix, yIdx []int, classes []float64, sampleWeight []float64) error {
	if err := dt.validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	if len(yIdx) != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, len(yIdx), 0)
	}
	if sampleWeight == nil {
		sampleWeight = make([]float64, nSamples)
		for i := range sampleWeight {
			sampleWeight[i] = 1
		}
	}
	mtry, err := ResolveMaxFeatures(dt.maxFeatures, nFeatures)
	if err != nil {
		return err
	}

	b := &builder{
		X:           mat.DenseCopyOf(X),
		y:           yIdx,
		w:           sampleWeight,
		nClasses:    len(classes),
		nFeatures:   nFeatures,
		mtry:        mtry,
		impurity:    impurityFunc(dt.criterion),
		maxDepth:    dt.maxDepth,
		minSplit:    dt.minSamplesSplit,
		minLeaf:     dt.minSamplesLeaf,
		rng:         newRand(dt.randomState),
		importances: make([]float64, nFeatures),
	}

	samples := make([]int, 0, nSamples)
	for i, w := range sampleWeight {
		if w > 0 {
			samples = append(samples, i)
		}
	}
	if len(samples) == 0 {
		return errors.ErrEmptyData
	}

	dt.root = b.build(samples, 0)
	dt.classes_ = append([]float64(nil), classes...)
	dt.nClasses_ = len(classes)
	dt.nFeatures_ = nFeatures
	dt.depth_ = b.depth
	dt.nLeaves_ = b.leaves
	dt.featureImportances_ = normalize(b.importances)

	dt.state.SetClasses(classes)
	dt.state.SetFitted(nFeatures, nSamples)
	return nil
}

func (dt *DecisionTreeClassifier) validate() error {
	if err := model.OneOf("criterion", dt.criterion, "gini", "entropy"); err != nil {
		return err
	}
	if dt.maxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be >= 0", dt.maxDepth)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.minSamplesLeaf)
	}
	return nil
}

// ResolveMaxFeatures turns a max_features value into a feature count.
func ResolveMaxFeatures(v interface{}, nFeatures int) (int, error) {
	switch x := v.(type) {
	case nil:
		return nFeatures, nil
	case string:
		switch x {
		case "all", "":
			return nFeatures, nil
		case "sqrt", "auto":
			return max(1, int(math.Sqrt(float64(nFeatures)))), nil
		case "log2":
			return max(1, int(math.Log2(float64(nFeatures)))), nil
		}
	default:
		if f, ok := x.(float64); ok && f > 0 && f < 1 {
			return max(1, int(f*float64(nFeatures))), nil
		}
		n, err := model.ToInt("max_features", x)
		if err == nil && n >= 1 {
			return min(n, nFeatures), nil
		}
	}
	return 0, errors.NewValidationError("max_features", "must be sqrt, log2, all, a fraction or a positive integer", v)
}

func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		seed = rand.Int63()
	}
	return rand.New(rand.NewSource(seed))
}

func normalize(v []float64) []float64 {
	out := append([]float64(nil), v...)
	sum := 0.0
	for _, x := range out {
		sum += x
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out
}

type builder struct {
	X         *mat.Dense
	y         []int
	w         []float64
	nClasses  int
	nFeatures int
	mtry      int
	impurity  func(counts []float64, total float64) float64
	maxDepth  int
	minSplit  int
	minLeaf   int
	rng       *rand.Rand

	importances []float64
	depth       int
	leaves      int
}

type split struct {
	feature   int
	threshold float64
	pos       int // samples[:pos] go left after sorting by feature
	proxy     float64
}

func (b *builder) counts(samples []int) ([]float64, float64) {
	c := make([]float64, b.nClasses)
	total := 0.0
	for _, i := range samples {
		c[b.y[i]] += b.w[i]
		total += b.w[i]
	}
	return c, total
}

func (b *builder) build(samples []int, depth int) *node {
	value, total := b.counts(samples)
	n := &node{value: value}
	if depth > b.depth {
		b.depth = depth
	}

	imp := b.impurity(value, total)
	if (b.maxDepth > 0 && depth >= b.maxDepth) ||
		len(samples) < b.minSplit ||
		len(samples) < 2*b.minLeaf ||
		imp <= 1e-12 {
		b.leaves++
		return n
	}

	best, ok := b.findSplit(samples, total)
	if !ok {
		b.leaves++
		return n
	}

	b.sortBy(samples, best.feature)
	left, right := samples[:best.pos], samples[best.pos:]
	lv, lw := b.counts(left)
	rv, rw := b.counts(right)
	b.importances[best.feature] += total*imp - lw*b.impurity(lv, lw) - rw*b.impurity(rv, rw)

	n.feature = best.feature
	n.threshold = best.threshold
	// copy so that the children's in-place sorts do not disturb each other
	n.left = b.build(append([]int(nil), left...), depth+1)
	n.right = b.build(append([]int(nil), right...), depth+1)
	return n
}

func (b *builder) sortBy(samples []int, feature int) {
	sort.SliceStable(samples, func(i, j int) bool {
		return b.X.At(samples[i], feature) < b.X.At(samples[j], feature)
	})
}

// findSplit scans features in random order and stops once mtry non-constant
// features have been examined.
func (b *builder) findSplit(samples []int, total float64) (split, bool) {
	features := b.rng.Perm(b.nFeatures)
	best := split{proxy: math.Inf(1)}
	found := false
	visited := 0

	left := make([]float64, b.nClasses)
	right := make([]float64, b.nClasses)
	for _, f := range features {
		if visited >= b.mtry {
			break
		}
		b.sortBy(samples, f)
		lo := b.X.At(samples[0], f)
		hi := b.X.At(samples[len(samples)-1], f)
		if hi <= lo+featureThreshold {
			continue
		}
		visited++

		for k := range left {
			left[k], right[k] = 0, 0
		}
		for _, i := range samples {
			right[b.y[i]] += b.w[i]
		}
		wl, wr := 0.0, total

		for p := 0; p < len(samples)-1; p++ {
			i := samples[p]
			left[b.y[i]] += b.w[i]
			right[b.y[i]] -= b.w[i]
			wl += b.w[i]
			wr -= b.w[i]

			v := b.X.At(i, f)
			next := b.X.At(samples[p+1], f)
			if next <= v+featureThreshold {
				continue
			}
			if p+1 < b.minLeaf || len(samples)-p-1 < b.minLeaf {
				continue
			}

			proxy := wl*b.impurity(left, wl) + wr*b.impurity(right, wr)
			if proxy < best.proxy {
				threshold := v/2 + next/2
				if threshold == next || math.IsInf(threshold, 0) {
					threshold = v
				}
				best = split{feature: f, threshold: threshold, pos: p + 1, proxy: proxy}
				found = true
			}
		}
	}
	return best, found
}

func impurityFunc(criterion string) func([]float64, float64) float64 {
	if criterion == "entropy" {
		return entropy
	}
	return gini
}

func gini(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	sq := 0.0
	for _, c := range counts {
		p := c / total
		sq += p * p
	}
	return 1 - sq
}

func entropy(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		if c > 0 {
			p := c / total
			h -= p * math.Log2(p)
		}
	}
	return h
}

func (dt *DecisionTreeClassifier) leaf(x []float64) *node {
	n := dt.root
	for !n.isLeaf() {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n
}

// PredictProba returns class probabilities, one column per class.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.CheckPredictInput("DecisionTreeClassifier", "PredictProba", X); err != nil {
		return nil, err
	}
	return dt.predictProba(X), nil
}

func (dt *DecisionTreeClassifier) predictProba(X mat.Matrix) *mat.Dense {
	r, c := X.Dims()
	out := mat.NewDense(r, dt.nClasses_, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		v := dt.leaf(row).value
		total := 0.0
		for _, x := range v {
			total += x
		}
		for k, x := range v {
			out.Set(i, k, x/total)
		}
	}
	return out
}

// Predict returns the most probable class of each sample.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.CheckPredictInput("DecisionTreeClassifier", "Predict", X); err != nil {
		return nil, err
	}
	proba := dt.predictProba(X)
	r, _ := proba.Dims()
	labels := make([]float64, r)
	for i := range labels {
		labels[i] = dt.classes_[argmax(proba.RawRowView(i))]
	}
	return model.LabelColumn(labels), nil
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

// Score returns the mean accuracy on the given data, or 0 if prediction fails.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	return model.ScoreAccuracy(dt, X, y)
}

// Classes returns the sorted labels seen during Fit.
func (dt *DecisionTreeClassifier) Classes() []float64 {
	return dt.state.Classes()
}

// GetFeatureImportances returns the normalized impurity decrease per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.featureImportances_...)
}

// GetDepth returns the depth of the fitted tree; a single leaf has depth 0.
func (dt *DecisionTreeClassifier) GetDepth() int { return dt.depth_ }

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int { return dt.nLeaves_ }

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams sets hyperparameters by name.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		var err error
		switch k {
		case "criterion":
			dt.criterion, err = model.ToString(k, v)
		case "max_depth":
			dt.maxDepth, err = model.ToOptionalInt(k, v)
		case "min_samples_split":
			dt.minSamplesSplit, err = model.ToInt(k, v)
		case "min_samples_leaf":
			dt.minSamplesLeaf, err = model.ToInt(k, v)
		case "max_features":
			dt.maxFeatures = v
		case "random_state":
			var seed int
			seed, err = model.ToInt(k, v)
			dt.randomState = int64(seed)
		default:
			err = model.UnknownParam("DecisionTreeClassifier", k)
		}
		if err != nil {
			return err
		}
	}
	dt.state.Reset()
	return nil
}

// Clone returns an unfitted tree with the same hyperparameters.
func (dt *DecisionTreeClassifier) Clone() model.Estimator {
	return NewDecisionTreeClassifier(
		WithCriterion(dt.criterion),
		WithMaxDepth(dt.maxDepth),
		WithMinSamplesSplit(dt.minSamplesSplit),
		WithMinSamplesLeaf(dt.minSamplesLeaf),
		WithMaxFeatures(dt.maxFeatures),
		WithRandomState(dt.randomState),
	)
}
