// Package model_selection provides data splitting, cross-validation
// splitters and exhaustive grid search over estimator parameters.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// CVFold holds the row indices of one cross-validation split.
type CVFold struct {
	TrainIndices []int
	TestIndices  []int
}

// Splitter generates cross-validation folds.
type Splitter interface {
	Split(X, y mat.Matrix) ([]CVFold, error)
	GetNSplits() int
}

// newRand returns a generator seeded with seed, or from the global source
// when seed is negative.
func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}

// TakeRows copies the given rows of M into a new matrix.
func TakeRows(M mat.Matrix, rows []int) *mat.Dense {
	if len(rows) == 0 {
		return &mat.Dense{}
	}
	_, c := M.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		for j := 0; j < c; j++ {
			out.Set(i, j, M.At(r, j))
		}
	}
	return out
}

// Split is the result of TrainTestSplit.
type Split struct {
	XTrain, XTest *mat.Dense
	YTrain, YTest *mat.Dense
}

// TrainTestSplit shuffles the rows with randomState and holds out
// ceil(testSize·n) of them. A testSize of 1 or more is an absolute row
// count.
func TrainTestSplit(X, y mat.Matrix, testSize float64, randomState int64) (*Split, error) {
	n, _ := X.Dims()
	labels, err := model.ExtractLabels(y)
	if err != nil {
		return nil, err
	}
	if len(labels) != n {
		return nil, errors.NewDimensionError("TrainTestSplit", n, len(labels), 0)
	}

	var nTest int
	switch {
	case testSize > 0 && testSize < 1:
		nTest = int(math.Ceil(testSize * float64(n)))
	case testSize >= 1 && testSize == math.Trunc(testSize):
		nTest = int(testSize)
	default:
		return nil, errors.NewValidationError("test_size", "must be in (0, 1) or a positive integer", testSize)
	}
	nTrain := n - nTest
	if nTest <= 0 || nTrain <= 0 {
		return nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("with n_samples=%d and test_size=%v the resulting train set would be empty", n, testSize))
	}

	perm := newRand(randomState).Perm(n)
	test, train := perm[:nTest], perm[nTest:]
	yCol := model.LabelColumn(labels)
	return &Split{
		XTrain: TakeRows(X, train),
		XTest:  TakeRows(X, test),
		YTrain: TakeRows(yCol, train),
		YTest:  TakeRows(yCol, test),
	}, nil
}

// KFold splits rows into nSplits consecutive folds, optionally shuffled.
type KFold struct {
	NSplits     int
	Shuffle     bool
	RandomState int64
}

// NewKFold creates a k-fold splitter.
func NewKFold(nSplits int, shuffle bool, randomState int64) *KFold {
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomState: randomState}
}

// GetNSplits returns the number of folds.
func (kf *KFold) GetNSplits() int { return kf.NSplits }

// Split returns the folds. The first n % k folds get one extra row.
func (kf *KFold) Split(X, _ mat.Matrix) ([]CVFold, error) {
	n, _ := X.Dims()
	if err := checkNSplits(kf.NSplits, n); err != nil {
		return nil, err
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := newRand(kf.RandomState)
		r.Shuffle(n, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	}

	testFold := make([]int, n)
	start := 0
	for f := 0; f < kf.NSplits; f++ {
		size := n / kf.NSplits
		if f < n%kf.NSplits {
			size++
		}
		for _, idx := range indices[start : start+size] {
			testFold[idx] = f
		}
		start += size
	}
	return foldsFromAssignment(testFold, kf.NSplits), nil
}

// StratifiedKFold is KFold preserving the class proportions in each fold.
type StratifiedKFold struct {
	NSplits     int
	Shuffle     bool
	RandomState int64
}

// NewStratifiedKFold creates a stratified k-fold splitter.
func NewStratifiedKFold(nSplits int, shuffle bool, randomState int64) *StratifiedKFold {
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomState: randomState}
}

// GetNSplits returns the number of folds.
func (skf *StratifiedKFold) GetNSplits() int { return skf.NSplits }

// Split deals the samples of each class, in class-sorted order, round robin
// over the folds, so fold sizes differ by at most one and each class is
// spread as evenly as possible.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]CVFold, error) {
	n, _ := X.Dims()
	if err := checkNSplits(skf.NSplits, n); err != nil {
		return nil, err
	}
	labels, err := model.ExtractLabels(y)
	if err != nil {
		return nil, err
	}
	if len(labels) != n {
		return nil, errors.NewDimensionError("StratifiedKFold.Split", n, len(labels), 0)
	}

	// classes are numbered in order of first appearance
	code := make(map[float64]int)
	encoded := make([]int, n)
	for i, v := range labels {
		c, ok := code[v]
		if !ok {
			c = len(code)
			code[v] = c
		}
		encoded[i] = c
	}
	nClasses := len(code)
	counts := make([]int, nClasses)
	for _, c := range encoded {
		counts[c]++
	}
	maxCount, minCount := 0, n
	for _, c := range counts {
		maxCount, minCount = max(maxCount, c), min(minCount, c)
	}
	if skf.NSplits > maxCount {
		return nil, errors.NewValueError("StratifiedKFold.Split",
			fmt.Sprintf("n_splits=%d cannot be greater than the number of members in each class", skf.NSplits))
	}
	if skf.NSplits > minCount {
		errors.Warn(errors.Newf("the least populated class in y has only %d members, which is less than n_splits=%d",
			minCount, skf.NSplits))
	}

	// allocation[f][c] = samples of class c in fold f
	order := append([]int(nil), encoded...)
	sort.Ints(order)
	allocation := make([][]int, skf.NSplits)
	for f := range allocation {
		allocation[f] = make([]int, nClasses)
		for i := f; i < n; i += skf.NSplits {
			allocation[f][order[i]]++
		}
	}

	var r *rand.Rand
	if skf.Shuffle {
		r = newRand(skf.RandomState)
	}
	testFold := make([]int, n)
	for c := 0; c < nClasses; c++ {
		var folds []int
		for f := 0; f < skf.NSplits; f++ {
			for k := 0; k < allocation[f][c]; k++ {
				folds = append(folds, f)
			}
		}
		if r != nil {
			r.Shuffle(len(folds), func(i, j int) { folds[i], folds[j] = folds[j], folds[i] })
		}
		k := 0
		for i, e := range encoded {
			if e == c {
				testFold[i] = folds[k]
				k++
			}
		}
	}
	return foldsFromAssignment(testFold, skf.NSplits), nil
}

func checkNSplits(nSplits, n int) error {
	if nSplits < 2 {
		return errors.NewValidationError("n_splits", "must be at least 2", nSplits)
	}
	if nSplits > n {
		return errors.NewValueError("Split",
			fmt.Sprintf("cannot have n_splits=%d greater than the number of samples n_samples=%d", nSplits, n))
	}
	return nil
}

// foldsFromAssignment builds folds from the test fold of every row. Both
// index lists are ascending.
func foldsFromAssignment(testFold []int, k int) []CVFold {
	folds := make([]CVFold, k)
	for i, f := range testFold {
		for g := range folds {
			if g == f {
				folds[g].TestIndices = append(folds[g].TestIndices, i)
			} else {
				folds[g].TrainIndices = append(folds[g].TrainIndices, i)
			}
		}
	}
	return folds
}

// CheckCV resolves a cv argument: an int becomes StratifiedKFold for
// classifiers and KFold otherwise; a Splitter is used as is.
func CheckCV(cv interface{}, classifier bool) (Splitter, error) {
	switch v := cv.(type) {
	case Splitter:
		return v, nil
	case nil:
		cv = 5
	}
	k, err := model.ToInt("cv", cv)
	if err != nil {
		return nil, err
	}
	if k < 2 {
		return nil, errors.NewValidationError("cv", "must be at least 2", k)
	}
	if classifier {
		return NewStratifiedKFold(k, false, -1), nil
	}
	return NewKFold(k, false, -1), nil
}
