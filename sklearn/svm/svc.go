// Package svm implements a C-support vector classifier trained with
// sequential minimal optimisation.
package svm

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/core/parallel"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// tau replaces a non-positive curvature in the two-variable subproblem.
const tau = 1e-12

// gramParallelRows is the row count above which kernel rows are split
// across workers.
const gramParallelRows = 64

// SVC is a kernel support vector classifier compatible with scikit-learn's
// SVC. Multiclass problems are decomposed one-vs-one.
type SVC struct {
	state *model.StateManager

	// Hyperparameters
	C           float64
	kernel      string
	degree      int
	gamma       interface{} // "scale", "auto" or a positive float
	coef0       float64
	tol         float64
	maxIter     int // -1 for no limit
	randomState int64
	nJobs       int

	// Fitted attributes
	classes_ []float64
	gamma_   float64
	pairs_   []*binaryModel
	nIter_   []int
}

// binaryModel is the decision function of one class pair:
// f(x) = Σ coef[i]·K(sv[i], x) − rho, positive for the higher class.
type binaryModel struct {
	neg, pos int // class indices
	sv       *mat.Dense
	coef     []float64
	rho      float64
}

// Option configures an SVC.
type Option func(*SVC)

// NewSVC creates an SVC with scikit-learn defaults.
func NewSVC(opts ...Option) *SVC {
	s := &SVC{
		state:       model.NewStateManager(),
		C:           1.0,
		kernel:      "rbf",
		degree:      3,
		gamma:       "scale",
		coef0:       0,
		tol:         1e-3,
		maxIter:     -1,
		randomState: -1,
		nJobs:       1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithC sets the regularisation parameter.
func WithC(c float64) Option { return func(s *SVC) { s.C = c } }

// WithKernel sets the kernel: linear, poly, rbf or sigmoid.
func WithKernel(k string) Option { return func(s *SVC) { s.kernel = k } }

// WithDegree sets the polynomial degree.
func WithDegree(d int) Option { return func(s *SVC) { s.degree = d } }

// WithGamma sets the kernel coefficient ("scale", "auto" or a float).
func WithGamma(g interface{}) Option { return func(s *SVC) { s.gamma = g } }

// WithCoef0 sets the independent term of the poly and sigmoid kernels.
func WithCoef0(c float64) Option { return func(s *SVC) { s.coef0 = c } }

// WithTol sets the stopping tolerance on the KKT violation.
func WithTol(t float64) Option { return func(s *SVC) { s.tol = t } }

// WithMaxIter caps the SMO iterations per class pair. -1 means no limit.
func WithMaxIter(n int) Option { return func(s *SVC) { s.maxIter = n } }

// WithRandomState sets the random seed. The solver is deterministic; the
// seed is kept for parameter parity.
func WithRandomState(seed int64) Option { return func(s *SVC) { s.randomState = seed } }

// WithNJobs sets the workers used for kernel rows and class pairs.
func WithNJobs(n int) Option { return func(s *SVC) { s.nJobs = n } }

func (s *SVC) validate() error {
	if s.C <= 0 {
		return errors.NewValidationError("C", "must be positive", s.C)
	}
	if err := model.OneOf("kernel", s.kernel, "linear", "poly", "rbf", "sigmoid"); err != nil {
		return err
	}
	if s.degree < 0 {
		return errors.NewValidationError("degree", "must be >= 0", s.degree)
	}
	if s.tol <= 0 {
		return errors.NewValidationError("tol", "must be positive", s.tol)
	}
	switch g := s.gamma.(type) {
	case string:
		return model.OneOf("gamma", g, "scale", "auto")
	default:
		v, err := model.ToFloat64("gamma", g)
		if err != nil {
			return err
		}
		if v <= 0 {
			return errors.NewValidationError("gamma", "must be positive", v)
		}
	}
	return nil
}

// resolveGamma turns "scale" into 1/(n_features·Var(X)) and "auto" into
// 1/n_features.
func (s *SVC) resolveGamma(X *mat.Dense) float64 {
	_, nf := X.Dims()
	switch g := s.gamma.(type) {
	case string:
		if g == "auto" {
			return 1 / float64(nf)
		}
		_, v := stat.PopMeanVariance(X.RawMatrix().Data, nil)
		if v == 0 {
			return 1
		}
		return 1 / (float64(nf) * v)
	default:
		v, _ := model.ToFloat64("gamma", g)
		return v
	}
}

func (s *SVC) kernelFunc(a, b []float64) float64 {
	switch s.kernel {
	case "linear":
		return floats.Dot(a, b)
	case "poly":
		return math.Pow(s.gamma_*floats.Dot(a, b)+s.coef0, float64(s.degree))
	case "sigmoid":
		return math.Tanh(s.gamma_*floats.Dot(a, b) + s.coef0)
	default:
		d := 0.0
		for i := range a {
			t := a[i] - b[i]
			d += t * t
		}
		return math.Exp(-s.gamma_ * d)
	}
}

// gram computes K(A_i, B_j) for every row pair.
func (s *SVC) gram(A, B *mat.Dense) *mat.Dense {
	ra, _ := A.Dims()
	rb, _ := B.Dims()
	K := mat.NewDense(ra, rb, nil)
	parallel.ParallelizeWithThreshold(parallel.Workers(s.nJobs), ra, gramParallelRows, func(start, end int) {
		for i := start; i < end; i++ {
			ai := A.RawRowView(i)
			row := K.RawRowView(i)
			for j := 0; j < rb; j++ {
				row[j] = s.kernelFunc(ai, B.RawRowView(j))
			}
		}
	})
	return K
}

// Fit trains one binary machine per class pair.
func (s *SVC) Fit(X, y mat.Matrix) error {
	if err := s.validate(); err != nil {
		return err
	}
	labels, err := model.CheckXy("SVC.Fit", X, y)
	if err != nil {
		return err
	}
	classes, idx := model.EncodeLabels(labels)
	if len(classes) < 2 {
		return errors.Wrapf(errors.ErrSingleClass, "SVC.Fit: got only class %v", classes)
	}
	nSamples, nFeatures := X.Dims()
	Xd := mat.DenseCopyOf(X)
	s.gamma_ = s.resolveGamma(Xd)
	K := s.gram(Xd, Xd)

	var pairs []*binaryModel
	for a := 0; a < len(classes); a++ {
		for b := a + 1; b < len(classes); b++ {
			pairs = append(pairs, &binaryModel{neg: a, pos: b})
		}
	}
	iters := make([]int, len(pairs))
	stopped := make([]bool, len(pairs))
	parallel.ParallelizeN(parallel.Workers(s.nJobs), len(pairs), func(start, end int) {
		for p := start; p < end; p++ {
			iters[p], stopped[p] = s.fitPair(pairs[p], Xd, K, idx)
		}
	})
	for p, early := range stopped {
		if early {
			errors.Warn(errors.NewConvergenceWarning("SVC", iters[p],
				"solver terminated early, consider pre-processing your data with StandardScaler"))
			break
		}
	}

	s.classes_ = classes
	s.pairs_ = pairs
	s.nIter_ = iters
	s.state.SetClasses(classes)
	s.state.SetFitted(nFeatures, nSamples)
	return nil
}

func (s *SVC) iterLimit(n int) int {
	if s.maxIter > 0 {
		return s.maxIter
	}
	if l := 100 * n; l > 10000000 {
		return l
	}
	return 10000000
}

// fitPair solves the dual of the binary problem between bm.neg (y=-1) and
// bm.pos (y=+1). It returns the iteration count and whether the iteration
// limit stopped the solver.
func (s *SVC) fitPair(bm *binaryModel, X, K *mat.Dense, idx []int) (int, bool) {
	var rows []int
	var y []float64
	for i, c := range idx {
		switch c {
		case bm.neg:
			rows = append(rows, i)
			y = append(y, -1)
		case bm.pos:
			rows = append(rows, i)
			y = append(y, 1)
		}
	}
	q := func(i, j int) float64 { return y[i] * y[j] * K.At(rows[i], rows[j]) }

	smo := &smoSolver{n: len(rows), y: y, q: q, C: s.C, eps: s.tol}
	limit := s.iterLimit(len(rows))
	alpha, rho, iter := smo.solve(limit)

	var sv []int
	for i, a := range alpha {
		if a > 0 {
			sv = append(sv, i)
		}
	}
	_, nf := X.Dims()
	bm.sv = mat.NewDense(max(len(sv), 1), nf, nil)
	bm.coef = make([]float64, len(sv))
	for k, i := range sv {
		bm.sv.SetRow(k, X.RawRowView(rows[i]))
		bm.coef[k] = alpha[i] * y[i]
	}
	bm.rho = rho
	return iter, iter >= limit
}

// smoSolver minimises ½αᵀQα − eᵀα subject to yᵀα = 0 and 0 ≤ α ≤ C, using
// the second-order working set selection of Fan, Chen and Lin (2005).
type smoSolver struct {
	n   int
	y   []float64
	q   func(i, j int) float64
	C   float64
	eps float64

	alpha []float64
	grad  []float64
	qd    []float64
}

func (m *smoSolver) upper(i int) bool { return m.alpha[i] >= m.C }
func (m *smoSolver) lower(i int) bool { return m.alpha[i] <= 0 }

func (m *smoSolver) solve(maxIter int) ([]float64, float64, int) {
	m.alpha = make([]float64, m.n)
	m.grad = make([]float64, m.n)
	m.qd = make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		m.grad[i] = -1
		m.qd[i] = m.q(i, i)
	}

	iter := 0
	qi := make([]float64, m.n)
	qj := make([]float64, m.n)
	for iter < maxIter {
		i, j, ok := m.selectWorkingSet(qi)
		if !ok {
			break
		}
		iter++
		for k := 0; k < m.n; k++ {
			qj[k] = m.q(j, k)
		}
		m.update(i, j, qi, qj)
	}
	return m.alpha, m.rho(), iter
}

// selectWorkingSet returns the maximal violating pair under the second
// order rule. ok is false once the violation is below eps. Row i of Q is
// left in qi.
func (m *smoSolver) selectWorkingSet(qi []float64) (int, int, bool) {
	gmax, gmax2 := math.Inf(-1), math.Inf(-1)
	i := -1
	for t := 0; t < m.n; t++ {
		if m.y[t] > 0 {
			if !m.upper(t) && -m.grad[t] >= gmax {
				gmax, i = -m.grad[t], t
			}
		} else if !m.lower(t) && m.grad[t] >= gmax {
			gmax, i = m.grad[t], t
		}
	}
	if i < 0 {
		return 0, 0, false
	}
	for k := 0; k < m.n; k++ {
		qi[k] = m.q(i, k)
	}

	j := -1
	objMin := math.Inf(1)
	for t := 0; t < m.n; t++ {
		var diff, quad float64
		if m.y[t] > 0 {
			if m.lower(t) {
				continue
			}
			diff = gmax + m.grad[t]
			if m.grad[t] >= gmax2 {
				gmax2 = m.grad[t]
			}
			quad = m.qd[i] + m.qd[t] - 2*m.y[i]*qi[t]
		} else {
			if m.upper(t) {
				continue
			}
			diff = gmax - m.grad[t]
			if -m.grad[t] >= gmax2 {
				gmax2 = -m.grad[t]
			}
			quad = m.qd[i] + m.qd[t] + 2*m.y[i]*qi[t]
		}
		if diff <= 0 {
			continue
		}
		if quad <= 0 {
			quad = tau
		}
		if obj := -(diff * diff) / quad; obj <= objMin {
			objMin, j = obj, t
		}
	}
	if gmax+gmax2 < m.eps || j < 0 {
		return 0, 0, false
	}
	return i, j, true
}

func (m *smoSolver) update(i, j int, qi, qj []float64) {
	C := m.C
	oldI, oldJ := m.alpha[i], m.alpha[j]
	a := m.alpha

	if m.y[i] != m.y[j] {
		quad := m.qd[i] + m.qd[j] + 2*qi[j]
		if quad <= 0 {
			quad = tau
		}
		delta := (-m.grad[i] - m.grad[j]) / quad
		diff := a[i] - a[j]
		a[i] += delta
		a[j] += delta
		if diff > 0 {
			if a[j] < 0 {
				a[j], a[i] = 0, diff
			}
		} else if a[i] < 0 {
			a[i], a[j] = 0, -diff
		}
		if diff > 0 {
			if a[i] > C {
				a[i], a[j] = C, C-diff
			}
		} else if a[j] > C {
			a[j], a[i] = C, C+diff
		}
	} else {
		quad := m.qd[i] + m.qd[j] - 2*qi[j]
		if quad <= 0 {
			quad = tau
		}
		delta := (m.grad[i] - m.grad[j]) / quad
		sum := a[i] + a[j]
		a[i] -= delta
		a[j] += delta
		if sum > C {
			if a[i] > C {
				a[i], a[j] = C, sum-C
			}
		} else if a[j] < 0 {
			a[j], a[i] = 0, sum
		}
		if sum > C {
			if a[j] > C {
				a[j], a[i] = C, sum-C
			}
		} else if a[i] < 0 {
			a[i], a[j] = 0, sum
		}
	}

	dI, dJ := a[i]-oldI, a[j]-oldJ
	for k := 0; k < m.n; k++ {
		m.grad[k] += qi[k]*dI + qj[k]*dJ
	}
}

// rho is the bias term: the mean of y·∇f over free variables, or the
// midpoint of the feasible interval when every variable is bounded.
func (m *smoSolver) rho() float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	sum, free := 0.0, 0
	for i := 0; i < m.n; i++ {
		yg := m.y[i] * m.grad[i]
		switch {
		case m.upper(i):
			if m.y[i] < 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		case m.lower(i):
			if m.y[i] > 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		default:
			free++
			sum += yg
		}
	}
	if free > 0 {
		return sum / float64(free)
	}
	return (ub + lb) / 2
}

// pairDecisions returns an n×pairs matrix of binary decision values.
func (s *SVC) pairDecisions(X mat.Matrix) *mat.Dense {
	Xd := mat.DenseCopyOf(X)
	r, _ := Xd.Dims()
	D := mat.NewDense(r, len(s.pairs_), nil)
	for p, bm := range s.pairs_ {
		if len(bm.coef) == 0 {
			for i := 0; i < r; i++ {
				D.Set(i, p, -bm.rho)
			}
			continue
		}
		K := s.gram(Xd, bm.sv)
		coef := mat.NewVecDense(len(bm.coef), bm.coef)
		var f mat.VecDense
		f.MulVec(K, coef)
		for i := 0; i < r; i++ {
			D.Set(i, p, f.AtVec(i)-bm.rho)
		}
	}
	return D
}

// DecisionFunction returns one column of signed distances for binary
// problems (positive means the higher class) and one column per class pair
// otherwise, ordered (0,1), (0,2), ..., (1,2), ...
func (s *SVC) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.CheckPredictInput("SVC", "DecisionFunction", X); err != nil {
		return nil, err
	}
	return s.pairDecisions(X), nil
}

// Predict returns the class with the most one-vs-one votes. Ties go to the
// lowest class.
func (s *SVC) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.CheckPredictInput("SVC", "Predict", X); err != nil {
		return nil, err
	}
	D := s.pairDecisions(X)
	r, _ := D.Dims()
	labels := make([]float64, r)
	votes := make([]int, len(s.classes_))
	for i := 0; i < r; i++ {
		for k := range votes {
			votes[k] = 0
		}
		for p, bm := range s.pairs_ {
			if D.At(i, p) > 0 {
				votes[bm.pos]++
			} else {
				votes[bm.neg]++
			}
		}
		best := 0
		for k, v := range votes {
			if v > votes[best] {
				best = k
			}
		}
		labels[i] = s.classes_[best]
	}
	return model.LabelColumn(labels), nil
}

// Score returns the mean accuracy on the given data.
func (s *SVC) Score(X, y mat.Matrix) float64 {
	return model.ScoreAccuracy(s, X, y)
}

// Classes returns the sorted labels seen during Fit.
func (s *SVC) Classes() []float64 {
	return s.state.Classes()
}

// NSupport returns the number of support vectors of each class pair.
func (s *SVC) NSupport() []int {
	out := make([]int, len(s.pairs_))
	for p, bm := range s.pairs_ {
		out[p] = len(bm.coef)
	}
	return out
}

// Gamma returns the kernel coefficient resolved at Fit.
func (s *SVC) Gamma() float64 { return s.gamma_ }

// NIter returns the SMO iterations of each class pair.
func (s *SVC) NIter() []int { return s.nIter_ }

// GetParams returns the hyperparameters.
func (s *SVC) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"C":            s.C,
		"kernel":       s.kernel,
		"degree":       s.degree,
		"gamma":        s.gamma,
		"coef0":        s.coef0,
		"tol":          s.tol,
		"max_iter":     s.maxIter,
		"random_state": s.randomState,
		"n_jobs":       s.nJobs,
	}
}

// SetParams sets hyperparameters by name.
func (s *SVC) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		var err error
		switch k {
		case "C":
			s.C, err = model.ToFloat64(k, v)
		case "kernel":
			s.kernel, err = model.ToString(k, v)
		case "degree":
			s.degree, err = model.ToInt(k, v)
		case "gamma":
			if _, ok := v.(string); ok {
				s.gamma = v
			} else {
				var g float64
				g, err = model.ToFloat64(k, v)
				s.gamma = g
			}
		case "coef0":
			s.coef0, err = model.ToFloat64(k, v)
		case "tol":
			s.tol, err = model.ToFloat64(k, v)
		case "max_iter":
			s.maxIter, err = model.ToInt(k, v)
		case "random_state":
			var seed int
			seed, err = model.ToInt(k, v)
			s.randomState = int64(seed)
		case "n_jobs":
			s.nJobs, err = model.ToInt(k, v)
		default:
			err = model.UnknownParam("SVC", k)
		}
		if err != nil {
			return err
		}
	}
	s.state.Reset()
	return nil
}

// Clone returns an unfitted SVC with the same hyperparameters.
func (s *SVC) Clone() model.Estimator {
	return NewSVC(
		WithC(s.C),
		WithKernel(s.kernel),
		WithDegree(s.degree),
		WithGamma(s.gamma),
		WithCoef0(s.coef0),
		WithTol(s.tol),
		WithMaxIter(s.maxIter),
		WithRandomState(s.randomState),
		WithNJobs(s.nJobs),
	)
}
