// Package linear_model implements regularised logistic regression solved
// with gonum's quasi-Newton and Newton optimisers.
package linear_model

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// LogisticRegression implements logistic regression for classification
// Compatible with scikit-learn's LogisticRegression
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2" or "none"
	C            float64 // Inverse regularization strength (1/alpha)
	fitIntercept bool    // Whether to fit intercept
	randomState  int64   // Random seed (unused by the deterministic solvers)
	solver       string  // Solver: "lbfgs", "newton-cg"
	maxIter      int     // Maximum iterations
	tol          float64 // Tolerance for stopping

	// Model parameters
	coef_      [][]float64 // Coefficients (n_classes x n_features or 1 x n_features for binary)
	intercept_ []float64   // Intercept terms
	classes_   []float64   // Unique class labels
	nClasses_  int         // Number of classes
	nFeatures_ int         // Number of features
	nIter_     int         // Major iterations of the solver
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		randomState:  -1,
		solver:       "lbfgs",
		maxIter:      100,
		tol:          1e-4,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.penalty = penalty }
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.C = c }
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.fitIntercept = fit }
}

// WithLRSolver sets the optimization solver
func WithLRSolver(solver string) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.solver = solver }
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.maxIter = maxIter }
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.tol = tol }
}

// WithLRRandomState sets the random seed
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.randomState = seed }
}

func (lr *LogisticRegression) validate() error {
	if err := model.OneOf("solver", lr.solver, "lbfgs", "newton-cg"); err != nil {
		return err
	}
	if err := model.OneOf("penalty", lr.penalty, "l2", "none"); err != nil {
		return errors.Wrapf(err, "solver %s supports only l2 or no penalty", lr.solver)
	}
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be >= 1", lr.maxIter)
	}
	return nil
}

// Fit trains the logistic regression model. Two classes use the binary
// logistic loss, more classes the multinomial (softmax) loss.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := lr.validate(); err != nil {
		return err
	}
	labels, err := model.CheckXy("LogisticRegression.Fit", X, y)
	if err != nil {
		return err
	}
	classes, idx := model.EncodeLabels(labels)
	if len(classes) < 2 {
		return errors.Wrapf(errors.ErrSingleClass, "LogisticRegression.Fit: got only class %v", classes)
	}

	nSamples, nFeatures := X.Dims()
	obj := &objective{
		X:         mat.DenseCopyOf(X),
		y:         idx,
		n:         nSamples,
		d:         nFeatures,
		C:         lr.C,
		l2:        lr.penalty == "l2",
		intercept: lr.fitIntercept,
	}
	if len(classes) == 2 {
		obj.k = 1
	} else {
		obj.k = len(classes)
	}

	problem := optimize.Problem{Func: obj.fun, Grad: obj.grad, Hess: obj.hess}
	settings := &optimize.Settings{
		MajorIterations:   lr.maxIter,
		GradientThreshold: lr.tol,
	}
	var method optimize.Method = &optimize.LBFGS{}
	if lr.solver == "newton-cg" {
		method = &optimize.Newton{}
	}

	x0 := make([]float64, obj.k*obj.p())
	result, err := optimize.Minimize(problem, x0, settings, method)
	if result == nil {
		return errors.NewModelError("LogisticRegression.Fit", "optimization failed", err)
	}
	if err != nil || result.Status == optimize.IterationLimit {
		msg := "maximum number of iterations reached"
		if err != nil {
			msg = err.Error()
		}
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", result.Stats.MajorIterations, msg))
	}
	if err := errors.CheckMatrix("LogisticRegression.Fit", mat.NewVecDense(len(result.X), result.X),
		len(result.X), 1, result.Stats.MajorIterations); err != nil {
		return err
	}

	lr.unpack(result.X, obj)
	lr.classes_ = classes
	lr.nClasses_ = len(classes)
	lr.nFeatures_ = nFeatures
	lr.nIter_ = result.Stats.MajorIterations
	lr.state.SetClasses(classes)
	lr.state.SetFitted(nFeatures, nSamples)
	return nil
}

func (lr *LogisticRegression) unpack(x []float64, obj *objective) {
	p := obj.p()
	lr.coef_ = make([][]float64, obj.k)
	lr.intercept_ = make([]float64, obj.k)
	for k := 0; k < obj.k; k++ {
		lr.coef_[k] = append([]float64(nil), x[k*p:k*p+obj.d]...)
		if obj.intercept {
			lr.intercept_[k] = x[k*p+obj.d]
		}
	}
}

// decision returns the linear scores, one column per coefficient row.
func (lr *LogisticRegression) decision(X mat.Matrix) *mat.Dense {
	r, _ := X.Dims()
	k := len(lr.coef_)
	W := mat.NewDense(k, lr.nFeatures_, nil)
	for i, row := range lr.coef_ {
		W.SetRow(i, row)
	}
	Z := mat.NewDense(r, k, nil)
	Z.Mul(X, W.T())
	Z.Apply(func(_, j int, v float64) float64 { return v + lr.intercept_[j] }, Z)
	return Z
}

// DecisionFunction returns the signed distance to the hyperplane for binary
// problems and per-class scores otherwise.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.CheckPredictInput("LogisticRegression", "DecisionFunction", X); err != nil {
		return nil, err
	}
	return lr.decision(X), nil
}

// PredictProba returns probability estimates for each class
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.CheckPredictInput("LogisticRegression", "PredictProba", X); err != nil {
		return nil, err
	}
	return lr.predictProba(X), nil
}

func (lr *LogisticRegression) predictProba(X mat.Matrix) *mat.Dense {
	Z := lr.decision(X)
	r, _ := Z.Dims()
	probas := mat.NewDense(r, lr.nClasses_, nil)
	for i := 0; i < r; i++ {
		if lr.nClasses_ == 2 {
			p1 := errors.Sigmoid(Z.At(i, 0))
			probas.Set(i, 0, 1-p1)
			probas.Set(i, 1, p1)
			continue
		}
		row := append([]float64(nil), Z.RawRowView(i)...)
		errors.Softmax(row)
		probas.SetRow(i, row)
	}
	return probas
}

// Predict makes predictions for input data
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.CheckPredictInput("LogisticRegression", "Predict", X); err != nil {
		return nil, err
	}
	Z := lr.decision(X)
	r, _ := Z.Dims()
	labels := make([]float64, r)
	for i := range labels {
		if lr.nClasses_ == 2 {
			if Z.At(i, 0) > 0 {
				labels[i] = lr.classes_[1]
			} else {
				labels[i] = lr.classes_[0]
			}
			continue
		}
		row := Z.RawRowView(i)
		best := 0
		for k, v := range row {
			if v > row[best] {
				best = k
			}
		}
		labels[i] = lr.classes_[best]
	}
	return model.LabelColumn(labels), nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	return model.ScoreAccuracy(lr, X, y)
}

// Classes returns the sorted labels seen during Fit
func (lr *LogisticRegression) Classes() []float64 {
	return lr.state.Classes()
}

// Coef returns the fitted coefficients
func (lr *LogisticRegression) Coef() [][]float64 { return lr.coef_ }

// Intercept returns the fitted intercepts
func (lr *LogisticRegression) Intercept() []float64 { return lr.intercept_ }

// NIter returns the number of solver iterations of the last Fit
func (lr *LogisticRegression) NIter() int { return lr.nIter_ }

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"random_state":  lr.randomState,
		"solver":        lr.solver,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters. Values are checked for type
// here and for range at Fit time.
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "penalty":
			lr.penalty, err = model.ToString(key, value)
		case "C":
			lr.C, err = model.ToFloat64(key, value)
		case "fit_intercept":
			lr.fitIntercept, err = model.ToBool(key, value)
		case "random_state":
			var seed int
			seed, err = model.ToInt(key, value)
			lr.randomState = int64(seed)
		case "solver":
			lr.solver, err = model.ToString(key, value)
		case "max_iter":
			lr.maxIter, err = model.ToInt(key, value)
		case "tol":
			lr.tol, err = model.ToFloat64(key, value)
		default:
			err = model.UnknownParam("LogisticRegression", key)
		}
		if err != nil {
			return err
		}
	}
	lr.state.Reset()
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters
func (lr *LogisticRegression) Clone() model.Estimator {
	return NewLogisticRegression(
		WithLRPenalty(lr.penalty),
		WithLRC(lr.C),
		WithLogisticFitIntercept(lr.fitIntercept),
		WithLRSolver(lr.solver),
		WithLRMaxIter(lr.maxIter),
		WithLRTol(lr.tol),
		WithLRRandomState(lr.randomState),
	)
}

// objective is the penalised negative log-likelihood
//
//	C · Σ loss_i + ½ ‖W‖²
//
// over k coefficient rows of length p = d (+1 with intercept). The intercept
// is not penalised. k == 1 is the binary logistic loss, k > 1 the
// multinomial loss.
type objective struct {
	X         *mat.Dense
	y         []int
	n, d, k   int
	C         float64
	l2        bool
	intercept bool
}

func (o *objective) p() int {
	if o.intercept {
		return o.d + 1
	}
	return o.d
}

// scores returns the n×k matrix of linear scores for parameters x.
func (o *objective) scores(x []float64) *mat.Dense {
	p := o.p()
	W := mat.NewDense(o.k, o.d, nil)
	for k := 0; k < o.k; k++ {
		W.SetRow(k, x[k*p:k*p+o.d])
	}
	Z := mat.NewDense(o.n, o.k, nil)
	Z.Mul(o.X, W.T())
	if o.intercept {
		Z.Apply(func(_, k int, v float64) float64 { return v + x[k*p+o.d] }, Z)
	}
	return Z
}

func (o *objective) penalty(x []float64) float64 {
	if !o.l2 {
		return 0
	}
	p := o.p()
	s := 0.0
	for k := 0; k < o.k; k++ {
		for j := 0; j < o.d; j++ {
			w := x[k*p+j]
			s += w * w
		}
	}
	return 0.5 * s
}

// sign maps class index 1 to +1 and 0 to -1 for the binary loss.
func (o *objective) sign(i int) float64 {
	if o.y[i] == 1 {
		return 1
	}
	return -1
}

func (o *objective) fun(x []float64) float64 {
	Z := o.scores(x)
	loss := 0.0
	for i := 0; i < o.n; i++ {
		if o.k == 1 {
			loss += errors.Log1pExp(-o.sign(i) * Z.At(i, 0))
			continue
		}
		row := Z.RawRowView(i)
		loss += errors.LogSumExp(row) - row[o.y[i]]
	}
	return o.C*loss + o.penalty(x)
}

// residuals returns dLoss/dZ, an n×k matrix.
func (o *objective) residuals(Z *mat.Dense) *mat.Dense {
	G := mat.NewDense(o.n, o.k, nil)
	for i := 0; i < o.n; i++ {
		if o.k == 1 {
			s := o.sign(i)
			G.Set(i, 0, -s*errors.Sigmoid(-s*Z.At(i, 0)))
			continue
		}
		row := append([]float64(nil), Z.RawRowView(i)...)
		errors.Softmax(row)
		row[o.y[i]]--
		G.SetRow(i, row)
	}
	return G
}

func (o *objective) grad(grad, x []float64) {
	G := o.residuals(o.scores(x))
	p := o.p()

	var GX mat.Dense
	GX.Mul(G.T(), o.X) // k×d
	for k := 0; k < o.k; k++ {
		for j := 0; j < o.d; j++ {
			g := o.C * GX.At(k, j)
			if o.l2 {
				g += x[k*p+j]
			}
			grad[k*p+j] = g
		}
		if o.intercept {
			sum := 0.0
			for i := 0; i < o.n; i++ {
				sum += G.At(i, k)
			}
			grad[k*p+o.d] = o.C * sum
		}
	}
}

// feature returns entry a of the augmented sample i.
func (o *objective) feature(i, a int) float64 {
	if a == o.d {
		return 1
	}
	return o.X.At(i, a)
}

func (o *objective) hess(h *mat.SymDense, x []float64) {
	Z := o.scores(x)
	p := o.p()
	size := o.k * p
	for a := 0; a < size; a++ {
		for b := a; b < size; b++ {
			h.SetSym(a, b, 0)
		}
	}

	prob := make([]float64, o.k)
	for i := 0; i < o.n; i++ {
		if o.k == 1 {
			s := errors.Sigmoid(Z.At(i, 0))
			prob[0] = s * (1 - s)
		} else {
			copy(prob, Z.RawRowView(i))
			errors.Softmax(prob)
		}
		for k := 0; k < o.k; k++ {
			for l := k; l < o.k; l++ {
				var w float64
				switch {
				case o.k == 1:
					w = prob[0]
				case k == l:
					w = prob[k] * (1 - prob[k])
				default:
					w = -prob[k] * prob[l]
				}
				if w == 0 {
					continue
				}
				w *= o.C
				for a := 0; a < p; a++ {
					xa := o.feature(i, a)
					if xa == 0 {
						continue
					}
					bStart := 0
					if k == l {
						bStart = a
					}
					for b := bStart; b < p; b++ {
						r, c := k*p+a, l*p+b
						if r > c {
							r, c = c, r
						}
						h.SetSym(r, c, h.At(r, c)+w*xa*o.feature(i, b))
					}
				}
			}
		}
	}

	if o.l2 {
		for k := 0; k < o.k; k++ {
			for j := 0; j < o.d; j++ {
				idx := k*p + j
				h.SetSym(idx, idx, h.At(idx, idx)+1)
			}
		}
	}
}
