// Package neural_network implements a multilayer perceptron classifier
// trained by mini-batch back-propagation.
package neural_network

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// MLPClassifier is a feed-forward network with log-loss output, compatible
// with scikit-learn's MLPClassifier for the sgd and adam solvers.
type MLPClassifier struct {
	state *model.StateManager

	// Hyperparameters
	hiddenLayerSizes  []int
	activation        string
	solver            string
	alpha             float64
	batchSize         int // 0 means min(200, n_samples)
	learningRateInit  float64
	maxIter           int
	tol               float64
	momentum          float64
	nesterovsMomentum bool
	shuffle           bool
	nIterNoChange     int
	beta1, beta2      float64
	epsilon           float64
	randomState       int64

	// Fitted attributes
	coefs_      []*mat.Dense
	intercepts_ [][]float64
	classes_    []float64
	lossCurve_  []float64
	nIter_      int
}

// Option configures an MLPClassifier.
type Option func(*MLPClassifier)

// NewMLPClassifier creates a classifier with scikit-learn defaults.
func NewMLPClassifier(opts ...Option) *MLPClassifier {
	m := &MLPClassifier{
		state:             model.NewStateManager(),
		hiddenLayerSizes:  []int{100},
		activation:        "relu",
		solver:            "adam",
		alpha:             1e-4,
		learningRateInit:  1e-3,
		maxIter:           200,
		tol:               1e-4,
		momentum:          0.9,
		nesterovsMomentum: true,
		shuffle:           true,
		nIterNoChange:     10,
		beta1:             0.9,
		beta2:             0.999,
		epsilon:           1e-8,
		randomState:       -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithHiddenLayerSizes sets the width of each hidden layer.
func WithHiddenLayerSizes(sizes ...int) Option {
	return func(m *MLPClassifier) { m.hiddenLayerSizes = append([]int(nil), sizes...) }
}

// WithActivation sets the hidden activation: identity, logistic, tanh or relu.
func WithActivation(a string) Option { return func(m *MLPClassifier) { m.activation = a } }

// WithSolver sets the weight optimiser: sgd or adam.
func WithSolver(s string) Option { return func(m *MLPClassifier) { m.solver = s } }

// WithAlpha sets the L2 penalty.
func WithAlpha(a float64) Option { return func(m *MLPClassifier) { m.alpha = a } }

// WithBatchSize sets the minibatch size. 0 selects min(200, n_samples).
func WithBatchSize(n int) Option { return func(m *MLPClassifier) { m.batchSize = n } }

// WithLearningRateInit sets the step size.
func WithLearningRateInit(lr float64) Option {
	return func(m *MLPClassifier) { m.learningRateInit = lr }
}

// WithMaxIter sets the maximum number of epochs.
func WithMaxIter(n int) Option { return func(m *MLPClassifier) { m.maxIter = n } }

// WithTol sets the loss improvement tolerance.
func WithTol(t float64) Option { return func(m *MLPClassifier) { m.tol = t } }

// WithMomentum sets the sgd momentum.
func WithMomentum(mo float64) Option { return func(m *MLPClassifier) { m.momentum = mo } }

// WithNesterovsMomentum toggles Nesterov momentum for sgd.
func WithNesterovsMomentum(b bool) Option {
	return func(m *MLPClassifier) { m.nesterovsMomentum = b }
}

// WithShuffle toggles shuffling of samples every epoch.
func WithShuffle(b bool) Option { return func(m *MLPClassifier) { m.shuffle = b } }

// WithNIterNoChange sets the epochs without tol improvement before stopping.
func WithNIterNoChange(n int) Option { return func(m *MLPClassifier) { m.nIterNoChange = n } }

// WithRandomState sets the seed of weight init and shuffling.
func WithRandomState(seed int64) Option { return func(m *MLPClassifier) { m.randomState = seed } }

func (m *MLPClassifier) validate() error {
	if len(m.hiddenLayerSizes) == 0 {
		return errors.NewValidationError("hidden_layer_sizes", "must not be empty", m.hiddenLayerSizes)
	}
	for _, h := range m.hiddenLayerSizes {
		if h < 1 {
			return errors.NewValidationError("hidden_layer_sizes", "must be > 0", m.hiddenLayerSizes)
		}
	}
	if err := model.OneOf("activation", m.activation, "identity", "logistic", "tanh", "relu"); err != nil {
		return err
	}
	if err := model.OneOf("solver", m.solver, "sgd", "adam"); err != nil {
		return err
	}
	switch {
	case m.alpha < 0:
		return errors.NewValidationError("alpha", "must be >= 0", m.alpha)
	case m.learningRateInit <= 0:
		return errors.NewValidationError("learning_rate_init", "must be > 0", m.learningRateInit)
	case m.maxIter < 1:
		return errors.NewValidationError("max_iter", "must be >= 1", m.maxIter)
	case m.momentum < 0 || m.momentum > 1:
		return errors.NewValidationError("momentum", "must be in [0, 1]", m.momentum)
	case m.batchSize < 0:
		return errors.NewValidationError("batch_size", "must be >= 0", m.batchSize)
	case m.nIterNoChange < 1:
		return errors.NewValidationError("n_iter_no_change", "must be >= 1", m.nIterNoChange)
	}
	return nil
}

// Fit trains the network on X and y.
func (m *MLPClassifier) Fit(X, y mat.Matrix) error {
	if err := m.validate(); err != nil {
		return err
	}
	labels, err := model.CheckXy("MLPClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	classes, idx := model.EncodeLabels(labels)
	nSamples, nFeatures := X.Dims()

	nOut := len(classes)
	if nOut <= 2 {
		nOut = 1
	}
	Y := mat.NewDense(nSamples, nOut, nil)
	for i, c := range idx {
		if nOut == 1 {
			Y.Set(i, 0, float64(c))
		} else {
			Y.Set(i, c, 1)
		}
	}

	rng := rand.New(rand.NewSource(m.seed()))
	m.initialize(rng, nFeatures, nOut)
	m.classes_ = classes
	m.lossCurve_ = nil

	if err := m.train(rng, mat.DenseCopyOf(X), Y); err != nil {
		return err
	}
	m.state.SetClasses(classes)
	m.state.SetFitted(nFeatures, nSamples)
	return nil
}

func (m *MLPClassifier) seed() int64 {
	if m.randomState < 0 {
		return rand.Int63()
	}
	return m.randomState
}

// initialize draws Glorot-uniform weights and biases.
func (m *MLPClassifier) initialize(rng *rand.Rand, nFeatures, nOut int) {
	sizes := append(append([]int{nFeatures}, m.hiddenLayerSizes...), nOut)
	m.coefs_ = make([]*mat.Dense, len(sizes)-1)
	m.intercepts_ = make([][]float64, len(sizes)-1)

	factor := 6.0
	if m.activation == "logistic" {
		factor = 2.0
	}
	for l := 0; l < len(sizes)-1; l++ {
		fanIn, fanOut := sizes[l], sizes[l+1]
		bound := math.Sqrt(factor / float64(fanIn+fanOut))
		W := mat.NewDense(fanIn, fanOut, nil)
		for i := 0; i < fanIn; i++ {
			for j := 0; j < fanOut; j++ {
				W.Set(i, j, (2*rng.Float64()-1)*bound)
			}
		}
		b := make([]float64, fanOut)
		for j := range b {
			b[j] = (2*rng.Float64() - 1) * bound
		}
		m.coefs_[l] = W
		m.intercepts_[l] = b
	}
}

func (m *MLPClassifier) train(rng *rand.Rand, X, Y *mat.Dense) error {
	n, _ := X.Dims()
	batch := m.batchSize
	if batch == 0 {
		batch = min(200, n)
	}
	batch = min(max(batch, 1), n)

	opt := m.newOptimizer()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	bestLoss := math.Inf(1)
	noImprove := 0
	converged := false
	for epoch := 0; epoch < m.maxIter; epoch++ {
		if m.shuffle {
			rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		accum := 0.0
		for start := 0; start < n; start += batch {
			end := min(start+batch, n)
			xb, yb := gather(X, order[start:end]), gather(Y, order[start:end])
			loss, gW, gb := m.backprop(xb, yb)
			accum += loss * float64(end-start)
			opt.step(m.coefs_, m.intercepts_, gW, gb)
		}
		m.nIter_ = epoch + 1
		loss := accum / float64(n)
		if err := errors.CheckScalar("MLPClassifier.Fit", loss, epoch); err != nil {
			return err
		}
		m.lossCurve_ = append(m.lossCurve_, loss)

		if loss > bestLoss-m.tol {
			noImprove++
		} else {
			noImprove = 0
		}
		if loss < bestLoss {
			bestLoss = loss
		}
		if noImprove > m.nIterNoChange {
			converged = true
			break
		}
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("MLPClassifier", m.nIter_,
			"stochastic optimizer: maximum iterations reached and the optimization hasn't converged yet"))
	}
	return nil
}

func gather(M *mat.Dense, rows []int) *mat.Dense {
	_, c := M.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		out.SetRow(i, M.RawRowView(r))
	}
	return out
}

// forward returns the activations of every layer, input included.
func (m *MLPClassifier) forward(X mat.Matrix) []*mat.Dense {
	acts := []*mat.Dense{mat.DenseCopyOf(X)}
	last := len(m.coefs_) - 1
	for l, W := range m.coefs_ {
		r, _ := acts[l].Dims()
		_, c := W.Dims()
		Z := mat.NewDense(r, c, nil)
		Z.Mul(acts[l], W)
		b := m.intercepts_[l]
		if l < last {
			act := activations[m.activation]
			Z.Apply(func(_, j int, v float64) float64 { return act(v + b[j]) }, Z)
		} else {
			Z.Apply(func(_, j int, v float64) float64 { return v + b[j] }, Z)
			m.outputActivation(Z)
		}
		acts = append(acts, Z)
	}
	return acts
}

func (m *MLPClassifier) outputActivation(Z *mat.Dense) {
	r, c := Z.Dims()
	if c == 1 {
		Z.Apply(func(_, _ int, v float64) float64 { return errors.Sigmoid(v) }, Z)
		return
	}
	for i := 0; i < r; i++ {
		errors.Softmax(Z.RawRowView(i))
	}
}

// backprop returns the penalised batch loss and the gradients of every
// layer.
func (m *MLPClassifier) backprop(X, Y *mat.Dense) (float64, []*mat.Dense, [][]float64) {
	acts := m.forward(X)
	n, _ := X.Dims()
	nl := len(m.coefs_)
	out := acts[nl]

	loss := logLoss(Y, out)
	penalty := 0.0
	for _, W := range m.coefs_ {
		penalty += floats.Dot(W.RawMatrix().Data, W.RawMatrix().Data)
	}
	loss += 0.5 * m.alpha * penalty / float64(n)

	gW := make([]*mat.Dense, nl)
	gb := make([][]float64, nl)

	delta := &mat.Dense{}
	delta.Sub(out, Y)
	deriv := derivatives[m.activation]
	for l := nl - 1; l >= 0; l-- {
		r, c := m.coefs_[l].Dims()
		g := mat.NewDense(r, c, nil)
		g.Mul(acts[l].T(), delta)
		g.Apply(func(i, j int, v float64) float64 {
			return (v + m.alpha*m.coefs_[l].At(i, j)) / float64(n)
		}, g)
		gW[l] = g

		gb[l] = make([]float64, c)
		for j := 0; j < c; j++ {
			gb[l][j] = floats.Sum(mat.Col(nil, j, delta)) / float64(n)
		}

		if l > 0 {
			prev := &mat.Dense{}
			prev.Mul(delta, m.coefs_[l].T())
			a := acts[l]
			prev.Apply(func(i, j int, v float64) float64 { return v * deriv(a.At(i, j)) }, prev)
			delta = prev
		}
	}
	return loss, gW, gb
}

// logLoss is the mean binary or categorical cross-entropy.
func logLoss(Y, P *mat.Dense) float64 {
	n, c := Y.Dims()
	const eps = 1e-10
	s := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < c; j++ {
			p := errors.ClipValue(P.At(i, j), eps, 1-eps)
			y := Y.At(i, j)
			if c == 1 {
				s -= y*math.Log(p) + (1-y)*math.Log(1-p)
			} else if y != 0 {
				s -= y * math.Log(p)
			}
		}
	}
	return s / float64(n)
}

// PredictProba returns class probabilities.
func (m *MLPClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.CheckPredictInput("MLPClassifier", "PredictProba", X); err != nil {
		return nil, err
	}
	out := m.forward(X)[len(m.coefs_)]
	r, c := out.Dims()
	if c > 1 {
		return out, nil
	}
	proba := mat.NewDense(r, 2, nil)
	for i := 0; i < r; i++ {
		p := out.At(i, 0)
		proba.Set(i, 0, 1-p)
		proba.Set(i, 1, p)
	}
	return proba, nil
}

// Predict returns the most probable class.
func (m *MLPClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.CheckPredictInput("MLPClassifier", "Predict", X); err != nil {
		return nil, err
	}
	out := m.forward(X)[len(m.coefs_)]
	r, c := out.Dims()
	labels := make([]float64, r)
	for i := range labels {
		if c == 1 {
			k := 0
			if out.At(i, 0) > 0.5 {
				k = 1
			}
			labels[i] = m.classes_[min(k, len(m.classes_)-1)]
			continue
		}
		labels[i] = m.classes_[floats.MaxIdx(out.RawRowView(i))]
	}
	return model.LabelColumn(labels), nil
}

// Score returns the mean accuracy on the given data.
func (m *MLPClassifier) Score(X, y mat.Matrix) float64 {
	return model.ScoreAccuracy(m, X, y)
}

// Classes returns the sorted labels seen during Fit.
func (m *MLPClassifier) Classes() []float64 { return m.state.Classes() }

// LossCurve returns the training loss after each epoch.
func (m *MLPClassifier) LossCurve() []float64 { return m.lossCurve_ }

// NIter returns the number of epochs run by the last Fit.
func (m *MLPClassifier) NIter() int { return m.nIter_ }

// Coefs returns the weight matrices, input layer first.
func (m *MLPClassifier) Coefs() []*mat.Dense { return m.coefs_ }

// GetParams returns the hyperparameters.
func (m *MLPClassifier) GetParams() map[string]interface{} {
	var batch interface{} = "auto"
	if m.batchSize > 0 {
		batch = m.batchSize
	}
	return map[string]interface{}{
		"hidden_layer_sizes": append([]int(nil), m.hiddenLayerSizes...),
		"activation":         m.activation,
		"solver":             m.solver,
		"alpha":              m.alpha,
		"batch_size":         batch,
		"learning_rate_init": m.learningRateInit,
		"max_iter":           m.maxIter,
		"tol":                m.tol,
		"momentum":           m.momentum,
		"nesterovs_momentum": m.nesterovsMomentum,
		"shuffle":            m.shuffle,
		"n_iter_no_change":   m.nIterNoChange,
		"beta_1":             m.beta1,
		"beta_2":             m.beta2,
		"epsilon":            m.epsilon,
		"random_state":       m.randomState,
	}
}

// SetParams sets hyperparameters by name.
func (m *MLPClassifier) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		var err error
		switch k {
		case "hidden_layer_sizes":
			m.hiddenLayerSizes, err = model.ToIntSlice(k, v)
		case "activation":
			m.activation, err = model.ToString(k, v)
		case "solver":
			m.solver, err = model.ToString(k, v)
		case "alpha":
			m.alpha, err = model.ToFloat64(k, v)
		case "batch_size":
			if s, ok := v.(string); ok && s == "auto" {
				m.batchSize = 0
			} else {
				m.batchSize, err = model.ToInt(k, v)
			}
		case "learning_rate_init":
			m.learningRateInit, err = model.ToFloat64(k, v)
		case "max_iter":
			m.maxIter, err = model.ToInt(k, v)
		case "tol":
			m.tol, err = model.ToFloat64(k, v)
		case "momentum":
			m.momentum, err = model.ToFloat64(k, v)
		case "nesterovs_momentum":
			m.nesterovsMomentum, err = model.ToBool(k, v)
		case "shuffle":
			m.shuffle, err = model.ToBool(k, v)
		case "n_iter_no_change":
			m.nIterNoChange, err = model.ToInt(k, v)
		case "beta_1":
			m.beta1, err = model.ToFloat64(k, v)
		case "beta_2":
			m.beta2, err = model.ToFloat64(k, v)
		case "epsilon":
			m.epsilon, err = model.ToFloat64(k, v)
		case "random_state":
			var seed int
			seed, err = model.ToInt(k, v)
			m.randomState = int64(seed)
		default:
			err = model.UnknownParam("MLPClassifier", k)
		}
		if err != nil {
			return err
		}
	}
	m.state.Reset()
	return nil
}

// Clone returns an unfitted network with the same hyperparameters.
func (m *MLPClassifier) Clone() model.Estimator {
	c := NewMLPClassifier(
		WithHiddenLayerSizes(m.hiddenLayerSizes...),
		WithActivation(m.activation),
		WithSolver(m.solver),
		WithAlpha(m.alpha),
		WithBatchSize(m.batchSize),
		WithLearningRateInit(m.learningRateInit),
		WithMaxIter(m.maxIter),
		WithTol(m.tol),
		WithMomentum(m.momentum),
		WithNesterovsMomentum(m.nesterovsMomentum),
		WithShuffle(m.shuffle),
		WithNIterNoChange(m.nIterNoChange),
		WithRandomState(m.randomState),
	)
	c.beta1, c.beta2, c.epsilon = m.beta1, m.beta2, m.epsilon
	return c
}
