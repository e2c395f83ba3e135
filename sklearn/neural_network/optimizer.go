package neural_network

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// optimizer applies one gradient step to the weights and biases in place.
type optimizer interface {
	step(W []*mat.Dense, b [][]float64, gW []*mat.Dense, gb [][]float64)
}

func (m *MLPClassifier) newOptimizer() optimizer {
	if m.solver == "sgd" {
		return &sgd{lr: m.learningRateInit, momentum: m.momentum, nesterov: m.nesterovsMomentum}
	}
	return &adam{lr: m.learningRateInit, beta1: m.beta1, beta2: m.beta2, eps: m.epsilon}
}

// params flattens weights and biases into one list of slices so both
// optimizers can treat them uniformly.
func params(W []*mat.Dense, b [][]float64) [][]float64 {
	out := make([][]float64, 0, 2*len(W))
	for _, w := range W {
		out = append(out, w.RawMatrix().Data)
	}
	return append(out, b...)
}

func zerosLike(ps [][]float64) [][]float64 {
	out := make([][]float64, len(ps))
	for i, p := range ps {
		out[i] = make([]float64, len(p))
	}
	return out
}

// sgd is stochastic gradient descent with (Nesterov) momentum and a
// constant learning rate.
type sgd struct {
	lr, momentum float64
	nesterov     bool
	velocity     [][]float64
}

func (o *sgd) step(W []*mat.Dense, b [][]float64, gW []*mat.Dense, gb [][]float64) {
	ps, gs := params(W, b), params(gW, gb)
	if o.velocity == nil {
		o.velocity = zerosLike(ps)
	}
	for k, p := range ps {
		v, g := o.velocity[k], gs[k]
		for i := range p {
			v[i] = o.momentum*v[i] - o.lr*g[i]
			if o.nesterov {
				p[i] += o.momentum*v[i] - o.lr*g[i]
			} else {
				p[i] += v[i]
			}
		}
	}
}

// adam is the optimiser of Kingma and Ba (2014).
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	m, v                  [][]float64
}

func (o *adam) step(W []*mat.Dense, b [][]float64, gW []*mat.Dense, gb [][]float64) {
	ps, gs := params(W, b), params(gW, gb)
	if o.m == nil {
		o.m, o.v = zerosLike(ps), zerosLike(ps)
	}
	o.t++
	lr := o.lr * math.Sqrt(1-math.Pow(o.beta2, float64(o.t))) / (1 - math.Pow(o.beta1, float64(o.t)))
	for k, p := range ps {
		m, v, g := o.m[k], o.v[k], gs[k]
		for i := range p {
			m[i] = o.beta1*m[i] + (1-o.beta1)*g[i]
			v[i] = o.beta2*v[i] + (1-o.beta2)*g[i]*g[i]
			p[i] -= lr * m[i] / (math.Sqrt(v[i]) + o.eps)
		}
	}
}
