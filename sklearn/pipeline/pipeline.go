// Package pipeline chains preprocessing transformers and a final estimator
// into a single estimator whose parameters are addressed as step__param.
package pipeline

import (
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// Step is a named pipeline stage. Every step but the last must be a
// model.TunableTransformer; the last must be a model.Estimator.
type Step struct {
	Name string
	Obj  interface{}
}

type namedTransformer struct {
	name string
	tr   model.TunableTransformer
}

// Pipeline applies its transformers in order and then the final estimator.
type Pipeline struct {
	transforms []namedTransformer
	finalName  string
	final      model.Estimator
	fitted     bool
}

// NewPipeline validates the steps and builds a Pipeline.
func NewPipeline(steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, errors.NewValidationError("steps", "pipeline needs at least one step", 0)
	}
	seen := make(map[string]bool, len(steps))
	p := &Pipeline{}
	for i, s := range steps {
		if s.Name == "" || strings.Contains(s.Name, "__") {
			return nil, errors.NewValidationError("steps", "step names must be non-empty and must not contain '__'", s.Name)
		}
		if seen[s.Name] {
			return nil, errors.NewValidationError("steps", "duplicate step name", s.Name)
		}
		seen[s.Name] = true

		if i == len(steps)-1 {
			est, ok := s.Obj.(model.Estimator)
			if !ok {
				return nil, errors.NewValidationError("steps", "last step must be an estimator", s.Name)
			}
			p.finalName, p.final = s.Name, est
			continue
		}
		tr, ok := s.Obj.(model.TunableTransformer)
		if !ok {
			return nil, errors.NewValidationError("steps", "intermediate step must be a transformer", s.Name)
		}
		p.transforms = append(p.transforms, namedTransformer{name: s.Name, tr: tr})
	}
	return p, nil
}

// MustPipeline is NewPipeline that panics on invalid steps.
func MustPipeline(steps ...Step) *Pipeline {
	p, err := NewPipeline(steps...)
	if err != nil {
		panic(err)
	}
	return p
}

// Fit fits each transformer on the output of the previous one and then the
// final estimator. A panicking step is reported as a *errors.PanicError.
func (p *Pipeline) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "Pipeline.Fit")
	p.fitted = false
	Xt := X
	for _, t := range p.transforms {
		out, err := t.tr.FitTransform(Xt)
		if err != nil {
			return errors.Wrapf(err, "pipeline step %q", t.name)
		}
		Xt = out
	}
	if err := p.final.Fit(Xt, y); err != nil {
		return errors.Wrapf(err, "pipeline step %q", p.finalName)
	}
	p.fitted = true
	return nil
}

func (p *Pipeline) transform(method string, X mat.Matrix) (mat.Matrix, error) {
	if !p.fitted {
		return nil, errors.NewNotFittedError("Pipeline", method)
	}
	Xt := X
	for _, t := range p.transforms {
		out, err := t.tr.Transform(Xt)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline step %q", t.name)
		}
		Xt = out
	}
	return Xt, nil
}

// Transform applies the fitted transformers only.
func (p *Pipeline) Transform(X mat.Matrix) (mat.Matrix, error) {
	return p.transform("Transform", X)
}

// Predict transforms X and predicts with the final estimator.
func (p *Pipeline) Predict(X mat.Matrix) (mat.Matrix, error) {
	Xt, err := p.transform("Predict", X)
	if err != nil {
		return nil, err
	}
	return p.final.Predict(Xt)
}

// PredictProba transforms X and returns the final estimator's class
// probabilities.
func (p *Pipeline) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	pc, ok := p.final.(model.ProbabilisticClassifier)
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotImplemented, "%s has no PredictProba", p.finalName)
	}
	Xt, err := p.transform("PredictProba", X)
	if err != nil {
		return nil, err
	}
	return pc.PredictProba(Xt)
}

// Score returns the mean accuracy of Predict on X.
func (p *Pipeline) Score(X, y mat.Matrix) float64 {
	return model.ScoreAccuracy(p, X, y)
}

// Classes returns the final estimator's classes, or nil when it is not a
// classifier.
func (p *Pipeline) Classes() []float64 {
	if c, ok := p.final.(model.Classifier); ok {
		return c.Classes()
	}
	return nil
}

// Steps returns the step names in order.
func (p *Pipeline) Steps() []string {
	names := make([]string, 0, len(p.transforms)+1)
	for _, t := range p.transforms {
		names = append(names, t.name)
	}
	return append(names, p.finalName)
}

// NamedStep returns the step called name.
func (p *Pipeline) NamedStep(name string) (interface{}, bool) {
	if name == p.finalName {
		return p.final, true
	}
	for _, t := range p.transforms {
		if t.name == name {
			return t.tr, true
		}
	}
	return nil, false
}

// FinalEstimator returns the last step.
func (p *Pipeline) FinalEstimator() model.Estimator { return p.final }

// GetParams returns every step's parameters as step__param.
func (p *Pipeline) GetParams() map[string]interface{} {
	out := make(map[string]interface{})
	add := func(step string, params map[string]interface{}) {
		for k, v := range params {
			out[step+"__"+k] = v
		}
	}
	for _, t := range p.transforms {
		add(t.name, t.tr.GetParams())
	}
	add(p.finalName, p.final.GetParams())
	return out
}

// SetParams routes each step__param key to its step.
func (p *Pipeline) SetParams(params map[string]interface{}) error {
	byStep := make(map[string]map[string]interface{})
	for key, v := range params {
		step, param, ok := strings.Cut(key, "__")
		if !ok || param == "" {
			return errors.NewValidationError(key, "pipeline parameters must be named step__param", v)
		}
		if _, found := p.NamedStep(step); !found {
			return errors.NewValidationError(key, "no pipeline step named "+step, v)
		}
		if byStep[step] == nil {
			byStep[step] = make(map[string]interface{})
		}
		byStep[step][param] = v
	}
	for step, sp := range byStep {
		obj, _ := p.NamedStep(step)
		if err := obj.(model.ParameterSetter).SetParams(sp); err != nil {
			return errors.Wrapf(err, "pipeline step %q", step)
		}
	}
	p.fitted = false
	return nil
}

// Clone returns an unfitted pipeline with cloned steps.
func (p *Pipeline) Clone() model.Estimator {
	c := &Pipeline{finalName: p.finalName, final: p.final.Clone()}
	for _, t := range p.transforms {
		c.transforms = append(c.transforms, namedTransformer{name: t.name, tr: t.tr.CloneTransformer()})
	}
	return c
}
