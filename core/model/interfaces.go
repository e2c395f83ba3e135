// Package model defines the estimator contracts shared by the classifiers,
// the preprocessing steps, the pipeline and the grid search.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Classifier is an Estimator that predicts discrete labels.
type Classifier interface {
	Estimator

	// Classes returns the sorted distinct labels seen during fitting.
	Classes() []float64
}

// ProbabilisticClassifier can also return per-class probabilities, one
// column per entry of Classes().
type ProbabilisticClassifier interface {
	Classifier

	// PredictProba returns probability estimates for each class.
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// DecisionFunctioner exposes raw decision values.
type DecisionFunctioner interface {
	DecisionFunction(X mat.Matrix) (mat.Matrix, error)
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters. Unknown names are rejected.
	SetParams(params map[string]interface{}) error
}
