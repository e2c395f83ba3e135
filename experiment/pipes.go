// Package experiment runs the model search: it pairs a feature scaler with
// each classifier, grid-searches their hyperparameters with
// cross-validation and writes per-model score and outcome files.
package experiment

import (
	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
	"github.com/YuminosukeSato/modelsearch/preprocessing"
	"github.com/YuminosukeSato/modelsearch/sklearn/ensemble"
	"github.com/YuminosukeSato/modelsearch/sklearn/linear_model"
	"github.com/YuminosukeSato/modelsearch/sklearn/model_selection"
	"github.com/YuminosukeSato/modelsearch/sklearn/neural_network"
	"github.com/YuminosukeSato/modelsearch/sklearn/pipeline"
	"github.com/YuminosukeSato/modelsearch/sklearn/svm"
)

// modelKeys is the fixed search order.
var modelKeys = []string{"lr", "rf", "svm", "mlp"}

// displayNames maps a model key to the name used in file names and the
// summary stream.
var displayNames = map[string]string{
	"lr":  "LR",
	"rf":  "RF",
	"svm": "SVM",
	"mlp": "MLP",
}

// GetPipes returns the four pipelines, each a StandardScaler ("scl")
// followed by a classifier ("clf") seeded with randomState.
func GetPipes(randomState int64) map[string]*pipeline.Pipeline {
	pipes, err := NewPipes("standard", randomState)
	if err != nil {
		panic(err)
	}
	return pipes
}

// NewPipes is GetPipes with a choice of scaler: "standard" or "minmax".
func NewPipes(scaler string, randomState int64) (map[string]*pipeline.Pipeline, error) {
	classifiers := map[string]model.Estimator{
		"lr":  linear_model.NewLogisticRegression(linear_model.WithLRRandomState(randomState)),
		"rf":  ensemble.NewRandomForestClassifier(ensemble.WithRandomState(randomState)),
		"svm": svm.NewSVC(svm.WithRandomState(randomState)),
		"mlp": neural_network.NewMLPClassifier(neural_network.WithRandomState(randomState)),
	}

	pipes := make(map[string]*pipeline.Pipeline, len(classifiers))
	for _, key := range modelKeys {
		scl, err := newScaler(scaler)
		if err != nil {
			return nil, err
		}
		p, err := pipeline.NewPipeline(
			pipeline.Step{Name: "scl", Obj: scl},
			pipeline.Step{Name: "clf", Obj: classifiers[key]},
		)
		if err != nil {
			return nil, errors.Wrapf(err, "build %s pipeline", key)
		}
		pipes[key] = p
	}
	return pipes, nil
}

func newScaler(name string) (model.TunableTransformer, error) {
	switch name {
	case "", "standard":
		return preprocessing.NewStandardScalerDefault(), nil
	case "minmax":
		return preprocessing.NewMinMaxScalerDefault(), nil
	}
	return nil, errors.NewValidationError("scaler", "must be standard or minmax", name)
}

// GetGrids returns the hyperparameter grid of each pipeline, addressed
// through the "clf" step.
func GetGrids() map[string]model_selection.ParamGrid {
	return map[string]model_selection.ParamGrid{
		"lr": {
			"clf__penalty": {"l2"},
			"clf__C":       {0.3, 0.5, 1},
			"clf__solver":  {"lbfgs", "newton-cg"},
		},
		"rf": {
			"clf__criterion":    {"gini", "entropy"},
			"clf__n_estimators": {10, 20, 30},
		},
		"svm": {
			"clf__kernel": {"sigmoid", "rbf"},
			"clf__C":      {0.3, 0.5, 1},
		},
		"mlp": {
			"clf__activation":         {"logistic", "relu"},
			"clf__solver":             {"sgd", "adam"},
			"clf__hidden_layer_sizes": {[]int{10}, []int{10, 5}},
		},
	}
}

// GeneratePipeline builds one grid search per model in the order LR, RF,
// SVM, MLP, scoring accuracy with cv folds. Only the RF and SVM searches
// fit candidates on jobs workers. The returned map gives each search's
// display name by position.
func GeneratePipeline(cv, jobs int, randomState int64) ([]*model_selection.GridSearchCV, map[int]string) {
	return generate(GetPipes(randomState), GetGrids(), cv, jobs)
}

func generate(pipes map[string]*pipeline.Pipeline, grids map[string]model_selection.ParamGrid,
	cv, jobs int, extra ...model_selection.Option) ([]*model_selection.GridSearchCV, map[int]string) {
	searches := make([]*model_selection.GridSearchCV, 0, len(modelKeys))
	names := make(map[int]string, len(modelKeys))
	for i, key := range modelKeys {
		nJobs := 1
		if key == "rf" || key == "svm" {
			nJobs = jobs
		}
		opts := append([]model_selection.Option{
			model_selection.WithCV(cv),
			model_selection.WithScoring("accuracy"),
			model_selection.WithNJobs(nJobs),
		}, extra...)
		searches = append(searches, model_selection.NewGridSearchCV(
			pipes[key], []model_selection.ParamGrid{grids[key]}, opts...))
		names[i] = displayNames[key]
	}
	return searches, names
}
