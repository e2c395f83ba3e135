// Package modelsearch runs cross-validated hyperparameter searches over a
// fixed set of classification pipelines and records how each one performs.
//
// Every pipeline pairs a feature scaler with one classifier: logistic
// regression, random forest, support vector machine or multilayer
// perceptron. Each pipeline gets its own parameter grid. The data is split
// into a training and a held-out part, each grid is searched with
// stratified k-fold cross-validation on the training part, and the refitted
// best candidate is evaluated on the held-out part.
//
// # Features
//
//   - scikit-learn-like estimators: Fit/Predict, GetParams/SetParams, Clone
//   - Pipelines with step__param routing
//   - GridSearchCV with KFold/StratifiedKFold and n_jobs workers
//   - Per-model result files, per-class outcome counts and a summary stream
//   - A separate row preprocessor: mean imputation, db1 wavelet, describe
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "os"
//
//	    "github.com/YuminosukeSato/modelsearch/dataset"
//	    "github.com/YuminosukeSato/modelsearch/experiment"
//	)
//
//	func main() {
//	    ds, err := dataset.LoadCSV("iris.csv", dataset.DefaultOptions())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    cfg := experiment.DefaultConfig()
//	    cfg.ResultsDir = "results"
//	    runner, err := experiment.NewRunner(cfg, experiment.WithClassNames(ds.Classes))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // writes results/models/LR_iris.csv, results/counts/count_LR_iris.csv, ...
//	    if _, err := runner.RunPipeline(context.Background(), ds.X, ds.Y, cfg.CV, os.Stdout, "all", "iris"); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// The same flow is available from the command line:
//
//	gridsearch run --data iris.csv --results results --jobs -1
//	gridsearch preprocess --data signals.csv --out stats.csv
//
// # Packages
//
//   - experiment: pipelines, grids, search runner, result files, report
//   - sklearn/model_selection: TrainTestSplit, KFold, StratifiedKFold, GridSearchCV
//   - sklearn/pipeline: named-step Pipeline
//   - sklearn/linear_model: LogisticRegression
//   - sklearn/tree, sklearn/ensemble: DecisionTreeClassifier, RandomForestClassifier
//   - sklearn/svm: SVC
//   - sklearn/neural_network: MLPClassifier
//   - preprocessing: scalers, SimpleImputer, DWT, Describe, Preprocess
//   - metrics: accuracy, MSE, per-class counts
//   - dataset: CSV loading
//   - core/model, core/parallel: interfaces, parameter helpers, worker fan-out
//   - pkg/errors, pkg/log: typed errors and warnings, structured logging
//
// # License
//
// modelsearch is released under the MIT License.
package modelsearch
