// Package log defines standard attribute keys for model search operations.
//
// The keys follow a hierarchical naming convention (e.g. "model.name",
// "search.candidate") so that logs from the search runner, the grid search
// and the individual estimators can be filtered together.
package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of machine learning model.
	// Examples: "LR", "RandomForestClassifier", "StandardScaler"
	ModelNameKey = "model.name"

	// OperationKey specifies the machine learning operation being performed.
	// Standard values: "fit", "transform", "score", "search"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is performing the operation.
	// Examples: "experiment", "model_selection", "preprocessing"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// PathKey records an input or output file path.
	PathKey = "data.path"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records model accuracy for evaluation operations.
	AccuracyKey = "metrics.accuracy"

	// MSEKey records the mean squared error between true and predicted labels.
	MSEKey = "metrics.mse"
)

// Search Context
const (
	// CandidateKey is the index of a parameter combination in the grid.
	CandidateKey = "search.candidate"

	// CandidatesKey is the total number of parameter combinations.
	CandidatesKey = "search.candidates"

	// FoldKey is the index of a cross-validation fold.
	FoldKey = "search.fold"

	// FoldsKey is the number of cross-validation folds.
	FoldsKey = "search.folds"

	// ParamsKey carries a candidate's parameter map.
	ParamsKey = "search.params"

	// CVMeanScoreKey is the mean cross-validation score of a candidate.
	CVMeanScoreKey = "search.cv_mean"

	// CVStdScoreKey is the standard deviation of the cross-validation score.
	CVStdScoreKey = "search.cv_std"

	// JobsKey is the number of workers used for a search.
	JobsKey = "search.n_jobs"
)

// Error and Warning Context
const (
	// ErrorCodeKey carries one of the Error* codes, see ErrorCode.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"
)

// Configuration
const (
	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute value constants for common operations.
const (
	// Standard ML operations
	OperationFit       = "fit"
	OperationTransform = "transform"
	OperationScore     = "score"
	OperationSearch    = "search"

	// Standard ML phases
	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhasePreprocessing = "preprocessing"

	// Standard error codes
	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorConvergence       = "CONVERGENCE_FAILURE"
)
