// This file contains the attribute keys shared by every component of the
// pipeline. Keys follow a hierarchical "group.name" convention so logs can be
// filtered by prefix.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of estimator or transformer.
	// Examples: "RandomForestRegressor", "SimpleImputer"
	ModelNameKey = "model.name"

	// EstimatorIDKey provides a unique identifier for a specific model instance.
	EstimatorIDKey = "estimator.id"

	// RunIDKey identifies one pipeline run.
	RunIDKey = "run.id"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	// Examples: "dataset", "impute", "ensemble", "pipeline"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the pipeline.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns).
	FeaturesKey = "data.features"

	// ColumnsKey lists column names.
	ColumnsKey = "data.columns"

	// DroppedColumnsKey lists columns removed by a projection.
	DroppedColumnsKey = "data.dropped_columns"

	// MissingKey counts missing values replaced by imputation.
	MissingKey = "data.missing"

	// SourceKey is the data locator (path or URI).
	SourceKey = "data.source"

	// TestSizeKey records the held-out fraction.
	TestSizeKey = "data.test_size"
)

// Performance and Evaluation
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// MAEKey records mean absolute error.
	MAEKey = "metrics.mae"

	// MAPEKey records mean absolute percentage error (fraction).
	MAPEKey = "metrics.mape"

	// RMSEKey records root mean squared error.
	RMSEKey = "metrics.rmse"

	// R2ScoreKey records the coefficient of determination.
	R2ScoreKey = "metrics.r2_score"

	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// StrategyKey records the imputation strategy.
	StrategyKey = "config.strategy"

	// WorkersKey records the number of parallel workers.
	WorkersKey = "config.n_jobs"
)

// Error Context
const (
	// ErrAttrKey is the key under which errors are logged.
	ErrAttrKey = "error"

	// StacktraceAttrKey carries the cockroachdb/errors stack trace of ErrAttrKey.
	StacktraceAttrKey = "stacktrace"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"
)

// Standard attribute values.
const (
	OperationLoad         = "load"
	OperationSplit        = "split"
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"

	PhasePreprocessing = "preprocessing"
	PhaseTraining      = "training"
	PhaseInference     = "inference"
	PhaseEvaluation    = "evaluation"
)
