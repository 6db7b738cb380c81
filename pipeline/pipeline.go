// Package pipeline wires the stages of the housing price experiment:
// load, split, impute, drop categorical columns, fit a random forest and
// score it on both sides of the split.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/housereg/core/model"
	"github.com/YuminosukeSato/housereg/dataset"
	"github.com/YuminosukeSato/housereg/metrics"
	"github.com/YuminosukeSato/housereg/pkg/errors"
	"github.com/YuminosukeSato/housereg/pkg/log"
	"github.com/YuminosukeSato/housereg/preprocessing"
	"github.com/YuminosukeSato/housereg/sklearn/impute"
	"github.com/YuminosukeSato/housereg/sklearn/model_selection"
)

// Scores are the error measures of one set of predictions. MAPE is a
// fraction (0.1 means 10%).
type Scores struct {
	MAE  float64 `yaml:"mae"`
	MAPE float64 `yaml:"mape"`
	RMSE float64 `yaml:"rmse"`
	R2   float64 `yaml:"r2"`
}

// Evaluate computes all Scores for a prediction vector.
func Evaluate(yTrue, yPred *mat.VecDense) (Scores, error) {
	var s Scores
	var err error
	if s.MAE, err = metrics.MAE(yTrue, yPred); err != nil {
		return s, err
	}
	if s.MAPE, err = metrics.MAPE(yTrue, yPred); err != nil {
		return s, err
	}
	if s.RMSE, err = metrics.RMSE(yTrue, yPred); err != nil {
		return s, err
	}
	if s.R2, err = metrics.R2Score(yTrue, yPred); err != nil {
		return s, err
	}
	return s, nil
}

// Report is the result of a run.
type Report struct {
	RunID              string               `yaml:"run_id"`
	Model              string               `yaml:"model"`
	TrainRows          int                  `yaml:"train_rows"`
	TestRows           int                  `yaml:"test_rows"`
	Features           []string             `yaml:"features"`
	DroppedColumns     []string             `yaml:"dropped_columns"`
	Imputer            *impute.ImputerState `yaml:"imputer"`
	InSample           Scores               `yaml:"in_sample"`
	OutSample          Scores               `yaml:"out_sample"`
	FeatureImportances map[string]float64   `yaml:"feature_importances,omitempty"`
	Coefficients       map[string]float64   `yaml:"coefficients,omitempty"`

	// Final feature tables handed to the model.
	XTrain *dataset.Table `yaml:"-"`
	XTest  *dataset.Table `yaml:"-"`
}

// WriteSummary prints the two result lines: in-sample then out-of-sample
// MAE and MAPE, each with two decimals.
func (r *Report) WriteSummary(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "In-sample: Mean Absolute Error: %.2f\t Mean Absolute Percentage Error: %.2f\n",
		r.InSample.MAE, r.InSample.MAPE); err != nil {
		return errors.Wrap(err, "write summary")
	}
	if _, err := fmt.Fprintf(w, "Out-sample: Mean Absolute Error: %.2f\t Mean Absolute Percentage Error: %.2f\n",
		r.OutSample.MAE, r.OutSample.MAPE); err != nil {
		return errors.Wrap(err, "write summary")
	}
	return nil
}

// WriteYAML encodes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return errors.Wrap(err, "encode report")
	}
	return errors.Wrap(enc.Close(), "encode report")
}

// Save writes the report as YAML to path.
func (r *Report) Save(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.NewIOError("Report.Save", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.NewIOError("Report.Save", path, cerr)
		}
	}()
	return r.WriteYAML(f)
}

// Run loads cfg.DataPath and executes the experiment, writing the summary
// lines to w.
func Run(ctx context.Context, cfg Config, w io.Writer) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	raw, err := dataset.LoadCSV(ctx, cfg.DataPath)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, cfg, raw, w)
}

// Execute runs every stage after loading on an already loaded table. Any
// error aborts the run and no summary is written.
func Execute(ctx context.Context, cfg Config, raw *dataset.Table, w io.Writer) (*Report, error) {
	if err := cfg.validateSettings(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger := log.GetLoggerWithName("pipeline").With(log.RunIDKey, runID)
	start := time.Now()

	report, err := execute(ctx, cfg, raw, logger)
	if err != nil {
		logger.Error("run failed", log.ErrAttr(err)...)
		return nil, err
	}
	report.RunID = runID

	if cfg.ReportPath != "" {
		if err := report.Save(cfg.ReportPath); err != nil {
			logger.Error("run failed", log.ErrAttr(err)...)
			return nil, err
		}
		logger.Info("Report written", "path", cfg.ReportPath)
	}
	if err := report.WriteSummary(w); err != nil {
		return nil, err
	}
	logger.Info("Run completed", log.DurationMsKey, time.Since(start).Milliseconds())
	return report, nil
}

func execute(ctx context.Context, cfg Config, raw *dataset.Table, logger log.Logger) (*Report, error) {
	// Features and label
	X, err := raw.Drop(cfg.LabelColumn)
	if err != nil {
		return nil, err
	}
	y, err := raw.Labels(cfg.LabelColumn)
	if err != nil {
		return nil, err
	}

	split, err := model_selection.TrainTestSplit(X, y,
		model_selection.WithTestSize(cfg.TestSize),
		model_selection.WithRandomState(cfg.SplitSeed),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("Data split",
		log.OperationKey, log.OperationSplit,
		log.TestSizeKey, cfg.TestSize,
		log.RandomSeedKey, cfg.SplitSeed,
		"train_rows", split.XTrain.NumRows(),
		"test_rows", split.XTest.NumRows(),
	)

	// Imputation statistics come from the training rows only.
	strategy, err := impute.ParseStrategy(cfg.ImputeStrategy, cfg.ImputeFillValue)
	if err != nil {
		return nil, err
	}
	imputer := impute.NewSimpleImputer(impute.WithStrategy(strategy))
	state, trainCols, err := imputer.FitTransform(split.XTrain, cfg.ImputeColumns)
	if err != nil {
		return nil, err
	}
	testCols, err := imputer.Transform(split.XTest, cfg.ImputeColumns)
	if err != nil {
		return nil, err
	}
	xTrain, err := split.XTrain.WithColumns(trainCols...)
	if err != nil {
		return nil, err
	}
	xTest, err := split.XTest.WithColumns(testCols...)
	if err != nil {
		return nil, err
	}

	dropped := preprocessing.CategoricalColumns(xTrain)
	xTrain = preprocessing.RemoveCategorical(xTrain)
	xTest = preprocessing.RemoveCategorical(xTest)
	logger.Info("Preprocessing completed",
		log.PhaseKey, log.PhasePreprocessing,
		log.DroppedColumnsKey, dropped,
		log.ColumnsKey, xTrain.Names(),
	)

	m, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	if err := m.Fit(ctx, xTrain, split.YTrain); err != nil {
		return nil, err
	}

	trainPred, err := m.Predict(xTrain)
	if err != nil {
		return nil, err
	}
	testPred, err := m.Predict(xTest)
	if err != nil {
		return nil, err
	}

	inSample, err := Evaluate(split.YTrain, trainPred)
	if err != nil {
		return nil, err
	}
	outSample, err := Evaluate(split.YTest, testPred)
	if err != nil {
		return nil, err
	}
	logger.Info("Evaluation completed",
		log.PhaseKey, log.PhaseEvaluation,
		log.OperationKey, log.OperationScore,
		log.MAEKey, outSample.MAE,
		log.MAPEKey, outSample.MAPE,
		log.RMSEKey, outSample.RMSE,
		log.R2ScoreKey, outSample.R2,
	)

	report := &Report{
		Model:          cfg.Model,
		TrainRows:      xTrain.NumRows(),
		TestRows:       xTest.NumRows(),
		Features:       xTrain.Names(),
		DroppedColumns: dropped,
		Imputer:        state,
		InSample:       inSample,
		OutSample:      outSample,
		XTrain:         xTrain,
		XTest:          xTest,
	}
	switch fitted := m.(type) {
	case *ForestModel:
		if report.FeatureImportances, err = fitted.FeatureImportances(); err != nil {
			return nil, err
		}
	case *LinearModel:
		if report.Coefficients, err = fitted.Coefficients(); err != nil {
			return nil, err
		}
	}

	if cfg.PlotPath != "" {
		if err := SavePredictionPlot(cfg.PlotPath, split.YTrain, trainPred, split.YTest, testPred); err != nil {
			return nil, err
		}
		logger.Info("Plot written", "path", cfg.PlotPath)
	}
	if owner, ok := m.(interface{ Estimator() interface{} }); ok && cfg.ModelPath != "" {
		if err := model.SaveModel(owner.Estimator(), cfg.ModelPath); err != nil {
			return nil, err
		}
		logger.Info("Model saved", "path", cfg.ModelPath)
	}

	return report, nil
}
