package pipeline

import (
	"context"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/housereg/core/model"
	"github.com/YuminosukeSato/housereg/dataset"
	"github.com/YuminosukeSato/housereg/pkg/errors"
	"github.com/YuminosukeSato/housereg/sklearn/ensemble"
	"github.com/YuminosukeSato/housereg/sklearn/linear_model"
)

// Model names accepted by Config.Model.
const (
	ModelRandomForest     = "random_forest"
	ModelLinearRegression = "linear_regression"
)

// TableModel is a regressor that consumes feature tables directly. The
// driver depends only on this interface, so any model with this shape can be
// substituted for the forest.
type TableModel interface {
	// Fit trains on an all-numeric table.
	Fit(ctx context.Context, X *dataset.Table, y *mat.VecDense) error
	// Predict returns one prediction per row of X. X must carry the columns
	// seen by Fit; they are matched by name.
	Predict(X *dataset.Table) (*mat.VecDense, error)
	// Columns returns the feature names seen by Fit, in fit order.
	Columns() []string
}

// NewModel builds the TableModel named by cfg.Model.
func NewModel(cfg Config) (TableModel, error) {
	switch cfg.Model {
	case ModelRandomForest, "":
		return NewForestModel(cfg.ModelSeed,
			ensemble.WithNEstimators(cfg.NEstimators),
			ensemble.WithMaxDepth(cfg.MaxDepth),
			ensemble.WithNJobs(cfg.NJobs),
		), nil
	case ModelLinearRegression:
		return NewLinearModel(), nil
	}
	return nil, errors.NewValidationError("model", "must be random_forest or linear_regression", cfg.Model)
}

// ForestModel adapts a RandomForestRegressor to TableModel. The fitted
// column names live on the forest, so they are saved and restored with it.
type ForestModel struct {
	rf *ensemble.RandomForestRegressor
}

// NewForestModel creates a forest seeded with seed. opts may override any
// other hyperparameter.
func NewForestModel(seed int64, opts ...ensemble.Option) *ForestModel {
	all := append([]ensemble.Option{ensemble.WithRandomState(seed)}, opts...)
	return &ForestModel{rf: ensemble.NewRandomForestRegressor(all...)}
}

// Fit implements TableModel.
func (m *ForestModel) Fit(ctx context.Context, X *dataset.Table, y *mat.VecDense) error {
	features, err := fitMatrix("ForestModel.Fit", X, y)
	if err != nil {
		return err
	}
	if err := m.rf.FitContext(ctx, features, y); err != nil {
		return err
	}
	return m.rf.SetFeatureNames(X.Names())
}

// Predict implements TableModel.
func (m *ForestModel) Predict(X *dataset.Table) (*mat.VecDense, error) {
	features, err := predictMatrix("ForestModel", X, m.rf.FeatureNames())
	if err != nil {
		return nil, err
	}
	return m.rf.PredictVec(features)
}

// Columns implements TableModel.
func (m *ForestModel) Columns() []string { return m.rf.FeatureNames() }

// FeatureImportances maps each fitted column to its importance.
func (m *ForestModel) FeatureImportances() (map[string]float64, error) {
	imp, err := m.rf.FeatureImportances()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(imp))
	for i, name := range m.rf.FeatureNames() {
		out[name] = imp[i]
	}
	return out, nil
}

// Estimator returns the value saved by model.SaveModel.
func (m *ForestModel) Estimator() interface{} { return m.rf }

// LinearModel adapts an ordinary least squares LinearRegression to
// TableModel. It serves as a baseline for the forest.
type LinearModel struct {
	lr *linear_model.LinearRegression
}

// NewLinearModel creates an unfitted LinearModel with an intercept.
func NewLinearModel(opts ...linear_model.Option) *LinearModel {
	return &LinearModel{lr: linear_model.NewLinearRegression(opts...)}
}

// Fit implements TableModel. The context is only checked before fitting.
func (m *LinearModel) Fit(ctx context.Context, X *dataset.Table, y *mat.VecDense) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	features, err := fitMatrix("LinearModel.Fit", X, y)
	if err != nil {
		return err
	}
	if err := m.lr.Fit(features, y); err != nil {
		return err
	}
	return m.lr.SetFeatureNames(X.Names())
}

// Predict implements TableModel.
func (m *LinearModel) Predict(X *dataset.Table) (*mat.VecDense, error) {
	features, err := predictMatrix("LinearModel", X, m.lr.FeatureNames())
	if err != nil {
		return nil, err
	}
	return m.lr.PredictVec(features)
}

// Columns implements TableModel.
func (m *LinearModel) Columns() []string { return m.lr.FeatureNames() }

// Coefficients maps each fitted column to its weight.
func (m *LinearModel) Coefficients() (map[string]float64, error) {
	if !m.lr.IsFitted() {
		return nil, errors.NewNotFittedError("LinearModel", "Coefficients")
	}
	coef := m.lr.Coef()
	out := make(map[string]float64, len(coef))
	for i, name := range m.lr.FeatureNames() {
		out[name] = coef[i]
	}
	return out, nil
}

// Estimator returns the value saved by model.SaveModel.
func (m *LinearModel) Estimator() interface{} { return m.lr }

// LoadModel restores a TableModel written to cfg.ModelPath by a run with the
// given model name. The fitted column names are restored with it, so Predict
// checks the column set as it did before saving.
func LoadModel(path, name string) (TableModel, error) {
	var (
		m   TableModel
		est interface{}
	)
	switch name {
	case ModelRandomForest, "":
		fm := NewForestModel(0)
		m, est = fm, fm.rf
	case ModelLinearRegression:
		lm := NewLinearModel()
		m, est = lm, lm.lr
	default:
		return nil, errors.NewValidationError("model", "must be random_forest or linear_regression", name)
	}
	if err := model.LoadModel(est, path); err != nil {
		return nil, err
	}
	if m.Columns() == nil {
		return nil, errors.NewParseError("LoadModel", 0, "model file has no fitted column names", nil)
	}
	return m, nil
}

func fitMatrix(op string, X *dataset.Table, y *mat.VecDense) (mat.Matrix, error) {
	if X == nil || y == nil {
		return nil, errors.NewValueError(op, "features and labels must not be nil")
	}
	if X.NumRows() != y.Len() {
		return nil, errors.NewDimensionError(op, X.NumRows(), y.Len(), 0)
	}
	return X.Matrix()
}

// predictMatrix reorders X to the fitted column order.
func predictMatrix(name string, X *dataset.Table, fitted []string) (mat.Matrix, error) {
	if fitted == nil {
		return nil, errors.NewNotFittedError(name, "Predict")
	}
	op := name + ".Predict"
	if X == nil {
		return nil, errors.NewValueError(op, "features must not be nil")
	}
	if !sameColumns(X.Names(), fitted) {
		return nil, errors.NewValueErrorf(op,
			"columns [%s] do not match fitted columns [%s]",
			strings.Join(X.Names(), ", "), strings.Join(fitted, ", "))
	}
	ordered, err := X.Select(fitted...)
	if err != nil {
		return nil, err
	}
	return ordered.Matrix()
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, n := range a {
		set[n] = struct{}{}
	}
	for _, n := range b {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}
