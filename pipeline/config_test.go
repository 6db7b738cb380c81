package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/housereg/core/model"
	"github.com/YuminosukeSato/housereg/dataset"
	"github.com/YuminosukeSato/housereg/pkg/errors"
	"github.com/YuminosukeSato/housereg/sklearn/ensemble"
	"github.com/YuminosukeSato/housereg/sklearn/linear_model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "price", cfg.LabelColumn)
	assert.Equal(t, []string{"area"}, cfg.ImputeColumns)
	assert.Equal(t, 0.2, cfg.TestSize)
	assert.Equal(t, int64(0), cfg.SplitSeed)
	assert.Equal(t, int64(0), cfg.ModelSeed)
	assert.Equal(t, ModelRandomForest, cfg.Model)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeFile(t, "run.yaml", `
data_path: /data/housing.csv
test_size: 0.25
n_estimators: 50
impute_strategy: median
log_format: json
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/housing.csv", cfg.DataPath)
	assert.Equal(t, 0.25, cfg.TestSize)
	assert.Equal(t, 50, cfg.NEstimators)
	assert.Equal(t, "median", cfg.ImputeStrategy)
	assert.Equal(t, "price", cfg.LabelColumn, "absent keys keep defaults")
	assert.Equal(t, []string{"area"}, cfg.ImputeColumns)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	assert.True(t, errors.Is(err, errors.ErrIO))

	_, err = LoadConfig(writeFile(t, "typo.yaml", "test_sise: 0.3\n"))
	assert.True(t, errors.Is(err, errors.ErrParse), "unknown key")

	_, err = LoadConfig(writeFile(t, "bad.yaml", "test_size: [\n"))
	assert.True(t, errors.Is(err, errors.ErrParse), "malformed YAML")

	cfg, err := LoadConfig(writeFile(t, "range.yaml", "test_size: 1.5\n"))
	require.NoError(t, err, "values are validated after overrides")
	assert.True(t, errors.Is(cfg.Validate(), errors.ErrInvalidArgument), "out of range")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data path", func(c *Config) { c.DataPath = "" }},
		{"empty label", func(c *Config) { c.LabelColumn = "" }},
		{"zero test size", func(c *Config) { c.TestSize = 0 }},
		{"no trees", func(c *Config) { c.NEstimators = 0 }},
		{"negative depth", func(c *Config) { c.MaxDepth = -2 }},
		{"label imputed", func(c *Config) { c.ImputeColumns = []string{"price"} }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
		})
	}
}

func TestForestModelColumns(t *testing.T) {
	train, err := dataset.NewTable(nil,
		dataset.NumericColumn("area", []float64{1, 2, 3, 4, 5, 6}),
		dataset.NumericColumn("bedrooms", []float64{1, 1, 2, 2, 3, 3}),
	)
	require.NoError(t, err)
	y := mat.NewVecDense(6, []float64{10, 20, 30, 40, 50, 60})

	m := NewForestModel(0)
	_, err = m.Predict(train)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "not fitted")

	require.NoError(t, m.Fit(context.Background(), train, y))
	assert.Equal(t, []string{"area", "bedrooms"}, m.Columns())

	want, err := m.Predict(train)
	require.NoError(t, err)

	reordered, err := train.Select("bedrooms", "area")
	require.NoError(t, err)
	got, err := m.Predict(reordered)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got), "columns are matched by name")

	other, err := train.Select("area")
	require.NoError(t, err)
	_, err = m.Predict(other)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "column set mismatch")

	withText, err := train.WithColumns(dataset.CategoricalColumn("mainroad", []string{"a", "b", "a", "b", "a", "b"}))
	require.NoError(t, err)
	err = NewForestModel(0).Fit(context.Background(), withText, y)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "non-numeric features")

	imp, err := m.FeatureImportances()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, imp["area"]+imp["bedrooms"], 1e-9)
}

func TestLoadModelRestoresColumns(t *testing.T) {
	train, err := dataset.NewTable(nil,
		dataset.NumericColumn("area", []float64{1, 2, 3, 4, 5, 6}),
		dataset.NumericColumn("stories", []float64{1, 1, 2, 2, 3, 1}),
	)
	require.NoError(t, err)
	y := mat.NewVecDense(6, []float64{10, 20, 30, 40, 50, 60})
	dir := t.TempDir()

	tests := []struct {
		name  string
		model TableModel
	}{
		{ModelRandomForest, NewForestModel(0, ensemble.WithNEstimators(3))},
		{ModelLinearRegression, NewLinearModel()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.model.Fit(context.Background(), train, y))
			path := filepath.Join(dir, tt.name+".msgpack")
			est := tt.model.(interface{ Estimator() interface{} }).Estimator()
			require.NoError(t, model.SaveModel(est, path))

			loaded, err := LoadModel(path, tt.name)
			require.NoError(t, err)
			assert.Equal(t, []string{"area", "stories"}, loaded.Columns())

			want, err := tt.model.Predict(train)
			require.NoError(t, err)
			reordered, err := train.Select("stories", "area")
			require.NoError(t, err)
			got, err := loaded.Predict(reordered)
			require.NoError(t, err)
			assert.True(t, mat.EqualApprox(want, got, 1e-12))

			renamed, err := dataset.NewTable(nil,
				dataset.NumericColumn("area", []float64{1}),
				dataset.NumericColumn("bedrooms", []float64{1}),
			)
			require.NoError(t, err)
			_, err = loaded.Predict(renamed)
			assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "column set is checked after reload")
		})
	}

	_, err = LoadModel(filepath.Join(dir, "absent.msgpack"), ModelRandomForest)
	assert.True(t, errors.Is(err, errors.ErrIO))
	_, err = LoadModel(filepath.Join(dir, ModelRandomForest+".msgpack"), "svm")
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	unnamed := filepath.Join(dir, "unnamed.msgpack")
	require.NoError(t, model.SaveModel(linear_model.NewLinearRegression(), unnamed))
	_, err = LoadModel(unnamed, ModelLinearRegression)
	assert.True(t, errors.Is(err, errors.ErrParse))
}

func TestLinearModelConstantColumn(t *testing.T) {
	train, err := dataset.NewTable(nil,
		dataset.NumericColumn("area", []float64{1, 2, 3, 4}),
		dataset.NumericColumn("stories", []float64{2, 2, 2, 2}),
	)
	require.NoError(t, err)
	y := mat.NewVecDense(4, []float64{12, 22, 32, 42})

	m := NewLinearModel()
	require.NoError(t, m.Fit(context.Background(), train, y))
	coef, err := m.Coefficients()
	require.NoError(t, err)
	assert.InDelta(t, 10, coef["area"], 1e-9)
	assert.InDelta(t, 0, coef["stories"], 1e-9)
}

func TestEvaluate(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{100, 200, 300, 400})
	yPred := mat.NewVecDense(4, []float64{110, 190, 300, 380})

	s, err := Evaluate(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 10, s.MAE, 1e-12)
	assert.InDelta(t, (0.1+0.05+0+0.05)/4, s.MAPE, 1e-12)
	assert.InDelta(t, math.Sqrt(150), s.RMSE, 1e-12)
	assert.InDelta(t, 1-600.0/50000, s.R2, 1e-12)

	_, err = Evaluate(yTrue, mat.NewVecDense(2, nil))
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestNewModel(t *testing.T) {
	cfg := DefaultConfig()
	m, err := NewModel(cfg)
	require.NoError(t, err)
	assert.IsType(t, &ForestModel{}, m)

	cfg.Model = ModelLinearRegression
	m, err = NewModel(cfg)
	require.NoError(t, err)
	assert.IsType(t, &LinearModel{}, m)

	cfg.Model = "gbm"
	_, err = NewModel(cfg)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestLinearModelColumns(t *testing.T) {
	train, err := dataset.NewTable(nil,
		dataset.NumericColumn("area", []float64{1, 2, 3, 4}),
		dataset.NumericColumn("stories", []float64{1, 2, 1, 2}),
	)
	require.NoError(t, err)
	y := mat.NewVecDense(4, []float64{12, 24, 31, 43})

	m := NewLinearModel()
	_, err = m.Coefficients()
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	require.NoError(t, m.Fit(context.Background(), train, y))
	want, err := m.Predict(train)
	require.NoError(t, err)

	reordered, err := train.Select("stories", "area")
	require.NoError(t, err)
	got, err := m.Predict(reordered)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewLinearModel().Fit(ctx, train, y), context.Canceled)
}
