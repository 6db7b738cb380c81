package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/housereg/pkg/errors"
)

func TestErrorMetrics(t *testing.T) {
	type metric func(yTrue, yPred *mat.VecDense) (float64, error)
	tests := []struct {
		name   string
		metric metric
		yTrue  []float64
		yPred  []float64
		want   float64
	}{
		{"MAE perfect", MAE, []float64{3, 5}, []float64{3, 5}, 0},
		{"MAE symmetric misses", MAE, []float64{0, 10}, []float64{5, 5}, 5},
		{"MAE prices", MAE, []float64{13300000, 12250000, 9870000}, []float64{13000000, 12500000, 9870000}, 550000.0 / 3},
		{"MSE perfect", MSE, []float64{1, 2, 3}, []float64{1, 2, 3}, 0},
		{"MSE half steps", MSE, []float64{1, 2, 3, 4}, []float64{1.5, 2.5, 2.5, 3.5}, 0.25},
		{"MSE mixed signs", MSE, []float64{10, 20, 30}, []float64{12, 18, 33}, 17.0 / 3},
		{"RMSE perfect", RMSE, []float64{4, 4}, []float64{4, 4}, 0},
		{"RMSE half steps", RMSE, []float64{1, 2, 3, 4}, []float64{1.5, 2.5, 2.5, 3.5}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yTrue := mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			yPred := mat.NewVecDense(len(tt.yPred), tt.yPred)
			got, err := tt.metric(yTrue, yPred)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-10*math.Max(1, math.Abs(tt.want)) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if got < 0 {
				t.Errorf("error metric is negative: %v", got)
			}
		})
	}
}

func TestErrorMetricsEmpty(t *testing.T) {
	for name, fn := range map[string]func(yTrue, yPred *mat.VecDense) (float64, error){
		"MAE": MAE, "MSE": MSE, "RMSE": RMSE,
	} {
		if _, err := fn(&mat.VecDense{}, &mat.VecDense{}); !errors.Is(err, errors.ErrInvalidArgument) {
			t.Errorf("%s() on empty vectors: error = %v, want invalid argument", name, err)
		}
	}
}

func TestR2Score(t *testing.T) {
	tests := []struct {
		name      string
		yTrue     *mat.VecDense
		yPred     *mat.VecDense
		want      float64
		tolerance float64
		wantErr   bool
	}{
		{
			name:      "perfect prediction",
			yTrue:     mat.NewVecDense(5, []float64{1.0, 2.0, 3.0, 4.0, 5.0}),
			yPred:     mat.NewVecDense(5, []float64{1.0, 2.0, 3.0, 4.0, 5.0}),
			want:      1.0,
			tolerance: 1e-10,
			wantErr:   false,
		},
		{
			name:      "no variance in yTrue",
			yTrue:     mat.NewVecDense(5, []float64{3.0, 3.0, 3.0, 3.0, 3.0}),
			yPred:     mat.NewVecDense(5, []float64{2.0, 3.0, 4.0, 3.0, 3.0}),
			want:      0.0, // Imperfect predictions of a constant target score 0
			tolerance: 1e-10,
			wantErr:   false,
		},
		{
			name:      "no variance in yTrue, perfect prediction",
			yTrue:     mat.NewVecDense(3, []float64{3.0, 3.0, 3.0}),
			yPred:     mat.NewVecDense(3, []float64{3.0, 3.0, 3.0}),
			want:      1.0,
			tolerance: 1e-10,
			wantErr:   false,
		},
		{
			name:      "worse than mean baseline",
			yTrue:     mat.NewVecDense(4, []float64{1.0, 2.0, 3.0, 4.0}),
			yPred:     mat.NewVecDense(4, []float64{4.0, 3.0, 2.0, 1.0}),
			want:      -3.0, // Negative R² value (worse than mean prediction)
			tolerance: 0.01,
			wantErr:   false,
		},
		{
			name:      "dimension mismatch",
			yTrue:     mat.NewVecDense(3, []float64{1.0, 2.0, 3.0}),
			yPred:     mat.NewVecDense(2, []float64{1.0, 2.0}),
			want:      0.0,
			tolerance: 1e-10,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := R2Score(tt.yTrue, tt.yPred)

			if (err != nil) != tt.wantErr {
				t.Errorf("R2Score() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if math.Abs(got-tt.want) > tt.tolerance {
					t.Errorf("R2Score() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestMAPE(t *testing.T) {
	tests := []struct {
		name      string
		yTrue     *mat.VecDense
		yPred     *mat.VecDense
		want      float64
		tolerance float64
		wantErr   bool
	}{
		{
			name:      "perfect prediction",
			yTrue:     mat.NewVecDense(3, []float64{100.0, 200.0, 300.0}),
			yPred:     mat.NewVecDense(3, []float64{100.0, 200.0, 300.0}),
			want:      0.0,
			tolerance: 1e-12,
		},
		{
			name:      "ten percent off both ways",
			yTrue:     mat.NewVecDense(2, []float64{10.0, 20.0}),
			yPred:     mat.NewVecDense(2, []float64{11.0, 18.0}),
			want:      0.1,
			tolerance: 1e-12,
		},
		{
			name:      "fraction, not percent",
			yTrue:     mat.NewVecDense(2, []float64{100.0, 200.0}),
			yPred:     mat.NewVecDense(2, []float64{110.0, 150.0}),
			want:      0.175, // (0.1 + 0.25) / 2
			tolerance: 1e-12,
		},
		{
			name:      "negative targets use the absolute value",
			yTrue:     mat.NewVecDense(2, []float64{-10.0, 10.0}),
			yPred:     mat.NewVecDense(2, []float64{-12.0, 8.0}),
			want:      0.2,
			tolerance: 1e-12,
		},
		{
			name:      "zero target divides by machine epsilon",
			yTrue:     mat.NewVecDense(2, []float64{0.0, 1.0}),
			yPred:     mat.NewVecDense(2, []float64{1.0, 1.0}),
			want:      1 / (2 * epsilon),
			tolerance: 1,
		},
		{
			name:    "dimension mismatch",
			yTrue:   mat.NewVecDense(3, []float64{1.0, 2.0, 3.0}),
			yPred:   mat.NewVecDense(2, []float64{1.0, 2.0}),
			wantErr: true,
		},
		{
			name:    "empty vectors",
			yTrue:   &mat.VecDense{},
			yPred:   &mat.VecDense{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MAPE(tt.yTrue, tt.yPred)

			if (err != nil) != tt.wantErr {
				t.Errorf("MAPE() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if math.Abs(got-tt.want) > tt.tolerance {
					t.Errorf("MAPE() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestMAPEWarnsOnZeroTarget(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	if _, err := MAPE(mat.NewVecDense(2, []float64{1, 2}), mat.NewVecDense(2, []float64{1, 1})); err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Fatalf("Unexpected warnings for non-zero targets: %v", warnings)
	}

	if _, err := MAPE(mat.NewVecDense(2, []float64{0, 2}), mat.NewVecDense(2, []float64{1, 1})); err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 {
		t.Fatalf("Expected one warning, got %d", len(warnings))
	}
	var umw *errors.UndefinedMetricWarning
	if !errors.As(warnings[0], &umw) || umw.Metric != "MAPE" {
		t.Errorf("Expected UndefinedMetricWarning for MAPE, got %v", warnings[0])
	}
}

func TestMetricsInvalidArgument(t *testing.T) {
	a := mat.NewVecDense(3, []float64{1, 2, 3})
	short := mat.NewVecDense(2, []float64{1, 2})
	withNaN := mat.NewVecDense(3, []float64{1, math.NaN(), 3})

	funcs := map[string]func(yTrue, yPred *mat.VecDense) (float64, error){
		"MAE": MAE, "MAPE": MAPE, "MSE": MSE, "RMSE": RMSE, "R2Score": R2Score,
	}
	for name, fn := range funcs {
		for _, pred := range []*mat.VecDense{short, withNaN, nil} {
			if _, err := fn(a, pred); !errors.Is(err, errors.ErrInvalidArgument) {
				t.Errorf("%s() error = %v, want invalid argument", name, err)
			}
		}
	}
}

// Benchmark tests
func BenchmarkMSE(b *testing.B) {
	size := 10000
	yTrue := mat.NewVecDense(size, nil)
	yPred := mat.NewVecDense(size, nil)

	// Generate random data
	for i := 0; i < size; i++ {
		yTrue.SetVec(i, float64(i))
		yPred.SetVec(i, float64(i)+0.1*float64(i%10))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = MSE(yTrue, yPred)
	}
}
