package linear_model

import (
	"bytes"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/housereg/core/model"
	"github.com/YuminosukeSato/housereg/pkg/errors"
)

func TestLinearRegression_Basic(t *testing.T) {
	// y = 2x + 1
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{3, 5, 7, 9})

	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}

	if c := lr.Coef()[0]; math.Abs(c-2) > 1e-9 {
		t.Errorf("Expected coefficient 2.0, got %f", c)
	}
	if b := lr.Intercept(); math.Abs(b-1) > 1e-9 {
		t.Errorf("Expected intercept 1.0, got %f", b)
	}

	pred, err := lr.Predict(mat.NewDense(2, 1, []float64{5, 6}))
	if err != nil {
		t.Fatalf("Failed to predict: %v", err)
	}
	expected := []float64{11, 13}
	for i := range expected {
		if math.Abs(pred.At(i, 0)-expected[i]) > 1e-9 {
			t.Errorf("Expected prediction %f, got %f", expected[i], pred.At(i, 0))
		}
	}
}

func TestLinearRegression_NoIntercept(t *testing.T) {
	// y = 2x
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{2, 4, 6, 8})

	lr := NewLinearRegression(WithFitIntercept(false))
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}
	if c := lr.Coef()[0]; math.Abs(c-2) > 1e-9 {
		t.Errorf("Expected coefficient 2.0, got %f", c)
	}
	if lr.Intercept() != 0 {
		t.Errorf("Expected intercept 0, got %f", lr.Intercept())
	}
}

func TestLinearRegression_MultipleFeatures(t *testing.T) {
	// y = 2*x1 + 3*x2 + 1
	X := mat.NewDense(5, 2, []float64{
		1, 1,
		2, 1,
		3, 2,
		4, 2,
		5, 3,
	})
	y := mat.NewDense(5, 1, []float64{6, 8, 13, 15, 20})

	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}

	want := []float64{2, 3}
	for i, c := range lr.Coef() {
		if math.Abs(c-want[i]) > 1e-9 {
			t.Errorf("coef[%d] = %f, want %f", i, c, want[i])
		}
	}

	score, err := lr.Score(X, mat.NewVecDense(5, []float64{6, 8, 13, 15, 20}))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if math.Abs(score-1) > 1e-9 {
		t.Errorf("Expected R² 1.0, got %f", score)
	}
}

func TestLinearRegression_RankDeficient(t *testing.T) {
	// y = 2*x1 + 5, x2 は定数列
	X := mat.NewDense(4, 2, []float64{
		1, 3,
		2, 3,
		3, 3,
		4, 3,
	})
	y := mat.NewDense(4, 1, []float64{7, 9, 11, 13})

	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("constant feature should not fail Fit: %v", err)
	}
	coef := lr.Coef()
	if math.Abs(coef[0]-2) > 1e-9 || math.Abs(coef[1]) > 1e-9 {
		t.Errorf("coef = %v, want [2 0]", coef)
	}
	if math.Abs(lr.Intercept()-5) > 1e-9 {
		t.Errorf("intercept = %f, want 5", lr.Intercept())
	}

	// 全列が定数なら係数は0、切片は平均
	flat := NewLinearRegression()
	if err := flat.Fit(mat.NewDense(3, 1, []float64{4, 4, 4}), mat.NewDense(3, 1, []float64{1, 2, 6})); err != nil {
		t.Fatalf("all-constant X: %v", err)
	}
	if flat.Coef()[0] != 0 || math.Abs(flat.Intercept()-3) > 1e-9 {
		t.Errorf("got coef %v intercept %f, want [0] and 3", flat.Coef(), flat.Intercept())
	}
}

func TestLinearRegression_Errors(t *testing.T) {
	tests := []struct {
		name string
		X    mat.Matrix
		y    mat.Matrix
	}{
		{"row mismatch", mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(2, 1, []float64{1, 2})},
		{"two column target", mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(3, 2, nil)},
		{"nil X", nil, mat.NewDense(2, 1, []float64{1, 2})},
		{"NaN feature", mat.NewDense(3, 1, []float64{1, math.NaN(), 3}), mat.NewDense(3, 1, []float64{1, 2, 3})},
		{"Inf target", mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(3, 1, []float64{1, math.Inf(1), 3})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewLinearRegression().Fit(tt.X, tt.y)
			if !errors.Is(err, errors.ErrInvalidArgument) {
				t.Errorf("expected InvalidArgument, got %v", err)
			}
		})
	}

	lr := NewLinearRegression()
	if _, err := lr.Predict(mat.NewDense(1, 1, []float64{1})); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Predict before Fit: expected NotFittedError, got %v", err)
	}
	_ = lr.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(3, 1, []float64{2, 4, 6}))
	if _, err := lr.Predict(mat.NewDense(1, 2, []float64{1, 2})); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Predict width mismatch: expected DimensionError, got %v", err)
	}
}

func TestLinearRegression_Persistence(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{1, 0, 2, 1, 3, 0, 4, 1})
	y := mat.NewDense(4, 1, []float64{3, 6, 7, 10})

	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}

	var buf bytes.Buffer
	if err := model.SaveModelToWriter(lr, &buf); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded := NewLinearRegression(WithFitIntercept(false))
	if err := model.LoadModelFromReader(loaded, &buf); err != nil {
		t.Fatalf("load: %v", err)
	}

	want, _ := lr.PredictVec(X)
	got, err := loaded.PredictVec(X)
	if err != nil {
		t.Fatalf("predict after load: %v", err)
	}
	if !mat.Equal(want, got) {
		t.Errorf("predictions differ after reload: %v vs %v", mat.Formatted(want.T()), mat.Formatted(got.T()))
	}
	if loaded.String() != lr.String() {
		t.Errorf("String() = %q, want %q", loaded.String(), lr.String())
	}
}
