// Package linear_model implements ordinary least squares regression, used as
// a baseline against the tree ensembles.
package linear_model

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/housereg/core/model"
	"github.com/YuminosukeSato/housereg/metrics"
	"github.com/YuminosukeSato/housereg/pkg/errors"
	"github.com/YuminosukeSato/housereg/pkg/log"
)

// LinearRegression is a linear regression model using ordinary least squares.
// scikit-learnのLinearRegressionと同じ係数を返す
type LinearRegression struct {
	state *model.StateManager // 状態管理（埋め込みではなくコンポジション）
	id    string

	// ハイパーパラメータ
	fitIntercept bool // 切片を学習するか

	// 学習されたパラメータ
	coef      []float64 // 重み係数
	intercept float64   // 切片
}

var (
	_ model.Regressor    = (*LinearRegression)(nil)
	_ model.ParamGetter  = (*LinearRegression)(nil)
	_ model.FeatureNamer = (*LinearRegression)(nil)
)

// Option は設定オプション
type Option func(*LinearRegression)

// WithFitIntercept は切片の学習有無を設定
func WithFitIntercept(fit bool) Option {
	return func(lr *LinearRegression) {
		lr.fitIntercept = fit
	}
}

// NewLinearRegression は新しいLinearRegressionモデルを作成
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{
		state:        model.NewStateManager("LinearRegression"),
		id:           uuid.NewString(),
		fitIntercept: true,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	const op = "LinearRegression.Fit"
	if X == nil || y == nil {
		return errors.NewValueError(op, "X and y must not be nil")
	}
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()

	// 入力検証
	if rows == 0 || cols == 0 {
		return errors.NewValueError(op, "X is empty")
	}
	if rows != yRows {
		return errors.NewDimensionError(op, rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError(op, 1, yCols, 1)
	}
	if err := errors.CheckMatrix(op, X, rows, cols); err != nil {
		return err
	}
	if err := errors.CheckFinite(op, mat.Col(nil, 0, y)); err != nil {
		return err
	}

	// 切片ありの場合は列を中心化し、切片は平均から復元する
	xMean := make([]float64, cols)
	yCol := mat.Col(nil, 0, y)
	var yMean float64
	if lr.fitIntercept {
		for j := 0; j < cols; j++ {
			xMean[j] = stat.Mean(mat.Col(nil, j, X), nil)
		}
		yMean = stat.Mean(yCol, nil)
	}
	centered := mat.NewDense(rows, cols, nil)
	target := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			centered.Set(i, j, X.At(i, j)-xMean[j])
		}
		target.Set(i, 0, yCol[i]-yMean)
	}

	coef, err := solveLeastSquares(op, centered, target)
	if err != nil {
		return err
	}

	lr.coef = coef
	lr.intercept = yMean - floats.Dot(xMean, coef)
	lr.state.SetFitted(cols, rows)
	log.GetLoggerWithName("linear_model").Debug("Model training completed",
		log.ModelNameKey, "LinearRegression",
		log.EstimatorIDKey, lr.id,
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
	)
	return nil
}

// solveLeastSquares はSVDで最小ノルムの最小二乗解を求める。
// 定数列などでランク落ちしていても解を返す（numpy.linalg.lstsq と同じ）。
func solveLeastSquares(op string, a *mat.Dense, b *mat.Dense) ([]float64, error) {
	rows, cols := a.Dims()
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.NewModelError(op, "SVD did not converge", nil)
	}
	rcond := math.Nextafter(1, 2) - 1
	rcond *= float64(max(rows, cols))
	rank := svd.Rank(rcond)
	if rank == 0 {
		return make([]float64, cols), nil
	}
	var x mat.Dense
	svd.SolveTo(&x, b, rank)
	return mat.Col(nil, 0, &x), nil
}

// Predict は入力データに対する予測を行う (n×1)
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	v, err := lr.PredictVec(X)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(v.Len(), 1, v.RawVector().Data), nil
}

// PredictVec は予測をベクトルで返す
func (lr *LinearRegression) PredictVec(X mat.Matrix) (*mat.VecDense, error) {
	if err := lr.state.RequireFitted("Predict"); err != nil {
		return nil, err
	}
	if X == nil {
		return nil, errors.NewValueError("LinearRegression.Predict", "X must not be nil")
	}
	rows, cols := X.Dims()
	if err := lr.state.RequireFeatures("LinearRegression.Predict", cols); err != nil {
		return nil, err
	}

	pred := mat.NewVecDense(rows, nil)
	pred.MulVec(X, mat.NewVecDense(cols, lr.coef))
	for i := 0; i < rows; i++ {
		pred.SetVec(i, pred.AtVec(i)+lr.intercept)
	}
	return pred, nil
}

// Score はモデルの決定係数（R²）を計算
func (lr *LinearRegression) Score(X mat.Matrix, y *mat.VecDense) (float64, error) {
	pred, err := lr.PredictVec(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(y, pred)
}

// Coef は学習された重み係数を返す
func (lr *LinearRegression) Coef() []float64 {
	if lr.coef == nil {
		return nil
	}
	return append([]float64(nil), lr.coef...)
}

// Intercept は学習された切片を返す
func (lr *LinearRegression) Intercept() float64 {
	return lr.intercept
}

// SetFeatureNames は学習済みの列に名前を付ける（保存対象）
func (lr *LinearRegression) SetFeatureNames(names []string) error {
	return lr.state.RecordFeatureNames("LinearRegression.SetFeatureNames", names)
}

// FeatureNames は学習時の列名を返す
func (lr *LinearRegression) FeatureNames() []string {
	return lr.state.FeatureNames()
}

// IsFitted returns whether the model has been fitted
func (lr *LinearRegression) IsFitted() bool {
	return lr.state.IsFitted()
}

// GetParams returns the model's hyperparameters.
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": lr.fitIntercept,
	}
}

// String returns the string representation of the model
func (lr *LinearRegression) String() string {
	if !lr.state.IsFitted() {
		return fmt.Sprintf("LinearRegression(fit_intercept=%t)", lr.fitIntercept)
	}
	nFeatures, _ := lr.state.GetDimensions()
	return fmt.Sprintf("LinearRegression(fit_intercept=%t, n_features=%d, fitted=true)",
		lr.fitIntercept, nFeatures)
}

type linearSnapshot struct {
	FitIntercept bool             `msgpack:"fit_intercept"`
	Coef         []float64        `msgpack:"coef"`
	Intercept    float64          `msgpack:"intercept"`
	State        model.ModelState `msgpack:"state"`
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (lr *LinearRegression) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(linearSnapshot{
		FitIntercept: lr.fitIntercept,
		Coef:         lr.coef,
		Intercept:    lr.intercept,
		State:        lr.state.GetState(),
	})
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (lr *LinearRegression) DecodeMsgpack(dec *msgpack.Decoder) error {
	var s linearSnapshot
	if err := dec.Decode(&s); err != nil {
		return err
	}
	if s.State.Fitted && len(s.Coef) != s.State.NFeatures {
		return errors.NewParseError("LinearRegression.DecodeMsgpack", 0,
			fmt.Sprintf("%d coefficients for %d features", len(s.Coef), s.State.NFeatures), nil)
	}
	lr.state = model.NewStateManager("LinearRegression")
	lr.state.SetState(s.State)
	if lr.id == "" {
		lr.id = uuid.NewString()
	}
	lr.fitIntercept = s.FitIntercept
	lr.coef = s.Coef
	lr.intercept = s.Intercept
	return nil
}
