// Package metrics は回帰モデルの評価指標を提供する。
//
// 各関数は真値 yTrue と予測値 yPred の長さが一致しない場合、または空の場合に
// ErrInvalidArgument に一致するエラーを返す。
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/housereg/pkg/errors"
)

// epsilon は MAPE の分母の下限（float64 のマシンイプシロン）
var epsilon = math.Nextafter(1, 2) - 1

// checkPair は入力を検証し、要素数を返す
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "nil vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	if err := errors.CheckFinite(op+"(y_true)", values(yTrue)); err != nil {
		return 0, err
	}
	if err := errors.CheckFinite(op+"(y_pred)", values(yPred)); err != nil {
		return 0, err
	}
	return n, nil
}

func values(v *mat.VecDense) []float64 {
	return mat.Col(nil, 0, v)
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MAE = (1/n) * Σ|yTrue - yPred|
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// MAPE は平均絶対パーセンテージ誤差を割合（0.1 = 10%）で計算する
//
// MAPE = (1/n) * Σ|yTrue - yPred| / max(|yTrue|, ε)
//
// 真値に0が含まれる場合も除外はせず、分母を ε に置き換えて計算する。
// その場合は巨大な値になりうるため UndefinedMetricWarning を発行する。
func MAPE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAPE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	zeros := 0
	for i := 0; i < n; i++ {
		t := yTrue.AtVec(i)
		if t == 0 {
			zeros++
		}
		sum += math.Abs(t-yPred.AtVec(i)) / math.Max(math.Abs(t), epsilon)
	}
	result := sum / float64(n)

	if zeros > 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("MAPE", "y_true containing zeros", result))
	}
	return result, nil
}

// R2Score は決定係数（R²）を計算する
//
// 真値の分散が0の場合は scikit-learn と同様に、完全一致なら1、それ以外は0を返す。
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var yMean float64
	for i := 0; i < n; i++ {
		yMean += yTrue.AtVec(i)
	}
	yMean /= float64(n)

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i := 0; i < n; i++ {
		t, p := yTrue.AtVec(i), yPred.AtVec(i)
		tss += (t - yMean) * (t - yMean)
		rss += (t - p) * (t - p)
	}

	if tss == 0 {
		if rss == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - rss/tss, nil
}
