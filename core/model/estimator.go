package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う。戻り値は n×1 の行列
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Regressor は回帰モデルのインターフェース
type Regressor interface {
	Fitter
	Predictor
}

// FeatureImportancer は特徴量重要度を返せるモデル
type FeatureImportancer interface {
	// FeatureImportances は合計が1になるよう正規化された重要度を返す
	FeatureImportances() ([]float64, error)
}

// ParamGetter はハイパーパラメータを返せるモデル
type ParamGetter interface {
	GetParams() map[string]interface{}
}

// FeatureNamer は学習時の列名を保持し、モデルと一緒に保存できるモデル
type FeatureNamer interface {
	// SetFeatureNames は学習済みの列に名前を付ける。列数が一致しなければエラー
	SetFeatureNames(names []string) error
	// FeatureNames は学習時の列名を返す。未設定なら nil
	FeatureNames() []string
}
