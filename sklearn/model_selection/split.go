// Package model_selection provides utilities for splitting data into training
// and evaluation sets.
package model_selection

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/housereg/dataset"
	"github.com/YuminosukeSato/housereg/pkg/errors"
	"github.com/YuminosukeSato/housereg/pkg/log"
)

// DefaultTestSize is the held-out fraction used when WithTestSize is not given.
const DefaultTestSize = 0.2

// SplitOption configures TrainTestSplit.
type SplitOption func(*splitConfig)

type splitConfig struct {
	testSize    float64
	randomState int64
}

// WithTestSize sets the fraction of rows assigned to the test set. It must lie
// strictly between 0 and 1.
func WithTestSize(f float64) SplitOption {
	return func(c *splitConfig) { c.testSize = f }
}

// WithRandomState sets the seed of the row permutation.
func WithRandomState(seed int64) SplitOption {
	return func(c *splitConfig) { c.randomState = seed }
}

// Split holds the four outputs of TrainTestSplit. Row i of XTrain corresponds
// to YTrain[i]; the same holds for the test side.
type Split struct {
	XTrain *dataset.Table
	XTest  *dataset.Table
	YTrain *mat.VecDense
	YTest  *mat.VecDense
}

// Permutation returns a pseudo-random permutation of 0..n-1 determined only by
// seed.
func Permutation(n int, seed int64) []int {
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	return r.Perm(n)
}

// TestCount returns the number of test rows for n rows and fraction f:
// round(n·f), rounding halves away from zero.
func TestCount(n int, f float64) int {
	return int(math.Round(float64(n) * f))
}

// TrainTestSplit partitions the rows of X and y into disjoint train and test
// sets. The rows are permuted with the configured seed; the first
// round(n·testSize) permuted rows form the test set and the remainder the
// training set, both in permutation order. The same inputs and seed always
// produce the same split.
func TrainTestSplit(X *dataset.Table, y *mat.VecDense, opts ...SplitOption) (*Split, error) {
	cfg := splitConfig{testSize: DefaultTestSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	if X == nil || y == nil {
		return nil, errors.NewValueError("TrainTestSplit", "features and labels must not be nil")
	}
	if !(cfg.testSize > 0 && cfg.testSize < 1) {
		return nil, errors.NewValidationError("test_size", "must be in the open interval (0, 1)", cfg.testSize)
	}
	n := X.NumRows()
	if n == 0 {
		return nil, errors.NewValueError("TrainTestSplit", "cannot split an empty table")
	}
	if y.Len() != n {
		return nil, errors.NewDimensionError("TrainTestSplit", n, y.Len(), 0)
	}

	nTest := TestCount(n, cfg.testSize)
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, errors.NewValueErrorf("TrainTestSplit",
			"test_size=%g with %d rows leaves %d train and %d test rows; both must be non-empty",
			cfg.testSize, n, nTrain, nTest)
	}

	perm := Permutation(n, cfg.randomState)
	testIdx, trainIdx := perm[:nTest], perm[nTest:]

	xTrain, err := X.Take(trainIdx)
	if err != nil {
		return nil, err
	}
	xTest, err := X.Take(testIdx)
	if err != nil {
		return nil, err
	}

	log.GetLoggerWithName("model_selection").Debug("Split completed",
		log.OperationKey, log.OperationSplit,
		log.SamplesKey, n,
		log.TestSizeKey, cfg.testSize,
		log.RandomSeedKey, cfg.randomState,
		"n_train", nTrain,
		"n_test", nTest,
	)

	return &Split{
		XTrain: xTrain,
		XTest:  xTest,
		YTrain: takeVec(y, trainIdx),
		YTest:  takeVec(y, testIdx),
	}, nil
}

func takeVec(v *mat.VecDense, idx []int) *mat.VecDense {
	out := make([]float64, len(idx))
	for i, r := range idx {
		out[i] = v.AtVec(r)
	}
	return mat.NewVecDense(len(out), out)
}
