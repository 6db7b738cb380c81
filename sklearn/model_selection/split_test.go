package model_selection

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/housereg/dataset"
	"github.com/YuminosukeSato/housereg/pkg/errors"
)

func makeData(t *testing.T, n int) (*dataset.Table, *mat.VecDense) {
	t.Helper()
	area := make([]float64, n)
	labels := make([]float64, n)
	for i := range area {
		area[i] = float64(i)
		labels[i] = float64(i) * 10
	}
	X, err := dataset.NewTable(nil, dataset.NumericColumn("area", area))
	require.NoError(t, err)
	return X, mat.NewVecDense(n, labels)
}

func TestTrainTestSplitSizes(t *testing.T) {
	tests := []struct {
		n, wantTest int
		f           float64
	}{
		{10, 2, 0.2},
		{545, 109, 0.2},
		{5, 1, 0.2},
		{4, 2, 0.5},
		{3, 1, 0.25},
	}
	for _, tt := range tests {
		X, y := makeData(t, tt.n)
		s, err := TrainTestSplit(X, y, WithTestSize(tt.f))
		require.NoError(t, err)
		assert.Equal(t, tt.wantTest, s.XTest.NumRows(), "n=%d f=%g", tt.n, tt.f)
		assert.Equal(t, tt.n-tt.wantTest, s.XTrain.NumRows())
		assert.Equal(t, s.XTest.NumRows(), s.YTest.Len())
		assert.Equal(t, s.XTrain.NumRows(), s.YTrain.Len())
	}
}

func TestTrainTestSplitPartitionAndAlignment(t *testing.T) {
	X, y := makeData(t, 50)
	s, err := TrainTestSplit(X, y, WithTestSize(0.3), WithRandomState(7))
	require.NoError(t, err)

	ids := append(s.XTrain.RowIDs(), s.XTest.RowIDs()...)
	sort.Ints(ids)
	for i, id := range ids {
		assert.Equal(t, i, id, "every row appears exactly once")
	}

	check := func(tbl *dataset.Table, v *mat.VecDense) {
		area, err := tbl.Floats("area")
		require.NoError(t, err)
		for i, a := range area {
			assert.Equal(t, a*10, v.AtVec(i), "label follows its row")
		}
	}
	check(s.XTrain, s.YTrain)
	check(s.XTest, s.YTest)
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	X, y := makeData(t, 30)

	a, err := TrainTestSplit(X, y, WithRandomState(0))
	require.NoError(t, err)
	b, err := TrainTestSplit(X, y, WithRandomState(0))
	require.NoError(t, err)
	c, err := TrainTestSplit(X, y, WithRandomState(1))
	require.NoError(t, err)

	assert.Equal(t, a.XTest.RowIDs(), b.XTest.RowIDs())
	assert.Equal(t, a.XTrain.RowIDs(), b.XTrain.RowIDs())
	assert.True(t, mat.Equal(a.YTest, b.YTest))
	assert.NotEqual(t, a.XTrain.RowIDs(), c.XTrain.RowIDs())
}

func TestTrainTestSplitErrors(t *testing.T) {
	X, y := makeData(t, 10)
	_, short := makeData(t, 9)
	tiny, tinyY := makeData(t, 2)

	tests := []struct {
		name string
		X    *dataset.Table
		y    *mat.VecDense
		opts []SplitOption
	}{
		{"zero fraction", X, y, []SplitOption{WithTestSize(0)}},
		{"unit fraction", X, y, []SplitOption{WithTestSize(1)}},
		{"negative fraction", X, y, []SplitOption{WithTestSize(-0.2)}},
		{"length mismatch", X, short, nil},
		{"nil labels", X, nil, nil},
		{"empty test side", tiny, tinyY, []SplitOption{WithTestSize(0.1)}},
		{"empty train side", tiny, tinyY, []SplitOption{WithTestSize(0.9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TrainTestSplit(tt.X, tt.y, tt.opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "%v", err)
		})
	}
}

func TestTrainTestSplitEmptyTable(t *testing.T) {
	X, err := dataset.NewTable(nil, dataset.NumericColumn("area", []float64{}))
	require.NoError(t, err)
	_, err = TrainTestSplit(X, &mat.VecDense{})
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestPermutation(t *testing.T) {
	p := Permutation(20, 42)
	assert.Equal(t, p, Permutation(20, 42))
	sorted := append([]int(nil), p...)
	sort.Ints(sorted)
	for i, v := range sorted {
		assert.Equal(t, i, v)
	}
}
