package model

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/housereg/pkg/errors"
)

func TestStateManagerLifecycle(t *testing.T) {
	s := NewStateManager("SimpleImputer")
	assert.False(t, s.IsFitted())

	err := s.RequireFitted("Transform")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	assert.Contains(t, err.Error(), "SimpleImputer")

	s.SetFitted(3, 100)
	s.SetFeatureNames([]string{"area", "bedrooms", "stories"})
	assert.True(t, s.IsFitted())
	assert.NoError(t, s.RequireFitted("Transform"))

	nf, ns := s.GetDimensions()
	assert.Equal(t, 3, nf)
	assert.Equal(t, 100, ns)
	assert.Equal(t, []string{"area", "bedrooms", "stories"}, s.FeatureNames())

	assert.NoError(t, s.RequireFeatures("Predict", 3))
	err = s.RequireFeatures("Predict", 2)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	s.Reset()
	assert.False(t, s.IsFitted())
	assert.Nil(t, s.FeatureNames())
}

func TestStateManagerStateRoundTrip(t *testing.T) {
	s := NewStateManager("RandomForestRegressor")
	s.SetFitted(2, 8)
	s.SetFeatureNames([]string{"area", "bedrooms"})

	restored := NewStateManager("RandomForestRegressor")
	restored.SetState(s.GetState())

	assert.True(t, restored.IsFitted())
	assert.Equal(t, s.FeatureNames(), restored.FeatureNames())
}

func TestStateManagerRecordFeatureNames(t *testing.T) {
	s := NewStateManager("LinearRegression")
	err := s.RecordFeatureNames("SetFeatureNames", []string{"area"})
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "unfitted")

	s.SetFitted(2, 10)
	err = s.RecordFeatureNames("SetFeatureNames", []string{"area"})
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "wrong count")
	assert.Nil(t, s.FeatureNames())

	require.NoError(t, s.RecordFeatureNames("SetFeatureNames", []string{"area", "stories"}))
	assert.Equal(t, []string{"area", "stories"}, s.GetState().FeatureNames)

	s.SetFitted(3, 10)
	assert.Nil(t, s.FeatureNames(), "refit drops stale names")
}

type snapshot struct {
	Name   string    `msgpack:"name"`
	Values []float64 `msgpack:"values"`
	State  ModelState
}

func TestSaveLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.msgpack")
	in := snapshot{Name: "forest", Values: []float64{1.5, -2}, State: ModelState{Fitted: true, NFeatures: 2}}

	require.NoError(t, SaveModel(&in, path))

	var out snapshot
	require.NoError(t, LoadModel(&out, path))
	assert.Equal(t, in, out)
}

func TestLoadModelErrors(t *testing.T) {
	dir := t.TempDir()

	var out snapshot
	err := LoadModel(&out, filepath.Join(dir, "missing.msgpack"))
	assert.True(t, errors.Is(err, errors.ErrIO))

	bad := filepath.Join(dir, "bad.msgpack")
	require.NoError(t, os.WriteFile(bad, []byte{0xc1}, 0o600))
	err = LoadModel(&out, bad)
	assert.True(t, errors.Is(err, errors.ErrParse))

	err = LoadModelFromReader(&out, bytes.NewReader(nil))
	assert.True(t, errors.Is(err, errors.ErrParse))
}
