// Package model provides the fitted-state bookkeeping, estimator interfaces
// and persistence helpers shared by every estimator.
package model

import (
	"sync"

	"github.com/YuminosukeSato/housereg/pkg/errors"
)

// StateManager manages the fitted state of an estimator in a thread-safe
// manner. Estimators hold one by composition.
type StateManager struct {
	mu sync.RWMutex

	modelName    string
	fitted       bool
	nFeatures    int
	nSamples     int
	featureNames []string
}

// NewStateManager creates a StateManager for the named estimator. The name is
// used in NotFittedError messages.
func NewStateManager(modelName string) *StateManager {
	return &StateManager{modelName: modelName}
}

// ModelName returns the estimator name given to NewStateManager.
func (s *StateManager) ModelName() string { return s.modelName }

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// SetFitted marks the model as fitted with the dimensions seen during Fit.
// Names recorded by an earlier fit are dropped.
func (s *StateManager) SetFitted(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = true
	s.nFeatures = nFeatures
	s.nSamples = nSamples
	s.featureNames = nil
}

// Reset clears the fitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = false
	s.nFeatures = 0
	s.nSamples = 0
	s.featureNames = nil
}

// SetFeatureNames records the column names seen during Fit.
func (s *StateManager) SetFeatureNames(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.featureNames = append([]string(nil), names...)
}

// RecordFeatureNames names the fitted columns. The model must be fitted and
// names must have one entry per feature.
func (s *StateManager) RecordFeatureNames(op string, names []string) error {
	if err := s.RequireFitted(op); err != nil {
		return err
	}
	if err := s.RequireFeatures(op, len(names)); err != nil {
		return err
	}
	s.SetFeatureNames(names)
	return nil
}

// FeatureNames returns a copy of the column names seen during Fit, or nil.
func (s *StateManager) FeatureNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.featureNames == nil {
		return nil
	}
	return append([]string(nil), s.featureNames...)
}

// GetDimensions returns the number of features and samples seen during Fit.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples
}

// RequireFitted returns a NotFittedError naming method if the model has not
// been fitted.
func (s *StateManager) RequireFitted(method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(s.modelName, method)
	}
	return nil
}

// RequireFeatures checks that X has as many columns as the model was fitted
// with.
func (s *StateManager) RequireFeatures(op string, nFeatures int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if nFeatures != s.nFeatures {
		return errors.NewDimensionError(op, s.nFeatures, nFeatures, 1)
	}
	return nil
}

// ModelState represents the persisted part of a StateManager.
type ModelState struct {
	Fitted       bool     `msgpack:"fitted"`
	NFeatures    int      `msgpack:"n_features"`
	NSamples     int      `msgpack:"n_samples"`
	FeatureNames []string `msgpack:"feature_names,omitempty"`
}

// GetState returns the current state.
func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{
		Fitted:       s.fitted,
		NFeatures:    s.nFeatures,
		NSamples:     s.nSamples,
		FeatureNames: append([]string(nil), s.featureNames...),
	}
}

// SetState restores a state returned by GetState.
func (s *StateManager) SetState(state ModelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = state.Fitted
	s.nFeatures = state.NFeatures
	s.nSamples = state.NSamples
	s.featureNames = append([]string(nil), state.FeatureNames...)
}
