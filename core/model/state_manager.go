package model

import (
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// StateManager tracks the fitted state of an estimator in a thread-safe manner.
// Estimators hold one by composition instead of embedding a base type.
type StateManager struct {
	mu sync.RWMutex

	fitted    bool
	nFeatures int
	nSamples  int
	classes   []float64
}

// NewStateManager creates a new StateManager instance.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// SetFitted marks the model as fitted with the given training shape.
func (s *StateManager) SetFitted(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = true
	s.nFeatures = nFeatures
	s.nSamples = nSamples
}

// SetClasses records the labels seen during fitting.
func (s *StateManager) SetClasses(classes []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes = append([]float64(nil), classes...)
}

// Classes returns a copy of the labels seen during fitting.
func (s *StateManager) Classes() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.classes...)
}

// Reset resets the fitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = false
	s.nFeatures = 0
	s.nSamples = 0
	s.classes = nil
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples
}

// RequireFitted returns a NotFittedError if the model has not been fitted.
func (s *StateManager) RequireFitted(modelName, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// CheckPredictInput verifies the model is fitted and X has the training
// number of features.
func (s *StateManager) CheckPredictInput(modelName, method string, X mat.Matrix) error {
	if err := s.RequireFitted(modelName, method); err != nil {
		return err
	}
	_, c := X.Dims()
	nFeatures, _ := s.GetDimensions()
	if c != nFeatures {
		return errors.NewDimensionError(modelName+"."+method, nFeatures, c, 1)
	}
	return nil
}
