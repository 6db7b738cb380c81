// Package impute fills missing values in numeric columns.
//
// The statistics are computed from the training rows only and then applied
// unchanged to any other table, so nothing about the held-out rows leaks into
// the fitted fill values.
package impute

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/housereg/core/model"
	"github.com/YuminosukeSato/housereg/dataset"
	"github.com/YuminosukeSato/housereg/pkg/errors"
	"github.com/YuminosukeSato/housereg/pkg/log"
)

// ImputerState holds the fitted fill value of every imputed column.
type ImputerState struct {
	Strategy   Strategy           `msgpack:"strategy" yaml:"strategy"`
	Columns    []string           `msgpack:"columns" yaml:"columns"`
	Statistics map[string]float64 `msgpack:"statistics" yaml:"statistics"`
}

// Statistic returns the fill value of a column.
func (s *ImputerState) Statistic(column string) (float64, bool) {
	v, ok := s.Statistics[column]
	return v, ok
}

// Option configures a SimpleImputer.
type Option func(*SimpleImputer)

// WithStrategy sets the fill rule. The default is MeanStrategy.
func WithStrategy(s Strategy) Option {
	return func(im *SimpleImputer) { im.strategy = s }
}

// SimpleImputer replaces NaN in numeric columns with a per-column statistic.
type SimpleImputer struct {
	state    *model.StateManager
	strategy Strategy
	fitted   *ImputerState
	logger   log.Logger
}

// NewSimpleImputer creates an imputer with the mean strategy unless
// overridden.
func NewSimpleImputer(opts ...Option) *SimpleImputer {
	im := &SimpleImputer{
		state:    model.NewStateManager("SimpleImputer"),
		strategy: MeanStrategy,
	}
	for _, opt := range opts {
		opt(im)
	}
	im.logger = log.GetLoggerWithName("impute").With(
		log.ModelNameKey, "SimpleImputer",
		log.EstimatorIDKey, uuid.NewString(),
		log.StrategyKey, im.strategy.String(),
	)
	return im
}

// Fit computes the fill value of each column from the rows of t.
func Fit(t *dataset.Table, columns []string, strategy Strategy) (*ImputerState, error) {
	if strategy.Kind < Mean || strategy.Kind > Constant {
		return nil, errors.NewValidationError("strategy", "unknown strategy", strategy.String())
	}
	if err := checkColumns("SimpleImputer.Fit", t, columns); err != nil {
		return nil, err
	}

	st := &ImputerState{
		Strategy:   strategy,
		Columns:    append([]string(nil), columns...),
		Statistics: make(map[string]float64, len(columns)),
	}
	for _, name := range columns {
		values, _ := t.Floats(name)
		observed := make([]float64, 0, len(values))
		for _, v := range values {
			if !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}
		v, ok := strategy.statistic(observed)
		if !ok {
			return nil, errors.NewValueErrorf("SimpleImputer.Fit",
				"column '%s' has no observed values; cannot compute %s", name, strategy)
		}
		st.Statistics[name] = v
	}
	return st, nil
}

// Apply returns copies of the named columns of t with every NaN replaced by
// the fitted statistic. The set of columns must equal the fitted set; the
// result follows the order of columns.
func Apply(t *dataset.Table, columns []string, st *ImputerState) ([]dataset.Column, error) {
	if st == nil {
		return nil, errors.NewValueError("SimpleImputer.Transform", "imputer state is nil")
	}
	if !sameSet(columns, st.Columns) {
		return nil, errors.NewValueErrorf("SimpleImputer.Transform",
			"columns [%s] do not match fitted columns [%s]",
			strings.Join(columns, ", "), strings.Join(st.Columns, ", "))
	}
	if err := checkColumns("SimpleImputer.Transform", t, columns); err != nil {
		return nil, err
	}

	out := make([]dataset.Column, len(columns))
	for j, name := range columns {
		values, _ := t.Floats(name)
		fill := st.Statistics[name]
		filled := make([]float64, len(values))
		for i, v := range values {
			if math.IsNaN(v) {
				filled[i] = fill
			} else {
				filled[i] = v
			}
		}
		out[j] = dataset.NumericColumn(name, filled)
	}
	return out, nil
}

// FitTransform fits the imputer on t and returns the imputed columns. A
// failed fit leaves the imputer unfitted.
func (im *SimpleImputer) FitTransform(t *dataset.Table, columns []string) (*ImputerState, []dataset.Column, error) {
	im.fitted = nil
	im.state.Reset()

	st, err := Fit(t, columns, im.strategy)
	if err != nil {
		im.logger.Error("fit failed", log.ErrAttr(err)...)
		return nil, nil, err
	}
	cols, err := Apply(t, columns, st)
	if err != nil {
		return nil, nil, err
	}

	im.fitted = st
	im.state.SetFitted(len(columns), t.NumRows())
	im.state.SetFeatureNames(columns)

	im.logger.Info("Imputer fitted",
		log.OperationKey, log.OperationFitTransform,
		log.PhaseKey, log.PhasePreprocessing,
		log.SamplesKey, t.NumRows(),
		log.ColumnsKey, columns,
		log.MissingKey, missing(t, columns),
	)
	return st, cols, nil
}

// Transform applies the fitted statistics to t.
func (im *SimpleImputer) Transform(t *dataset.Table, columns []string) ([]dataset.Column, error) {
	if err := im.state.RequireFitted("Transform"); err != nil {
		return nil, err
	}
	cols, err := Apply(t, columns, im.fitted)
	if err != nil {
		im.logger.Error("transform failed", log.ErrAttr(err)...)
		return nil, err
	}
	im.logger.Debug("Imputer applied",
		log.OperationKey, log.OperationTransform,
		log.SamplesKey, t.NumRows(),
		log.MissingKey, missing(t, columns),
	)
	return cols, nil
}

// State returns the fitted state, or nil before FitTransform.
func (im *SimpleImputer) State() *ImputerState { return im.fitted }

// IsFitted reports whether FitTransform has succeeded.
func (im *SimpleImputer) IsFitted() bool { return im.state.IsFitted() }

func checkColumns(op string, t *dataset.Table, columns []string) error {
	if t == nil {
		return errors.NewValueError(op, "table is nil")
	}
	seen := make(map[string]struct{}, len(columns))
	for _, name := range columns {
		if _, dup := seen[name]; dup {
			return errors.NewValueErrorf(op, "column '%s' listed twice", name)
		}
		seen[name] = struct{}{}
		if _, err := t.Floats(name); err != nil {
			return err
		}
	}
	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func missing(t *dataset.Table, columns []string) int {
	n := 0
	for _, name := range columns {
		c, _ := t.Column(name)
		n += c.MissingCount()
	}
	return n
}
