// Package ensemble implements bagged tree ensembles.
package ensemble

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/housereg/core/model"
	"github.com/YuminosukeSato/housereg/core/parallel"
	"github.com/YuminosukeSato/housereg/pkg/errors"
	"github.com/YuminosukeSato/housereg/pkg/log"
	"github.com/YuminosukeSato/housereg/sklearn/tree"
)

// predictParallelThreshold is the row count above which Predict splits rows
// across workers.
const predictParallelThreshold = 1000

var (
	_ model.Regressor          = (*RandomForestRegressor)(nil)
	_ model.FeatureImportancer = (*RandomForestRegressor)(nil)
	_ model.ParamGetter        = (*RandomForestRegressor)(nil)
	_ model.FeatureNamer       = (*RandomForestRegressor)(nil)
)

// Option configures a RandomForestRegressor.
type Option func(*RandomForestRegressor)

// WithNEstimators sets the number of trees. Default 100.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestRegressor) { rf.nEstimators = n }
}

// WithMaxDepth limits the depth of every tree. 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestRegressor) { rf.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum node size that may be split. Default 2.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestRegressor) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples per leaf. Default 1.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestRegressor) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features examined per split. 0, the
// default, means all features.
func WithMaxFeatures(n int) Option {
	return func(rf *RandomForestRegressor) { rf.maxFeatures = n }
}

// WithBootstrap toggles sampling rows with replacement for each tree.
// Default true.
func WithBootstrap(b bool) Option {
	return func(rf *RandomForestRegressor) { rf.bootstrap = b }
}

// WithRandomState sets the master seed. Every per-tree seed is derived from
// it, so a fixed seed yields an identical forest regardless of WithNJobs.
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestRegressor) { rf.randomState = seed }
}

// WithNJobs sets the number of trees fitted concurrently. Values below 1 mean
// one worker per CPU core. Default 1.
func WithNJobs(n int) Option {
	return func(rf *RandomForestRegressor) { rf.nJobs = n }
}

// RandomForestRegressor averages CART regression trees fitted on bootstrap
// samples of the training rows.
type RandomForestRegressor struct {
	state *model.StateManager
	id    string

	nEstimators     int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	bootstrap       bool
	randomState     int64
	nJobs           int

	trees []*tree.DecisionTreeRegressor
}

// NewRandomForestRegressor creates a forest with scikit-learn's defaults.
func NewRandomForestRegressor(opts ...Option) *RandomForestRegressor {
	rf := &RandomForestRegressor{
		state:           model.NewStateManager("RandomForestRegressor"),
		id:              uuid.NewString(),
		nEstimators:     100,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		bootstrap:       true,
		nJobs:           1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

func (rf *RandomForestRegressor) logger() log.Logger {
	return log.GetLoggerWithName("ensemble").With(
		log.ModelNameKey, "RandomForestRegressor",
		log.EstimatorIDKey, rf.id,
	)
}

// Fit trains the forest. It is FitContext with a background context.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	return rf.FitContext(context.Background(), X, y)
}

// FitContext trains the forest, stopping early with ctx.Err() when ctx is
// cancelled.
func (rf *RandomForestRegressor) FitContext(ctx context.Context, X, y mat.Matrix) error {
	logger := rf.logger()
	start := time.Now()

	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	}
	cols, target, err := tree.Columns("RandomForestRegressor.Fit", X, y)
	if err != nil {
		logger.Error("fit failed", log.ErrAttr(err)...)
		return err
	}
	n, p := len(target), len(cols)

	// Seeds are drawn up front, in tree order, from a single generator.
	master := rand.New(rand.NewPCG(uint64(rf.randomState), uint64(rf.randomState)))
	seeds := make([]uint64, rf.nEstimators)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	trees := make([]*tree.DecisionTreeRegressor, rf.nEstimators)
	workers := parallel.Workers(rf.nJobs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return errors.SafeExecute(fmt.Sprintf("RandomForestRegressor.Fit(tree %d)", i), func() error {
				t, err := rf.fitTree(cols, target, seeds[i])
				if err != nil {
					return err
				}
				trees[i] = t
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("fit failed", log.ErrAttr(err)...)
		return err
	}

	rf.trees = trees
	rf.state.SetFitted(p, n)

	logger.Info("Training completed",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.HyperParamsKey, rf.GetParams(),
		log.WorkersKey, workers,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (rf *RandomForestRegressor) fitTree(cols [][]float64, y []float64, seed uint64) (*tree.DecisionTreeRegressor, error) {
	n := len(y)
	sample := make([]int, n)
	if rf.bootstrap {
		r := rand.New(rand.NewPCG(seed, ^seed))
		for i := range sample {
			sample[i] = r.IntN(n)
		}
	} else {
		for i := range sample {
			sample[i] = i
		}
	}

	t := tree.NewDecisionTreeRegressor(
		tree.WithMaxDepth(rf.maxDepth),
		tree.WithMinSamplesSplit(rf.minSamplesSplit),
		tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
		tree.WithMaxFeatures(rf.maxFeatures),
		tree.WithRandomState(int64(seed)),
	)
	if err := t.FitSample(cols, y, sample); err != nil {
		return nil, err
	}
	return t, nil
}

// Predict returns an n×1 matrix with the mean prediction of all trees.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	pred, err := rf.PredictVec(X)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(pred.Len(), 1, pred.RawVector().Data), nil
}

// PredictVec returns the mean prediction of all trees as a vector. Trees are
// summed in index order for every row, so the result does not depend on the
// number of workers.
func (rf *RandomForestRegressor) PredictVec(X mat.Matrix) (*mat.VecDense, error) {
	if err := rf.state.RequireFitted("Predict"); err != nil {
		return nil, err
	}
	if X == nil {
		return nil, errors.NewValueError("RandomForestRegressor.Predict", "X must not be nil")
	}
	r, c := X.Dims()
	if r == 0 {
		return nil, errors.NewValueError("RandomForestRegressor.Predict", "X has no rows")
	}
	if err := rf.state.RequireFeatures("RandomForestRegressor.Predict", c); err != nil {
		return nil, err
	}
	if err := errors.CheckMatrix("RandomForestRegressor.Predict", X, r, c); err != nil {
		return nil, err
	}

	out := make([]float64, r)
	nTrees := float64(len(rf.trees))
	parallel.ParallelizeWithThreshold(r, predictParallelThreshold, rf.nJobs, func(start, end int) {
		row := make([]float64, c)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			sum := 0.0
			for _, t := range rf.trees {
				sum += t.PredictRow(row)
			}
			out[i] = sum / nTrees
		}
	})

	rf.logger().Debug("Prediction completed",
		log.OperationKey, log.OperationPredict,
		log.PhaseKey, log.PhaseInference,
		log.PredsKey, r,
	)
	return mat.NewVecDense(r, out), nil
}

// FeatureImportances returns the mean of the per-tree impurity importances,
// normalized to sum to 1. All zeros when no tree made a split.
func (rf *RandomForestRegressor) FeatureImportances() ([]float64, error) {
	if err := rf.state.RequireFitted("FeatureImportances"); err != nil {
		return nil, err
	}
	nFeatures, _ := rf.state.GetDimensions()
	out := make([]float64, nFeatures)
	for _, t := range rf.trees {
		imp, err := t.FeatureImportances()
		if err != nil {
			return nil, err
		}
		for j, v := range imp {
			out[j] += v
		}
	}
	total := 0.0
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out, nil
}

// SetFeatureNames names the fitted columns so they are saved with the forest.
func (rf *RandomForestRegressor) SetFeatureNames(names []string) error {
	return rf.state.RecordFeatureNames("RandomForestRegressor.SetFeatureNames", names)
}

// FeatureNames returns the names given to SetFeatureNames, or nil.
func (rf *RandomForestRegressor) FeatureNames() []string { return rf.state.FeatureNames() }

// Estimators returns the fitted trees.
func (rf *RandomForestRegressor) Estimators() []*tree.DecisionTreeRegressor { return rf.trees }

// IsFitted reports whether Fit has succeeded.
func (rf *RandomForestRegressor) IsFitted() bool { return rf.state.IsFitted() }

// GetParams returns the hyperparameters.
func (rf *RandomForestRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

func (rf *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, max_depth=%d, max_features=%d, bootstrap=%t, random_state=%d)",
		rf.nEstimators, rf.maxDepth, rf.maxFeatures, rf.bootstrap, rf.randomState)
}

type forestSnapshot struct {
	NEstimators     int                           `msgpack:"n_estimators"`
	MaxDepth        int                           `msgpack:"max_depth"`
	MinSamplesSplit int                           `msgpack:"min_samples_split"`
	MinSamplesLeaf  int                           `msgpack:"min_samples_leaf"`
	MaxFeatures     int                           `msgpack:"max_features"`
	Bootstrap       bool                          `msgpack:"bootstrap"`
	RandomState     int64                         `msgpack:"random_state"`
	NJobs           int                           `msgpack:"n_jobs"`
	Trees           []*tree.DecisionTreeRegressor `msgpack:"trees"`
	State           model.ModelState              `msgpack:"state"`
}

// EncodeMsgpack implements msgpack.CustomEncoder so the forest can be saved
// with model.SaveModel.
func (rf *RandomForestRegressor) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(forestSnapshot{
		NEstimators:     rf.nEstimators,
		MaxDepth:        rf.maxDepth,
		MinSamplesSplit: rf.minSamplesSplit,
		MinSamplesLeaf:  rf.minSamplesLeaf,
		MaxFeatures:     rf.maxFeatures,
		Bootstrap:       rf.bootstrap,
		RandomState:     rf.randomState,
		NJobs:           rf.nJobs,
		Trees:           rf.trees,
		State:           rf.state.GetState(),
	})
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (rf *RandomForestRegressor) DecodeMsgpack(dec *msgpack.Decoder) error {
	var s forestSnapshot
	if err := dec.Decode(&s); err != nil {
		return err
	}
	if s.State.Fitted && len(s.Trees) == 0 {
		return errors.NewParseError("RandomForestRegressor.DecodeMsgpack", 0, "fitted forest has no trees", nil)
	}
	for i, t := range s.Trees {
		if t == nil || len(t.Nodes()) == 0 {
			return errors.NewParseError("RandomForestRegressor.DecodeMsgpack", 0, fmt.Sprintf("tree %d is empty", i), nil)
		}
	}
	rf.state = model.NewStateManager("RandomForestRegressor")
	rf.state.SetState(s.State)
	if rf.id == "" {
		rf.id = uuid.NewString()
	}
	rf.nEstimators = s.NEstimators
	rf.maxDepth = s.MaxDepth
	rf.minSamplesSplit = s.MinSamplesSplit
	rf.minSamplesLeaf = s.MinSamplesLeaf
	rf.maxFeatures = s.MaxFeatures
	rf.bootstrap = s.Bootstrap
	rf.randomState = s.RandomState
	rf.nJobs = s.NJobs
	rf.trees = s.Trees
	return nil
}
