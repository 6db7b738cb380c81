// Package tree implements CART decision trees for regression.
//
// A fitted tree is stored as a flat slice of nodes; children are referenced by
// index, so a tree can be encoded and decoded without pointer chasing.
package tree

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/housereg/core/model"
	"github.com/YuminosukeSato/housereg/pkg/errors"
)

const (
	// featureThreshold is the smallest gap between two feature values that
	// admits a split between them.
	featureThreshold = 1e-7

	leaf = -1
)

var (
	_ model.Regressor          = (*DecisionTreeRegressor)(nil)
	_ model.FeatureImportancer = (*DecisionTreeRegressor)(nil)
	_ model.ParamGetter        = (*DecisionTreeRegressor)(nil)
)

// impurityEpsilon below which a node is considered pure.
var impurityEpsilon = math.Nextafter(1, 2) - 1

// Node is one node of a fitted tree. Leaves have Feature == -1.
type Node struct {
	Feature   int     `msgpack:"f"`
	Threshold float64 `msgpack:"t"`
	Left      int     `msgpack:"l"`
	Right     int     `msgpack:"r"`
	Value     float64 `msgpack:"v"`
	NSamples  int     `msgpack:"n"`
	Impurity  float64 `msgpack:"i"`
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return n.Feature == leaf }

// Option configures a DecisionTreeRegressor.
type Option func(*DecisionTreeRegressor)

// WithMaxDepth limits the depth of the tree. 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeRegressor) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples required to split a
// node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeRegressor) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in each child.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeRegressor) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many non-constant features are examined per split.
// 0 means all features.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeRegressor) { dt.maxFeatures = n }
}

// WithRandomState sets the seed that orders feature examination.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeRegressor) { dt.randomState = seed }
}

// DecisionTreeRegressor is a CART regression tree minimizing squared error.
type DecisionTreeRegressor struct {
	state *model.StateManager

	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	randomState     int64

	nodes       []Node
	importances []float64
}

// NewDecisionTreeRegressor creates a tree with scikit-learn's defaults:
// unlimited depth, min_samples_split=2, min_samples_leaf=1 and all features.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		state:           model.NewStateManager("DecisionTreeRegressor"),
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

func (dt *DecisionTreeRegressor) validateParams(nFeatures int) error {
	switch {
	case dt.maxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0 (0 means unlimited)", dt.maxDepth)
	case dt.minSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.minSamplesSplit)
	case dt.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.minSamplesLeaf)
	case dt.maxFeatures < 0 || dt.maxFeatures > nFeatures:
		return errors.NewValidationError("max_features", fmt.Sprintf("must be in [0, %d]", nFeatures), dt.maxFeatures)
	}
	return nil
}

// Fit builds the tree from X (n×p) and y (n×1 or 1×n).
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	cols, target, err := Columns("DecisionTreeRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	sample := make([]int, len(target))
	for i := range sample {
		sample[i] = i
	}
	return dt.FitSample(cols, target, sample)
}

// FitSample builds the tree from the rows listed in sample. cols holds the
// features column by column; a row may appear in sample more than once.
func (dt *DecisionTreeRegressor) FitSample(cols [][]float64, y []float64, sample []int) error {
	if len(cols) == 0 || len(sample) == 0 {
		return errors.NewValueError("DecisionTreeRegressor.Fit", "no samples or no features")
	}
	if err := dt.validateParams(len(cols)); err != nil {
		return err
	}

	b := &builder{
		cols:            cols,
		y:               y,
		rng:             rand.New(rand.NewPCG(uint64(dt.randomState), uint64(dt.randomState))),
		maxDepth:        dt.maxDepth,
		minSamplesSplit: dt.minSamplesSplit,
		minSamplesLeaf:  dt.minSamplesLeaf,
		maxFeatures:     dt.maxFeatures,
		importances:     make([]float64, len(cols)),
	}
	b.build(append([]int(nil), sample...), 0)

	total := 0.0
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for i := range b.importances {
			b.importances[i] /= total
		}
	}

	dt.nodes = b.nodes
	dt.importances = b.importances
	dt.state.SetFitted(len(cols), len(sample))
	return nil
}

// Predict returns an n×1 matrix of predictions.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("Predict"); err != nil {
		return nil, err
	}
	if X == nil {
		return nil, errors.NewValueError("DecisionTreeRegressor.Predict", "X must not be nil")
	}
	r, c := X.Dims()
	if err := dt.state.RequireFeatures("DecisionTreeRegressor.Predict", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, dt.PredictRow(row))
	}
	return out, nil
}

// PredictRow returns the prediction for one feature vector. The tree must be
// fitted.
func (dt *DecisionTreeRegressor) PredictRow(x []float64) float64 {
	i := 0
	for {
		n := &dt.nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// FeatureImportances returns the normalized total squared-error reduction
// contributed by each feature. All zeros when the tree is a single leaf.
func (dt *DecisionTreeRegressor) FeatureImportances() ([]float64, error) {
	if err := dt.state.RequireFitted("FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), dt.importances...), nil
}

// Nodes returns the fitted nodes. Node 0 is the root.
func (dt *DecisionTreeRegressor) Nodes() []Node { return dt.nodes }

// Depth returns the depth of the fitted tree; a single leaf has depth 0.
func (dt *DecisionTreeRegressor) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		n := dt.nodes[i]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// NLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeRegressor) NLeaves() int {
	n := 0
	for _, node := range dt.nodes {
		if node.IsLeaf() {
			n++
		}
	}
	return n
}

// IsFitted reports whether Fit has succeeded.
func (dt *DecisionTreeRegressor) IsFitted() bool { return dt.state.IsFitted() }

// GetParams returns the hyperparameters.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

func (dt *DecisionTreeRegressor) String() string {
	if !dt.IsFitted() {
		return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, min_samples_leaf=%d)", dt.maxDepth, dt.minSamplesLeaf)
	}
	return fmt.Sprintf("DecisionTreeRegressor(nodes=%d, depth=%d, leaves=%d)", len(dt.nodes), dt.Depth(), dt.NLeaves())
}

type treeSnapshot struct {
	MaxDepth        int              `msgpack:"max_depth"`
	MinSamplesSplit int              `msgpack:"min_samples_split"`
	MinSamplesLeaf  int              `msgpack:"min_samples_leaf"`
	MaxFeatures     int              `msgpack:"max_features"`
	RandomState     int64            `msgpack:"random_state"`
	Nodes           []Node           `msgpack:"nodes"`
	Importances     []float64        `msgpack:"importances"`
	State           model.ModelState `msgpack:"state"`
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (dt *DecisionTreeRegressor) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(treeSnapshot{
		MaxDepth:        dt.maxDepth,
		MinSamplesSplit: dt.minSamplesSplit,
		MinSamplesLeaf:  dt.minSamplesLeaf,
		MaxFeatures:     dt.maxFeatures,
		RandomState:     dt.randomState,
		Nodes:           dt.nodes,
		Importances:     dt.importances,
		State:           dt.state.GetState(),
	})
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (dt *DecisionTreeRegressor) DecodeMsgpack(dec *msgpack.Decoder) error {
	var s treeSnapshot
	if err := dec.Decode(&s); err != nil {
		return err
	}
	if s.State.Fitted && len(s.Nodes) == 0 {
		return errors.NewParseError("DecisionTreeRegressor.DecodeMsgpack", 0, "fitted tree has no nodes", nil)
	}
	if err := checkNodes(s.Nodes, s.State.NFeatures); err != nil {
		return err
	}
	dt.state = model.NewStateManager("DecisionTreeRegressor")
	dt.state.SetState(s.State)
	dt.maxDepth = s.MaxDepth
	dt.minSamplesSplit = s.MinSamplesSplit
	dt.minSamplesLeaf = s.MinSamplesLeaf
	dt.maxFeatures = s.MaxFeatures
	dt.randomState = s.RandomState
	dt.nodes = s.Nodes
	dt.importances = s.Importances
	return nil
}

// checkNodes rejects decoded trees whose traversal could leave the slice or
// loop forever.
func checkNodes(nodes []Node, nFeatures int) error {
	for i, n := range nodes {
		if n.IsLeaf() {
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures || n.Left <= i || n.Right <= i || n.Left >= len(nodes) || n.Right >= len(nodes) {
			return errors.NewParseError("DecisionTreeRegressor.DecodeMsgpack", 0, fmt.Sprintf("node %d is malformed", i), nil)
		}
	}
	return nil
}

// Columns validates X and y and returns X column by column together with the
// targets.
func Columns(op string, X, y mat.Matrix) ([][]float64, []float64, error) {
	if X == nil || y == nil {
		return nil, nil, errors.NewValueError(op, "X and y must not be nil")
	}
	r, c := X.Dims()
	yr, yc := y.Dims()
	if r == 0 || c == 0 {
		return nil, nil, errors.NewValueError(op, "X is empty")
	}
	var target []float64
	switch {
	case yc == 1:
		target = make([]float64, yr)
		for i := range target {
			target[i] = y.At(i, 0)
		}
	case yr == 1:
		target = make([]float64, yc)
		for i := range target {
			target[i] = y.At(0, i)
		}
	default:
		return nil, nil, errors.NewValueErrorf(op, "y must be a vector, got %d×%d", yr, yc)
	}
	if len(target) != r {
		return nil, nil, errors.NewDimensionError(op, r, len(target), 0)
	}
	if err := errors.CheckMatrix(op, X, r, c); err != nil {
		return nil, nil, err
	}
	if err := errors.CheckFinite(op, target); err != nil {
		return nil, nil, err
	}

	cols := make([][]float64, c)
	for j := range cols {
		cols[j] = mat.Col(nil, j, X)
	}
	return cols, target, nil
}

type builder struct {
	cols [][]float64
	y    []float64
	rng  *rand.Rand

	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int

	nodes       []Node
	importances []float64
}

// build appends the subtree for idx and returns the index of its root.
func (b *builder) build(idx []int, depth int) int {
	n := len(idx)
	sum := 0.0
	for _, i := range idx {
		sum += b.y[i]
	}
	mean := sum / float64(n)
	impurity := 0.0
	for _, i := range idx {
		d := b.y[i] - mean
		impurity += d * d
	}
	impurity /= float64(n)

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: leaf, Value: mean, NSamples: n, Impurity: impurity})

	if n < b.minSamplesSplit || n < 2*b.minSamplesLeaf ||
		(b.maxDepth > 0 && depth >= b.maxDepth) || impurity <= impurityEpsilon {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, sum)
	if !ok {
		return id
	}

	col := b.cols[feature]
	left := make([]int, 0, n)
	right := make([]int, 0, n)
	for _, i := range idx {
		if col[i] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)

	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r

	b.importances[feature] += float64(n)*impurity -
		float64(len(left))*b.nodes[l].Impurity -
		float64(len(right))*b.nodes[r].Impurity
	return id
}

// bestSplit examines features in a random order and returns the split with the
// largest squared-error reduction. Constant features do not count towards
// maxFeatures.
func (b *builder) bestSplit(idx []int, sum float64) (feature int, threshold float64, ok bool) {
	n := len(idx)
	sorted := make([]int, n)
	best := math.Inf(-1)
	visited := 0

	for _, f := range b.rng.Perm(len(b.cols)) {
		if b.maxFeatures > 0 && visited >= b.maxFeatures {
			break
		}
		col := b.cols[f]
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return col[sorted[a]] < col[sorted[c]] })
		if col[sorted[n-1]] <= col[sorted[0]]+featureThreshold {
			continue
		}
		visited++

		sumLeft := 0.0
		for nLeft := 1; nLeft < n; nLeft++ {
			sumLeft += b.y[sorted[nLeft-1]]
			nRight := n - nLeft
			if nLeft < b.minSamplesLeaf || nRight < b.minSamplesLeaf {
				continue
			}
			lo, hi := col[sorted[nLeft-1]], col[sorted[nLeft]]
			if hi <= lo+featureThreshold {
				continue
			}
			sumRight := sum - sumLeft
			proxy := sumLeft*sumLeft/float64(nLeft) + sumRight*sumRight/float64(nRight)
			if proxy > best {
				best = proxy
				feature = f
				threshold = lo/2 + hi/2
				if threshold == hi || math.IsInf(threshold, 0) || math.IsNaN(threshold) {
					threshold = lo
				}
				ok = true
			}
		}
	}
	return feature, threshold, ok
}
