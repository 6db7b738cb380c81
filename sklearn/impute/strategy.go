package impute

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/housereg/pkg/errors"
)

// StrategyKind selects how a fill value is derived from the observed values.
type StrategyKind int

const (
	// Mean fills with the arithmetic mean of the observed values.
	Mean StrategyKind = iota
	// Median fills with the median; for an even count the two middle values
	// are averaged.
	Median
	// MostFrequent fills with the mode; ties go to the smallest value.
	MostFrequent
	// Constant fills with a fixed value and needs no observed values.
	Constant
)

// Strategy is a fill rule. Use the MeanStrategy, MedianStrategy and
// MostFrequentStrategy values or ConstantStrategy.
type Strategy struct {
	Kind      StrategyKind `msgpack:"kind"`
	FillValue float64      `msgpack:"fill_value,omitempty"`
}

var (
	MeanStrategy         = Strategy{Kind: Mean}
	MedianStrategy       = Strategy{Kind: Median}
	MostFrequentStrategy = Strategy{Kind: MostFrequent}
)

// ConstantStrategy fills every missing value with v.
func ConstantStrategy(v float64) Strategy {
	return Strategy{Kind: Constant, FillValue: v}
}

func (s Strategy) String() string {
	switch s.Kind {
	case Mean:
		return "mean"
	case Median:
		return "median"
	case MostFrequent:
		return "most_frequent"
	case Constant:
		return "constant:" + strconv.FormatFloat(s.FillValue, 'g', -1, 64)
	default:
		return fmt.Sprintf("StrategyKind(%d)", int(s.Kind))
	}
}

// MarshalYAML writes the strategy by name, in the form ParseStrategy reads.
func (s Strategy) MarshalYAML() (interface{}, error) { return s.String(), nil }

// ParseStrategy maps a configuration name to a Strategy. Accepted names are
// "mean", "median", "most_frequent" and "constant"; fill is used only by
// "constant". "constant:<v>" is also accepted.
func ParseStrategy(name string, fill float64) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "mean":
		return MeanStrategy, nil
	case name == "median":
		return MedianStrategy, nil
	case name == "most_frequent":
		return MostFrequentStrategy, nil
	case name == "constant":
		return ConstantStrategy(fill), nil
	case strings.HasPrefix(name, "constant:"):
		v, err := strconv.ParseFloat(strings.TrimPrefix(name, "constant:"), 64)
		if err != nil {
			return Strategy{}, errors.NewValidationError("strategy", "constant fill value is not a number", name)
		}
		return ConstantStrategy(v), nil
	default:
		return Strategy{}, errors.NewValidationError("strategy", "must be one of mean, median, most_frequent, constant", name)
	}
}

// statistic computes the fill value from the observed (non-missing) values.
// ok is false when the strategy needs observations and there are none.
func (s Strategy) statistic(observed []float64) (v float64, ok bool) {
	if s.Kind == Constant {
		return s.FillValue, true
	}
	if len(observed) == 0 {
		return math.NaN(), false
	}
	switch s.Kind {
	case Mean:
		return stat.Mean(observed, nil), true
	case Median:
		sorted := append([]float64(nil), observed...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[mid], true
		}
		return (sorted[mid-1] + sorted[mid]) / 2, true
	case MostFrequent:
		return mostFrequent(observed), true
	default:
		return math.NaN(), false
	}
}

// mostFrequent returns the mode of x; ties go to the smallest value.
func mostFrequent(x []float64) float64 {
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	best, bestCount := sorted[0], 0
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if j-i > bestCount {
			best, bestCount = sorted[i], j-i
		}
		i = j
	}
	return best
}
