// Package preprocessing provides column-level transformations applied before
// model fitting.
package preprocessing

import (
	"github.com/YuminosukeSato/housereg/dataset"
	"github.com/YuminosukeSato/housereg/pkg/log"
)

// CategoricalColumns returns the names of the columns declared Categorical,
// in schema order.
func CategoricalColumns(t *dataset.Table) []string {
	var names []string
	for _, f := range t.Schema().Fields {
		if f.Kind == dataset.Categorical {
			names = append(names, f.Name)
		}
	}
	return names
}

// RemoveCategorical returns t without its categorical columns. The decision is
// made from the schema alone; numeric columns keep their order and values.
// Calling it on its own output returns an identical table.
func RemoveCategorical(t *dataset.Table) *dataset.Table {
	out := t.SelectKind(dataset.Numeric)
	if dropped := CategoricalColumns(t); len(dropped) > 0 {
		log.GetLoggerWithName("preprocessing").Debug("Removed categorical columns",
			log.OperationKey, log.OperationTransform,
			log.DroppedColumnsKey, dropped,
			log.FeaturesKey, out.NumCols(),
		)
	}
	return out
}
