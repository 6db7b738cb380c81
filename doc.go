// Package housereg predicts house prices with a random forest regressor,
// following the usual scikit-learn workflow in Go.
//
// The experiment loads a CSV table, splits it into train and test rows,
// fills missing values in chosen numeric columns with statistics learned
// on the training rows, drops categorical columns, fits a forest and
// reports MAE and MAPE on both sides of the split.
//
// # Quick Start
//
//	housereg -data data/housing.csv -n-estimators 100 -plot pred.png
//
// or, as a library:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "os"
//
//	    "github.com/YuminosukeSato/housereg/pipeline"
//	)
//
//	func main() {
//	    cfg := pipeline.DefaultConfig()
//	    cfg.DataPath = "data/housing.csv"
//	    if _, err := pipeline.Run(context.Background(), cfg, os.Stdout); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Packages
//
//   - dataset: typed tables and the CSV loader
//   - sklearn/model_selection: seeded train/test split
//   - sklearn/impute: SimpleImputer (mean, median, most_frequent, constant)
//   - preprocessing: categorical column removal
//   - sklearn/tree: CART regression tree
//   - sklearn/ensemble: RandomForestRegressor
//   - metrics: MAE, MAPE, MSE, RMSE, R²
//   - pipeline: configuration and the end-to-end run
//   - core/model: fitted-state tracking and msgpack persistence
//   - core/parallel: worker pool helpers
//   - pkg/errors, pkg/log: error kinds and structured logging
//
// # Reproducibility
//
// Given the same table, configuration and seeds, a run prints the same two
// summary lines regardless of how many trees are fitted concurrently.
package housereg
