// Command housereg trains a random forest on a housing price table and
// prints in-sample and out-of-sample MAE and MAPE.
//
// Usage:
//
//	housereg [-config run.yaml] [-data data/housing.csv] [-plot pred.png] ...
//
// Flags given on the command line override the configuration file, which in
// turn overrides the built-in defaults.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/YuminosukeSato/housereg/pipeline"
	"github.com/YuminosukeSato/housereg/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(stderr, "housereg: %v\n", err)
		return 1
	}

	if err := log.SetupLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintf(stderr, "housereg: %v\n", err)
		return 1
	}
	logger := log.GetLoggerWithName("main")

	if _, err := pipeline.Run(ctx, cfg, stdout); err != nil {
		logger.Error("housereg failed", log.ErrAttr(err)...)
		fmt.Fprintf(stderr, "%+v\n", err)
		return 1
	}
	return 0
}

func parseConfig(args []string, stderr io.Writer) (pipeline.Config, error) {
	fs := flag.NewFlagSet("housereg", flag.ContinueOnError)
	fs.SetOutput(stderr)

	def := pipeline.DefaultConfig()
	configPath := fs.String("config", "", "YAML configuration file")
	data := fs.String("data", def.DataPath, "path or http(s) URI of the CSV table")
	label := fs.String("label", def.LabelColumn, "label column")
	imputeCols := fs.String("impute", strings.Join(def.ImputeColumns, ","), "comma-separated numeric columns to impute")
	strategy := fs.String("strategy", def.ImputeStrategy, "imputation strategy: mean, median, most_frequent, constant")
	fill := fs.Float64("fill-value", def.ImputeFillValue, "fill value for the constant strategy")
	testSize := fs.Float64("test-size", def.TestSize, "held-out fraction in (0, 1)")
	modelName := fs.String("model", def.Model, "random_forest or linear_regression")
	splitSeed := fs.Int64("split-seed", def.SplitSeed, "seed of the train/test split")
	modelSeed := fs.Int64("model-seed", def.ModelSeed, "seed of the random forest")
	nEstimators := fs.Int("n-estimators", def.NEstimators, "number of trees")
	maxDepth := fs.Int("max-depth", def.MaxDepth, "maximum tree depth, 0 for unlimited")
	nJobs := fs.Int("n-jobs", def.NJobs, "trees fitted concurrently, 0 or less for one per CPU")
	plotPath := fs.String("plot", def.PlotPath, "write a predicted-vs-actual plot to this file")
	modelPath := fs.String("save-model", def.ModelPath, "write the fitted model to this file")
	reportPath := fs.String("report", def.ReportPath, "write the run report as YAML to this file")
	logLevel := fs.String("log-level", def.LogLevel, "debug, info, warn or error")
	logFormat := fs.String("log-format", def.LogFormat, "console or json")

	if err := fs.Parse(args); err != nil {
		return def, err
	}
	if fs.NArg() > 0 {
		return def, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg := def
	if *configPath != "" {
		loaded, err := pipeline.LoadConfig(*configPath)
		if err != nil {
			return def, err
		}
		cfg = loaded
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	override := func(name string, apply func()) {
		if set[name] {
			apply()
		}
	}
	override("data", func() { cfg.DataPath = *data })
	override("label", func() { cfg.LabelColumn = *label })
	override("impute", func() { cfg.ImputeColumns = splitList(*imputeCols) })
	override("strategy", func() { cfg.ImputeStrategy = *strategy })
	override("fill-value", func() { cfg.ImputeFillValue = *fill })
	override("test-size", func() { cfg.TestSize = *testSize })
	override("model", func() { cfg.Model = *modelName })
	override("split-seed", func() { cfg.SplitSeed = *splitSeed })
	override("model-seed", func() { cfg.ModelSeed = *modelSeed })
	override("n-estimators", func() { cfg.NEstimators = *nEstimators })
	override("max-depth", func() { cfg.MaxDepth = *maxDepth })
	override("n-jobs", func() { cfg.NJobs = *nJobs })
	override("plot", func() { cfg.PlotPath = *plotPath })
	override("save-model", func() { cfg.ModelPath = *modelPath })
	override("report", func() { cfg.ReportPath = *reportPath })
	override("log-level", func() { cfg.LogLevel = *logLevel })
	override("log-format", func() { cfg.LogFormat = *logFormat })

	return cfg, cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
