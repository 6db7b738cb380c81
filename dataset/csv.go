package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/YuminosukeSato/housereg/pkg/errors"
	"github.com/YuminosukeSato/housereg/pkg/log"
)

// MissingMarkers are the cell contents read as a missing value.
var MissingMarkers = []string{"", "NA", "NaN", "nan", "<nil>", "null", "NULL"}

const nanCell = "NaN"

// LoadCSV reads a delimited table from a local path or an http(s) URI.
func LoadCSV(ctx context.Context, locator string) (*Table, error) {
	logger := log.GetLoggerWithName("dataset").With(log.OperationKey, log.OperationLoad, log.SourceKey, locator)
	start := time.Now()

	rc, err := open(ctx, locator)
	if err != nil {
		logger.Error("failed to open data source", log.ErrAttr(err)...)
		return nil, err
	}
	defer rc.Close()

	t, err := ReadCSV(rc)
	if err != nil {
		logger.Error("failed to parse data source", log.ErrAttr(err)...)
		return nil, err
	}

	logger.Info("Data loaded",
		log.SamplesKey, t.NumRows(),
		log.FeaturesKey, t.NumCols(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return t, nil
}

func open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
		if err != nil {
			return nil, errors.NewIOError("LoadCSV", locator, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, errors.NewIOError("LoadCSV", locator, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, errors.NewIOError("LoadCSV", locator, errors.Newf("unexpected status %s", resp.Status))
		}
		return resp.Body, nil
	}

	f, err := os.Open(locator)
	if err != nil {
		return nil, errors.NewIOError("LoadCSV", locator, err)
	}
	return f, nil
}

// ReadCSV parses a comma-separated table with a header row.
//
// Cells are trimmed of surrounding whitespace. Column types are inferred by
// gota: integer, float and boolean columns become Numeric, everything else
// Categorical. A column whose cells are all missing is Numeric. Boolean
// columns (true/false in lower, title or upper case) are converted to 0/1 and
// reported through errors.Warn.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 0
	records, err := cr.ReadAll()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, errors.NewParseError("ReadCSV", pe.Line, pe.Err.Error(), err)
		}
		return nil, errors.NewIOError("ReadCSV", "", err)
	}

	if len(records) == 0 {
		return nil, errors.NewParseError("ReadCSV", 0, "missing header row", nil)
	}
	header := records[0]
	if len(records) == 1 {
		return nil, errors.NewParseError("ReadCSV", 1, "no data rows", nil)
	}
	seen := make(map[string]struct{}, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.NewParseError("ReadCSV", 1, fmt.Sprintf("column %d has an empty name", i+1), nil)
		}
		if _, dup := seen[name]; dup {
			return nil, errors.NewParseError("ReadCSV", 1, fmt.Sprintf("duplicate column '%s'", name), nil)
		}
		seen[name] = struct{}{}
		header[i] = name
	}

	// gota only skips "NaN" during type detection, so every marker is
	// normalized to it. A column with no observed value is forced to float.
	types := make(map[string]series.Type)
	for j, name := range header {
		allMissing, allBool := true, true
		for _, rec := range records[1:] {
			rec[j] = strings.TrimSpace(rec[j])
			if isMissing(rec[j]) {
				rec[j] = nanCell
				continue
			}
			allMissing = false
			if _, ok := boolLiterals[rec[j]]; !ok {
				allBool = false
			}
		}
		switch {
		case allMissing:
			types[name] = series.Float
		case allBool:
			for _, rec := range records[1:] {
				if rec[j] != nanCell {
					rec[j] = boolLiterals[rec[j]]
				}
			}
		}
	}

	opts := []dataframe.LoadOption{
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues([]string{nanCell}),
	}
	if len(types) > 0 {
		opts = append(opts, dataframe.WithTypes(types))
	}
	df := dataframe.LoadRecords(records, opts...)
	if df.Err != nil {
		return nil, errors.NewParseError("ReadCSV", 0, "type inference failed", df.Err)
	}

	return fromDataFrame(df)
}

// boolLiterals maps the accepted spellings of a boolean cell to the form gota
// detects. A column is boolean only when every observed cell is one of them.
var boolLiterals = map[string]string{
	"true": "true", "True": "true", "TRUE": "true",
	"false": "false", "False": "false", "FALSE": "false",
}

func isMissing(cell string) bool {
	for _, m := range MissingMarkers {
		if cell == m {
			return true
		}
	}
	return false
}

func fromDataFrame(df dataframe.DataFrame) (*Table, error) {
	names := df.Names()
	types := df.Types()
	cols := make([]Column, len(names))

	for j, name := range names {
		s := df.Col(name)
		switch types[j] {
		case series.Int, series.Float:
			cols[j] = NumericColumn(name, s.Float())
		case series.Bool:
			errors.Warn(errors.NewDataConversionWarning(name, "bool", "float64", "boolean column encoded as 0/1"))
			cols[j] = NumericColumn(name, s.Float())
		default:
			records := s.Records()
			nan := s.IsNaN()
			for i := range records {
				if nan[i] {
					records[i] = ""
				}
			}
			cols[j] = CategoricalColumn(name, records)
		}
	}

	return NewTable(nil, cols...)
}
