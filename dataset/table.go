// Package dataset holds the in-memory tabular representation used by every
// stage of the pipeline.
//
// A Table is an ordered list of named columns with an explicit schema: each
// column is declared Numeric or Categorical when the table is built, so
// downstream stages never inspect values to decide a column's type. Numeric
// columns store float64 with NaN as the missing marker; categorical columns
// store strings with "" as the missing marker.
//
// Every table carries row identifiers (the 0-based position of the row in the
// loaded source). Row identifiers travel with the rows through Take, Select,
// Drop and WithColumns, so alignment with a label vector can always be checked.
package dataset

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/housereg/pkg/errors"
)

// Kind is the declared type of a column.
type Kind int

const (
	// Numeric columns hold float64 values.
	Numeric Kind = iota
	// Categorical columns hold text values.
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Field is one entry of a Schema.
type Field struct {
	Name string
	Kind Kind
}

// Schema is the ordered list of fields of a Table.
type Schema struct {
	Fields []Field
}

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of the named field.
func (s Schema) Index(name string) (int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Column is a named, typed sequence of values. Exactly one of Floats and
// Strings is used, according to Kind.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
}

// NumericColumn builds a Numeric column. The slice is not copied.
func NumericColumn(name string, values []float64) Column {
	return Column{Name: name, Kind: Numeric, Floats: values}
}

// CategoricalColumn builds a Categorical column. The slice is not copied.
func CategoricalColumn(name string, values []string) Column {
	return Column{Name: name, Kind: Categorical, Strings: values}
}

// Len returns the number of values in the column.
func (c Column) Len() int {
	if c.Kind == Numeric {
		return len(c.Floats)
	}
	return len(c.Strings)
}

// IsMissing reports whether row i holds the missing marker.
func (c Column) IsMissing(i int) bool {
	if c.Kind == Numeric {
		return math.IsNaN(c.Floats[i])
	}
	return c.Strings[i] == ""
}

// MissingCount returns the number of missing values.
func (c Column) MissingCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			n++
		}
	}
	return n
}

func (c Column) take(rows []int) Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Numeric {
		out.Floats = make([]float64, len(rows))
		for i, r := range rows {
			out.Floats[i] = c.Floats[r]
		}
		return out
	}
	out.Strings = make([]string, len(rows))
	for i, r := range rows {
		out.Strings[i] = c.Strings[r]
	}
	return out
}

// Table is an immutable collection of equally long columns.
// Methods that "modify" a table return a new Table; unchanged column slices
// are shared between the old and the new table and must not be written to.
type Table struct {
	columns []Column
	rowIDs  []int
	nrows   int
}

// NewTable builds a table from columns. rowIDs may be nil, in which case rows
// are numbered 0..n-1.
func NewTable(rowIDs []int, columns ...Column) (*Table, error) {
	nrows := len(rowIDs)
	if rowIDs == nil && len(columns) > 0 {
		nrows = columns[0].Len()
	}

	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if c.Name == "" {
			return nil, errors.NewValueError("NewTable", "column name must not be empty")
		}
		if _, dup := seen[c.Name]; dup {
			return nil, errors.NewValueErrorf("NewTable", "duplicate column '%s'", c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Kind != Numeric && c.Kind != Categorical {
			return nil, errors.NewValueErrorf("NewTable", "column '%s' has unknown kind %v", c.Name, c.Kind)
		}
		if c.Len() != nrows {
			return nil, errors.NewDimensionError(fmt.Sprintf("NewTable(%s)", c.Name), nrows, c.Len(), 0)
		}
	}

	if rowIDs == nil {
		rowIDs = make([]int, nrows)
		for i := range rowIDs {
			rowIDs[i] = i
		}
	}

	return &Table{
		columns: append([]Column(nil), columns...),
		rowIDs:  rowIDs,
		nrows:   nrows,
	}, nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.nrows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.columns) }

// Schema returns the table schema.
func (t *Table) Schema() Schema {
	fields := make([]Field, len(t.columns))
	for i, c := range t.columns {
		fields[i] = Field{Name: c.Name, Kind: c.Kind}
	}
	return Schema{Fields: fields}
}

// Names returns the column names in order.
func (t *Table) Names() []string { return t.Schema().Names() }

// RowIDs returns a copy of the row identifiers.
func (t *Table) RowIDs() []int { return append([]int(nil), t.rowIDs...) }

// Column returns the named column. The returned slices are shared with the
// table and must be treated as read-only.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Floats returns the values of a numeric column.
func (t *Table) Floats(name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, errors.NewValueErrorf("Table.Floats", "column '%s' not found", name)
	}
	if c.Kind != Numeric {
		return nil, errors.NewValueErrorf("Table.Floats", "column '%s' is %v, not numeric", name, c.Kind)
	}
	return c.Floats, nil
}

// Select returns a table with only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]Column, 0, len(names))
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, errors.NewValueErrorf("Table.Select", "column '%s' not found", name)
		}
		cols = append(cols, c)
	}
	return t.withColumns(cols), nil
}

// Drop returns a table without the named columns.
func (t *Table) Drop(names ...string) (*Table, error) {
	drop := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := t.Column(name); !ok {
			return nil, errors.NewValueErrorf("Table.Drop", "column '%s' not found", name)
		}
		drop[name] = struct{}{}
	}
	cols := make([]Column, 0, len(t.columns))
	for _, c := range t.columns {
		if _, ok := drop[c.Name]; !ok {
			cols = append(cols, c)
		}
	}
	return t.withColumns(cols), nil
}

// SelectKind returns a table with only the columns of the given kind, in
// schema order.
func (t *Table) SelectKind(kind Kind) *Table {
	cols := make([]Column, 0, len(t.columns))
	for _, c := range t.columns {
		if c.Kind == kind {
			cols = append(cols, c)
		}
	}
	return t.withColumns(cols)
}

// Take returns the rows at the given positions, in the given order. Row
// identifiers follow their rows.
func (t *Table) Take(rows []int) (*Table, error) {
	for _, r := range rows {
		if r < 0 || r >= t.nrows {
			return nil, errors.NewValueErrorf("Table.Take", "row %d out of range [0, %d)", r, t.nrows)
		}
	}
	cols := make([]Column, len(t.columns))
	for i, c := range t.columns {
		cols[i] = c.take(rows)
	}
	ids := make([]int, len(rows))
	for i, r := range rows {
		ids[i] = t.rowIDs[r]
	}
	return &Table{columns: cols, rowIDs: ids, nrows: len(rows)}, nil
}

// WithColumns returns a table where each given column replaces the column of
// the same name, or is appended when no such column exists.
func (t *Table) WithColumns(columns ...Column) (*Table, error) {
	cols := append([]Column(nil), t.columns...)
	for _, c := range columns {
		if c.Len() != t.nrows {
			return nil, errors.NewDimensionError(fmt.Sprintf("Table.WithColumns(%s)", c.Name), t.nrows, c.Len(), 0)
		}
		replaced := false
		for i := range cols {
			if cols[i].Name == c.Name {
				cols[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			cols = append(cols, c)
		}
	}
	return t.withColumns(cols), nil
}

func (t *Table) withColumns(cols []Column) *Table {
	return &Table{columns: cols, rowIDs: t.rowIDs, nrows: t.nrows}
}

// Labels extracts a numeric column as a label vector. Missing labels are
// rejected.
func (t *Table) Labels(name string) (*mat.VecDense, error) {
	values, err := t.Floats(name)
	if err != nil {
		return nil, err
	}
	if t.nrows == 0 {
		return nil, errors.NewValueError("Table.Labels", "table has no rows")
	}
	for i, v := range values {
		if math.IsNaN(v) {
			return nil, errors.NewValueErrorf("Table.Labels", "label '%s' is missing at row %d", name, t.rowIDs[i])
		}
	}
	return mat.NewVecDense(t.nrows, append([]float64(nil), values...)), nil
}

// Matrix returns the table as an n×p dense matrix. Every column must be
// numeric.
func (t *Table) Matrix() (*mat.Dense, error) {
	if t.nrows == 0 || len(t.columns) == 0 {
		return nil, errors.NewValueErrorf("Table.Matrix", "cannot build a %d×%d matrix", t.nrows, len(t.columns))
	}
	var categorical []string
	for _, c := range t.columns {
		if c.Kind != Numeric {
			categorical = append(categorical, c.Name)
		}
	}
	if len(categorical) > 0 {
		return nil, errors.NewValueErrorf("Table.Matrix", "non-numeric columns: %s", strings.Join(categorical, ", "))
	}

	p := len(t.columns)
	data := make([]float64, t.nrows*p)
	for j, c := range t.columns {
		for i, v := range c.Floats {
			data[i*p+j] = v
		}
	}
	return mat.NewDense(t.nrows, p, data), nil
}

// String renders a short description such as "Table(8×3: area, bedrooms, mainroad)".
func (t *Table) String() string {
	return fmt.Sprintf("Table(%d×%d: %s)", t.nrows, len(t.columns), strings.Join(t.Names(), ", "))
}
