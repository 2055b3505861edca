package dataset

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ErrNoColumns is returned when a source has no header row.
var ErrNoColumns = errors.New("dataset has no columns")

// Kind is the inferred type of a column.
type Kind string

const (
	KindNumeric Kind = "numeric"
	KindBoolean Kind = "boolean"
	KindText    Kind = "text"
)

// DefaultNAValues are the cell tokens treated as missing.
var DefaultNAValues = []string{
	"", "NA", "N/A", "n/a", "NaN", "nan", "-NaN", "-nan",
	"NULL", "null", "None", "<NA>", "#N/A", "#NA", "<nil>",
}

// gota's canonical missing marker.
const naMarker = "NaN"

// Options controls how tabular sources are loaded.
type Options struct {
	// MaxRows limits rows loaded; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, chosen from the file extension.
	Delimiter rune
	// Locale separators. When either is set, numeric-looking cells are
	// rewritten to canonical form before type detection.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// NAValues overrides DefaultNAValues when non-nil.
	NAValues []string
	// XLSX sheet selection. SheetIndex is 1-based.
	SheetName  string
	SheetIndex int
}

// DefaultOptions returns the loader defaults.
func DefaultOptions() Options {
	return Options{SheetIndex: 1}
}

// Dataset is a read-only table of named, typed columns.
type Dataset struct {
	name       string
	df         dataframe.DataFrame
	sourceRows int
	warnings   []string
}

// FromRecords builds a Dataset from a header row followed by data rows.
func FromRecords(name string, records [][]string, opt Options) (*Dataset, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, ErrNoColumns
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	return fromTable(name, header, records[1:], opt)
}

func fromTable(name string, header []string, rows [][]string, opt Options) (*Dataset, error) {
	ncol := len(header)
	if ncol == 0 {
		return nil, ErrNoColumns
	}
	ds := &Dataset{name: name, sourceRows: len(rows)}
	if opt.MaxRows > 0 && len(rows) > opt.MaxRows {
		rows = rows[:opt.MaxRows]
		ds.warnings = append(ds.warnings, fmt.Sprintf("processed only %d/%d rows due to MaxRows", opt.MaxRows, ds.sourceRows))
	}
	na := opt.NAValues
	if na == nil {
		na = DefaultNAValues
	}
	naSet := make(map[string]struct{}, len(na))
	for _, v := range na {
		naSet[v] = struct{}{}
	}
	normalize := opt.DecimalSeparator != 0 || opt.ThousandsSeparator != 0

	table := make([][]string, 0, len(rows)+1)
	table = append(table, header)
	for _, rec := range rows {
		row := make([]string, ncol)
		copy(row, rec)
		for j, v := range row {
			v = strings.TrimSpace(v)
			if _, ok := naSet[v]; ok {
				row[j] = naMarker
				continue
			}
			if normalize {
				if f, ok := parseNumeric(v, opt); ok {
					v = strconv.FormatFloat(f, 'f', -1, 64)
				}
			}
			row[j] = v
		}
		table = append(table, row)
	}

	if len(rows) == 0 {
		// gota refuses to load a header-only table, so build empty columns directly.
		cols := make([]series.Series, ncol)
		for i, h := range header {
			cols[i] = series.New([]string{}, series.String, h)
		}
		ds.df = dataframe.New(cols...)
	} else {
		ds.df = dataframe.LoadRecords(table,
			dataframe.HasHeader(true),
			dataframe.DetectTypes(true),
			dataframe.NaNValues([]string{naMarker}),
		)
		if ds.df.Err == nil {
			ds.df = promoteAllMissing(ds.df)
		}
	}
	if ds.df.Err != nil {
		return nil, fmt.Errorf("build dataframe: %w", ds.df.Err)
	}
	return ds, nil
}

// promoteAllMissing retypes columns with no observed cell as Float. Type
// detection leaves them as String, but an empty column carries no evidence
// of being text and belongs in the numeric summary with a zero count.
func promoteAllMissing(df dataframe.DataFrame) dataframe.DataFrame {
	for _, name := range df.Names() {
		s := df.Col(name)
		if s.Type() != series.String || s.Len() == 0 {
			continue
		}
		empty := true
		for _, na := range s.IsNaN() {
			if !na {
				empty = false
				break
			}
		}
		if !empty {
			continue
		}
		nan := make([]float64, s.Len())
		for i := range nan {
			nan[i] = math.NaN()
		}
		df = df.Mutate(series.New(nan, series.Float, name))
	}
	return df
}

// Load reads a CSV, TSV or XLSX file chosen by extension.
func Load(path string, opt Options) (*Dataset, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return LoadXLSX(path, opt)
	}
	return LoadCSV(path, opt)
}

// Name returns the dataset's source name (usually the file base name).
func (d *Dataset) Name() string { return d.name }

// Nrow returns the number of loaded rows.
func (d *Dataset) Nrow() int { return d.df.Nrow() }

// Ncol returns the number of columns.
func (d *Dataset) Ncol() int { return d.df.Ncol() }

// SourceRows returns the number of data rows present in the source, which
// exceeds Nrow when MaxRows truncated the load.
func (d *Dataset) SourceRows() int { return d.sourceRows }

// Warnings returns notes produced while loading.
func (d *Dataset) Warnings() []string {
	return append([]string(nil), d.warnings...)
}

// Columns returns column names in source order.
func (d *Dataset) Columns() []string { return d.df.Names() }

// Kind reports the inferred kind of the named column.
func (d *Dataset) Kind(col string) (Kind, error) {
	s := d.df.Col(col)
	if s.Err != nil {
		return "", fmt.Errorf("column %q: %w", col, s.Err)
	}
	return kindOf(s.Type()), nil
}

// NumericColumns returns the names of numeric columns in source order.
func (d *Dataset) NumericColumns() []string {
	var out []string
	types := d.df.Types()
	for i, name := range d.df.Names() {
		if kindOf(types[i]) == KindNumeric {
			out = append(out, name)
		}
	}
	return out
}

// Floats returns a copy of a numeric column's values with NaN for missing cells.
func (d *Dataset) Floats(col string) ([]float64, error) {
	s := d.df.Col(col)
	if s.Err != nil {
		return nil, fmt.Errorf("column %q: %w", col, s.Err)
	}
	if kindOf(s.Type()) != KindNumeric {
		return nil, fmt.Errorf("column %q is %s, not numeric", col, kindOf(s.Type()))
	}
	vals := s.Float()
	missing := s.IsNaN()
	for i := range vals {
		if missing[i] {
			vals[i] = math.NaN()
		}
	}
	return vals, nil
}

// Missing reports, per row, whether the named column's cell is missing.
func (d *Dataset) Missing(col string) ([]bool, error) {
	s := d.df.Col(col)
	if s.Err != nil {
		return nil, fmt.Errorf("column %q: %w", col, s.Err)
	}
	return s.IsNaN(), nil
}

func kindOf(t series.Type) Kind {
	switch t {
	case series.Int, series.Float:
		return KindNumeric
	case series.Bool:
		return KindBoolean
	default:
		return KindText
	}
}

func baseName(path string) string { return filepath.Base(path) }

// parseNumeric interprets s using the configured locale separators.
func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), " ", " ")
	if raw == "" {
		return 0, false
	}
	dec := opt.DecimalSeparator
	if dec == 0 {
		dec = '.'
	}
	thou := opt.ThousandsSeparator
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
