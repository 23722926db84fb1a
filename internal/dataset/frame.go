package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/R2i2Labs/fin-agent-ui/internal/stats"
)

// Dtype names follow the conventions of the dataframe tooling the generated
// scripts use, so the model sees familiar type labels.
type Dtype string

const (
	DtypeInt    Dtype = "int64"
	DtypeFloat  Dtype = "float64"
	DtypeObject Dtype = "object"
)

// Frame is an immutable tabular view over one parsed CSV dataset.
type Frame struct {
	Filename string

	columns []string
	dtypes  []Dtype
	cells   [][]string
}

// ParseCSV reads a full CSV document. The first record is the header; every
// following record must have the same width.
func ParseCSV(filename string, r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("parse csv: no header row")
	}

	frame := &Frame{
		Filename: filename,
		columns:  records[0],
		cells:    records[1:],
	}
	frame.dtypes = make([]Dtype, len(frame.columns))
	for col := range frame.columns {
		frame.dtypes[col] = inferDtype(frame.cells, col)
	}
	return frame, nil
}

// Shape returns [rows, columns], excluding the header row.
func (f *Frame) Shape() [2]int {
	return [2]int{len(f.cells), len(f.columns)}
}

// Columns returns the header names in file order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

// Dtypes maps every column to its inferred dtype name.
func (f *Frame) Dtypes() map[string]string {
	out := make(map[string]string, len(f.columns))
	for i, name := range f.columns {
		out[name] = string(f.dtypes[i])
	}
	return out
}

// DtypeSample renders the first n column dtypes in dict literal form for the
// script generation prompt.
func (f *Frame) DtypeSample(n int) string {
	if n > len(f.columns) {
		n = len(f.columns)
	}
	var b strings.Builder
	b.WriteString("{")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "'%s': '%s'", f.columns[i], f.dtypes[i])
	}
	b.WriteString("}")
	return b.String()
}

// Head returns the first n rows as column-keyed records with typed values.
// Unparseable or empty numeric cells come back as nil.
func (f *Frame) Head(n int) []map[string]any {
	if n > len(f.cells) {
		n = len(f.cells)
	}
	records := make([]map[string]any, 0, n)
	for _, row := range f.cells[:n] {
		record := make(map[string]any, len(f.columns))
		for col, name := range f.columns {
			record[name] = f.typedCell(row, col)
		}
		records = append(records, record)
	}
	return records
}

func (f *Frame) typedCell(row []string, col int) any {
	raw := row[col]
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	switch f.dtypes[col] {
	case DtypeInt:
		v, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil
		}
		return v
	case DtypeFloat:
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil
		}
		return v
	default:
		return raw
	}
}

// Describe summarizes numeric columns with count, mean, sample std, min, the
// quartiles, and max; values that cannot be computed are null. When the frame
// has no numeric columns, every column gets the categorical summary instead
// (count, unique, top, freq).
func (f *Frame) Describe() map[string]map[string]any {
	out := make(map[string]map[string]any)
	numeric := false
	for col, name := range f.columns {
		if f.dtypes[col] != DtypeInt && f.dtypes[col] != DtypeFloat {
			continue
		}
		numeric = true
		out[name] = describeNumeric(f.numericValues(col))
	}
	if numeric {
		return out
	}
	for col, name := range f.columns {
		out[name] = describeObject(f.cells, col)
	}
	return out
}

// NumericColumn returns the parsed values of a numeric column, skipping
// empty cells.
func (f *Frame) NumericColumn(name string) ([]float64, error) {
	for col, colName := range f.columns {
		if colName != name {
			continue
		}
		if f.dtypes[col] != DtypeInt && f.dtypes[col] != DtypeFloat {
			return nil, fmt.Errorf("column %q is not numeric", name)
		}
		return f.numericValues(col), nil
	}
	return nil, fmt.Errorf("column %q not found", name)
}

func (f *Frame) numericValues(col int) []float64 {
	values := make([]float64, 0, len(f.cells))
	for _, row := range f.cells {
		trimmed := strings.TrimSpace(row[col])
		if trimmed == "" {
			continue
		}
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	return values
}

func describeNumeric(values []float64) map[string]any {
	summary := map[string]any{
		"count": float64(len(values)),
		"mean":  nil,
		"std":   nil,
		"min":   nil,
		"25%":   nil,
		"50%":   nil,
		"75%":   nil,
		"max":   nil,
	}
	if len(values) == 0 {
		return summary
	}

	if mean, err := stats.Mean(values); err == nil {
		summary["mean"] = mean
	}
	if std, err := stats.SampleStdDev(values); err == nil {
		summary["std"] = std
	}
	summary["min"] = floats.Min(values)
	summary["max"] = floats.Max(values)
	for key, p := range map[string]float64{"25%": 25, "50%": 50, "75%": 75} {
		if q, err := stats.Percentile(values, p); err == nil {
			summary[key] = q
		}
	}
	return summary
}

func describeObject(cells [][]string, col int) map[string]any {
	counts := make(map[string]int)
	order := make([]string, 0)
	total := 0
	for _, row := range cells {
		v := row[col]
		if strings.TrimSpace(v) == "" {
			continue
		}
		total++
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	summary := map[string]any{
		"count":  float64(total),
		"unique": float64(len(counts)),
		"top":    nil,
		"freq":   nil,
	}
	top, freq := "", 0
	for _, v := range order {
		if counts[v] > freq {
			top, freq = v, counts[v]
		}
	}
	if freq > 0 {
		summary["top"] = top
		summary["freq"] = float64(freq)
	}
	return summary
}

// inferDtype mirrors how a dataframe reader types a column: all integer
// cells with none missing is int64, anything numeric (missing cells allowed)
// is float64, everything else is object.
func inferDtype(cells [][]string, col int) Dtype {
	sawValue := false
	hasEmpty := false
	isInt := true
	isFloat := true
	for _, row := range cells {
		trimmed := strings.TrimSpace(row[col])
		if trimmed == "" {
			hasEmpty = true
			continue
		}
		sawValue = true
		if isInt {
			if _, err := strconv.ParseInt(trimmed, 10, 64); err != nil {
				isInt = false
			}
		}
		if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
			isFloat = false
			break
		}
	}
	if !sawValue {
		if hasEmpty {
			return DtypeFloat
		}
		return DtypeObject
	}
	if isInt && !hasEmpty {
		return DtypeInt
	}
	if isFloat {
		return DtypeFloat
	}
	return DtypeObject
}
