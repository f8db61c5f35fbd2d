package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ErrMissingColumns is returned when a required column is absent after normalization.
var ErrMissingColumns = errors.New("dataset missing required columns")

// Handle is the read-only, normalized patient table shared by every request.
// Cells are stored as text so exports reproduce the source values.
type Handle struct {
	frame  dataframe.DataFrame
	source string
}

// FromRecords builds a Handle from a header row followed by data rows.
func FromRecords(records [][]string, source string) (*Handle, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: no header row", source)
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = NormalizeColumn(name)
	}
	if missing := missingColumns(header); len(missing) > 0 {
		return nil, fmt.Errorf("%s: %w: %s", source, ErrMissingColumns, strings.Join(missing, ", "))
	}

	if len(records) == 1 {
		return nil, fmt.Errorf("%s: no data rows", source)
	}

	rows := make([][]string, 0, len(records))
	rows = append(rows, header)
	for _, rec := range records[1:] {
		rows = append(rows, padRow(rec, len(header)))
	}

	frame := dataframe.LoadRecords(rows,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if frame.Err != nil {
		return nil, fmt.Errorf("%s: build frame: %w", source, frame.Err)
	}
	return &Handle{frame: frame, source: source}, nil
}

// Frame returns the underlying table. Gota frames are values; callers cannot mutate the handle.
func (h *Handle) Frame() dataframe.DataFrame {
	return h.frame
}

// Len returns the number of records.
func (h *Handle) Len() int {
	return h.frame.Nrow()
}

// Columns returns the normalized column names in source order.
func (h *Handle) Columns() []string {
	return h.frame.Names()
}

// HasColumn reports whether the normalized column exists.
func (h *Handle) HasColumn(name string) bool {
	return HasColumn(h.frame, name)
}

// Source is the path the handle was loaded from.
func (h *Handle) Source() string {
	return h.source
}

// HasColumn reports whether frame carries the named column.
func HasColumn(frame dataframe.DataFrame, name string) bool {
	for _, c := range frame.Names() {
		if c == name {
			return true
		}
	}
	return false
}

// Text returns a column as trimmed strings; missing cells come back as "".
func Text(frame dataframe.DataFrame, column string) []string {
	col := frame.Col(column)
	if col.Err != nil {
		return nil
	}
	values := make([]string, col.Len())
	for i := range values {
		el := col.Elem(i)
		if el.IsNA() {
			continue
		}
		values[i] = strings.TrimSpace(el.String())
	}
	return values
}

// Numbers returns a column parsed as float64; blank or unparseable cells become NaN.
func Numbers(frame dataframe.DataFrame, column string) []float64 {
	text := Text(frame, column)
	values := make([]float64, len(text))
	for i, raw := range text {
		values[i] = parseNumber(raw)
	}
	return values
}

func parseNumber(raw string) float64 {
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.TrimPrefix(raw, "$")
	if raw == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func padRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	// Short rows are padded with blanks, long rows truncated to the header width.
	out := make([]string, width)
	copy(out, row)
	return out
}
