package engine

import (
	"bytes"
	"fmt"

	"github.com/go-gota/gota/dataframe"

	"github.com/miradorstack/patient-dashboard/internal/models"
)

// PreviewRows is the default number of rows shown in the table widget.
const PreviewRows = 100

// Export serializes the view as CSV with a header row and no index column.
func Export(view View) ([]byte, error) {
	var buf bytes.Buffer
	if err := view.frame.WriteCSV(&buf, dataframe.WriteHeader(true)); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Preview returns the first n rows of the view as text.
func Preview(view View, n int) models.Preview {
	if n <= 0 {
		n = PreviewRows
	}
	total := view.Len()
	if n > total {
		n = total
	}

	columns := view.frame.Names()
	rows := make([][]string, n)
	for r := 0; r < n; r++ {
		row := make([]string, len(columns))
		for c := range columns {
			row[c] = view.frame.Elem(r, c).String()
		}
		rows[r] = row
	}
	return models.Preview{Columns: columns, Rows: rows, TotalRows: total}
}
