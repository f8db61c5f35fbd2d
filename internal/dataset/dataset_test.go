package dataset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleCSV = "\ufeff Gender ,Medical Condition,Doctor,Date of Admission,Length of Stay,Billing Amount,Insurance Provider,Hospital Overall Rating\n" +
	"Male,Flu,Dr. Smith,2023-01-01,3,1200.50,Aetna,4\n" +
	"Female,Asthma,Dr. Jones,2023-01-05,,800,Cigna,3\n" +
	"Female,Flu,Dr. Smith,not a date,5,NA,Aetna,5\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNormalizeColumn(t *testing.T) {
	assert.Equal(t, "date_of_admission", NormalizeColumn("  Date of Admission "))
	assert.Equal(t, "gender", NormalizeColumn("\ufeffGENDER"))
	assert.Equal(t, "hospital_overall_rating", NormalizeColumn("Hospital Overall Rating"))
}

func TestReadFileNormalizesHeader(t *testing.T) {
	handle, err := ReadFile(writeFile(t, "patients.csv", sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 3, handle.Len())
	assert.Equal(t, []string{
		"gender", "medical_condition", "doctor", "date_of_admission",
		"length_of_stay", "billing_amount", "insurance_provider", "hospital_overall_rating",
	}, handle.Columns())
	assert.True(t, handle.HasColumn(ColBillingAmount))
	assert.Equal(t, 1, handle.unparseableDates())
}

func TestNumbersTreatsBlanksAsNaN(t *testing.T) {
	handle, err := ReadFile(writeFile(t, "patients.csv", sampleCSV))
	require.NoError(t, err)

	stays := Numbers(handle.Frame(), ColLengthOfStay)
	require.Len(t, stays, 3)
	assert.Equal(t, 3.0, stays[0])
	assert.True(t, math.IsNaN(stays[1]))

	billing := Numbers(handle.Frame(), ColBillingAmount)
	assert.Equal(t, 1200.5, billing[0])
	assert.True(t, math.IsNaN(billing[2]), "NA should parse as missing")
}

func TestReadFileMissingColumns(t *testing.T) {
	path := writeFile(t, "broken.csv", "gender,doctor\nMale,Dr. Who\n")
	_, err := ReadFile(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumns))
	assert.Contains(t, err.Error(), "medical_condition")
}

func TestReadFileMissingFile(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoaderMemoizes(t *testing.T) {
	path := writeFile(t, "patients.csv", sampleCSV)
	loader := NewLoader(path, nil)

	_, err := loader.Handle()
	assert.True(t, errors.Is(err, ErrNotLoaded))

	first, err := loader.Load()
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	second, err := loader.Load()
	require.NoError(t, err)
	assert.Same(t, first, second)

	cached, err := loader.Handle()
	require.NoError(t, err)
	assert.Same(t, first, cached)
}

func TestLoaderMemoizesFailure(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent.csv"), nil)
	_, err := loader.Load()
	require.Error(t, err)
	_, err = loader.Handle()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotLoaded))
}

func TestReadFileXLSX(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	rows := [][]interface{}{
		{"Gender", "Medical Condition", "Doctor", "Date of Admission", "Length of Stay", "Insurance Provider", "Hospital Overall Rating"},
		{"Male", "Flu", "Dr. Smith", "2023-01-01", "3", "Aetna", "4"},
		{"Female", "Asthma", "Dr. Jones", "2023-01-05", "7", "Cigna", "2"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		values := row
		require.NoError(t, book.SetSheetRow(sheet, cell, &values))
	}
	path := filepath.Join(t.TempDir(), "patients.xlsx")
	require.NoError(t, book.SaveAs(path))

	handle, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, handle.Len())
	assert.False(t, handle.HasColumn(ColBillingAmount))
	assert.Equal(t, []string{"Flu", "Asthma"}, Text(handle.Frame(), ColCondition))
}

func TestFromRecordsRejectsHeaderOnly(t *testing.T) {
	_, err := FromRecords([][]string{{"Gender", "Medical Condition", "Doctor", "Date of Admission", "Length of Stay", "Insurance Provider", "Hospital Overall Rating"}}, "empty.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data rows")
}
