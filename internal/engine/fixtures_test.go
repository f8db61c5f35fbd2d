package engine

import (
	"testing"
	"time"

	"github.com/miradorstack/patient-dashboard/internal/dataset"
)

var patientHeader = []string{"Gender", "Medical Condition", "Doctor", "Date of Admission", "Length of Stay", "Insurance Provider", "Hospital Overall Rating"}

func newHandle(t *testing.T, header []string, rows ...[]string) *dataset.Handle {
	t.Helper()
	records := append([][]string{header}, rows...)
	handle, err := dataset.FromRecords(records, "test")
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	return handle
}

func sampleHandle(t *testing.T) *dataset.Handle {
	return newHandle(t, patientHeader,
		[]string{"Male", "Flu", "Dr. Smith", "2023-01-01", "3", "Aetna", "4"},
		[]string{"Female", "Flu", "Dr. Jones", "2023-01-05", "5", "Cigna", "3"},
		[]string{"female", "Asthma", "dr. smith", "2023-01-03", "2", "Aetna", "5"},
		[]string{"Male", "Diabetes", "Dr. Jones", "2023-02-10", "10", "Medicare", "2"},
		[]string{"Female", "Asthma", "Dr. Smith", "bad-date", "4", "", ""},
	)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func column(view View, name string) []string {
	return dataset.Text(view.Frame(), name)
}
