package engine

import (
	"reflect"
	"testing"

	"github.com/miradorstack/patient-dashboard/internal/dataset"
	"github.com/miradorstack/patient-dashboard/internal/models"
)

func TestFilterScenarioFromDashboard(t *testing.T) {
	handle := newHandle(t, patientHeader,
		[]string{"Male", "Flu", "Dr. A", "2023-01-01", "1", "Aetna", "3"},
		[]string{"Female", "Flu", "Dr. B", "2023-01-05", "2", "Aetna", "4"},
	)
	view, err := Filter(handle, models.Criteria{Gender: "All", Start: day("2023-01-01"), End: day("2023-01-03")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", view.Len())
	}
	if got := column(view, dataset.ColGender); got[0] != "Male" {
		t.Fatalf("expected the first record to survive, got %v", got)
	}
}

func TestFilterAllIsNoop(t *testing.T) {
	handle := sampleHandle(t)
	base := models.Criteria{Doctor: "Dr. Jones", Start: day("2023-01-01"), End: day("2023-12-31")}

	without, err := Filter(handle, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	withAll := base
	withAll.Gender = "All"
	withAll.Condition = "all"
	with, err := Filter(handle, withAll)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(without.Frame().Records(), with.Frame().Records()) {
		t.Fatalf("All filter changed the view")
	}
	if with.Len() != 2 {
		t.Fatalf("expected both Dr. Jones admissions, got %d", with.Len())
	}
}

func TestFilterIsCaseInsensitive(t *testing.T) {
	handle := sampleHandle(t)
	view, err := Filter(handle, models.Criteria{Gender: "FEMALE", Doctor: "DR. SMITH"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The bad-date row matches both categories but never survives the date filter.
	if view.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", view.Len())
	}
	if got := column(view, dataset.ColCondition); got[0] != "Asthma" {
		t.Fatalf("unexpected record: %v", got)
	}
}

func TestFilterDateRangeIsInclusive(t *testing.T) {
	handle := sampleHandle(t)
	view, err := Filter(handle, models.Criteria{Start: day("2023-01-01"), End: day("2023-01-03")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := column(view, dataset.ColAdmissionDate)
	want := []string{"2023-01-01", "2023-01-03"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFilterInvertedRangeIsEmpty(t *testing.T) {
	handle := sampleHandle(t)
	view, err := Filter(handle, models.Criteria{Start: day("2023-02-01"), End: day("2023-01-01")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Len() != 0 {
		t.Fatalf("expected empty view, got %d rows", view.Len())
	}
}

func TestFilterIsSubsetAndNonDestructive(t *testing.T) {
	handle := sampleHandle(t)
	before := handle.Frame().Records()

	criteria := []models.Criteria{
		{},
		{Gender: "Male"},
		{Condition: "Asthma", Start: day("2023-01-02")},
		{Doctor: "Dr. Nobody"},
		{Start: day("2024-01-01"), End: day("2023-01-01")},
	}
	all := make(map[string]struct{})
	for _, row := range before[1:] {
		all[rowKey(row)] = struct{}{}
	}
	for _, c := range criteria {
		view, err := Filter(handle, c)
		if err != nil {
			t.Fatalf("filter %+v: %v", c, err)
		}
		if view.Len() > handle.Len() {
			t.Fatalf("view larger than dataset for %+v", c)
		}
		for _, row := range view.Frame().Records()[1:] {
			if _, ok := all[rowKey(row)]; !ok {
				t.Fatalf("row %v not in dataset", row)
			}
		}
	}
	if !reflect.DeepEqual(before, handle.Frame().Records()) {
		t.Fatalf("dataset mutated by filtering")
	}
}

func rowKey(row []string) string {
	key := ""
	for _, cell := range row {
		key += cell + "\x00"
	}
	return key
}
