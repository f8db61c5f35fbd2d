package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/miradorstack/patient-dashboard/internal/dataset"
	"github.com/miradorstack/patient-dashboard/internal/models"
	"github.com/miradorstack/patient-dashboard/internal/utils"
)

// View is a filtered, read-only subset of a dataset.
type View struct {
	frame dataframe.DataFrame
}

// ViewOf returns the unfiltered view of handle.
func ViewOf(handle *dataset.Handle) View {
	return View{frame: handle.Frame()}
}

// Len returns the number of records in the view.
func (v View) Len() int {
	return v.frame.Nrow()
}

// Frame exposes the view's table.
func (v View) Frame() dataframe.DataFrame {
	return v.frame
}

// HasColumn reports whether the view carries column.
func (v View) HasColumn(column string) bool {
	return dataset.HasColumn(v.frame, column)
}

// Filter applies the categorical equality filters (skipping the All sentinel) and then the
// inclusive admission-date range. A zero Start or End leaves that side of the range open.
// Rows whose admission date cannot be parsed never survive the date filter.
func Filter(handle *dataset.Handle, criteria models.Criteria) (View, error) {
	frame := handle.Frame()

	categorical := []struct {
		column string
		want   string
	}{
		{dataset.ColGender, criteria.Gender},
		{dataset.ColCondition, criteria.Condition},
		{dataset.ColDoctor, criteria.Doctor},
	}
	for _, f := range categorical {
		if models.IsAll(f.want) {
			continue
		}
		frame = frame.Filter(dataframe.F{
			Colname:    f.column,
			Comparator: series.CompFunc,
			Comparando: equalFold(f.want),
		})
		if frame.Err != nil {
			return View{}, fmt.Errorf("filter %s: %w", f.column, frame.Err)
		}
	}

	frame = frame.Filter(dataframe.F{
		Colname:    dataset.ColAdmissionDate,
		Comparator: series.CompFunc,
		Comparando: admittedWithin(criteria.Start, criteria.End),
	})
	if frame.Err != nil {
		return View{}, fmt.Errorf("filter %s: %w", dataset.ColAdmissionDate, frame.Err)
	}
	return View{frame: frame}, nil
}

func equalFold(want string) func(series.Element) bool {
	want = strings.TrimSpace(want)
	return func(el series.Element) bool {
		if el.IsNA() {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(el.String()), want)
	}
}

func admittedWithin(start, end time.Time) func(series.Element) bool {
	return func(el series.Element) bool {
		if el.IsNA() {
			return false
		}
		admitted, err := utils.ParseDate(el.String())
		if err != nil {
			return false
		}
		if !start.IsZero() && admitted.Before(start) {
			return false
		}
		if !end.IsZero() && admitted.After(end) {
			return false
		}
		return true
	}
}
