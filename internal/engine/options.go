package engine

import (
	"sort"

	"github.com/miradorstack/patient-dashboard/internal/dataset"
	"github.com/miradorstack/patient-dashboard/internal/models"
	"github.com/miradorstack/patient-dashboard/internal/utils"
)

// Options derives the sidebar choices from the full dataset: the All sentinel followed by the
// sorted distinct values of each categorical column, plus the admission date bounds.
func Options(handle *dataset.Handle) models.Options {
	frame := handle.Frame()
	opts := models.Options{
		Genders:    choices(dataset.Text(frame, dataset.ColGender)),
		Conditions: choices(dataset.Text(frame, dataset.ColCondition)),
		Doctors:    choices(dataset.Text(frame, dataset.ColDoctor)),
	}
	for _, raw := range dataset.Text(frame, dataset.ColAdmissionDate) {
		admitted, err := utils.ParseDate(raw)
		if err != nil {
			continue
		}
		if opts.Dates.Start.IsZero() || admitted.Before(opts.Dates.Start) {
			opts.Dates.Start = admitted
		}
		if opts.Dates.End.IsZero() || admitted.After(opts.Dates.End) {
			opts.Dates.End = admitted
		}
	}
	return opts
}

// Resolve fills unset criteria from the sidebar defaults: All for categories and the dataset's
// admission bounds for the date range.
func Resolve(criteria models.Criteria, opts models.Options) models.Criteria {
	if models.IsAll(criteria.Gender) {
		criteria.Gender = models.AllValues
	}
	if models.IsAll(criteria.Condition) {
		criteria.Condition = models.AllValues
	}
	if models.IsAll(criteria.Doctor) {
		criteria.Doctor = models.AllValues
	}
	if criteria.Start.IsZero() {
		criteria.Start = opts.Dates.Start
	}
	if criteria.End.IsZero() {
		criteria.End = opts.Dates.End
	}
	return criteria
}

func choices(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	distinct := make([]string, 0)
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		distinct = append(distinct, v)
	}
	sort.Strings(distinct)
	return append([]string{models.AllValues}, distinct...)
}
