package engine

import (
	"math"
	"sort"

	"github.com/miradorstack/patient-dashboard/internal/dataset"
	"github.com/miradorstack/patient-dashboard/internal/models"
)

// TopConditionsLimit caps the conditions chart.
const TopConditionsLimit = 10

// RankConditions counts patients per medical condition, most frequent first. Ties keep the
// order in which conditions first appear in the view. limit <= 0 returns every condition.
func RankConditions(view View, limit int) []models.ConditionCount {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, condition := range dataset.Text(view.frame, dataset.ColCondition) {
		if condition == "" {
			continue
		}
		if _, seen := counts[condition]; !seen {
			order = append(order, condition)
		}
		counts[condition]++
	}

	ranked := make([]models.ConditionCount, 0, len(order))
	for _, condition := range order {
		ranked = append(ranked, models.ConditionCount{Condition: condition, Patients: counts[condition]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Patients > ranked[j].Patients
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// RankRatings averages the hospital rating per insurance provider, best first. Providers
// are grouped in name order before sorting so ties are deterministic; a provider whose
// ratings are all missing has a NaN average and sorts last.
func RankRatings(view View) []models.ProviderRating {
	providers := dataset.Text(view.frame, dataset.ColInsurer)
	ratings := dataset.Numbers(view.frame, dataset.ColHospitalRating)

	groups := make(map[string][]float64)
	for i, provider := range providers {
		if provider == "" {
			continue
		}
		groups[provider] = append(groups[provider], ratings[i])
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	ranked := make([]models.ProviderRating, 0, len(names))
	for _, name := range names {
		ranked = append(ranked, models.ProviderRating{
			Provider:  name,
			AvgRating: mean(groups[name]),
			Patients:  len(groups[name]),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].AvgRating, ranked[j].AvgRating
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		return a > b
	})
	return ranked
}
