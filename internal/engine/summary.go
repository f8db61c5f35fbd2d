package engine

import (
	"math"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"github.com/miradorstack/patient-dashboard/internal/dataset"
	"github.com/miradorstack/patient-dashboard/internal/models"
)

// Summarize computes the key metrics of a view. The billing metric is only present when the
// dataset has a billing_amount column.
func Summarize(view View) models.Summary {
	summary := models.Summary{
		TotalPatients:    view.Len(),
		AvgLengthOfStay:  mean(dataset.Numbers(view.frame, dataset.ColLengthOfStay)),
		UniqueConditions: distinctCount(dataset.Text(view.frame, dataset.ColCondition)),
	}
	if view.HasColumn(dataset.ColBillingAmount) {
		avg := mean(dataset.Numbers(view.frame, dataset.ColBillingAmount))
		summary.AvgBilling = &models.BillingMetric{Mean: avg, Formatted: FormatCurrency(avg)}
	}
	return summary
}

// FormatCurrency renders v as dollars with thousands separators and two decimals.
func FormatCurrency(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "$NaN"
	}
	fixed := decimal.NewFromFloat(v).StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	return "$" + sign + groupThousands(whole) + "." + frac
}

// Round2 rounds to two decimals for display; NaN passes through.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// mean averages the non-NaN values; an empty input yields NaN.
func mean(values []float64) float64 {
	present := dropNaN(values)
	if len(present) == 0 {
		return math.NaN()
	}
	m, err := stats.Mean(present)
	if err != nil {
		return math.NaN()
	}
	return m
}

func dropNaN(values []float64) stats.Float64Data {
	out := make(stats.Float64Data, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func distinctCount(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}
