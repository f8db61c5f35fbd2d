package dataset

import "strings"

// Normalized column names referenced by the dashboard.
const (
	ColGender         = "gender"
	ColCondition      = "medical_condition"
	ColDoctor         = "doctor"
	ColAdmissionDate  = "date_of_admission"
	ColLengthOfStay   = "length_of_stay"
	ColBillingAmount  = "billing_amount"
	ColInsurer        = "insurance_provider"
	ColHospitalRating = "hospital_overall_rating"
)

// RequiredColumns must be present after normalization or the load fails.
var RequiredColumns = []string{
	ColGender,
	ColCondition,
	ColDoctor,
	ColAdmissionDate,
	ColLengthOfStay,
	ColInsurer,
	ColHospitalRating,
}

// NormalizeColumn trims, lower-cases and replaces spaces with underscores.
func NormalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "_")
}

func missingColumns(columns []string) []string {
	present := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		present[c] = struct{}{}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}
