package models

// Summary holds the four key metrics shown above the charts.
type Summary struct {
	TotalPatients    int
	AvgLengthOfStay  float64
	UniqueConditions int
	// AvgBilling is nil when the dataset has no billing_amount column.
	AvgBilling *BillingMetric
}

// BillingMetric is the average billing amount with its display form.
type BillingMetric struct {
	Mean      float64
	Formatted string
}

// ConditionCount is one bar of the top-conditions chart.
type ConditionCount struct {
	Condition string
	Patients  int
}

// ProviderRating is one bar of the rating-by-insurer chart.
type ProviderRating struct {
	Provider  string
	AvgRating float64
	Patients  int
}

// Histogram buckets length-of-stay values into equal-width bins.
type Histogram struct {
	Bins    []Bin
	Samples int
}

// Bin covers [Lower, Upper); the final bin of a histogram also includes Upper.
type Bin struct {
	Lower float64
	Upper float64
	Count int
}

// Preview is the head of a filtered view for the table widget.
type Preview struct {
	Columns   []string
	Rows      [][]string
	TotalRows int
}

// Dashboard bundles every derived view for a single set of criteria.
type Dashboard struct {
	Criteria      Criteria
	Summary       Summary
	TopConditions []ConditionCount
	Ratings       []ProviderRating
	LengthOfStay  Histogram
	Preview       Preview
}
