package api

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/patient-dashboard/internal/engine"
	"github.com/miradorstack/patient-dashboard/internal/models"
	"github.com/miradorstack/patient-dashboard/internal/utils"
)

// Query parameter names shared by the page, JSON endpoints, charts and downloads.
const (
	ParamGender    = "gender"
	ParamCondition = "condition"
	ParamDoctor    = "doctor"
	ParamStart     = "start"
	ParamEnd       = "end"
)

// CriteriaFromQuery maps query parameters onto criteria. Absent values mean All or the full
// date range; malformed dates are invalid input.
func CriteriaFromQuery(values url.Values) (models.Criteria, error) {
	criteria := models.Criteria{
		Gender:    strings.TrimSpace(values.Get(ParamGender)),
		Condition: strings.TrimSpace(values.Get(ParamCondition)),
		Doctor:    strings.TrimSpace(values.Get(ParamDoctor)),
	}

	var err error
	if criteria.Start, err = queryDate(values, ParamStart); err != nil {
		return models.Criteria{}, err
	}
	if criteria.End, err = queryDate(values, ParamEnd); err != nil {
		return models.Criteria{}, err
	}
	return criteria, nil
}

// CriteriaQuery encodes criteria back into query parameters, skipping unconstrained values.
func CriteriaQuery(criteria models.Criteria) url.Values {
	values := url.Values{}
	for param, value := range map[string]string{
		ParamGender:    criteria.Gender,
		ParamCondition: criteria.Condition,
		ParamDoctor:    criteria.Doctor,
	} {
		if !models.IsAll(value) {
			values.Set(param, value)
		}
	}
	if !criteria.Start.IsZero() {
		values.Set(ParamStart, utils.FormatDate(criteria.Start))
	}
	if !criteria.End.IsZero() {
		values.Set(ParamEnd, utils.FormatDate(criteria.End))
	}
	return values
}

func queryDate(values url.Values, param string) (time.Time, error) {
	raw := strings.TrimSpace(values.Get(param))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(utils.DateLayout, raw)
	if err != nil {
		return time.Time{}, utils.InvalidInput("query", fmt.Sprintf("invalid %s date %q: expected YYYY-MM-DD", param, raw))
	}
	return t, nil
}

// Number is a float that encodes NaN and infinities as JSON null.
type Number float64

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// CriteriaResponse echoes the resolved criteria.
type CriteriaResponse struct {
	Gender    string `json:"gender"`
	Condition string `json:"condition"`
	Doctor    string `json:"doctor"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

// OptionsResponse lists the sidebar choices.
type OptionsResponse struct {
	Genders    []string `json:"genders"`
	Conditions []string `json:"conditions"`
	Doctors    []string `json:"doctors"`
	MinDate    string   `json:"minDate"`
	MaxDate    string   `json:"maxDate"`
}

// MetricsResponse carries the four key metrics with their display strings.
type MetricsResponse struct {
	TotalPatients          int     `json:"totalPatients"`
	AvgLengthOfStay        Number  `json:"avgLengthOfStay"`
	AvgLengthOfStayDisplay string  `json:"avgLengthOfStayDisplay"`
	UniqueConditions       int     `json:"uniqueConditions"`
	AvgBilling             *Number `json:"avgBilling,omitempty"`
	AvgBillingDisplay      string  `json:"avgBillingDisplay,omitempty"`
}

// ConditionResponse is one bar of the top-conditions chart.
type ConditionResponse struct {
	Condition string `json:"condition"`
	Patients  int    `json:"patients"`
}

// RatingResponse is one bar of the ratings chart.
type RatingResponse struct {
	Provider  string `json:"provider"`
	AvgRating Number `json:"avgRating"`
	Patients  int    `json:"patients"`
}

// BinResponse is one histogram bucket.
type BinResponse struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// SummaryResponse is the body of /api/summary.
type SummaryResponse struct {
	Criteria      CriteriaResponse    `json:"criteria"`
	Metrics       MetricsResponse     `json:"metrics"`
	TopConditions []ConditionResponse `json:"topConditions"`
	Ratings       []RatingResponse    `json:"ratings"`
	LengthOfStay  []BinResponse       `json:"lengthOfStay"`
}

// RecordsResponse is the body of /api/records.
type RecordsResponse struct {
	Criteria  CriteriaResponse `json:"criteria"`
	Columns   []string         `json:"columns"`
	Rows      [][]string       `json:"rows"`
	TotalRows int              `json:"totalRows"`
}

// ToCriteriaResponse converts resolved criteria for JSON output.
func ToCriteriaResponse(c models.Criteria) CriteriaResponse {
	return CriteriaResponse{
		Gender:    c.Gender,
		Condition: c.Condition,
		Doctor:    c.Doctor,
		Start:     utils.FormatDate(c.Start),
		End:       utils.FormatDate(c.End),
	}
}

// ToOptionsResponse converts sidebar options for JSON output.
func ToOptionsResponse(opts models.Options) OptionsResponse {
	return OptionsResponse{
		Genders:    nonNil(opts.Genders),
		Conditions: nonNil(opts.Conditions),
		Doctors:    nonNil(opts.Doctors),
		MinDate:    utils.FormatDate(opts.Dates.Start),
		MaxDate:    utils.FormatDate(opts.Dates.End),
	}
}

// ToMetricsResponse converts the key metrics, rounding the average stay to two decimals.
func ToMetricsResponse(s models.Summary) MetricsResponse {
	resp := MetricsResponse{
		TotalPatients:          s.TotalPatients,
		AvgLengthOfStay:        Number(engine.Round2(s.AvgLengthOfStay)),
		AvgLengthOfStayDisplay: formatStay(s.AvgLengthOfStay),
		UniqueConditions:       s.UniqueConditions,
	}
	if s.AvgBilling != nil {
		avg := Number(s.AvgBilling.Mean)
		resp.AvgBilling = &avg
		resp.AvgBillingDisplay = s.AvgBilling.Formatted
	}
	return resp
}

// ToSummaryResponse converts a dashboard for /api/summary.
func ToSummaryResponse(d models.Dashboard) SummaryResponse {
	resp := SummaryResponse{
		Criteria:      ToCriteriaResponse(d.Criteria),
		Metrics:       ToMetricsResponse(d.Summary),
		TopConditions: make([]ConditionResponse, 0, len(d.TopConditions)),
		Ratings:       make([]RatingResponse, 0, len(d.Ratings)),
		LengthOfStay:  make([]BinResponse, 0, len(d.LengthOfStay.Bins)),
	}
	for _, c := range d.TopConditions {
		resp.TopConditions = append(resp.TopConditions, ConditionResponse{Condition: c.Condition, Patients: c.Patients})
	}
	for _, r := range d.Ratings {
		resp.Ratings = append(resp.Ratings, RatingResponse{Provider: r.Provider, AvgRating: Number(r.AvgRating), Patients: r.Patients})
	}
	for _, b := range d.LengthOfStay.Bins {
		resp.LengthOfStay = append(resp.LengthOfStay, BinResponse{Lower: b.Lower, Upper: b.Upper, Count: b.Count})
	}
	return resp
}

// ToRecordsResponse converts a table preview for /api/records.
func ToRecordsResponse(p models.Preview, c models.Criteria) RecordsResponse {
	rows := p.Rows
	if rows == nil {
		rows = [][]string{}
	}
	return RecordsResponse{
		Criteria:  ToCriteriaResponse(c),
		Columns:   nonNil(p.Columns),
		Rows:      rows,
		TotalRows: p.TotalRows,
	}
}

func formatStay(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(engine.Round2(v), 'f', -1, 64)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
