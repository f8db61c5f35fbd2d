package api

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/miradorstack/patient-dashboard/internal/models"
	"github.com/miradorstack/patient-dashboard/internal/services"
	"github.com/miradorstack/patient-dashboard/internal/utils"
)

var templateFuncs = template.FuncMap{
	"selected": func(current, option string) bool {
		if models.IsAll(current) {
			return option == models.AllValues
		}
		return current == option
	},
}

type chartLink struct {
	Title string
	URL   string
}

type pageData struct {
	Title     string
	Options   models.Options
	Criteria  models.Criteria
	StartDate string
	EndDate   string
	MinDate   string
	MaxDate   string
	Metrics   MetricsResponse
	Charts    []chartLink
	Preview   models.Preview
	Downloads []chartLink
}

func (r *Router) handleIndex(w http.ResponseWriter, req *http.Request) {
	criteria, err := CriteriaFromQuery(req.URL.Query())
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	opts, err := r.service.Options(req.Context())
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	result, err := r.service.Dashboard(req.Context(), criteria)
	if err != nil {
		r.writeError(w, req, err)
		return
	}

	query := CriteriaQuery(result.Criteria).Encode()
	data := pageData{
		Title:     "Hospital Performance Dashboard",
		Options:   opts,
		Criteria:  result.Criteria,
		StartDate: utils.FormatDate(result.Criteria.Start),
		EndDate:   utils.FormatDate(result.Criteria.End),
		MinDate:   utils.FormatDate(opts.Dates.Start),
		MaxDate:   utils.FormatDate(opts.Dates.End),
		Metrics:   ToMetricsResponse(result.Summary),
		Charts: []chartLink{
			{Title: "Top 10 Medical Conditions", URL: withQuery("/charts/"+string(services.ChartConditions)+".png", query)},
			{Title: "Average Hospital Rating by Insurance Provider", URL: withQuery("/charts/"+string(services.ChartRatings)+".png", query)},
			{Title: "Length of Stay Distribution", URL: withQuery("/charts/"+string(services.ChartLengthOfStay)+".png", query)},
		},
		Preview: result.Preview,
		Downloads: []chartLink{
			{Title: "Download as CSV", URL: withQuery("/download/"+PatientDataFile, query)},
			{Title: "Download Filtered Data", URL: withQuery("/download/"+FilteredDataFile, query)},
		},
	}

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, "dashboard.html", data); err != nil {
		r.logger.Error("template error", slog.Any("error", err))
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func withQuery(path, query string) string {
	if query == "" {
		return path
	}
	u := url.URL{Path: path, RawQuery: query}
	return u.String()
}
