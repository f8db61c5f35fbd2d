package api

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/miradorstack/patient-dashboard/internal/charts"
	"github.com/miradorstack/patient-dashboard/internal/dataset"
	"github.com/miradorstack/patient-dashboard/internal/models"
	"github.com/miradorstack/patient-dashboard/internal/services"
	"github.com/miradorstack/patient-dashboard/internal/utils"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Download file names; both serve the same bytes.
const (
	PatientDataFile  = "filtered_patient_data.csv"
	FilteredDataFile = "filtered_data.csv"
)

// RequestIDHeader carries the per-request id in and out.
const RequestIDHeader = "X-Request-ID"

// Dashboard is the service surface the HTTP layer needs.
type Dashboard interface {
	Ready() bool
	Options(ctx context.Context) (models.Options, error)
	Dashboard(ctx context.Context, criteria models.Criteria) (models.Dashboard, error)
	Records(ctx context.Context, criteria models.Criteria) (models.Preview, models.Criteria, error)
	Export(ctx context.Context, criteria models.Criteria) ([]byte, error)
	RenderChart(ctx context.Context, chart services.Chart, criteria models.Criteria, w io.Writer) error
}

// Router serves the dashboard page, JSON API, chart images and downloads.
type Router struct {
	mux       *chi.Mux
	service   Dashboard
	logger    *slog.Logger
	templates *template.Template
}

// NewRouter wires middleware and routes around service.
func NewRouter(service Dashboard, logger *slog.Logger) (*Router, error) {
	if service == nil {
		return nil, errors.New("dashboard service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	templates, err := template.New("").Funcs(templateFuncs).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	r := &Router{
		mux:       chi.NewRouter(),
		service:   service,
		logger:    logger,
		templates: templates,
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r, nil
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupMiddleware() {
	r.mux.Use(requestID)
	r.mux.Use(r.requestLogger)
	r.mux.Use(middleware.Recoverer)
	r.mux.Use(middleware.Compress(5, "text/html", "application/json"))
}

func (r *Router) setupRoutes() {
	r.mux.Get("/", r.handleIndex)
	r.mux.Get("/healthz", r.handleHealth)

	r.mux.Route("/api", func(api chi.Router) {
		api.Get("/options", r.handleOptions)
		api.Get("/summary", r.handleSummary)
		api.Get("/records", r.handleRecords)
	})

	r.mux.Get("/charts/{chart}.png", r.handleChart)
	r.mux.Get("/download/"+PatientDataFile, r.handleDownload(PatientDataFile))
	r.mux.Get("/download/"+FilteredDataFile, r.handleDownload(FilteredDataFile))
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok", "datasetLoaded": true}
	if !r.service.Ready() {
		status = http.StatusServiceUnavailable
		body = map[string]any{"status": "loading", "datasetLoaded": false}
	}
	writeJSON(w, status, body)
}

func (r *Router) handleOptions(w http.ResponseWriter, req *http.Request) {
	opts, err := r.service.Options(req.Context())
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, ToOptionsResponse(opts))
}

func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) {
	criteria, err := CriteriaFromQuery(req.URL.Query())
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	result, err := r.service.Dashboard(req.Context(), criteria)
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, ToSummaryResponse(result))
}

func (r *Router) handleRecords(w http.ResponseWriter, req *http.Request) {
	criteria, err := CriteriaFromQuery(req.URL.Query())
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	preview, resolved, err := r.service.Records(req.Context(), criteria)
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, ToRecordsResponse(preview, resolved))
}

func (r *Router) handleChart(w http.ResponseWriter, req *http.Request) {
	criteria, err := CriteriaFromQuery(req.URL.Query())
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	chart := services.Chart(chi.URLParam(req, "chart"))

	var buf bytes.Buffer
	err = r.service.RenderChart(req.Context(), chart, criteria, &buf)
	switch {
	case errors.Is(err, charts.ErrNoData):
		w.WriteHeader(http.StatusNoContent)
		return
	case utils.IsInvalidInput(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: utils.Message(err)})
		return
	case err != nil:
		r.writeError(w, req, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (r *Router) handleDownload(filename string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		criteria, err := CriteriaFromQuery(req.URL.Query())
		if err != nil {
			r.writeError(w, req, err)
			return
		}
		payload, err := r.service.Export(req.Context(), criteria)
		if err != nil {
			r.writeError(w, req, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		_, _ = w.Write(payload)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (r *Router) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case utils.IsInvalidInput(err):
		status = http.StatusBadRequest
	case errors.Is(err, dataset.ErrNotLoaded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		r.logger.Error("request failed",
			slog.String("path", req.URL.Path),
			slog.String("request_id", RequestIDFrom(req.Context())),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, errorBody{Error: utils.Message(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type requestIDKey struct{}

// RequestIDFrom returns the request id stored by the request-id middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(req.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.logger.Info("http request",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", RequestIDFrom(req.Context())),
		)
	})
}
