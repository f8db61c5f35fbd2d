package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/miradorstack/patient-dashboard/internal/cache"
	"github.com/miradorstack/patient-dashboard/internal/charts"
	"github.com/miradorstack/patient-dashboard/internal/dataset"
	"github.com/miradorstack/patient-dashboard/internal/engine"
	"github.com/miradorstack/patient-dashboard/internal/metrics"
	"github.com/miradorstack/patient-dashboard/internal/models"
	"github.com/miradorstack/patient-dashboard/internal/utils"
)

// DatasetSource hands out the loaded dataset.
type DatasetSource interface {
	Handle() (*dataset.Handle, error)
}

// Chart names one of the rendered dashboard images.
type Chart string

const (
	ChartConditions   Chart = "conditions"
	ChartRatings      Chart = "ratings"
	ChartLengthOfStay Chart = "length-of-stay"
)

const exportKeyPrefix = "export:v1:"

// DashboardService answers every dashboard interaction against the loaded dataset.
type DashboardService struct {
	logger    *slog.Logger
	source    DatasetSource
	pipeline  *engine.Pipeline
	cache     cache.Provider
	exportTTL time.Duration
	latencies *utils.LatencyTracker
}

// NewDashboardService constructs the dashboard facade. A nil provider disables export caching.
func NewDashboardService(logger *slog.Logger, source DatasetSource, pipeline *engine.Pipeline, provider cache.Provider, exportTTL time.Duration) *DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	if pipeline == nil {
		pipeline = engine.NewPipeline(logger, engine.PreviewRows)
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &DashboardService{
		logger:    logger,
		source:    source,
		pipeline:  pipeline,
		cache:     provider,
		exportTTL: exportTTL,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Ready reports whether the dataset has been loaded successfully.
func (s *DashboardService) Ready() bool {
	_, err := s.handle()
	return err == nil
}

// Options returns the sidebar choices and default date range.
func (s *DashboardService) Options(ctx context.Context) (models.Options, error) {
	handle, err := s.handle()
	if err != nil {
		return models.Options{}, err
	}
	return s.pipeline.Options(handle), nil
}

// Dashboard computes every panel for criteria.
func (s *DashboardService) Dashboard(ctx context.Context, criteria models.Criteria) (models.Dashboard, error) {
	start := time.Now()
	handle, err := s.handle()
	if err != nil {
		s.observe("dashboard", start, err)
		return models.Dashboard{}, err
	}
	result, err := s.pipeline.Run(handle, criteria)
	s.observe("dashboard", start, err)
	if err != nil {
		s.logger.Error("dashboard computation failed", slog.Any("error", err))
		return models.Dashboard{}, utils.NewAppError("dashboard", "failed to compute dashboard", err)
	}
	metrics.ObserveFilteredRows(result.Summary.TotalPatients)
	return result, nil
}

// Records returns the table preview for criteria.
func (s *DashboardService) Records(ctx context.Context, criteria models.Criteria) (models.Preview, models.Criteria, error) {
	start := time.Now()
	view, resolved, err := s.view(criteria)
	s.observe("records", start, err)
	if err != nil {
		return models.Preview{}, resolved, err
	}
	return engine.Preview(view, s.pipeline.PreviewRows()), resolved, nil
}

// Export returns the filtered rows as CSV. Results are cached per canonical criteria; cache
// failures are logged and bypassed.
func (s *DashboardService) Export(ctx context.Context, criteria models.Criteria) ([]byte, error) {
	start := time.Now()
	handle, err := s.handle()
	if err != nil {
		s.observe("export", start, err)
		return nil, err
	}
	resolved := engine.Resolve(criteria, s.pipeline.Options(handle))
	key := ExportKey(handle.Source(), resolved)

	cacheResult := metrics.CacheMiss
	cached, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		s.observe("export", start, nil)
		metrics.ObserveExport(len(cached), metrics.CacheHit)
		return cached, nil
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		cacheResult = metrics.CacheBypass
		s.logger.Warn("export cache lookup failed", slog.String("key", key), slog.Any("error", err))
	}

	view, _, err := s.pipeline.View(handle, resolved)
	if err == nil {
		var payload []byte
		payload, err = engine.Export(view)
		if err == nil {
			s.observe("export", start, nil)
			metrics.ObserveExport(len(payload), cacheResult)
			if cacheResult == metrics.CacheMiss {
				if setErr := s.cache.Set(ctx, key, payload, s.exportTTL); setErr != nil {
					s.logger.Warn("export cache store failed", slog.String("key", key), slog.Any("error", setErr))
				}
			}
			return payload, nil
		}
	}
	s.observe("export", start, err)
	s.logger.Error("export failed", slog.Any("error", err))
	return nil, utils.NewAppError("export", "failed to export filtered data", err)
}

// RenderChart writes the named chart as PNG. charts.ErrNoData signals an empty view.
func (s *DashboardService) RenderChart(ctx context.Context, chart Chart, criteria models.Criteria, w io.Writer) error {
	start := time.Now()
	view, _, err := s.view(criteria)
	if err != nil {
		s.observe("chart", start, err)
		return err
	}

	var buf bytes.Buffer
	switch chart {
	case ChartConditions:
		err = charts.Conditions(&buf, engine.RankConditions(view, engine.TopConditionsLimit))
	case ChartRatings:
		err = charts.Ratings(&buf, engine.RankRatings(view))
	case ChartLengthOfStay:
		err = charts.LengthOfStay(&buf, engine.Histogram(view, engine.HistogramBins))
	default:
		err = utils.InvalidInput("chart", fmt.Sprintf("unknown chart %q", chart))
	}
	if errors.Is(err, charts.ErrNoData) {
		s.observe("chart", start, nil)
		return err
	}
	s.observe("chart", start, err)
	if err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// LatencyP95 returns the current p95 request latency.
func (s *DashboardService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

// ExportKey canonicalises resolved criteria into a cache key. Categorical matching is
// case-insensitive, so values are folded to lower case.
func ExportKey(source string, criteria models.Criteria) string {
	values := url.Values{}
	values.Set("source", source)
	values.Set("gender", canonical(criteria.Gender))
	values.Set("condition", canonical(criteria.Condition))
	values.Set("doctor", canonical(criteria.Doctor))
	values.Set("start", formatBound(criteria.Start))
	values.Set("end", formatBound(criteria.End))
	return exportKeyPrefix + values.Encode()
}

func canonical(value string) string {
	if models.IsAll(value) {
		return strings.ToLower(models.AllValues)
	}
	return strings.ToLower(strings.TrimSpace(value))
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return utils.FormatDate(t)
}

func (s *DashboardService) handle() (*dataset.Handle, error) {
	if s.source == nil {
		return nil, dataset.ErrNotLoaded
	}
	return s.source.Handle()
}

func (s *DashboardService) view(criteria models.Criteria) (engine.View, models.Criteria, error) {
	handle, err := s.handle()
	if err != nil {
		return engine.View{}, criteria, err
	}
	view, resolved, err := s.pipeline.View(handle, criteria)
	if err != nil {
		return engine.View{}, resolved, err
	}
	metrics.ObserveFilteredRows(view.Len())
	return view, resolved, nil
}

func (s *DashboardService) observe(view string, start time.Time, err error) {
	duration := time.Since(start)
	outcome := metrics.OutcomeSuccess
	switch {
	case utils.IsInvalidInput(err):
		outcome = metrics.OutcomeInvalid
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.ObserveRequest(view, duration, outcome)
	if err != nil {
		return
	}
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 50 && count%50 == 0 {
		s.logger.Info("dashboard latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
}
