package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/miradorstack/patient-dashboard/internal/dataset"
	"github.com/miradorstack/patient-dashboard/internal/models"
)

// Pipeline filters the dataset and computes every dashboard panel for one set of criteria.
type Pipeline struct {
	logger      *slog.Logger
	previewRows int
	topN        int
	bins        int

	mu      sync.Mutex
	optsFor *dataset.Handle
	opts    models.Options
}

// NewPipeline constructs a pipeline; non-positive sizes fall back to the dashboard defaults.
func NewPipeline(logger *slog.Logger, previewRows int) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if previewRows <= 0 {
		previewRows = PreviewRows
	}
	return &Pipeline{
		logger:      logger,
		previewRows: previewRows,
		topN:        TopConditionsLimit,
		bins:        HistogramBins,
	}
}

// Options returns the sidebar choices for handle, computed once per handle.
func (p *Pipeline) Options(handle *dataset.Handle) models.Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.optsFor != handle {
		p.opts = Options(handle)
		p.optsFor = handle
	}
	return p.opts
}

// View resolves criteria against the dataset defaults and filters the dataset.
func (p *Pipeline) View(handle *dataset.Handle, criteria models.Criteria) (View, models.Criteria, error) {
	if handle == nil {
		return View{}, criteria, fmt.Errorf("dataset not configured")
	}
	resolved := Resolve(criteria, p.Options(handle))
	if resolved.Start.After(resolved.End) {
		p.logger.Debug("empty date range", slog.Time("start", resolved.Start), slog.Time("end", resolved.End))
	}
	view, err := Filter(handle, resolved)
	if err != nil {
		return View{}, resolved, err
	}
	p.logger.Debug("filtered view",
		slog.String("gender", resolved.Gender),
		slog.String("condition", resolved.Condition),
		slog.String("doctor", resolved.Doctor),
		slog.Int("rows", view.Len()),
		slog.Int("of", handle.Len()),
	)
	return view, resolved, nil
}

// Run computes every dashboard panel for criteria.
func (p *Pipeline) Run(handle *dataset.Handle, criteria models.Criteria) (models.Dashboard, error) {
	view, resolved, err := p.View(handle, criteria)
	if err != nil {
		return models.Dashboard{}, err
	}
	return models.Dashboard{
		Criteria:      resolved,
		Summary:       Summarize(view),
		TopConditions: RankConditions(view, p.topN),
		Ratings:       RankRatings(view),
		LengthOfStay:  Histogram(view, p.bins),
		Preview:       Preview(view, p.previewRows),
	}, nil
}

// PreviewRows is the configured table preview size.
func (p *Pipeline) PreviewRows() int {
	return p.previewRows
}
