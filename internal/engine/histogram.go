package engine

import (
	"github.com/montanaflynn/stats"

	"github.com/miradorstack/patient-dashboard/internal/dataset"
	"github.com/miradorstack/patient-dashboard/internal/models"
)

// HistogramBins is the number of length-of-stay buckets.
const HistogramBins = 10

// Histogram buckets the non-missing length-of-stay values into equal-width bins over
// [min, max]. A degenerate range is widened by half a day on each side.
func Histogram(view View, bins int) models.Histogram {
	if bins <= 0 {
		bins = HistogramBins
	}
	values := dropNaN(dataset.Numbers(view.frame, dataset.ColLengthOfStay))
	if len(values) == 0 {
		return models.Histogram{}
	}

	lo, _ := stats.Min(values)
	hi, _ := stats.Max(values)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}

	edges := make([]float64, bins+1)
	width := (hi - lo) / float64(bins)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[bins] = hi

	hist := models.Histogram{Bins: make([]models.Bin, bins), Samples: len(values)}
	for i := range hist.Bins {
		hist.Bins[i] = models.Bin{Lower: edges[i], Upper: edges[i+1]}
	}
	for _, v := range values {
		hist.Bins[binIndex(edges, v)].Count++
	}
	return hist
}

// binIndex locates v among edges; the last bin is closed on the right.
func binIndex(edges []float64, v float64) int {
	bins := len(edges) - 1
	idx := int((v - edges[0]) / (edges[bins] - edges[0]) * float64(bins))
	if idx >= bins {
		idx = bins - 1
	}
	if idx < 0 {
		idx = 0
	}
	// Correct float rounding at bin boundaries.
	for idx > 0 && v < edges[idx] {
		idx--
	}
	for idx < bins-1 && v >= edges[idx+1] {
		idx++
	}
	return idx
}
