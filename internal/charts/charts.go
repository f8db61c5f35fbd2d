// Package charts renders the dashboard's bar charts and histogram as PNG images.
package charts

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/miradorstack/patient-dashboard/internal/models"
)

// ErrNoData is returned when a view has nothing to plot.
var ErrNoData = errors.New("no data to plot")

const (
	defaultHeight = 420
	minWidth      = 640
	barWidth      = 48
	barSpacing    = 24
)

var (
	skyBlue = drawing.ColorFromHex("87ceeb")
	purple  = drawing.ColorFromHex("800080")
)

// Conditions renders the top-conditions bar chart.
func Conditions(w io.Writer, counts []models.ConditionCount) error {
	bars := make([]chart.Value, 0, len(counts))
	for _, c := range counts {
		bars = append(bars, chart.Value{Label: c.Condition, Value: float64(c.Patients)})
	}
	return renderBars(w, "Top 10 Medical Conditions", bars, skyBlue)
}

// Ratings renders the average hospital rating per insurance provider. Providers without a
// rating are left out of the chart.
func Ratings(w io.Writer, ratings []models.ProviderRating) error {
	bars := make([]chart.Value, 0, len(ratings))
	for _, r := range ratings {
		if math.IsNaN(r.AvgRating) {
			continue
		}
		bars = append(bars, chart.Value{Label: r.Provider, Value: r.AvgRating})
	}
	return renderBars(w, "Average Hospital Rating", bars, skyBlue)
}

// LengthOfStay renders the length-of-stay histogram, one bar per bin.
func LengthOfStay(w io.Writer, hist models.Histogram) error {
	if hist.Samples == 0 {
		return ErrNoData
	}
	bars := make([]chart.Value, 0, len(hist.Bins))
	for _, bin := range hist.Bins {
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("%.1f-%.1f", bin.Lower, bin.Upper),
			Value: float64(bin.Count),
		})
	}
	return renderBars(w, "Length of Stay Distribution", bars, purple)
}

func renderBars(w io.Writer, title string, bars []chart.Value, color drawing.Color) error {
	if len(bars) == 0 {
		return ErrNoData
	}

	top := 0.0
	for i := range bars {
		bars[i].Style = chart.Style{FillColor: color, StrokeColor: color}
		top = math.Max(top, bars[i].Value)
	}
	if top <= 0 {
		top = 1
	}

	width := len(bars)*(barWidth+barSpacing) + 160
	if width < minWidth {
		width = minWidth
	}

	graph := chart.BarChart{
		Title:      title,
		Width:      width,
		Height:     defaultHeight,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		Background: chart.Style{Padding: chart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16}},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
		},
		Bars: bars,
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render %q: %w", title, err)
	}
	return nil
}
