// Package charts renders allocation charts.
package charts

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/vicanso/go-charts/v2"

	"github.com/aristath/mvportfolio/internal/modules/optimization"
)

// minSliceWeight hides slices too small to be visible.
const minSliceWeight = 1e-4

// Renderer draws allocation charts as PNG images.
type Renderer struct {
	width  int
	height int
	log    zerolog.Logger
}

// NewRenderer creates a new chart renderer
func NewRenderer(log zerolog.Logger) *Renderer {
	return &Renderer{
		width:  800,
		height: 600,
		log:    log.With().Str("service", "charts").Logger(),
	}
}

// AllocationPie renders weights as a pie chart.
func (r *Renderer) AllocationPie(title string, weights optimization.Weights) ([]byte, error) {
	symbols := make([]string, 0, len(weights))
	for sym, w := range weights {
		if w >= minSliceWeight {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no weights to chart")
	}
	sort.Strings(symbols)

	values := make([]float64, len(symbols))
	labels := make([]string, len(symbols))
	for i, sym := range symbols {
		values[i] = weights[sym]
		labels[i] = fmt.Sprintf("%s (%.1f%%)", sym, weights[sym]*100)
	}

	p, err := charts.PieRender(
		values,
		charts.TitleTextOptionFunc(title),
		charts.LegendOptionFunc(charts.LegendOption{
			Data: labels,
			Top:  charts.PositionTop,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(r.width),
		charts.HeightOptionFunc(r.height),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}

	r.log.Debug().Int("slices", len(values)).Int("bytes", len(buf)).Msg("Rendered allocation chart")
	return buf, nil
}
