package optimization

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mvportfolio/internal/modules/marketdata"
)

var day0 = time.Date(2017, 1, 2, 0, 0, 0, 0, time.UTC)

// newPanel builds a daily price panel starting at day0.
func newPanel(columns []string, prices map[string][]float64) *marketdata.PricePanel {
	rows := len(prices[columns[0]])
	panel := &marketdata.PricePanel{
		Columns: columns,
		Data:    make(map[string][]float64, len(columns)),
	}
	for i := 0; i < rows; i++ {
		panel.Dates = append(panel.Dates, day0.AddDate(0, 0, i))
	}
	for _, c := range columns {
		panel.Data[c] = append([]float64(nil), prices[c]...)
	}
	return panel
}

// randomPanel builds a reproducible random-walk panel.
func randomPanel(seed int64, rows int, vols map[string]float64, columns []string) *marketdata.PricePanel {
	rng := rand.New(rand.NewSource(seed))
	prices := make(map[string][]float64, len(columns))
	for _, c := range columns {
		p := 100.0
		series := make([]float64, rows)
		for i := range series {
			series[i] = p
			p *= math.Exp(vols[c] * rng.NormFloat64())
		}
		prices[c] = series
	}
	return newPanel(columns, prices)
}

// fullWindow covers every date a test panel can hold.
var fullWindow = Window{Start: "2016-01-01", End: "2030-12-31"}

func deriveSeries(t *testing.T, panel *marketdata.PricePanel, symbols ...string) *ReturnSeries {
	t.Helper()
	r, err := NewReturnSeriesBuilder(zerolog.Nop()).Derive(panel, symbols, fullWindow)
	require.NoError(t, err)
	return r
}

// seriesFromReturns builds a return series directly.
func seriesFromReturns(data map[string][]float64, symbols ...string) *ReturnSeries {
	r := &ReturnSeries{Symbols: symbols, Data: make(map[string][]float64, len(symbols))}
	for i := range data[symbols[0]] {
		r.Dates = append(r.Dates, day0.AddDate(0, 0, i+1))
	}
	for _, s := range symbols {
		r.Data[s] = data[s]
	}
	return r
}
