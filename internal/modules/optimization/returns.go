package optimization

import (
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/mvportfolio/internal/modules/marketdata"
)

// Window is an inclusive date range applied to the panel's date index.
type Window struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Bounds parses both ends of the window.
func (w Window) Bounds() (time.Time, time.Time, error) {
	start, err := marketdata.ParseDate(w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, &IncompatibleWindowError{Start: w.Start, End: w.End, Err: err}
	}
	end, err := marketdata.ParseDate(w.End)
	if err != nil {
		return time.Time{}, time.Time{}, &IncompatibleWindowError{Start: w.Start, End: w.End, Err: err}
	}
	return start, end, nil
}

// contains reports whether d falls inside [start, end].
func contains(start, end, d time.Time) bool {
	return !d.Before(start) && !d.After(end)
}

// ReturnSeries holds log-returns per instrument, parallel to Dates.
// A series is never modified after Derive returns it.
type ReturnSeries struct {
	Dates   []time.Time
	Symbols []string
	Data    map[string][]float64
}

// Rows returns the number of return observations.
func (r *ReturnSeries) Rows() int {
	return len(r.Dates)
}

// Column returns the returns for symbol.
func (r *ReturnSeries) Column(symbol string) []float64 {
	return r.Data[symbol]
}

// Matrix lays the series out as a Rows() x len(Symbols) matrix in Symbols order.
// The series must have at least one row.
func (r *ReturnSeries) Matrix() *mat.Dense {
	rows, cols := r.Rows(), len(r.Symbols)
	m := mat.NewDense(rows, cols, nil)
	for j, s := range r.Symbols {
		m.SetCol(j, r.Data[s])
	}
	return m
}

// ReturnSeriesBuilder turns a price panel into log-returns.
type ReturnSeriesBuilder struct {
	log zerolog.Logger
}

// NewReturnSeriesBuilder creates a new return series builder.
func NewReturnSeriesBuilder(log zerolog.Logger) *ReturnSeriesBuilder {
	return &ReturnSeriesBuilder{
		log: log.With().Str("component", "returns").Logger(),
	}
}

// Derive selects symbols from panel, restricts rows to window, drops every row
// with a missing price in any selected column and returns ln(p[t]/p[t-1]).
// The first row and rows with non-finite returns are dropped. panel is not modified.
func (b *ReturnSeriesBuilder) Derive(panel *marketdata.PricePanel, symbols []string, window Window) (*ReturnSeries, error) {
	symbols = uniqueSymbols(symbols)
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	var missing []string
	for _, s := range symbols {
		if !panel.HasColumn(s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return nil, &UnknownInstrumentError{Symbols: missing}
	}

	start, end, err := window.Bounds()
	if err != nil {
		return nil, err
	}

	// Complete-case rows inside the window.
	var kept []int
	incomplete := 0
	for i, d := range panel.Dates {
		if !contains(start, end, d) {
			continue
		}
		complete := true
		for _, s := range symbols {
			p := panel.Data[s][i]
			if math.IsNaN(p) || math.IsInf(p, 0) {
				complete = false
				break
			}
		}
		if !complete {
			incomplete++
			continue
		}
		kept = append(kept, i)
	}

	series := &ReturnSeries{
		Symbols: symbols,
		Data:    make(map[string][]float64, len(symbols)),
	}
	for _, s := range symbols {
		series.Data[s] = []float64{}
	}

	nonFinite := 0
	row := make([]float64, len(symbols))
	for k := 1; k < len(kept); k++ {
		prev, cur := kept[k-1], kept[k]
		finite := true
		for j, s := range symbols {
			r := math.Log(panel.Data[s][cur] / panel.Data[s][prev])
			if math.IsNaN(r) || math.IsInf(r, 0) {
				finite = false
				break
			}
			row[j] = r
		}
		if !finite {
			nonFinite++
			continue
		}
		series.Dates = append(series.Dates, panel.Dates[cur])
		for j, s := range symbols {
			series.Data[s] = append(series.Data[s], row[j])
		}
	}

	b.log.Debug().
		Strs("symbols", symbols).
		Str("start", window.Start).
		Str("end", window.End).
		Int("price_rows", len(kept)).
		Int("incomplete_rows", incomplete).
		Int("non_finite_rows", nonFinite).
		Int("return_rows", series.Rows()).
		Msg("Derived return series")

	return series, nil
}

// uniqueSymbols drops repeated symbols, keeping first occurrence order.
func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
