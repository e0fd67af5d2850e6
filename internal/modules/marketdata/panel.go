// Package marketdata loads date-indexed price panels from files, HTTP endpoints and S3.
package marketdata

import (
	"context"
	"math"
	"time"
)

// PricePanel is a date-indexed table of prices, one column per instrument.
// Data[column][i] is the price on Dates[i]; missing prices are NaN.
type PricePanel struct {
	Dates   []time.Time          `msgpack:"dates"`
	Columns []string             `msgpack:"columns"`
	Data    map[string][]float64 `msgpack:"data"`
}

// HasColumn reports whether the panel carries a column for symbol.
func (p *PricePanel) HasColumn(symbol string) bool {
	_, ok := p.Data[symbol]
	return ok
}

// Rows returns the number of dates in the panel.
func (p *PricePanel) Rows() int {
	return len(p.Dates)
}

// Missing counts NaN cells in a column.
func (p *PricePanel) Missing(symbol string) int {
	n := 0
	for _, v := range p.Data[symbol] {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Loader fetches a price panel from a source locator.
// Implementations return *SourceUnavailableError when the source cannot be
// reached and *MalformedSourceError when its content cannot be parsed.
type Loader interface {
	Load(ctx context.Context, locator string) (*PricePanel, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, locator string) (*PricePanel, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, locator string) (*PricePanel, error) {
	return f(ctx, locator)
}
