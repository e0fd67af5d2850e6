package portfolio

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mvportfolio/internal/modules/marketdata"
	"github.com/aristath/mvportfolio/internal/modules/optimization"
)

const testSource = "mem://eod"

var testColumns = []string{".SPX", "GLD", "AAPL.O", "EUR="}

func testPanel(seed int64, rows int) *marketdata.PricePanel {
	rng := rand.New(rand.NewSource(seed))
	vols := map[string]float64{".SPX": 0.01, "GLD": 0.008, "AAPL.O": 0.02, "EUR=": 0.005}
	panel := &marketdata.PricePanel{Columns: testColumns, Data: map[string][]float64{}}
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		panel.Dates = append(panel.Dates, start.AddDate(0, 0, i))
	}
	for _, c := range testColumns {
		p := 100.0
		for i := 0; i < rows; i++ {
			panel.Data[c] = append(panel.Data[c], p)
			p *= math.Exp(vols[c] * rng.NormFloat64())
		}
	}
	return panel
}

func testConfig(symbols ...string) Config {
	return Config{
		Symbols: symbols,
		Window:  optimization.Window{Start: "2015-01-01", End: "2016-12-31"},
		Source:  testSource,
	}
}

func newTestState(t *testing.T, cfg Config) (*State, *marketdata.MemoryLoader) {
	t.Helper()
	loader := marketdata.NewMemoryLoader()
	loader.Put(testSource, testPanel(42, 300))
	s, err := New(context.Background(), cfg, loader, zerolog.Nop())
	require.NoError(t, err)
	return s, loader
}

func TestNew_DefaultsToEqualWeights(t *testing.T) {
	s, loader := newTestState(t, testConfig(".SPX", "GLD"))

	assert.Equal(t, optimization.Weights{".SPX": 0.5, "GLD": 0.5}, s.Weights())
	assert.Equal(t, []string{".SPX", "GLD"}, s.Symbols())
	assert.Equal(t, 299, s.Returns().Rows())
	assert.Equal(t, 1, loader.Calls())
	assert.Equal(t, optimization.DefaultAnnualizationFactor, s.AnnualizationFactor())
	assert.Equal(t, testSource, s.Source())
}

func TestNew_Errors(t *testing.T) {
	loader := marketdata.NewMemoryLoader()
	loader.Put(testSource, testPanel(1, 50))
	ctx := context.Background()

	_, err := New(ctx, Config{Symbols: []string{".SPX"}, Window: testConfig().Window}, loader, zerolog.Nop())
	var unavailable *marketdata.SourceUnavailableError
	assert.True(t, errors.As(err, &unavailable))

	_, err = New(ctx, testConfig(".SPX", "MSFT.O"), loader, zerolog.Nop())
	var unknown *optimization.UnknownInstrumentError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"MSFT.O"}, unknown.Symbols)

	cfg := testConfig(".SPX", "GLD")
	cfg.Weights = optimization.Weights{".SPX": 1}
	_, err = New(ctx, cfg, loader, zerolog.Nop())
	var mismatch *optimization.WeightMismatchError
	assert.True(t, errors.As(err, &mismatch))

	cfg = testConfig(".SPX")
	cfg.Window.End = "soon"
	_, err = New(ctx, cfg, loader, zerolog.Nop())
	var window *optimization.IncompatibleWindowError
	assert.True(t, errors.As(err, &window))
}

func TestSetSymbols_UnknownSymbolLeavesStateUnchanged(t *testing.T) {
	cfg := testConfig(".SPX", "GLD")
	cfg.Weights = optimization.Weights{".SPX": 0.3, "GLD": 0.7}
	s, _ := newTestState(t, cfg)
	returns := s.Returns()

	err := s.SetSymbols([]string{".SPX", "NOPE"})

	var unknown *optimization.UnknownInstrumentError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"NOPE"}, unknown.Symbols)
	assert.Same(t, returns, s.Returns())
	assert.Equal(t, []string{".SPX", "GLD"}, s.Symbols())
	assert.Equal(t, optimization.Weights{".SPX": 0.3, "GLD": 0.7}, s.Weights())
}

func TestSetSymbols_ResetsWeights(t *testing.T) {
	cfg := testConfig(".SPX", "GLD")
	cfg.Weights = optimization.Weights{".SPX": 0.3, "GLD": 0.7}
	s, _ := newTestState(t, cfg)

	require.NoError(t, s.SetSymbols([]string{"AAPL.O", "GLD", "EUR="}))

	assert.Equal(t, []string{"AAPL.O", "GLD", "EUR="}, s.Symbols())
	w := s.Weights()
	require.Len(t, w, 3)
	for _, v := range w {
		assert.InDelta(t, 1.0/3, v, 1e-15)
	}
}

func TestStatistics_OverridePersists(t *testing.T) {
	s, _ := newTestState(t, testConfig(".SPX", "GLD"))
	override := optimization.Weights{".SPX": 0.8, "GLD": 0.2}

	vol, err := s.Volatility(override)
	require.NoError(t, err)
	assert.Equal(t, override, s.Weights())

	stored, err := s.Volatility(nil)
	require.NoError(t, err)
	assert.Equal(t, vol, stored)

	override[".SPX"] = 0
	assert.Equal(t, 0.8, s.Weights()[".SPX"])

	ret, err := s.ExpectedReturn(nil)
	require.NoError(t, err)
	direct, err := optimization.NewStatistics(0).ExpectedReturn(s.Returns(), optimization.Weights{".SPX": 0.8, "GLD": 0.2})
	require.NoError(t, err)
	assert.InDelta(t, direct, ret, 1e-12)
}

func TestStatistics_FailedOverrideIsNotPersisted(t *testing.T) {
	s, _ := newTestState(t, testConfig(".SPX", "GLD"))

	_, err := s.ExpectedReturn(optimization.Weights{".SPX": 1, "AAPL.O": 0})
	var mismatch *optimization.WeightMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, optimization.Weights{".SPX": 0.5, "GLD": 0.5}, s.Weights())
}

func TestEvaluate_DoesNotStore(t *testing.T) {
	s, _ := newTestState(t, testConfig(".SPX", "GLD"))
	candidate := optimization.Weights{".SPX": 0.9, "GLD": 0.1}

	ret, vol, err := s.Evaluate(candidate)
	require.NoError(t, err)
	assert.Equal(t, optimization.Weights{".SPX": 0.5, "GLD": 0.5}, s.Weights())

	require.NoError(t, s.SetWeights(candidate))
	storedRet, err := s.ExpectedReturn(nil)
	require.NoError(t, err)
	storedVol, err := s.Volatility(nil)
	require.NoError(t, err)
	assert.Equal(t, storedRet, ret)
	assert.Equal(t, storedVol, vol)

	_, _, err = s.Evaluate(optimization.Weights{".SPX": 1})
	var mismatch *optimization.WeightMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, candidate, s.Weights())
}

func TestMinimumVarianceAllocation_NotCommitted(t *testing.T) {
	s, _ := newTestState(t, testConfig(".SPX", "GLD", "AAPL.O"))
	before := s.Weights()

	alloc, err := s.MinimumVarianceAllocation(nil)
	require.NoError(t, err)

	assert.True(t, alloc.Success, alloc.Message)
	assert.True(t, alloc.Weights.IsFeasible(1e-9))
	assert.Equal(t, before, s.Weights())

	eq, err := s.Volatility(nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, alloc.Volatility, eq+1e-12)

	require.NoError(t, s.AdoptAllocation(alloc))
	assert.Equal(t, alloc.Weights, s.Weights())
}

func TestMinimumVarianceAllocation_WithSymbols(t *testing.T) {
	s, _ := newTestState(t, testConfig(".SPX", "GLD"))

	alloc, err := s.MinimumVarianceAllocation([]string{"EUR="})
	require.NoError(t, err)
	assert.Equal(t, optimization.Weights{"EUR=": 1}, alloc.Weights)
	assert.Equal(t, []string{"EUR="}, s.Symbols())

	_, err = s.MinimumVarianceAllocation([]string{"EUR=", "XAU="})
	var unknown *optimization.UnknownInstrumentError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"EUR="}, s.Symbols())
}

func TestMinimumVarianceAllocation_InsufficientDataLeavesState(t *testing.T) {
	loader := marketdata.NewMemoryLoader()
	panel := testPanel(3, 20)
	for i := 2; i < 20; i++ {
		panel.Data["EUR="][i] = math.NaN()
	}
	loader.Put(testSource, panel)
	s, err := New(context.Background(), testConfig(".SPX", "GLD"), loader, zerolog.Nop())
	require.NoError(t, err)

	_, err = s.MinimumVarianceAllocation([]string{".SPX", "EUR="})
	var insufficient *optimization.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, []string{".SPX", "GLD"}, s.Symbols())
}

func TestAdoptAllocation_Mismatch(t *testing.T) {
	s, _ := newTestState(t, testConfig(".SPX", "GLD"))

	err := s.AdoptAllocation(&optimization.Allocation{Weights: optimization.Weights{"GLD": 1}})
	assert.Error(t, err)
	assert.Error(t, s.AdoptAllocation(nil))
	assert.Equal(t, optimization.Weights{".SPX": 0.5, "GLD": 0.5}, s.Weights())
}

func TestReload(t *testing.T) {
	s, loader := newTestState(t, testConfig(".SPX", "GLD"))
	require.NoError(t, s.SetWeights(optimization.Weights{".SPX": 0.1, "GLD": 0.9}))

	loader.Put(testSource, testPanel(7, 400))
	require.NoError(t, s.Reload(context.Background()))

	assert.Equal(t, 2, loader.Calls())
	assert.Equal(t, 399, s.Returns().Rows())
	assert.Equal(t, optimization.Weights{".SPX": 0.1, "GLD": 0.9}, s.Weights())

	// A panel missing a configured column is rejected and the old series kept.
	broken := testPanel(8, 100)
	delete(broken.Data, "GLD")
	broken.Columns = []string{".SPX", "AAPL.O", "EUR="}
	loader.Put(testSource, broken)
	require.Error(t, s.Reload(context.Background()))
	assert.Equal(t, 399, s.Returns().Rows())
}

func TestSummary(t *testing.T) {
	s, _ := newTestState(t, testConfig(".SPX", "AAPL.O"))

	summary, err := s.Summary()
	require.NoError(t, err)
	assert.Equal(t, []string{".SPX", "AAPL.O"}, summary.Symbols)
	assert.Greater(t, summary.Assets[1].AnnualVolatility, summary.Assets[0].AnnualVolatility)
}

func TestLogging(t *testing.T) {
	loader := marketdata.NewMemoryLoader()
	loader.Put(testSource, testPanel(1, 50))

	var buf bytes.Buffer
	cfg := testConfig(".SPX", "GLD")
	cfg.LoggingEnabled = true
	s, err := New(context.Background(), cfg, loader, zerolog.New(&buf))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"symbols":[".SPX","GLD"]`)
	assert.Contains(t, buf.String(), `"weights":{`)
	assert.Contains(t, buf.String(), `"start":"2015-01-01"`)

	buf.Reset()
	_ = s.SetSymbols([]string{"MISSING"})
	assert.Contains(t, buf.String(), `"level":"error"`)

	buf.Reset()
	cfg.LoggingEnabled = false
	_, err = New(context.Background(), cfg, loader, zerolog.New(&buf))
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}
