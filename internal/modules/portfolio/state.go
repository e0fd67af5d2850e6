// Package portfolio holds the configured portfolio: its instruments, analysis
// window, weights and the return series derived from the price source.
package portfolio

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/mvportfolio/internal/modules/marketdata"
	"github.com/aristath/mvportfolio/internal/modules/optimization"
)

// Config describes a portfolio to configure.
type Config struct {
	Symbols []string
	Window  optimization.Window
	// Weights defaults to equal weights when nil.
	Weights optimization.Weights
	// Source is the locator handed to the loader. There is no default.
	Source              string
	LoggingEnabled      bool
	AnnualizationFactor float64
}

// State is a configured portfolio.
//
// Every mutating operation is all-or-nothing: on error the symbols, weights
// and return series are exactly what they were before the call.
// State is not safe for concurrent use.
type State struct {
	source  string
	loader  marketdata.Loader
	builder *optimization.ReturnSeriesBuilder
	stats   *optimization.Statistics
	solver  *optimization.MinVarianceSolver
	log     zerolog.Logger

	panel   *marketdata.PricePanel
	window  optimization.Window
	symbols []string
	weights optimization.Weights
	returns *optimization.ReturnSeries
}

// New configures a portfolio: it loads the price panel from cfg.Source and
// derives the return series immediately. When cfg.LoggingEnabled is false
// the state logs nothing.
func New(ctx context.Context, cfg Config, loader marketdata.Loader, log zerolog.Logger) (*State, error) {
	if !cfg.LoggingEnabled {
		log = zerolog.Nop()
	}
	log = log.With().Str("component", "portfolio").Logger()

	stats := optimization.NewStatistics(cfg.AnnualizationFactor)
	s := &State{
		source:  cfg.Source,
		loader:  loader,
		builder: optimization.NewReturnSeriesBuilder(log),
		stats:   stats,
		solver:  optimization.NewMinVarianceSolver(stats, log),
		log:     log,
		window:  cfg.Window,
	}

	panel, err := loader.Load(ctx, cfg.Source)
	if err != nil {
		return nil, s.fail(err, "Failed to load price data")
	}
	returns, err := s.builder.Derive(panel, cfg.Symbols, cfg.Window)
	if err != nil {
		return nil, s.fail(err, "Failed to derive returns")
	}

	weights := cfg.Weights
	if weights == nil {
		weights = optimization.EqualWeights(returns.Symbols)
	}
	if err := weights.Check(returns.Symbols); err != nil {
		return nil, s.fail(err, "Initial weights do not match symbols")
	}

	s.panel = panel
	s.symbols = returns.Symbols
	s.returns = returns
	s.weights = weights.Clone()
	s.logState("Portfolio configured")
	return s, nil
}

// SetSymbols re-derives the return series for symbols and resets the weights
// to equal weights.
func (s *State) SetSymbols(symbols []string) error {
	returns, err := s.builder.Derive(s.panel, symbols, s.window)
	if err != nil {
		return s.fail(err, "Failed to set symbols")
	}
	s.symbols = returns.Symbols
	s.returns = returns
	s.weights = optimization.EqualWeights(returns.Symbols)
	s.logState("Symbols updated")
	return nil
}

// ExpectedReturn returns the annualized expected return. A non-nil w is
// evaluated instead of the stored weights and then replaces them.
func (s *State) ExpectedReturn(w optimization.Weights) (float64, error) {
	weights := s.pick(w)
	ret, err := s.stats.ExpectedReturn(s.returns, weights)
	if err != nil {
		return 0, s.fail(err, "Failed to compute expected return")
	}
	s.persist(w)
	return ret, nil
}

// Volatility returns the annualized volatility. A non-nil w is evaluated
// instead of the stored weights and then replaces them.
func (s *State) Volatility(w optimization.Weights) (float64, error) {
	weights := s.pick(w)
	vol, err := s.stats.Volatility(s.returns, weights)
	if err != nil {
		return 0, s.fail(err, "Failed to compute volatility")
	}
	s.persist(w)
	return vol, nil
}

// MinimumVarianceAllocation solves for the minimum-volatility weights,
// starting from the current weights. Non-empty symbols are installed first
// as with SetSymbols, but only once the solve has succeeded. The resulting
// weights are not committed; see AdoptAllocation.
func (s *State) MinimumVarianceAllocation(symbols []string) (*optimization.Allocation, error) {
	returns, weights := s.returns, s.weights
	if len(symbols) > 0 {
		derived, err := s.builder.Derive(s.panel, symbols, s.window)
		if err != nil {
			return nil, s.fail(err, "Failed to set symbols")
		}
		returns, weights = derived, optimization.EqualWeights(derived.Symbols)
	}

	alloc, err := s.solver.Solve(returns, weights)
	if err != nil {
		return nil, s.fail(err, "Failed to compute minimum variance allocation")
	}

	if returns != s.returns {
		s.symbols = returns.Symbols
		s.returns = returns
		s.weights = weights
		s.logState("Symbols updated")
	}
	return alloc, nil
}

// SetWeights replaces the stored weights. w must carry exactly the
// configured symbols.
func (s *State) SetWeights(w optimization.Weights) error {
	if err := w.Check(s.symbols); err != nil {
		return s.fail(err, "Failed to set weights")
	}
	s.persist(w)
	return nil
}

// AdoptAllocation commits the weights of a solver result.
func (s *State) AdoptAllocation(a *optimization.Allocation) error {
	if a == nil {
		return fmt.Errorf("nil allocation")
	}
	return s.SetWeights(a.Weights)
}

// Reload fetches the price panel from the source again and re-derives the
// return series for the current symbols and window. Weights are kept.
func (s *State) Reload(ctx context.Context) error {
	panel, err := s.loader.Load(ctx, s.source)
	if err != nil {
		return s.fail(err, "Failed to reload price data")
	}
	returns, err := s.builder.Derive(panel, s.symbols, s.window)
	if err != nil {
		return s.fail(err, "Failed to derive returns after reload")
	}
	s.panel = panel
	s.returns = returns
	s.log.Info().
		Str("source", s.source).
		Int("observations", returns.Rows()).
		Msg("Price data reloaded")
	return nil
}

// Evaluate returns the annualized expected return and volatility of w, or of
// the stored weights when w is nil. Nothing is stored.
func (s *State) Evaluate(w optimization.Weights) (ret, vol float64, err error) {
	weights := s.pick(w)
	if err := weights.Check(s.symbols); err != nil {
		return 0, 0, s.fail(err, "Failed to evaluate weights")
	}
	if ret, err = s.stats.ExpectedReturn(s.returns, weights); err != nil {
		return 0, 0, s.fail(err, "Failed to compute expected return")
	}
	if vol, err = s.stats.Volatility(s.returns, weights); err != nil {
		return 0, 0, s.fail(err, "Failed to compute volatility")
	}
	return ret, vol, nil
}

// Summary describes the current return series.
func (s *State) Summary() (*optimization.Summary, error) {
	summary, err := s.stats.Summarize(s.returns)
	if err != nil {
		return nil, s.fail(err, "Failed to summarize returns")
	}
	return summary, nil
}

// Weights returns a copy of the stored weights.
func (s *State) Weights() optimization.Weights {
	return s.weights.Clone()
}

// Symbols returns the configured symbols in order.
func (s *State) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// Window returns the analysis window.
func (s *State) Window() optimization.Window {
	return s.window
}

// Source returns the price data locator.
func (s *State) Source() string {
	return s.source
}

// Returns returns the derived return series. It must not be modified.
func (s *State) Returns() *optimization.ReturnSeries {
	return s.returns
}

// SetMaxIterations bounds the solver's major iterations per method.
func (s *State) SetMaxIterations(n int) {
	s.solver.MaxIterations = n
}

// AnnualizationFactor returns the factor statistics are scaled with.
func (s *State) AnnualizationFactor() float64 {
	return s.stats.Factor()
}

func (s *State) pick(w optimization.Weights) optimization.Weights {
	if w == nil {
		return s.weights
	}
	return w
}

func (s *State) persist(w optimization.Weights) {
	if w == nil {
		return
	}
	s.weights = w.Clone()
	s.logState("Weights updated")
}

func (s *State) logState(msg string) {
	s.log.Info().
		Strs("symbols", s.symbols).
		Str("start", s.window.Start).
		Str("end", s.window.End).
		Interface("weights", s.weights).
		Msg(msg)
}

func (s *State) fail(err error, msg string) error {
	s.log.Error().Err(err).Msg(msg)
	return err
}
