package optimization

import (
	"math"
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultAnnualizationFactor is the number of trading days per year.
const DefaultAnnualizationFactor = 252.0

// Statistics computes annualized portfolio statistics from a return series.
// All methods are pure: neither the series nor the weights are modified.
type Statistics struct {
	factor float64
}

// NewStatistics creates a statistics calculator. A non-positive factor
// falls back to DefaultAnnualizationFactor.
func NewStatistics(factor float64) *Statistics {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		factor = DefaultAnnualizationFactor
	}
	return &Statistics{factor: factor}
}

// Factor returns the annualization factor in use.
func (s *Statistics) Factor() float64 {
	return s.factor
}

func requireRows(r *ReturnSeries, n int) error {
	if r.Rows() < n {
		return &InsufficientDataError{Rows: r.Rows(), Required: n}
	}
	return nil
}

// MeanReturns returns the annualized mean return of every instrument.
func (s *Statistics) MeanReturns(r *ReturnSeries) (map[string]float64, error) {
	if err := requireRows(r, 1); err != nil {
		return nil, err
	}
	means := make(map[string]float64, len(r.Symbols))
	for _, sym := range r.Symbols {
		means[sym] = s.factor * stat.Mean(r.Data[sym], nil)
	}
	return means, nil
}

// Covariance returns the annualized sample covariance matrix (divisor T-1)
// in r.Symbols order.
func (s *Statistics) Covariance(r *ReturnSeries) (*mat.SymDense, error) {
	if err := requireRows(r, 2); err != nil {
		return nil, err
	}
	cov := mat.NewSymDense(len(r.Symbols), nil)
	stat.CovarianceMatrix(cov, r.Matrix(), nil)
	cov.ScaleSym(s.factor, cov)
	return cov, nil
}

// ExpectedReturn returns A * mean(R) . w
func (s *Statistics) ExpectedReturn(r *ReturnSeries, w Weights) (float64, error) {
	x, err := w.Vector(r.Symbols)
	if err != nil {
		return 0, err
	}
	means, err := s.MeanReturns(r)
	if err != nil {
		return 0, err
	}
	var ret float64
	for i, sym := range r.Symbols {
		ret += means[sym] * x[i]
	}
	return ret, nil
}

// Volatility returns sqrt(w' (A * Cov(R)) w). The radicand is clamped at zero
// so floating-point noise on a near-singular covariance never yields NaN.
func (s *Statistics) Volatility(r *ReturnSeries, w Weights) (float64, error) {
	x, err := w.Vector(r.Symbols)
	if err != nil {
		return 0, err
	}
	cov, err := s.Covariance(r)
	if err != nil {
		return 0, err
	}
	return portfolioVolatility(cov, x), nil
}

// portfolioVariance returns x' cov x.
func portfolioVariance(cov mat.Symmetric, x []float64) float64 {
	v := mat.NewVecDense(len(x), x)
	return mat.Inner(v, cov, v)
}

func portfolioVolatility(cov mat.Symmetric, x []float64) float64 {
	return math.Sqrt(math.Max(0, portfolioVariance(cov, x)))
}

// AssetVolatilities returns the annualized volatility (std * sqrt(A)) of every instrument.
func (s *Statistics) AssetVolatilities(r *ReturnSeries) (map[string]float64, error) {
	cov, err := s.Covariance(r)
	if err != nil {
		return nil, err
	}
	vols := make(map[string]float64, len(r.Symbols))
	for i, sym := range r.Symbols {
		vols[sym] = math.Sqrt(math.Max(0, cov.At(i, i)))
	}
	return vols, nil
}

// Correlations returns the Pearson correlation matrix in r.Symbols order.
// Pairs involving a constant series have correlation 0.
func (s *Statistics) Correlations(r *ReturnSeries) ([][]float64, error) {
	if err := requireRows(r, 2); err != nil {
		return nil, err
	}
	n, period := len(r.Symbols), r.Rows()

	// Correl treats tiny variance products as degenerate, so each series is
	// standardized first. Correlation is scale invariant.
	scaled := make([][]float64, n)
	for i, sym := range r.Symbols {
		scaled[i] = standardize(r.Data[sym])
	}

	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		corr[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if scaled[i] == nil || scaled[j] == nil {
				continue
			}
			out := talib.Correl(scaled[i], scaled[j], period)
			c := out[len(out)-1]
			if math.IsNaN(c) || math.IsInf(c, 0) {
				c = 0
			}
			c = math.Max(-1, math.Min(1, c))
			corr[i][j] = c
			corr[j][i] = c
		}
	}
	return corr, nil
}

// standardize rescales x to zero mean and unit variance. It returns nil for
// a constant series.
func standardize(x []float64) []float64 {
	mean, std := stat.MeanStdDev(x, nil)
	if std == 0 || math.IsNaN(std) {
		return nil
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - mean) / std
	}
	return out
}

// AssetSummary holds per-instrument annualized statistics.
type AssetSummary struct {
	Symbol           string  `json:"symbol"`
	AnnualReturn     float64 `json:"annual_return"`
	AnnualVolatility float64 `json:"annual_volatility"`
}

// Summary describes a return series: per-asset statistics and correlations.
type Summary struct {
	Observations int            `json:"observations"`
	First        time.Time      `json:"first"`
	Last         time.Time      `json:"last"`
	Symbols      []string       `json:"symbols"`
	Assets       []AssetSummary `json:"assets"`
	Correlations [][]float64    `json:"correlations"`
}

// Summarize computes a Summary for r.
func (s *Statistics) Summarize(r *ReturnSeries) (*Summary, error) {
	means, err := s.MeanReturns(r)
	if err != nil {
		return nil, err
	}
	vols, err := s.AssetVolatilities(r)
	if err != nil {
		return nil, err
	}
	corr, err := s.Correlations(r)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Observations: r.Rows(),
		First:        r.Dates[0],
		Last:         r.Dates[r.Rows()-1],
		Symbols:      append([]string(nil), r.Symbols...),
		Assets:       make([]AssetSummary, 0, len(r.Symbols)),
		Correlations: corr,
	}
	for _, sym := range r.Symbols {
		summary.Assets = append(summary.Assets, AssetSummary{
			Symbol:           sym,
			AnnualReturn:     means[sym],
			AnnualVolatility: vols[sym],
		})
	}
	return summary, nil
}
