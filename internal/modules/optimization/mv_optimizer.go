package optimization

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	// DefaultMaxIterations bounds the major iterations of each solver method.
	DefaultMaxIterations = 1000

	// weightFloor is the threshold below which final weights are clipped to zero.
	weightFloor = 1e-8

	// initialBlend pulls the starting point off the simplex boundary so its
	// softmax logits stay finite.
	initialBlend = 0.01

	gradientThreshold = 1e-7
)

// Allocation is the outcome of a minimum-variance run.
type Allocation struct {
	ID             uuid.UUID `json:"id"`
	Weights        Weights   `json:"weights"`
	Success        bool      `json:"success"`
	Status         string    `json:"status"`
	Message        string    `json:"message"`
	Method         string    `json:"method"`
	Iterations     int       `json:"iterations"`
	Evaluations    int       `json:"evaluations"`
	Volatility     float64   `json:"volatility"`
	ExpectedReturn float64   `json:"expected_return"`
}

// MinVarianceSolver finds the fully-invested long-only weights with the
// lowest annualized volatility.
//
// The simplex {w >= 0, sum(w) = 1} is parameterized with a softmax over n-1
// free logits (the last logit is pinned to zero), so every point the
// optimizer visits is a feasible allocation and the problem is unconstrained.
// The logit solution is then finished by an active-set method in weight
// space. Success reports whether the first-order optimality conditions hold
// at the returned weights.
type MinVarianceSolver struct {
	stats         *Statistics
	log           zerolog.Logger
	MaxIterations int
}

// NewMinVarianceSolver creates a solver that measures risk with stats.
func NewMinVarianceSolver(stats *Statistics, log zerolog.Logger) *MinVarianceSolver {
	if stats == nil {
		stats = NewStatistics(DefaultAnnualizationFactor)
	}
	return &MinVarianceSolver{
		stats:         stats,
		log:           log.With().Str("component", "min_variance_solver").Logger(),
		MaxIterations: DefaultMaxIterations,
	}
}

// Solve minimizes portfolio volatility over r starting from initial.
// A nil initial starts from equal weights; an infeasible one is projected
// onto the simplex first. Failure to converge is reported on the returned
// Allocation, never as an error.
func (s *MinVarianceSolver) Solve(r *ReturnSeries, initial Weights) (*Allocation, error) {
	if len(r.Symbols) == 0 {
		return nil, ErrNoSymbols
	}
	cov, err := s.stats.Covariance(r)
	if err != nil {
		return nil, err
	}
	if initial == nil {
		initial = EqualWeights(r.Symbols)
	}
	x0, err := initial.Vector(r.Symbols)
	if err != nil {
		return nil, err
	}

	n := len(r.Symbols)
	if n == 1 {
		alloc := &Allocation{
			ID:          uuid.New(),
			Weights:     Weights{r.Symbols[0]: 1},
			Success:     true,
			Status:      optimize.Success.String(),
			Message:     "single instrument",
			Method:      "none",
			Volatility:  portfolioVolatility(cov, []float64{1}),
			Evaluations: 1,
		}
		return s.finish(r, alloc)
	}

	start := projectToSimplex(x0)
	for i := range start {
		start[i] = (1-initialBlend)*start[i] + initialBlend/float64(n)
	}

	// Scaling the objective by the mean asset variance keeps gradient
	// magnitudes comparable across return frequencies.
	scale := mat.Trace(cov) / float64(n)
	if scale <= 0 || math.IsNaN(scale) {
		scale = 1
	}

	problem := optimize.Problem{
		Func: func(y []float64) float64 {
			w := softmax(y)
			return portfolioVariance(cov, w) / scale
		},
		Grad: func(grad, y []float64) {
			w := softmax(y)
			g := mat.NewVecDense(n, nil)
			g.MulVec(cov, mat.NewVecDense(n, w))
			g.ScaleVec(2/scale, g)
			avg := mat.Dot(g, mat.NewVecDense(n, w))
			for k := range grad {
				grad[k] = w[k] * (g.AtVec(k) - avg)
			}
		},
	}

	y0 := logits(start)
	settings := &optimize.Settings{
		MajorIterations:   s.MaxIterations,
		GradientThreshold: gradientThreshold,
	}

	best := candidate{method: "initial", y: y0, f: problem.Func(y0), status: optimize.NotTerminated}
	evaluations := 1

	run := func(method optimize.Method, name string) (candidate, bool) {
		result, err := optimize.Minimize(problem, y0, settings, method)
		if result == nil {
			s.log.Warn().Err(err).Str("method", name).Msg("Optimizer failed to start")
			return candidate{}, false
		}
		evaluations += result.Stats.FuncEvaluations
		c := candidate{
			method:     name,
			y:          result.Location.X,
			f:          result.Location.F,
			status:     result.Status,
			iterations: result.Stats.MajorIterations,
			err:        err,
		}
		if !c.valid() {
			s.log.Warn().Err(err).Str("method", name).Str("status", result.Status.String()).Msg("Optimizer returned no usable location")
			return candidate{}, false
		}
		if c.f < best.f || (accepted(c.status) && !accepted(best.status) && c.f <= best.f+1e-12) {
			best = c
		}
		return c, accepted(c.status) && err == nil
	}

	if _, ok := run(&optimize.BFGS{}, "BFGS"); !ok {
		s.log.Debug().Str("status", best.status.String()).Msg("BFGS did not converge, trying Nelder-Mead")
		run(&optimize.NelderMead{}, "NelderMead")
	}

	// Small weights flatten the logit gradient, so the logit solve can stop
	// short of a boundary optimum. The weights are finished in weight space.
	found := clipWeights(softmax(best.y))
	w, refineIters := refine(cov, found, s.MaxIterations)
	if portfolioVariance(cov, w) > portfolioVariance(cov, found) {
		w = found
	}
	w = clipWeights(w)
	violation := kktViolation(cov, w)
	success := violation <= kktTolerance

	method := best.method + "+active-set"
	if best.method == "initial" {
		method = "active-set"
	}

	alloc := &Allocation{
		ID:          uuid.New(),
		Weights:     weightsFromVector(r.Symbols, w),
		Success:     success,
		Status:      best.status.String(),
		Method:      method,
		Iterations:  best.iterations + refineIters,
		Evaluations: evaluations,
		Volatility:  portfolioVolatility(cov, w),
	}
	switch {
	case success:
		alloc.Message = "optimization terminated successfully"
	case best.err != nil:
		alloc.Message = fmt.Sprintf("%v (optimality violation %.2e)", best.err, violation)
	default:
		alloc.Message = fmt.Sprintf("optimization did not converge: status=%s, optimality violation %.2e",
			best.status, violation)
	}
	s.log.Debug().
		Int("refine_iterations", refineIters).
		Float64("optimality_violation", violation).
		Msg("Refined allocation in weight space")
	return s.finish(r, alloc)
}

func (s *MinVarianceSolver) finish(r *ReturnSeries, alloc *Allocation) (*Allocation, error) {
	ret, err := s.stats.ExpectedReturn(r, alloc.Weights)
	if err != nil {
		return nil, err
	}
	alloc.ExpectedReturn = ret

	event := s.log.Info()
	if !alloc.Success {
		event = s.log.Warn()
	}
	event.
		Str("id", alloc.ID.String()).
		Bool("success", alloc.Success).
		Str("status", alloc.Status).
		Str("method", alloc.Method).
		Int("iterations", alloc.Iterations).
		Float64("volatility", alloc.Volatility).
		Interface("weights", alloc.Weights).
		Msg("Minimum variance allocation computed")
	return alloc, nil
}

type candidate struct {
	method     string
	y          []float64
	f          float64
	status     optimize.Status
	iterations int
	err        error
}

func (c candidate) valid() bool {
	if c.y == nil || math.IsNaN(c.f) || math.IsInf(c.f, 0) {
		return false
	}
	for _, v := range c.y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func accepted(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.MethodConverge:
		return true
	}
	return false
}

// softmax maps n-1 free logits to a point on the n-simplex.
func softmax(y []float64) []float64 {
	w := make([]float64, len(y)+1)
	maxLogit := 0.0
	for _, v := range y {
		maxLogit = math.Max(maxLogit, v)
	}
	var total float64
	for i := range w {
		z := 0.0
		if i < len(y) {
			z = y[i]
		}
		w[i] = math.Exp(z - maxLogit)
		total += w[i]
	}
	floats.Scale(1/total, w)
	return w
}

// logits inverts softmax for a strictly positive point on the simplex.
func logits(x []float64) []float64 {
	n := len(x)
	y := make([]float64, n-1)
	last := math.Log(x[n-1])
	for i := range y {
		y[i] = math.Log(x[i]) - last
	}
	return y
}

// projectToSimplex returns the Euclidean projection of v onto
// {x : x >= 0, sum(x) = 1}.
func projectToSimplex(v []float64) []float64 {
	n := len(v)
	u := make([]float64, n)
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			x = 0
		}
		u[i] = x
	}
	sorted := append([]float64(nil), u...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	var cum, theta float64
	for i, x := range sorted {
		cum += x
		t := (cum - 1) / float64(i+1)
		if x-t > 0 {
			theta = t
		}
	}
	out := make([]float64, n)
	for i, x := range u {
		out[i] = math.Max(x-theta, 0)
	}
	return out
}

// clipWeights zeroes weights below weightFloor and renormalizes the rest.
func clipWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	var total float64
	for i, x := range w {
		if x >= weightFloor {
			out[i] = x
			total += x
		}
	}
	if total == 0 {
		return w
	}
	floats.Scale(1/total, out)
	return out
}
