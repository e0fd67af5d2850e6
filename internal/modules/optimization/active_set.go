package optimization

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// kktTolerance bounds the first-order optimality violation of a converged
	// allocation. The violation is measured per asset as the gap between its
	// correlation with the portfolio and the ratio of portfolio to asset
	// volatility, so it does not depend on the scale of the returns.
	kktTolerance = 1e-6

	// riskless is the portfolio to asset volatility ratio below which the
	// portfolio variance is indistinguishable from rounding error.
	riskless = 1e-15

	stepTolerance = 1e-10
)

// refine runs a primal active-set method for min w' cov w on the simplex,
// starting from the feasible point w. Assets with zero weight start in the
// working set. Every iterate is feasible and no iterate has a larger variance
// than its predecessor. It returns the final point and the iterations used.
func refine(cov mat.Symmetric, w []float64, maxIter int) ([]float64, int) {
	n := len(w)
	x := append([]float64(nil), w...)
	atZero := make([]bool, n)
	for i, v := range x {
		if v <= 0 {
			x[i] = 0
			atZero[i] = true
		}
	}
	variance := portfolioVariance(cov, x)

	for iter := 1; iter <= maxIter; iter++ {
		var free []int
		for i, z := range atZero {
			if !z {
				free = append(free, i)
			}
		}
		target, ok := minVarianceOn(cov, free)
		if !ok {
			return x, iter
		}

		p := make([]float64, n)
		var size float64
		for k, i := range free {
			p[i] = target[k] - x[i]
			size = math.Max(size, math.Abs(p[i]))
		}

		if size <= stepTolerance {
			// Stationary on the free set: release the zero weight whose
			// multiplier has the wrong sign, or stop.
			drop, worst := -1, kktTolerance
			for i, v := range violations(cov, x) {
				if atZero[i] && v > worst {
					drop, worst = i, v
				}
			}
			if drop < 0 {
				return x, iter
			}
			atZero[drop] = false
			continue
		}

		alpha, block := 1.0, -1
		for _, i := range free {
			if p[i] < 0 {
				if a := -x[i] / p[i]; a < alpha {
					alpha, block = a, i
				}
			}
		}

		next := make([]float64, n)
		var total float64
		for i := range x {
			next[i] = math.Max(0, x[i]+alpha*p[i])
		}
		if block >= 0 {
			next[block] = 0
			atZero[block] = true
		}
		for _, v := range next {
			total += v
		}
		if total <= 0 {
			return x, iter
		}
		for i := range next {
			next[i] /= total
		}

		nextVariance := portfolioVariance(cov, next)
		if nextVariance > variance+1e-12*math.Abs(variance) {
			return x, iter
		}
		x, variance = next, nextVariance
	}
	return x, maxIter
}

// minVarianceOn returns the unconstrained-sign minimum-variance weights over
// the assets in free, summing to one. Zero-variance assets take all the
// weight when present. The system is solved on the correlation matrix so
// that assets of very different volatility stay well conditioned.
func minVarianceOn(cov mat.Symmetric, free []int) ([]float64, bool) {
	m := len(free)
	if m == 0 {
		return nil, false
	}

	sigma := make([]float64, m)
	var riskFree []int
	for k, i := range free {
		sigma[k] = math.Sqrt(math.Max(0, cov.At(i, i)))
		if sigma[k] == 0 {
			riskFree = append(riskFree, k)
		}
	}
	out := make([]float64, m)
	if len(riskFree) > 0 {
		for _, k := range riskFree {
			out[k] = 1 / float64(len(riskFree))
		}
		return out, true
	}

	corr := mat.NewSymDense(m, nil)
	inv := mat.NewVecDense(m, nil)
	for a, i := range free {
		inv.SetVec(a, 1/sigma[a])
		for b := a; b < m; b++ {
			corr.SetSym(a, b, cov.At(i, free[b])/(sigma[a]*sigma[b]))
		}
	}

	var z mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(corr) {
		if err := chol.SolveVecTo(&z, inv); err != nil && !isCondition(err) {
			return nil, false
		}
	} else if err := z.SolveVec(corr, inv); err != nil && !isCondition(err) {
		return nil, false
	}

	var total float64
	for k := range out {
		out[k] = z.AtVec(k) / sigma[k]
		total += out[k]
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, false
	}
	for k := range out {
		out[k] /= total
	}
	return out, true
}

func isCondition(err error) bool {
	var cond mat.Condition
	return errors.As(err, &cond)
}

// violations returns, per asset, how far w is from the first-order
// optimality conditions: zero for a held asset whose marginal variance equals
// the portfolio's, and for an unheld asset whose marginal variance is not
// lower. Positive values are violations.
func violations(cov mat.Symmetric, w []float64) []float64 {
	n := len(w)
	out := make([]float64, n)

	x := mat.NewVecDense(n, w)
	var cw mat.VecDense
	cw.MulVec(cov, x)
	portVar := mat.Dot(x, &cw)
	portVol := math.Sqrt(math.Max(0, portVar))

	var maxVol float64
	for i := 0; i < n; i++ {
		maxVol = math.Max(maxVol, math.Sqrt(math.Max(0, cov.At(i, i))))
	}
	if portVol <= riskless*maxVol {
		return out
	}

	for i := 0; i < n; i++ {
		vol := math.Sqrt(math.Max(0, cov.At(i, i)))
		if vol == 0 {
			if w[i] == 0 {
				out[i] = 1
			}
			continue
		}
		// corr(asset, portfolio) - portVol/vol
		gap := cw.AtVec(i)/(vol*portVol) - portVol/vol
		if w[i] > 0 {
			out[i] = math.Abs(gap)
		} else {
			out[i] = -gap
		}
	}
	return out
}

// kktViolation returns the largest optimality violation of w.
func kktViolation(cov mat.Symmetric, w []float64) float64 {
	var worst float64
	for _, v := range violations(cov, w) {
		worst = math.Max(worst, v)
	}
	return worst
}
