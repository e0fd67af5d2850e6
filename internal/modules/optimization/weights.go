package optimization

import (
	"math"
	"sort"
)

// Weights maps instrument identifiers to portfolio weights.
// Weights are always addressed by symbol, never by position.
type Weights map[string]float64

// EqualWeights assigns 1/n to each of the n symbols.
func EqualWeights(symbols []string) Weights {
	w := make(Weights, len(symbols))
	if len(symbols) == 0 {
		return w
	}
	share := 1.0 / float64(len(symbols))
	for _, s := range symbols {
		w[s] = share
	}
	return w
}

// Clone returns a copy of w.
func (w Weights) Clone() Weights {
	if w == nil {
		return nil
	}
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

// IsFeasible reports whether every weight lies in [0,1] and they sum to 1 within tol.
func (w Weights) IsFeasible(tol float64) bool {
	for _, v := range w {
		if math.IsNaN(v) || v < -tol || v > 1+tol {
			return false
		}
	}
	return math.Abs(w.Sum()-1) <= tol
}

// Check verifies that w carries exactly the given symbols.
func (w Weights) Check(symbols []string) error {
	expected := make(map[string]bool, len(symbols))
	var missing []string
	for _, s := range symbols {
		expected[s] = true
		if _, ok := w[s]; !ok {
			missing = append(missing, s)
		}
	}
	var unexpected []string
	for s := range w {
		if !expected[s] {
			unexpected = append(unexpected, s)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	sort.Strings(unexpected)
	return &WeightMismatchError{Missing: missing, Unexpected: unexpected}
}

// Vector lays w out in symbols order.
func (w Weights) Vector(symbols []string) ([]float64, error) {
	if err := w.Check(symbols); err != nil {
		return nil, err
	}
	out := make([]float64, len(symbols))
	for i, s := range symbols {
		out[i] = w[s]
	}
	return out, nil
}

// weightsFromVector is the inverse of Vector.
func weightsFromVector(symbols []string, x []float64) Weights {
	w := make(Weights, len(symbols))
	for i, s := range symbols {
		w[s] = x[i]
	}
	return w
}
