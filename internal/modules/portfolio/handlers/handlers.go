// Package handlers provides HTTP handlers for the configured portfolio.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/mvportfolio/internal/modules/charts"
	"github.com/aristath/mvportfolio/internal/modules/marketdata"
	"github.com/aristath/mvportfolio/internal/modules/optimization"
	"github.com/aristath/mvportfolio/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests.
// The portfolio state is not safe for concurrent use, so every request
// holds the handler's lock while it touches the state.
type Handler struct {
	mu     *sync.Mutex
	state  *portfolio.State
	charts *charts.Renderer
	log    zerolog.Logger
}

// NewHandler creates a new portfolio handler. mu guards state and is shared
// with any other component that touches it.
func NewHandler(state *portfolio.State, mu *sync.Mutex, renderer *charts.Renderer, log zerolog.Logger) *Handler {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &Handler{
		mu:     mu,
		state:  state,
		charts: renderer,
		log:    log.With().Str("handler", "portfolio").Logger(),
	}
}

// PortfolioResponse describes the configured portfolio.
type PortfolioResponse struct {
	Source              string               `json:"source"`
	Symbols             []string             `json:"symbols"`
	Window              optimization.Window  `json:"window"`
	Weights             optimization.Weights `json:"weights"`
	Observations        int                  `json:"observations"`
	AnnualizationFactor float64              `json:"annualization_factor"`
}

// StatisticsResponse holds portfolio and per-asset statistics.
type StatisticsResponse struct {
	Weights        optimization.Weights  `json:"weights"`
	ExpectedReturn float64               `json:"expected_return"`
	Volatility     float64               `json:"volatility"`
	Summary        *optimization.Summary `json:"summary"`
}

// MinVarianceRequest is the body of POST /portfolio/min-variance.
type MinVarianceRequest struct {
	Symbols []string `json:"symbols"`
	Adopt   bool     `json:"adopt"`
}

// MinVarianceResponse reports a solver run.
type MinVarianceResponse struct {
	Allocation *optimization.Allocation `json:"allocation"`
	Adopted    bool                     `json:"adopted"`
}

// HandleGetPortfolio returns the configured portfolio.
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.writeJSON(w, http.StatusOK, h.describe())
}

// HandleGetStatistics returns expected return and volatility for the stored
// weights together with per-asset statistics.
func (h *Handler) HandleGetStatistics(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	resp, err := h.statistics()
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleSetWeights replaces the stored weights.
func (h *Handler) HandleSetWeights(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Weights optimization.Weights `json:"weights"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Weights == nil {
		h.writeError(w, http.StatusBadRequest, "weights are required")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Weights are stored only once their statistics are known.
	resp, err := h.evaluate(req.Weights)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if err := h.state.SetWeights(req.Weights); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleSetSymbols replaces the portfolio's instruments and resets weights
// to equal weights.
func (h *Handler) HandleSetSymbols(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.state.SetSymbols(req.Symbols); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.describe())
}

// HandleMinVariance computes the minimum variance allocation. The result is
// only committed when the request sets adopt and the solver converged.
func (h *Handler) HandleMinVariance(w http.ResponseWriter, r *http.Request) {
	var req MinVarianceRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	alloc, err := h.state.MinimumVarianceAllocation(req.Symbols)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	resp := MinVarianceResponse{Allocation: alloc}
	if req.Adopt && alloc.Success {
		if err := h.state.AdoptAllocation(alloc); err != nil {
			h.writeFailure(w, err)
			return
		}
		resp.Adopted = true
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleMinVarianceChart renders the minimum variance allocation for the
// current symbols as a PNG pie chart.
func (h *Handler) HandleMinVarianceChart(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	alloc, err := h.state.MinimumVarianceAllocation(nil)
	h.mu.Unlock()
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	buf, err := h.charts.AllocationPie("Minimum variance allocation", alloc.Weights)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to render allocation chart")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf); err != nil {
		h.log.Error().Err(err).Msg("Failed to write chart response")
	}
}

func (h *Handler) describe() PortfolioResponse {
	return PortfolioResponse{
		Source:              h.state.Source(),
		Symbols:             h.state.Symbols(),
		Window:              h.state.Window(),
		Weights:             h.state.Weights(),
		Observations:        h.state.Returns().Rows(),
		AnnualizationFactor: h.state.AnnualizationFactor(),
	}
}

func (h *Handler) statistics() (*StatisticsResponse, error) {
	return h.evaluate(nil)
}

// evaluate describes w, or the stored weights when w is nil.
func (h *Handler) evaluate(weights optimization.Weights) (*StatisticsResponse, error) {
	ret, vol, err := h.state.Evaluate(weights)
	if err != nil {
		return nil, err
	}
	summary, err := h.state.Summary()
	if err != nil {
		return nil, err
	}
	if weights == nil {
		weights = h.state.Weights()
	}
	return &StatisticsResponse{
		Weights:        weights.Clone(),
		ExpectedReturn: ret,
		Volatility:     vol,
		Summary:        summary,
	}, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		unknown      *optimization.UnknownInstrumentError
		window       *optimization.IncompatibleWindowError
		mismatch     *optimization.WeightMismatchError
		insufficient *optimization.InsufficientDataError
		unavailable  *marketdata.SourceUnavailableError
		malformed    *marketdata.MalformedSourceError
	)
	switch {
	case errors.As(err, &unknown), errors.As(err, &window), errors.As(err, &mismatch),
		errors.Is(err, optimization.ErrNoSymbols):
		return http.StatusBadRequest
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity
	case errors.As(err, &unavailable), errors.As(err, &malformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
