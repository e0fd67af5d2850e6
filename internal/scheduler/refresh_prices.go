package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/mvportfolio/internal/modules/portfolio"
)

// CacheInvalidator drops a cached price panel.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, locator string) error
}

// RefreshPricesJob re-fetches the price panel and re-derives the portfolio's
// return series. Symbols, window and weights are kept.
type RefreshPricesJob struct {
	mu      *sync.Mutex
	state   *portfolio.State
	cache   CacheInvalidator
	timeout time.Duration
	log     zerolog.Logger
}

// NewRefreshPricesJob creates a refresh job. mu must be the lock that guards
// state for every other user; cache may be nil.
func NewRefreshPricesJob(state *portfolio.State, mu *sync.Mutex, cache CacheInvalidator, timeout time.Duration, log zerolog.Logger) *RefreshPricesJob {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &RefreshPricesJob{
		mu:      mu,
		state:   state,
		cache:   cache,
		timeout: timeout,
		log:     log.With().Str("job", "refresh_prices").Logger(),
	}
}

// Name returns the job name
func (j *RefreshPricesJob) Name() string {
	return "refresh_prices"
}

// Run executes the refresh.
func (j *RefreshPricesJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	j.mu.Lock()
	defer j.mu.Unlock()

	source := j.state.Source()
	if j.cache != nil {
		if err := j.cache.Invalidate(ctx, source); err != nil {
			return fmt.Errorf("failed to invalidate cached prices: %w", err)
		}
	}

	start := time.Now()
	if err := j.state.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload prices: %w", err)
	}

	j.log.Info().
		Str("source", source).
		Int("observations", j.state.Returns().Rows()).
		Dur("duration", time.Since(start)).
		Msg("Prices refreshed")
	return nil
}
