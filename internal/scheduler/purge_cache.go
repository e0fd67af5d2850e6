package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CachePurger removes expired cache entries.
type CachePurger interface {
	Purge(ctx context.Context) (int64, error)
}

// PurgeCacheJob removes expired price panels from the cache database.
// It should be scheduled to run daily.
type PurgeCacheJob struct {
	cache   CachePurger
	timeout time.Duration
	log     zerolog.Logger
}

// NewPurgeCacheJob creates a new cache purge job.
func NewPurgeCacheJob(cache CachePurger, log zerolog.Logger) *PurgeCacheJob {
	return &PurgeCacheJob{
		cache:   cache,
		timeout: 30 * time.Second,
		log:     log.With().Str("job", "purge_cache").Logger(),
	}
}

// Run deletes every expired entry.
func (j *PurgeCacheJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	deleted, err := j.cache.Purge(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to purge expired price panels")
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Msg("Purged expired price panels")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *PurgeCacheJob) Name() string {
	return "purge_cache"
}
