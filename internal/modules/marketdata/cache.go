package marketdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultCacheTTL is how long a fetched panel is served without refetching.
const DefaultCacheTTL = 24 * time.Hour

// CachedLoader keeps parsed panels in the price_panels table and serves them
// until they expire. When the upstream source is unavailable, an expired entry
// is returned instead of failing.
type CachedLoader struct {
	next Loader
	db   *sql.DB
	ttl  time.Duration
	now  func() time.Time
	log  zerolog.Logger
}

// NewCachedLoader wraps next with a SQLite-backed cache.
// db must already carry the cache schema (database.DB.Migrate on "cache").
func NewCachedLoader(next Loader, db *sql.DB, ttl time.Duration, log zerolog.Logger) *CachedLoader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedLoader{
		next: next,
		db:   db,
		ttl:  ttl,
		now:  time.Now,
		log:  log.With().Str("component", "panel_cache").Logger(),
	}
}

// Load returns a fresh cached panel, or fetches, stores and returns a new one.
func (c *CachedLoader) Load(ctx context.Context, locator string) (*PricePanel, error) {
	panel, fresh, err := c.get(ctx, locator)
	if err != nil {
		c.log.Warn().Err(err).Str("locator", locator).Msg("Failed to read cached panel")
	}
	if panel != nil && fresh {
		c.log.Debug().Str("locator", locator).Msg("Using cached price panel")
		return panel, nil
	}

	fetched, fetchErr := c.next.Load(ctx, locator)
	if fetchErr != nil {
		var unavailable *SourceUnavailableError
		if panel != nil && errors.As(fetchErr, &unavailable) {
			c.log.Warn().
				Err(fetchErr).
				Str("locator", locator).
				Msg("Source unavailable, serving stale cached panel")
			return panel, nil
		}
		return nil, fetchErr
	}

	if err := c.put(ctx, locator, fetched); err != nil {
		c.log.Warn().Err(err).Str("locator", locator).Msg("Failed to cache price panel")
	}
	return fetched, nil
}

// Invalidate drops the cached entry for locator so the next Load refetches.
func (c *CachedLoader) Invalidate(ctx context.Context, locator string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM price_panels WHERE locator = ?`, locator); err != nil {
		return fmt.Errorf("failed to invalidate cached panel: %w", err)
	}
	return nil
}

// Purge removes expired entries and returns how many were deleted.
func (c *CachedLoader) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM price_panels WHERE expires_at <= ?`, c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cached panels: %w", err)
	}
	return res.RowsAffected()
}

func (c *CachedLoader) get(ctx context.Context, locator string) (*PricePanel, bool, error) {
	var data []byte
	var expiresAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT data, expires_at FROM price_panels WHERE locator = ?`, locator,
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query cached panel: %w", err)
	}

	var panel PricePanel
	if err := msgpack.Unmarshal(data, &panel); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached panel: %w", err)
	}
	return &panel, expiresAt > c.now().Unix(), nil
}

func (c *CachedLoader) put(ctx context.Context, locator string, panel *PricePanel) error {
	data, err := msgpack.Marshal(panel)
	if err != nil {
		return fmt.Errorf("failed to encode panel: %w", err)
	}
	now := c.now()
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO price_panels (locator, data, fetched_at, expires_at) VALUES (?, ?, ?, ?)`,
		locator, data, now.Unix(), now.Add(c.ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store panel: %w", err)
	}
	return nil
}
