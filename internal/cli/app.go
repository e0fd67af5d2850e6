// Package cli implements the mvp command line application.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/aristath/mvportfolio/internal/config"
	"github.com/aristath/mvportfolio/internal/database"
	"github.com/aristath/mvportfolio/internal/modules/marketdata"
	"github.com/aristath/mvportfolio/internal/modules/portfolio"
	"github.com/aristath/mvportfolio/pkg/logger"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&statsCmd{}, "analysis")
	c.Register(&minvarCmd{}, "analysis")
	c.Register(&chartCmd{}, "analysis")

	c.Register(&serveCmd{}, "server")
}

// app bundles what every subcommand needs.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	loader marketdata.Loader
	cache  *marketdata.CachedLoader
	db     *database.DB
}

// newApp loads configuration and wires the price loader chain:
// scheme resolver, optional S3, optional SQLite cache.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	resolver := marketdata.NewResolver(cfg.HTTPTimeout, log)
	if marketdata.Scheme(cfg.Source) == "s3" {
		s3Loader, err := marketdata.NewS3Loader(ctx, cfg.S3, log)
		if err != nil {
			return nil, err
		}
		resolver.Register("s3", s3Loader)
	}

	a := &app{cfg: cfg, log: log, loader: resolver}
	if path := cfg.CachePath(); path != "" {
		db, err := database.New(database.Config{
			Path:    path,
			Profile: database.ProfileCache,
			Name:    "cache",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open cache database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate cache database: %w", err)
		}
		a.db = db
		a.cache = marketdata.NewCachedLoader(resolver, db.Conn(), cfg.CacheTTL, log)
		a.loader = a.cache
	}
	return a, nil
}

// state configures the portfolio, overriding symbols when given.
func (a *app) state(ctx context.Context, symbols []string) (*portfolio.State, error) {
	pcfg := a.cfg.Portfolio()
	if len(symbols) > 0 {
		pcfg.Symbols = symbols
		pcfg.Weights = nil
	}
	return portfolio.New(ctx, pcfg, a.loader, a.log)
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close cache database")
		}
	}
}

// fail prints err and returns the failure exit status.
func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}
