package cli

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/aristath/mvportfolio/internal/modules/charts"
	portfoliohandlers "github.com/aristath/mvportfolio/internal/modules/portfolio/handlers"
	"github.com/aristath/mvportfolio/internal/scheduler"
	"github.com/aristath/mvportfolio/internal/server"
)

type serveCmd struct {
	port int
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the portfolio over HTTP" }
func (*serveCmd) Usage() string {
	return `mvp serve [-port <port>]

  Starts the HTTP API. When MVP_REFRESH_SCHEDULE is set, prices are reloaded
  from the source on that cron schedule (seconds field included). With the
  price cache enabled, expired panels are purged on MVP_CACHE_PURGE_SCHEDULE.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.port, "port", 0, "Port to listen on (defaults to MVP_PORT).")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	a, err := newApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.Close()
	log := a.log

	state, err := a.state(ctx, nil)
	if err != nil {
		return fail(err)
	}

	// One lock guards the state for HTTP handlers and the refresh job.
	mu := &sync.Mutex{}

	sched := scheduler.New(log)
	if a.cfg.RefreshSchedule != "" {
		var cache scheduler.CacheInvalidator
		if a.cache != nil {
			cache = a.cache
		}
		job := scheduler.NewRefreshPricesJob(state, mu, cache, 0, log)
		if err := sched.AddJob(a.cfg.RefreshSchedule, job); err != nil {
			return fail(err)
		}
	}
	if a.cache != nil && a.cfg.CachePurgeSchedule != "" {
		if err := sched.AddJob(a.cfg.CachePurgeSchedule, scheduler.NewPurgeCacheJob(a.cache, log)); err != nil {
			return fail(err)
		}
	}
	sched.Start()
	defer sched.Stop()

	port := a.cfg.Port
	if c.port > 0 {
		port = c.port
	}
	srv := server.New(server.Config{
		Log:            log,
		Port:           port,
		DevMode:        a.cfg.DevMode,
		AllowedOrigins: a.cfg.CORSOrigins,
		RequestTimeout: a.cfg.RequestTimeout,
		Portfolio:      portfoliohandlers.NewHandler(state, mu, charts.NewRenderer(log), log),
		CacheDB:        a.db,
		Scheduler:      sched,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		log.Error().Err(err).Msg("Server failed")
		return subcommands.ExitFailure
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return subcommands.ExitFailure
	}
	log.Info().Msg("Server stopped")
	return subcommands.ExitSuccess
}
