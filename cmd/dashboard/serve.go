package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"rental_dashboard/internal/admin"
	"rental_dashboard/internal/api"
	"rental_dashboard/internal/auth"
	"rental_dashboard/internal/breaker"
	"rental_dashboard/internal/cache"
	"rental_dashboard/internal/clock"
	"rental_dashboard/internal/config"
	"rental_dashboard/internal/health"
	"rental_dashboard/internal/httpcache"
	"rental_dashboard/internal/invalidation"
	"rental_dashboard/internal/limits"
	"rental_dashboard/internal/obs"
	"rental_dashboard/internal/server"
	"rental_dashboard/internal/store"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API, metrics and admin listeners",
		RunE: func(cmd *cobra.Command, _ []string) error {
			warnings, err := config.Validate(c.cfg)
			for _, warning := range warnings {
				c.logger.Warn(warning)
			}
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			srv, err := a.start()
			if err != nil {
				return err
			}
			c.logger.Info("dashboard started", "api", srv.Addr("api"), "admin", srv.Addr("admin"), "cache", c.cfg.Cache.Backend, "store", c.cfg.Store.Driver)

			<-ctx.Done()
			c.logger.Info("shutdown signal received")
			return srv.Shutdown()
		},
	}
	flags := cmd.Flags()
	flags.String("addr", "", "API listen address (overrides server.addr)")
	flags.Bool("seed", false, "load demo data into an empty store")
	_ = c.v.BindPFlag("server.addr", flags.Lookup("addr"))
	_ = c.v.BindPFlag("store.seed", flags.Lookup("seed"))
	return cmd
}

// app is the fully wired process before any listener is bound.
type app struct {
	cfg    *config.Config
	logger *log.Logger

	metrics   *obs.Metrics
	api       http.Handler
	admin     http.Handler
	adminTLS  *tls.Config
	grpc      *grpc.Server
	grpcAddr  string
	health    *health.Checker
	sweeper   *cache.Sweeper
	limits    limits.Limits
	shutdown  server.ShutdownConfig
	closers   []server.Stopper
	sweepStop context.CancelFunc
}

func buildApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: obs.OrDiscard(logger), metrics: obs.NewMetrics(), health: health.NewChecker(health.DefaultTimeout)}
	built := false
	defer func() {
		if !built {
			a.close()
		}
	}()

	var err error
	if a.limits, err = limits.FromConfig(cfg.Server); err != nil {
		return nil, err
	}
	if a.shutdown, err = server.ShutdownFromConfig(cfg.Server.Shutdown); err != nil {
		return nil, err
	}

	tracing, err := obs.NewTracing(ctx, obs.TracingConfig{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.closers = append(a.closers, server.StopFunc(tracing.Shutdown))

	repos, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Seed {
		if err := store.Seed(ctx, repos, time.Now()); err != nil {
			return nil, err
		}
	}

	cacheStore, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}

	graph, err := invalidation.Default()
	if err != nil {
		return nil, fmt.Errorf("invalidation graph: %w", err)
	}
	purger := cache.NewPurger(cacheStore)
	invalidator := &invalidation.ServerInvalidator{Graph: graph, Purger: purger, Metrics: a.metrics, Logger: a.logger}

	var coalescer *cache.Coalescer
	if cfg.Cache.Coalesce {
		coalescer = cache.NewCoalescer(cache.DefaultMaxFlights, nil)
	}
	responses := httpcache.New(httpcache.Config{
		Store:        cacheStore,
		TTL:          cfg.Cache.TTL,
		RouteTTL:     cfg.Cache.RouteTTL,
		Coalescer:    coalescer,
		CoalesceWait: cfg.Cache.CoalesceWait,
		Epoch:        purger.Epoch,
		Metrics:      a.metrics,
		Logger:       a.logger,
		Tracer:       tracing.Tracer(),
	})

	authenticator, err := auth.NewAuthenticator(cfg.AuthAccounts())
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}
	apiServer := api.New(api.Config{
		Repos:        repos,
		Auth:         authenticator,
		Cache:        responses,
		Invalidator:  invalidator,
		ExpiryWindow: cfg.Documents.ExpiryWindow,
		Clock:        clock.Real{},
		Metrics:      a.metrics,
		Logger:       a.logger,
		Tracer:       tracing.Tracer(),
	})
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", health.LiveHandler())
	mux.Handle("GET /readyz", a.health.ReadyHandler())
	if cfg.Server.MetricsAddr == "" {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}
	mux.Handle("/", apiServer.Handler())
	a.api = mux

	stats := admin.NewStatsSource(admin.StatsConfig{
		Store:      cacheStore,
		Backend:    cfg.Cache.Backend,
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL,
		Graph:      graph,
		Coalescer:  coalescer,
		Metrics:    a.metrics,
	})
	a.sweeper = &cache.Sweeper{
		Store:    cacheStore,
		Interval: cfg.Cache.SweepInterval,
		Logger:   a.logger,
		OnSweep:  stats.ObserveSweep,
	}

	if cfg.Admin.Addr != "" || cfg.Admin.GRPCAddr != "" {
		if err := a.buildAdmin(stats, purger, invalidator); err != nil {
			return nil, err
		}
	}
	built = true
	return a, nil
}

func (a *app) openStore(ctx context.Context) (store.Repositories, error) {
	if a.cfg.Store.Driver != config.DriverPostgres {
		return store.NewMemoryRepositories(), nil
	}
	pg, err := store.NewPostgres(ctx, a.cfg.Store.DSN)
	if err != nil {
		return store.Repositories{}, fmt.Errorf("postgres: %w", err)
	}
	a.closers = append(a.closers, server.StopFunc(func(context.Context) error {
		pg.Close()
		return nil
	}))
	a.health.Add("store", pg.Ping)
	return pg.Repositories(), nil
}

func (a *app) openCache(ctx context.Context) (cache.Store, error) {
	cfg := a.cfg.Cache
	if cfg.Backend != config.BackendRedis {
		return cache.NewMemoryStore(cache.MemoryConfig{
			MaxEntries:     cfg.MaxEntries,
			MaxObjectBytes: int64(cfg.MaxObjectBytes),
			OnEvict: func(reason string, count int) {
				a.metrics.RecordEviction(obs.LayerServer, reason, count)
			},
		}), nil
	}
	redisStore := cache.NewRedisStore(cache.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	a.closers = append(a.closers, server.StopFunc(func(context.Context) error {
		return redisStore.Close()
	}))
	a.health.Add("cache", redisStore.Ping)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisStore.Ping(pingCtx); err != nil {
		// Requests still flow on a miss.
		a.logger.Warn("redis unreachable, responses will not be cached until it recovers", "addr", cfg.Redis.Addr, "err", err)
	}
	guard := breaker.New(breaker.Config{
		FailureRatePercent: cfg.Redis.Breaker.FailureRatePercent,
		MinimumRequests:    cfg.Redis.Breaker.MinimumRequests,
		Window:             cfg.Redis.Breaker.Window,
		OpenFor:            cfg.Redis.Breaker.OpenFor,
		OnStateChange: func(from, to breaker.State) {
			a.logger.Warn("cache breaker state changed", "from", from, "to", to)
		},
	})
	return cache.NewGuardedStore(redisStore, guard), nil
}

func (a *app) buildAdmin(stats *admin.StatsSource, purger *cache.Purger, invalidator *invalidation.ServerInvalidator) error {
	cfg := a.cfg.Admin
	adminAuth, err := admin.NewAuthenticator(admin.AuthConfig{Token: cfg.Token, ClientCAFile: cfg.ClientCA})
	if err != nil {
		return fmt.Errorf("admin auth: %w", err)
	}
	if cfg.TLSCert != "" {
		if a.adminTLS, err = admin.TLSConfig(cfg.TLSCert, cfg.TLSKey, cfg.ClientCA); err != nil {
			return fmt.Errorf("admin tls: %w", err)
		}
	}
	a.admin = admin.NewHandler(admin.HandlerConfig{
		Auth: adminAuth,
		RateLimiter: admin.NewRateLimiter(admin.RateLimitConfig{
			RPS:           cfg.RateLimitRPS,
			Burst:         cfg.RateLimitBurst,
			MaxFailures:   cfg.MaxAuthFailures,
			BlockDuration: cfg.BlockDuration,
		}),
		Stats:       stats,
		Purger:      purger,
		Invalidator: invalidator,
		Logger:      a.logger,
	})
	if cfg.GRPCAddr != "" {
		var opts []grpc.ServerOption
		if a.adminTLS != nil {
			opts = append(opts, grpc.Creds(credentials.NewTLS(a.adminTLS)))
		}
		a.grpc = admin.NewGRPCServer(admin.GRPCConfig{
			Auth:        adminAuth,
			Stats:       stats,
			Purger:      purger,
			Invalidator: invalidator,
			Logger:      a.logger,
		}, opts...)
	}
	return nil
}

// start binds every listener and the sweeper. Stoppers run in reverse
// dependency order: gRPC, sweeper, then backends and tracing.
func (a *app) start() (*server.Server, error) {
	var stoppers []server.Stopper
	if a.grpc != nil {
		addr, stopGRPC, err := server.ServeGRPC(a.cfg.Admin.GRPCAddr, a.grpc, a.logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("admin grpc: %w", err)
		}
		a.grpcAddr = addr
		stoppers = append(stoppers, stopGRPC)
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	a.sweepStop = cancel
	go a.sweeper.Run(sweepCtx)
	go a.health.Watch(sweepCtx, a.cfg.Server.HealthInterval, func(name, status string) {
		if status == "ok" {
			a.logger.Info("dependency healthy", "check", name)
			return
		}
		a.logger.Warn("dependency unhealthy", "check", name, "status", status)
	})
	stoppers = append(stoppers, server.StopFunc(func(context.Context) error {
		cancel()
		return nil
	}))
	stoppers = append(stoppers, a.closers...)

	listeners := []server.Listener{{Name: "api", Addr: a.cfg.Server.Addr, Handler: a.api}}
	if a.cfg.Server.MetricsAddr != "" {
		listeners = append(listeners, server.Listener{Name: "metrics", Addr: a.cfg.Server.MetricsAddr, Handler: a.metrics.Handler()})
	}
	if a.admin != nil && a.cfg.Admin.Addr != "" {
		listeners = append(listeners, server.Listener{Name: "admin", Addr: a.cfg.Admin.Addr, Handler: a.admin, TLS: a.adminTLS})
	}

	srv, err := server.Start(listeners, server.Options{
		Limits:   a.limits,
		Shutdown: a.shutdown,
		Inflight: server.NewInflightTracker(),
		Stoppers: stoppers,
		Logger:   a.logger,
	})
	if err != nil {
		ctx, cancelStop := context.WithTimeout(context.Background(), a.shutdown.GracefulTimeout)
		defer cancelStop()
		for _, stopper := range stoppers {
			_ = stopper.Stop(ctx)
		}
		return nil, err
	}
	return srv, nil
}

// close releases backends when the app never started.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.sweepStop != nil {
		a.sweepStop()
	}
	for _, closer := range a.closers {
		_ = closer.Stop(ctx)
	}
}
