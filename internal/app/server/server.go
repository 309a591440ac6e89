package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"ad-reporting-engine/internal/api"
	"ad-reporting-engine/internal/config"
	"ad-reporting-engine/internal/fetch"
	"ad-reporting-engine/internal/filter"
	"ad-reporting-engine/internal/listener"
	"ad-reporting-engine/internal/observability"
	"ad-reporting-engine/internal/reporting"
	"ad-reporting-engine/internal/script"
	"ad-reporting-engine/internal/storage"
)

// backend is every store port plus seeding, satisfied by both the Postgres
// store and the in-memory store.
type backend interface {
	reporting.RecordStore
	reporting.BeaconStore
	reporting.BuyerLogicStore
	storage.OverrideBackend
	SaveAdSelection(ctx context.Context, rec reporting.AdSelectionRecord, unifiedTables bool) error
}

// App is the wired reporting service.
type App struct {
	Handler   http.Handler
	Reporter  *reporting.ImpressionReporter
	Overrides *reporting.OverrideService
	Flags     *config.LiveFlags
	Store     backend

	pg     *storage.Store
	cache  *storage.OverrideCache
	closer func()
}

type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the outbound client used for scripts and reports.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// New wires the service. Without a Postgres host it runs on the in-memory store.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: time.Duration(cfg.Fetch.ClientTimeoutMs) * time.Millisecond}
	}

	a := &App{closer: func() {}}
	var health func(context.Context) error
	if cfg.Postgres.Host == "" {
		log.Warn().Msg("no postgres host configured; using in-memory store")
		a.Store = storage.NewMemory()
	} else {
		if cfg.Postgres.RunMigrations {
			if err := storage.Migrate(cfg.DSN()); err != nil {
				return nil, err
			}
			log.Info().Msg("migrations applied")
		}
		st, err := storage.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Store, a.pg, a.closer, health = st, st, st.Close, st.Ping
	}

	a.cache = storage.NewOverrideCache(a.Store)
	if err := a.cache.Refresh(ctx); err != nil {
		a.closer()
		return nil, err
	}

	a.Flags = config.NewLiveFlags(cfg)
	usage := observability.UsageLogger{}
	fl := filter.New(filter.Options{
		AllowedApps:            cfg.Filter.AllowedApps,
		EnrolledAdTechs:        cfg.Filter.EnrolledAdTechs,
		RevokedConsentPackages: cfg.Filter.RevokedConsentPackages,
		RequestsPerSecond:      cfg.Filter.RequestsPerSecond,
		Burst:                  cfg.Filter.Burst,
		Usage:                  usage,
	})
	client := fetch.New(fetch.Options{
		HTTPClient:     o.httpClient,
		CacheTTL:       time.Duration(cfg.Fetch.CacheTTLSeconds) * time.Second,
		MaxScriptBytes: cfg.Fetch.MaxScriptBytes,
	})

	a.Reporter = reporting.NewImpressionReporter(reporting.Deps{
		Records:    a.Store,
		Beacons:    a.Store,
		BuyerLogic: a.Store,
		Overrides:  a.cache,
		Scripts:    client,
		Executor:   script.NewEngine(),
		Notifier:   client,
		Enrollment: fl,
		Filter:     fl,
		Usage:      usage,
		Metrics:    observability.PipelineMetrics{},
		Flags:      a.Flags,
	})
	a.Overrides = reporting.NewOverrideService(a.cache, usage)

	h := api.NewReportingHandler(a.Reporter, a.Overrides)
	requestTimeout := a.Flags.Flags().OverallTimeout + 3*time.Second
	a.Handler = api.Router(h, health, requestTimeout)
	return a, nil
}

// Listen keeps the override snapshot in step with writes from other
// instances. It is a no-op on the in-memory store.
func (a *App) Listen(ctx context.Context, channel string, backoff time.Duration) {
	if a.pg == nil {
		return
	}
	conn, err := a.pg.PgxPool().Acquire(ctx)
	if err != nil {
		log.Error().Err(err).Msg("acquire conn for listen")
		return
	}
	defer conn.Release()
	if channel == "" {
		channel = a.pg.ListenChannel()
	}
	listener.ListenAndRefresh(ctx, conn.Conn(), a.cache, channel, backoff)
}

func (a *App) Close() { a.closer() }

func Run(cfg config.Config, loader *config.Loader) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := New(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init app")
	}
	defer app.Close()

	if loader != nil {
		loader.Watch(func(c config.Config) {
			config.SetupLogging(c.Server.LogLevel, c.Server.LogFormat)
			app.Flags.Apply(c)
		})
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.Handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: app.Flags.Flags().OverallTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Listener (LISTEN/NOTIFY)
	go app.Listen(rootCtx, cfg.Listener.Channel, cfg.Backoff())

	// Server goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	// Wait for signal
	waitForSignal()
	log.Info().Msg("shutdown...")

	// Graceful shutdown
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
