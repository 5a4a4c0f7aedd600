package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/altic/readr/internal/app"
	"github.com/altic/readr/internal/auth"
	"github.com/altic/readr/internal/config"
	"github.com/altic/readr/internal/health"
	"github.com/altic/readr/internal/hooks"
	"github.com/altic/readr/internal/httpserver"
	"github.com/altic/readr/internal/logging"
	"github.com/altic/readr/internal/metrics"
	"github.com/altic/readr/internal/ratelimit"
	"github.com/altic/readr/internal/session"
	"github.com/altic/readr/internal/version"
)

func main() {
	cfg, err := config.LoadReadrConfig(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Mirror to stdout as well for foreground runs
	rot, err := logging.Setup("[readrd] ", cfg.LogFileDaemon, os.Stdout)
	if err != nil {
		log.Fatalf("init rotating log: %v", err)
	}
	defer rot.Close()
	log.Printf("readrd %s env=%s dispatch=%s", version.Version, cfg.Environment, cfg.Dispatch)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	stores, err := app.OpenStores(cfg, logging.New("[readrd/ledger] "))
	if err != nil {
		log.Fatalf("open stores: %v", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Printf("close stores: %v", err)
		}
	}()

	builder, err := app.LoadBuilder(cfg)
	if err != nil {
		log.Fatalf("load profile: %v", err)
	}
	go app.WatchBuilder(ctx, cfg, builder, logging.New("[readrd/profile] "))

	adapters := app.NewAdapters(cfg, log.Default())
	log.Printf("adapters registered: %v", adapters.ListAdapters())
	log.Printf("routes configured: %v", adapters.ListRoutes())

	client := app.NewHTTPClient(cfg)
	collector := metrics.NewCollector()

	dispatch, queue := app.NewDispatcher(cfg)
	if queue != nil {
		go func() {
			if err := queue.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("delivery queue stopped: %v", err)
			}
		}()
	}

	hookCfg := hooks.Config{ScriptPath: cfg.HookScript, ScriptArgs: cfg.HookArgs, Timeout: cfg.HookTimeout}
	if err := hookCfg.Validate(); err != nil {
		log.Fatalf("hooks: %v", err)
	}
	hookDispatcher := hookCfg.BuildDispatcher()

	sessionLogger := logging.New("[readr/session] ")
	observers := app.Observers(stores, collector, sessionLogger)
	if hookDispatcher != nil {
		hookObserver := hooks.NewSessionObserver(hookDispatcher, logging.New("[readrd/hooks] "), 0)
		defer hookObserver.Close()
		observers = append(observers, hookObserver)
		log.Printf("hooks dispatcher enabled script=%s", cfg.HookScript)
	}
	surfaces := session.NewManager(session.Config{
		Adapters:    adapters,
		Builder:     builder,
		HTTPClient:  client,
		Dispatcher:  dispatch,
		Credentials: stores.Credentials,
		Observers:   observers,
		Logger:      sessionLogger,
	})

	var authManager *auth.Manager
	if cfg.AuthSecret != "" {
		authManager = auth.NewManager(cfg.AuthSecret)
	} else {
		log.Printf("authorization disabled: set auth_secret to require API tokens")
	}
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: cfg.SendRatePerSecond, Burst: cfg.SendBurst})
	defer limiter.Close()

	checker := health.New(health.Config{HTTPClient: client, CacheFor: 10 * time.Second})
	for name, p := range stores.Pingers() {
		checker.AddDatabase(name, p)
	}
	for _, p := range adapters.ListAdapters() {
		checker.AddEndpoint(string(p), app.BaseURL(cfg, p))
	}

	httpSrv := httpserver.New(httpserver.Config{
		Surfaces:        surfaces,
		Adapters:        adapters,
		Credentials:     stores.Credentials,
		Ledger:          stores.Ledger,
		Metrics:         collector,
		Health:          checker,
		DefaultProvider: app.DefaultProvider(cfg),
		Endpoints:       cfg.Endpoints,
		Auth:            authManager,
		SendLimiter:     limiter,
		Hooks:           hookDispatcher,
	})
	// Pass logger and level to HTTP server for debug logs
	httpSrv.SetLogger(cfg.LogLevel, logging.New("[readrd/http] "))

	// No WriteTimeout: responses on the send route stay open while a session streams.
	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           httpSrv.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("readrd listening on %s (default provider %s)", cfg.HTTPAddress, app.DefaultProvider(cfg).DisplayName())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	surfaces.CancelAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	stop()
	if queue != nil {
		queue.Close()
	}
}
