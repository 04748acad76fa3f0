package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"iddesk.org/internal/access"
	"iddesk.org/internal/audit"
	"iddesk.org/internal/config"
	"iddesk.org/internal/directory"
	"iddesk.org/internal/httpapi"
	"iddesk.org/internal/kv"
	"iddesk.org/internal/obs"
	"iddesk.org/internal/session"
)

var version = "0.3.1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	logger := obs.Logger()
	defer func() { _ = logger.Sync() }()

	// Session persistence: SQLite file if configured, in-memory otherwise.
	var persist kv.Store = kv.NewMemory()
	if cfg.KVPath != "" {
		sq, err := kv.OpenSQLite(cfg.KVPath)
		if err != nil {
			logger.Fatal("open session store", zap.Error(err))
		}
		defer sq.Close()
		persist = sq
	}

	sessions := session.NewStore(persist)
	if err := sessions.Restore(context.Background()); err != nil {
		logger.Warn("session restore failed, starting logged out", zap.Error(err))
	}

	client := directory.NewClient(cfg.DirectoryURL,
		directory.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		directory.WithTokenSource(sessions.Token),
	)

	// Audit trail: Postgres-backed if a DSN is configured.
	var recorder audit.Recorder
	probe := httpapi.ReadyProbe{}
	if cfg.PGDSN != "" {
		pg, err := audit.OpenPG(cfg.PGDSN)
		if err != nil {
			logger.Fatal("open audit store", zap.Error(err))
		}
		defer pg.Close()
		recorder = pg
		probe.DB = pg.DB()
	}
	trail := audit.NewTrail(recorder)

	deriver := access.NewDeriver(cfg.ElevationMarker, cfg.AdminOrganization)

	guard := session.NewGuard(client, sessions,
		session.WithGraceDelay(cfg.GraceDelay),
	)
	api := httpapi.New(httpapi.Config{
		Version:       version,
		Sessions:      sessions,
		Guard:         guard,
		Deriver:       deriver,
		Auth:          client,
		Catalog:       client,
		Users:         client,
		Roles:         client,
		Passwords:     client,
		Trail:         trail,
		Probe:         probe,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
	})
	guard.SetNotifier(api.Notifier())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.RequestTimeout,
		ReadHeaderTimeout: cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting iddesk-consoled",
		zap.String("version", version),
		zap.String("addr", cfg.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	logger.Info("stopped")
}
