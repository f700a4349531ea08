package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snackmasta/sakan-munazam/internal/audit"
	"github.com/snackmasta/sakan-munazam/internal/config"
	"github.com/snackmasta/sakan-munazam/internal/db"
	"github.com/snackmasta/sakan-munazam/internal/device"
	"github.com/snackmasta/sakan-munazam/internal/gateway"
	"github.com/snackmasta/sakan-munazam/internal/httpapi"
	"github.com/snackmasta/sakan-munazam/internal/liveness"
	"github.com/snackmasta/sakan-munazam/internal/logger"
	"github.com/snackmasta/sakan-munazam/internal/metrics"
	"github.com/snackmasta/sakan-munazam/internal/policy"
	"github.com/snackmasta/sakan-munazam/internal/relay"
	ressqlite "github.com/snackmasta/sakan-munazam/internal/reservation/sqlite"
	"github.com/snackmasta/sakan-munazam/internal/scheduler"
)

func main() {
	cfg, err := config.Load(os.Getenv("MUNAZAM_CONFIG"))
	if err != nil {
		// Logger isn't up yet; nothing better than stderr here.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Get(cfg.Logging.Level)
	defer func() { _ = log.Sync() }()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Reservation store + audit log.
	dbConn, err := db.Open(ctx, db.Config{Path: cfg.Database.Path, Env: cfg.Env})
	if err != nil {
		log.Fatalw("open database", "err", err)
	}
	defer dbConn.Close()

	writer := db.NewWorker(dbConn)
	defer writer.Close()

	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, dbConn); err != nil {
			log.Warnw("dev seed failed", "err", err)
		}
	}

	resStore := ressqlite.New(dbConn)
	auditStore := audit.NewSQLiteStore(writer)

	// Core components.
	registry := device.NewRegistry()
	sender := relay.New(registry, cfg.Mesh.TTL, log)

	evaluator := policy.NewEvaluator(policy.Config{
		RelockDelay:   cfg.Policy.RelockDelay.Std(),
		GrantWindow:   cfg.Policy.GrantWindow.Std(),
		GrantLifetime: cfg.Policy.GrantLifetime.Std(),
		LockToLight:   cfg.LockToLight(),
	}, registry, resStore, sender, auditStore, log)

	monitor := liveness.NewMonitor(liveness.Config{
		Port:             cfg.Network.HeartbeatPort,
		SweepInterval:    cfg.Liveness.SweepInterval.Std(),
		HeartbeatTimeout: cfg.Liveness.HeartbeatTimeout.Std(),
	}, sender, log)

	sched := scheduler.New(evaluator, cfg.Scheduler.Tick.Std(), log)

	core := gateway.New(gateway.Dependencies{
		Config:    cfg,
		Logger:    log,
		Registry:  registry,
		Relay:     sender,
		Evaluator: evaluator,
		Monitor:   monitor,
		Scheduler: sched,
	})

	// Operator surface.
	hub := httpapi.NewHub()
	monitor.OnAlarm(hub.PublishAlarm)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger: log,
		Addr:   cfg.HTTP.Addr,
		Core:   core,
		Hub:    hub,
	})

	go func() {
		log.Infow("http listening", "addr", cfg.HTTP.Addr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("http server", "err", err)
			stop()
		}
	}()

	if err := core.Run(ctx); err != nil {
		log.Errorw("gateway", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
