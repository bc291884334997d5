package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/worldbeesion/beecareful-backend/config"
	"github.com/worldbeesion/beecareful-backend/internal/bootstrap"
	diaghttp "github.com/worldbeesion/beecareful-backend/internal/diagnosis/http"
	"github.com/worldbeesion/beecareful-backend/internal/logging"
	"github.com/worldbeesion/beecareful-backend/internal/storage/postgres"
	"github.com/worldbeesion/beecareful-backend/internal/telemetry"
)

const serviceName = "beecareful-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging, serviceName)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closeLog()

	if err := telemetry.InitSentry(cfg.Telemetry, cfg.App.Version); err != nil {
		logger.Error("sentry init failed", "error", err)
	}
	defer telemetry.Flush(2 * time.Second)

	bootstrap.SetGinMode(cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := postgres.Migrate(app.DB, logger); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	if err := app.Sweeper.Start(context.WithoutCancel(ctx), cfg.Diagnosis.SweepSpec); err != nil {
		logger.Error("failed to schedule unreceived sweep", "error", err)
		os.Exit(1)
	}
	defer app.Sweeper.Stop()

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:    serviceName,
		Version:        cfg.App.Version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
		DB:             app.DB,
		Redis:          app.Redis,
		Gatherer:       app.Gatherer,
		AuthClient:     app.AuthClient,
		Members:        app.Members,
		Diagnosis: diaghttp.New(diaghttp.Deps{
			Diagnoses:     app.Diagnoses,
			Storage:       app.StorageEvts,
			Events:        app.Events,
			StorageAPIKey: cfg.Server.StorageAPIKey,
			Logger:        logger,
		}),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", cfg.Server.Port, "env", cfg.App.Environment, "finalize_transport", cfg.Diagnosis.FinalizeTransport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	// Runs already dispatched finish their photos and finalize before exit.
	if err := app.Orchestrator.Wait(shutdownCtx); err != nil {
		logger.Warn("diagnosis runs still in flight at shutdown", "error", err)
	}
}
