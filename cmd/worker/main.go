package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/worldbeesion/beecareful-backend/config"
	"github.com/worldbeesion/beecareful-backend/internal/bootstrap"
	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/queue"
	"github.com/worldbeesion/beecareful-backend/internal/logging"
	"github.com/worldbeesion/beecareful-backend/internal/telemetry"
)

const usage = "usage: worker finalize-consumer | sweep | finalize <diagnosisId> | rerun <diagnosisId>"

func main() {
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging, "beecareful-worker")
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closeLog()

	if err := telemetry.InitSentry(cfg.Telemetry, cfg.App.Version); err != nil {
		logger.Error("sentry init failed", "error", err)
	}
	defer telemetry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer app.Close()

	switch os.Args[1] {
	case "finalize-consumer":
		err = RunFinalizeConsumer(ctx, app)
	case "sweep":
		err = RunSweep(ctx, app)
	case "finalize":
		err = RunFinalize(ctx, app, os.Args[2:])
	case "rerun":
		err = RunRerun(ctx, app, os.Args[2:])
	default:
		log.Fatalf("unknown command: %s\n%s", os.Args[1], usage)
	}
	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// RunFinalizeConsumer consumes finalization requests until interrupted.
func RunFinalizeConsumer(ctx context.Context, app *bootstrap.App) error {
	consumer := queue.NewConsumer(app.Config.Kafka, app.Finalizer, app.Logger)
	defer consumer.Close()

	app.Logger.Info("finalize consumer started", "topic", app.Config.Kafka.Topic, "group", app.Config.Kafka.GroupID)
	return consumer.Run(ctx)
}

// RunSweep runs one unreceived sweep and waits for the runs it started.
func RunSweep(ctx context.Context, app *bootstrap.App) error {
	started, err := app.Sweeper.SweepOnce(ctx)
	if err != nil {
		return err
	}
	app.Logger.Info("sweep done", "dispatched", len(started))
	return app.Orchestrator.Wait(ctx)
}

// RunFinalize finalizes one diagnosis by hand. Already finalized diagnoses
// are left untouched.
func RunFinalize(ctx context.Context, app *bootstrap.App, args []string) error {
	id := diagnosisArg(args)

	out, err := app.Finalizer.FinishDiagnosis(ctx, id)
	if err != nil {
		return err
	}
	if out == nil {
		app.Logger.Info("diagnosis was already finalized", "diagnosis_id", id)
		return nil
	}
	app.Logger.Info("diagnosis finalized", "diagnosis_id", id, "infected", out.Assessment.HasDisease)
	return nil
}

// RunRerun recovers a diagnosis whose run was lost, for example when the
// process stopped in the middle of it. Photos stuck in ANALYZING are marked
// failed and the rest of the run is repeated. Do not use it while the
// original run may still be active.
func RunRerun(ctx context.Context, app *bootstrap.App, args []string) error {
	id := diagnosisArg(args)

	started, err := app.Tracker.Rerun(ctx, id)
	if err != nil {
		return err
	}
	if !started {
		app.Logger.Info("diagnosis has nothing to recover", "diagnosis_id", id)
		return nil
	}
	return app.Orchestrator.Wait(ctx)
}

func diagnosisArg(args []string) int64 {
	if len(args) != 1 {
		log.Fatal(usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		log.Fatalf("invalid diagnosis id %q", args[0])
	}
	return id
}
