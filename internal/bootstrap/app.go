package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/auth"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/worldbeesion/beecareful-backend/config"
	authn "github.com/worldbeesion/beecareful-backend/internal/auth"
	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/analysis"
	cronjob "github.com/worldbeesion/beecareful-backend/internal/diagnosis/cron"
	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/queue"
	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/repository"
	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/service"
	"github.com/worldbeesion/beecareful-backend/internal/members"
	"github.com/worldbeesion/beecareful-backend/internal/metrics"
	"github.com/worldbeesion/beecareful-backend/internal/notification"
	"github.com/worldbeesion/beecareful-backend/internal/storage/objectstore"
	"github.com/worldbeesion/beecareful-backend/internal/storage/postgres"
)

// App holds the wired diagnosis pipeline shared by the API server and the
// worker commands.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	DB       *sql.DB
	Redis    *redis.Client
	Metrics  *metrics.DiagnosisMetrics
	Gatherer prometheus.Gatherer

	AuthClient *auth.Client
	Members    *members.Repo
	Events     *repository.EventRepository

	Finalizer    *service.Finalizer
	Orchestrator *service.Orchestrator
	Tracker      *service.UploadTracker
	Diagnoses    *service.DiagnosisService
	StorageEvts  *objectstore.EventService
	Sweeper      *cronjob.Sweeper

	kafkaQueue *queue.KafkaQueue
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pool, db, err := OpenDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Pool: pool, DB: db}

	if err := app.wire(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	rdb, err := OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	a.Redis = rdb

	s3Client, err := NewS3Client(ctx, cfg.S3)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewDiagnosisMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	a.Metrics, a.Gatherer = m, reg

	tx := postgres.NewTransactor(a.DB)
	diagnosisRepo := repository.NewDiagnosisRepository(a.DB)
	photoRepo := repository.NewPhotoRepository(a.DB)
	analyzedRepo := repository.NewAnalyzedPhotoRepository(a.DB)
	hiveRepo := repository.NewHiveRepository(a.DB)
	a.Events = repository.NewEventRepository(rdb)
	a.Members = members.NewRepo(a.DB)

	catalog, err := repository.NewDiseaseRepository(a.DB).LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("load disease catalog: %w", err)
	}
	logger.Info("disease catalog loaded", "diseases", catalog.Len())

	fileRepo := objectstore.NewFileRepository(a.DB)
	presigner := objectstore.NewPresigner(s3Client, cfg.S3.Bucket, cfg.S3.PutExpiry, cfg.S3.GetExpiry)
	store := objectstore.NewStore(fileRepo, presigner, objectstore.NewURLCache(rdb), cfg.S3.OriginPrefix, logger)

	var notifier notification.Notifier = notification.NewLogNotifier(logger)
	if cfg.Firebase.CredentialsPath != "" {
		authClient, messagingClient, err := authn.InitializeFirebase(ctx, &cfg.Firebase)
		if err != nil {
			return err
		}
		a.AuthClient = authClient
		notifier = notification.NewFCMNotifier(messagingClient, a.Members, logger)
	} else {
		logger.Warn("FIREBASE_CREDENTIALS_PATH not set, notifications are only logged")
	}

	a.Finalizer = service.NewFinalizer(service.FinalizerDeps{
		Tx:        tx,
		Diagnoses: diagnosisRepo,
		Analyzed:  analyzedRepo,
		Hives:     hiveRepo,
		Notifier:  notifier,
		Events:    a.Events,
		Metrics:   m,
		Logger:    logger,
	})

	var finalizeQueue service.FinalizeQueue
	switch cfg.Diagnosis.FinalizeTransport {
	case config.FinalizeKafka:
		a.kafkaQueue = queue.NewKafkaQueue(cfg.Kafka)
		finalizeQueue = a.kafkaQueue
	default:
		finalizeQueue = queue.NewInline(a.Finalizer, logger)
	}

	worker := service.NewPhotoWorker(service.PhotoWorkerDeps{
		Tx:       tx,
		Photos:   photoRepo,
		Analyzed: analyzedRepo,
		Files:    store,
		Analyzer: analysis.NewClient(analysis.Options{
			Endpoint:  cfg.Analysis.Endpoint,
			Timeout:   cfg.Analysis.Timeout,
			RateLimit: cfg.Analysis.RateLimit,
			Burst:     cfg.Analysis.Burst,
			Metrics:   m,
		}),
		Catalog: catalog,
		Events:  a.Events,
		Metrics: m,
		Logger:  logger,
	})

	a.Orchestrator = service.NewOrchestrator(service.OrchestratorDeps{
		Diagnoses:   diagnosisRepo,
		Photos:      photoRepo,
		Worker:      worker,
		Queue:       finalizeQueue,
		MaxParallel: cfg.Diagnosis.MaxParallel,
		Metrics:     m,
		Logger:      logger,
	})

	a.Tracker = service.NewUploadTracker(photoRepo, store, repository.NewRunClaimRepository(rdb), a.Orchestrator, logger)
	a.StorageEvts = objectstore.NewEventService(fileRepo, cfg.S3.Bucket, a.Tracker, m, logger)
	a.Sweeper = cronjob.NewSweeper(photoRepo, a.Tracker, cfg.S3.PutExpiry, cfg.Diagnosis.UnreceivedGrace, logger)

	a.Diagnoses = service.NewDiagnosisService(service.DiagnosisServiceDeps{
		Tx:        tx,
		Diagnoses: diagnosisRepo,
		Photos:    photoRepo,
		Analyzed:  analyzedRepo,
		Hives:     hiveRepo,
		Slots:     store,
		Logger:    logger,
	})
	return nil
}

// Close releases connections. Dispatched runs must have been drained first.
func (a *App) Close() error {
	var errs []error
	if a.kafkaQueue != nil {
		errs = append(errs, a.kafkaQueue.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return errors.Join(errs...)
}
