package http

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/service"
	"github.com/worldbeesion/beecareful-backend/internal/logging"
	"github.com/worldbeesion/beecareful-backend/internal/storage/objectstore"
)

type diagnosisService interface {
	CreateDiagnosis(ctx context.Context, memberID, beehiveID int64, uploads []service.PhotoUpload) (*service.CreatedDiagnosis, error)
	GetStatus(ctx context.Context, memberID, diagnosisID int64) (*service.DiagnosisStatus, error)
	GetBatchStates(ctx context.Context, memberID int64, diagnosisIDs []int64) (map[int64]domain.BatchState, error)
}

type storageEvents interface {
	OnObjectStored(ctx context.Context, evt objectstore.StorageEvent) error
}

type eventSubscriber interface {
	Subscribe(ctx context.Context, diagnosisID int64) *redis.PubSub
}

// Handler handles HTTP requests for diagnoses and storage notifications
type Handler struct {
	diagnoses     diagnosisService
	storage       storageEvents
	events        eventSubscriber
	storageAPIKey string // Shared secret of the bucket notification relay
	logger        *slog.Logger
}

type Deps struct {
	Diagnoses     diagnosisService
	Storage       storageEvents
	Events        eventSubscriber
	StorageAPIKey string
	Logger        *slog.Logger
}

func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	return &Handler{
		diagnoses:     d.Diagnoses,
		storage:       d.Storage,
		events:        d.Events,
		storageAPIKey: d.StorageAPIKey,
		logger:        d.Logger,
	}
}

// Register registers the member facing diagnosis routes
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/beehives/:beehiveId/diagnoses", h.CreateDiagnosis)
	rg.GET("/diagnoses/statuses", h.GetBatchStates)
	rg.GET("/diagnoses/:id/status", h.GetStatus)
	if h.events != nil {
		rg.GET("/diagnoses/:id/stream", h.StreamStatus)
	}
}

// RegisterStorageRoutes registers routes called by the storage notification
// relay (no Firebase auth).
func (h *Handler) RegisterStorageRoutes(rg *gin.RouterGroup) {
	rg.POST("/storage/events", h.StorageEvent)
}
