package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
)

const eventChannelPrefix = "diagnosis:events:" // Pub/Sub channel for status events: diagnosis:events:{diagnosis_id}

// EventRepository publishes diagnosis status events over Redis Pub/Sub.
type EventRepository struct {
	client *redis.Client
}

func NewEventRepository(client *redis.Client) *EventRepository {
	return &EventRepository{client: client}
}

func (r *EventRepository) Publish(ctx context.Context, evt domain.StatusEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, EventChannel(evt.DiagnosisID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe opens a subscription to the events of one diagnosis. The caller
// closes it.
func (r *EventRepository) Subscribe(ctx context.Context, diagnosisID int64) *redis.PubSub {
	return r.client.Subscribe(ctx, EventChannel(diagnosisID))
}

func EventChannel(diagnosisID int64) string {
	return eventChannelPrefix + strconv.FormatInt(diagnosisID, 10)
}
