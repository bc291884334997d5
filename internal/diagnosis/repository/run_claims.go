package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	runClaimKeyPrefix = "diagnosis:run:" // Set once a diagnosis run was dispatched: diagnosis:run:{diagnosis_id}
	runClaimTTL       = 7 * 24 * time.Hour
)

// RunClaimRepository makes dispatching a diagnosis run a once only operation
// across goroutines and processes.
type RunClaimRepository struct {
	client *redis.Client
}

func NewRunClaimRepository(client *redis.Client) *RunClaimRepository {
	return &RunClaimRepository{client: client}
}

// Claim reports true for exactly one caller per diagnosis.
func (r *RunClaimRepository) Claim(ctx context.Context, diagnosisID int64) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(diagnosisID), time.Now().UTC().Format(time.RFC3339Nano), runClaimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim diagnosis run: %w", err)
	}
	return ok, nil
}

// Release drops a claim so the run can be dispatched again.
func (r *RunClaimRepository) Release(ctx context.Context, diagnosisID int64) error {
	if err := r.client.Del(ctx, r.key(diagnosisID)).Err(); err != nil {
		return fmt.Errorf("release diagnosis run: %w", err)
	}
	return nil
}

func (r *RunClaimRepository) key(diagnosisID int64) string {
	return runClaimKeyPrefix + strconv.FormatInt(diagnosisID, 10)
}
