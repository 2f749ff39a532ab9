package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"founder-llm-backend/internal/models"
)

const IngestionQueue = "queue:file-ingestion"

// UserChannel is the pub/sub channel the websocket hub relays to one user.
func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", userID.String())
}

// Queue pushes jobs onto Redis lists and publishes user-facing status events.
type Queue struct {
	redis *redis.Client
}

func NewQueue(redisClient *redis.Client) *Queue {
	return &Queue{redis: redisClient}
}

func queueName(jobType string) string {
	return "queue:" + jobType
}

// Enqueue assigns the job an id if it has none and pushes it.
func (q *Queue) Enqueue(ctx context.Context, job *models.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.redis.LPush(ctx, queueName(job.Type), string(jobBytes)).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Type, err)
	}
	return nil
}

// Requeue pushes the job back after a delay. It does not block.
func (q *Queue) Requeue(job *models.Job, after time.Duration) {
	jobBytes, _ := json.Marshal(job)
	time.AfterFunc(after, func() {
		q.redis.LPush(context.Background(), queueName(job.Type), string(jobBytes))
	})
}

func (q *Queue) Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.redis.Publish(ctx, UserChannel(userID), string(data)).Err()
}
