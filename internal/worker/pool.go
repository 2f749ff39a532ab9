package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"founder-llm-backend/internal/logger"
	"founder-llm-backend/internal/models"
	"founder-llm-backend/internal/services"
)

const (
	maxAttempts = 3
	lockTTL     = 10 * time.Minute
	popTimeout  = 30 * time.Second
	jobTimeout  = 5 * time.Minute
)

const MessageTypeFileStatus = "file_status"

type Ingester interface {
	Ingest(ctx context.Context, fileID uuid.UUID) (int, error)
	Fail(ctx context.Context, fileID uuid.UUID, cause error) error
}

type jobQueue interface {
	Requeue(job *models.Job, after time.Duration)
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

// Pool runs ingestion jobs popped from Redis. A job lock keeps two workers
// off the same job id.
type Pool struct {
	redis       *redis.Client
	queue       jobQueue
	ingester    Ingester
	workerCount int
	log         *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(redisClient *redis.Client, queue *Queue, ingester Ingester, workerCount int, log *logger.Logger) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{
		redis:       redisClient,
		queue:       queue,
		ingester:    ingester,
		workerCount: workerCount,
		log:         log.With("component", "worker"),
	}
}

func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	queues := []string{IngestionQueue}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.worker(ctx, id, queues)
		}(i)
	}

	p.log.Info("started worker goroutines", "count", p.workerCount, "queues", queues)
}

// Stop cancels the workers and waits for in-flight jobs to return.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int, queues []string) {
	for {
		if ctx.Err() != nil {
			p.log.Info("worker shutting down", "worker", id)
			return
		}

		result, err := p.redis.BLPop(ctx, popTimeout, queues...).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				p.log.Warn("queue pop failed", "worker", id, "error", err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			p.log.Error("failed to parse job", "worker", id, "error", err)
			continue
		}

		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil || !locked {
			continue
		}

		p.log.Info("processing job", "worker", id, "job_id", job.ID, "type", job.Type, "attempt", job.RetryCount+1)

		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
		p.process(jobCtx, &job)
		cancel()

		p.redis.Del(context.Background(), lockKey)
	}
}

func (p *Pool) process(ctx context.Context, job *models.Job) {
	if job.Type != models.JobTypeFileIngestion {
		p.log.Error("dropping job of unknown type", "job_id", job.ID, "type", job.Type)
		return
	}

	p.publish(ctx, job, models.FileStatusEvent{FileID: job.FileID, Status: models.FileStatusProcessing})

	chunks, err := p.ingester.Ingest(ctx, job.FileID)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	p.publish(ctx, job, models.FileStatusEvent{
		FileID:     job.FileID,
		Status:     models.FileStatusCompleted,
		ChunkCount: chunks,
	})
	p.log.Info("job completed", "job_id", job.ID, "file_id", job.FileID, "chunks", chunks)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++

	if !services.IsPermanent(err) && job.RetryCount < maxAttempts {
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		p.log.Warn("job failed, retrying",
			"job_id", job.ID,
			"attempt", job.RetryCount,
			"backoff", backoff,
			"error", err,
		)
		p.queue.Requeue(job, backoff)
		return
	}

	p.log.Error("job failed permanently", "job_id", job.ID, "file_id", job.FileID, "attempts", job.RetryCount, "error", err)
	if ferr := p.ingester.Fail(ctx, job.FileID, err); ferr != nil {
		p.log.Error("failed to mark file failed", "file_id", job.FileID, "error", ferr)
	}

	p.publish(ctx, job, models.FileStatusEvent{
		FileID:       job.FileID,
		Status:       models.FileStatusFailed,
		ErrorMessage: err.Error(),
	})
}

func (p *Pool) publish(ctx context.Context, job *models.Job, event models.FileStatusEvent) {
	msg := models.WSMessage{Type: MessageTypeFileStatus, Payload: event}
	if err := p.queue.Publish(ctx, job.UserID, msg); err != nil {
		p.log.Warn("failed to publish status", "job_id", job.ID, "error", err)
	}
}
