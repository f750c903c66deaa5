package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/imgdrop/pkg/jobs"
)

const janitorJobDelete = "artifact.delete"

type artifactDeleter interface {
	Delete(ctx context.Context, id string) error
}

// JanitorConfig tunes the cleanup queue.
type JanitorConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
	BufferSize int
}

// ArtifactJanitor retries deletions of artifact bytes that failed inline, so
// a transient store error during rollback or self-destruct does not leave
// orphaned bytes behind.
type ArtifactJanitor struct {
	store  artifactDeleter
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewArtifactJanitor builds the janitor and its worker queue.
func NewArtifactJanitor(store artifactDeleter, logger *zap.Logger, cfg JanitorConfig) *ArtifactJanitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &ArtifactJanitor{store: store, logger: logger}
	j.queue = jobs.NewQueue("artifact-janitor", j.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return j
}

// Start launches the workers.
func (j *ArtifactJanitor) Start(ctx context.Context) {
	j.queue.Start(ctx)
}

// Stop waits for the workers to exit. Pending deletions are logged as lost.
func (j *ArtifactJanitor) Stop() {
	if pending := j.queue.Pending(); pending > 0 {
		j.logger.Warn("janitor stopping with pending deletions", zap.Int("pending", pending))
	}
	j.queue.Stop()
}

// ScheduleDelete queues an artifact for deletion without blocking the caller.
func (j *ArtifactJanitor) ScheduleDelete(id string) {
	if j == nil {
		return
	}
	job := jobs.Job{ID: id, Type: janitorJobDelete, Payload: id}
	if !j.queue.TryEnqueue(job) {
		j.logger.Error("janitor queue unavailable, artifact orphaned", zap.String("artifact_id", id))
	}
}

func (j *ArtifactJanitor) handle(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected janitor payload %T", job.Payload)
	}
	if err := j.store.Delete(ctx, id); err != nil {
		return err
	}
	j.logger.Info("orphaned artifact removed", zap.String("artifact_id", id), zap.Int("attempt", job.Attempt))
	return nil
}
