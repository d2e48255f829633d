package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bobarin/xvoice/internal/action"
	"github.com/bobarin/xvoice/internal/db"
	"github.com/bobarin/xvoice/internal/models"
	"github.com/bobarin/xvoice/internal/queue"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const dequeueTimeout = 5 * time.Second

// Runner produces a voice result for a handle.
type Runner interface {
	Run(ctx context.Context, handle string) (*models.VoiceResult, error)
}

// JobQueue is the subset of the Redis queue the worker needs.
type JobQueue interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
	EnqueueSynthesize(ctx context.Context, handle string, jobID uuid.UUID) error
}

// JobStore tracks job outcomes and answers whether a handle already has a
// stored generation.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error
	SetJobGeneration(ctx context.Context, id, generationID uuid.UUID) error
	HasPendingJob(ctx context.Context, handle string) (bool, error)
	GetLatestCompletedGeneration(ctx context.Context, handle string) (*models.Generation, error)
}

type Worker struct {
	queue  JobQueue
	store  JobStore
	runner Runner
}

func New(q JobQueue, store JobStore, runner Runner) *Worker {
	return &Worker{
		queue:  q,
		store:  store,
		runner: runner,
	}
}

// Start processes synthesize jobs until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	log.Printf("[Worker] Started with concurrency: %d", concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			w.processQueue(gctx)
			return nil
		})
	}

	err := g.Wait()
	log.Println("[Worker] Shutting down...")
	return err
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queue.QueueSynthesize, dequeueTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[Worker] Error dequeuing from %s: %v", queue.QueueSynthesize, err)
				time.Sleep(time.Second)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			w.handle(ctx, job)
		}
	}
}

func (w *Worker) handle(ctx context.Context, job *queue.Job) {
	log.Printf("[Worker] Processing job %s (@%s)", job.ID, job.Handle)

	if err := w.store.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		log.Printf("[Worker] Failed to update job status: %v", err)
	}

	result, err := w.runner.Run(ctx, job.Handle)
	if err != nil {
		log.Printf("[Worker] Job %s failed: %v", job.ID, err)
		// Job errors are shown on the handle page, so store the user-facing text.
		if err := w.store.UpdateJobError(ctx, job.ID, action.ServerErrorMessage(err)); err != nil {
			log.Printf("[Worker] Failed to record job error: %v", err)
		}
		return
	}

	if result.GenerationID != uuid.Nil {
		if err := w.store.SetJobGeneration(ctx, job.ID, result.GenerationID); err != nil {
			log.Printf("[Worker] Failed to link job %s to generation: %v", job.ID, err)
		}
	}
	if err := w.store.UpdateJobStatus(ctx, job.ID, models.JobStatusSucceeded); err != nil {
		log.Printf("[Worker] Failed to update job status: %v", err)
	}
	log.Printf("[Worker] Job %s completed successfully", job.ID)
}

// Schedule records and enqueues a job for handle unless one is already queued
// or running. It returns the job ID, or uuid.Nil when nothing was enqueued.
func (w *Worker) Schedule(ctx context.Context, handle string) (uuid.UUID, error) {
	pending, err := w.store.HasPendingJob(ctx, handle)
	if err != nil {
		return uuid.Nil, err
	}
	if pending {
		return uuid.Nil, nil
	}

	job := &models.Job{
		ID:     uuid.New(),
		Handle: handle,
		Status: models.JobStatusQueued,
	}
	if err := w.store.CreateJob(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create job: %w", err)
	}
	if err := w.queue.EnqueueSynthesize(ctx, handle, job.ID); err != nil {
		w.store.UpdateJobError(ctx, job.ID, err.Error())
		return uuid.Nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Printf("[Worker] Enqueued job %s for @%s", job.ID, handle)
	return job.ID, nil
}

// Warmup schedules handles that have no stored generation yet.
func (w *Worker) Warmup(ctx context.Context, handles []string) int {
	scheduled := 0
	for _, handle := range handles {
		_, err := w.store.GetLatestCompletedGeneration(ctx, handle)
		if err == nil {
			continue
		}
		if !errors.Is(err, db.ErrNotFound) {
			log.Printf("[Worker] Warmup lookup for @%s failed: %v", handle, err)
			continue
		}

		id, err := w.Schedule(ctx, handle)
		if err != nil {
			log.Printf("[Worker] Warmup enqueue for @%s failed: %v", handle, err)
			continue
		}
		if id != uuid.Nil {
			scheduled++
		}
	}

	log.Printf("[Worker] Warmup scheduled %d of %d example handles", scheduled, len(handles))
	return scheduled
}
