package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/xvoice/internal/action"
	"github.com/bobarin/xvoice/internal/db"
	"github.com/bobarin/xvoice/internal/models"
	"github.com/bobarin/xvoice/internal/queue"
	"github.com/google/uuid"
)

type memQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
}

func (q *memQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
			return nil, nil
		}
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

func (q *memQueue) EnqueueSynthesize(ctx context.Context, handle string, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, &queue.Job{ID: jobID, Handle: handle, CreatedAt: time.Now()})
	return nil
}

type memStore struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]*models.Job
	generations map[string]bool
	done        chan uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		jobs:        map[uuid.UUID]*models.Job{},
		generations: map[string]bool{},
		done:        make(chan uuid.UUID, 10),
	}
}

func (s *memStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	s.mu.Lock()
	s.jobs[id].Status = status
	s.mu.Unlock()
	if status == models.JobStatusSucceeded {
		s.done <- id
	}
	return nil
}

func (s *memStore) UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error {
	s.mu.Lock()
	s.jobs[id].Status = models.JobStatusFailed
	s.jobs[id].ErrorMessage = &errorMessage
	s.mu.Unlock()
	s.done <- id
	return nil
}

func (s *memStore) SetJobGeneration(ctx context.Context, id, generationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].GenerationID = &generationID
	return nil
}

func (s *memStore) HasPendingJob(ctx context.Context, handle string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.Handle == handle && (job.Status == models.JobStatusQueued || job.Status == models.JobStatusRunning) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetLatestCompletedGeneration(ctx context.Context, handle string) (*models.Generation, error) {
	if s.generations[handle] {
		return &models.Generation{Handle: handle, Status: models.GenerationStatusCompleted}, nil
	}
	return nil, fmt.Errorf("generation for %s: %w", handle, db.ErrNotFound)
}

func (s *memStore) job(id uuid.UUID) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

type runnerFunc func(ctx context.Context, handle string) (*models.VoiceResult, error)

func (f runnerFunc) Run(ctx context.Context, handle string) (*models.VoiceResult, error) {
	return f(ctx, handle)
}

func waitDone(t *testing.T, store *memStore) uuid.UUID {
	t.Helper()
	select {
	case id := <-store.done:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job")
		return uuid.Nil
	}
}

func TestWorkerProcessesJobs(t *testing.T) {
	genID := uuid.New()
	q := &memQueue{}
	store := newMemStore()
	w := New(q, store, runnerFunc(func(ctx context.Context, handle string) (*models.VoiceResult, error) {
		switch handle {
		case "broken":
			return nil, errors.New("upstream down")
		case "ghost":
			return nil, &action.Error{Message: "profile not found"}
		}
		return &models.VoiceResult{GenerationID: genID, Handle: handle}, nil
	}))

	okID, err := w.Schedule(context.Background(), "jack")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	badID, _ := w.Schedule(context.Background(), "broken")
	ghostID, _ := w.Schedule(context.Background(), "ghost")

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx, 2)
		close(stopped)
	}()

	waitDone(t, store)
	waitDone(t, store)
	waitDone(t, store)
	cancel()
	<-stopped

	ok := store.job(okID)
	if ok.Status != models.JobStatusSucceeded || ok.GenerationID == nil || *ok.GenerationID != genID {
		t.Errorf("ok job = %+v", ok)
	}
	bad := store.job(badID)
	if bad.Status != models.JobStatusFailed || bad.ErrorMessage == nil || *bad.ErrorMessage != action.DefaultServerErrorMessage {
		t.Errorf("bad job = %+v, want generic error message", bad)
	}
	ghost := store.job(ghostID)
	if ghost.ErrorMessage == nil || *ghost.ErrorMessage != "profile not found" {
		t.Errorf("ghost job = %+v, want user-facing message", ghost)
	}
}

func TestScheduleSkipsPendingHandle(t *testing.T) {
	q := &memQueue{}
	w := New(q, newMemStore(), nil)

	first, _ := w.Schedule(context.Background(), "jack")
	second, err := w.Schedule(context.Background(), "jack")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if first == uuid.Nil || second != uuid.Nil {
		t.Errorf("Schedule ids = %s, %s; want one job", first, second)
	}
	if len(q.jobs) != 1 {
		t.Errorf("queued = %d, want 1", len(q.jobs))
	}
}

func TestWarmupSkipsStoredHandles(t *testing.T) {
	q := &memQueue{}
	store := newMemStore()
	store.generations["elonmusk"] = true
	w := New(q, store, nil)

	got := w.Warmup(context.Background(), []string{"elonmusk", "jack", "naval"})
	if got != 2 {
		t.Errorf("Warmup scheduled %d, want 2", got)
	}
	for _, job := range q.jobs {
		if job.Handle == "elonmusk" {
			t.Error("stored handle was enqueued")
		}
	}
}
