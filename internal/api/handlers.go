package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bobarin/xvoice/internal/action"
	"github.com/bobarin/xvoice/internal/db"
	"github.com/bobarin/xvoice/internal/form"
	"github.com/bobarin/xvoice/internal/models"
	"github.com/flosch/pongo2/v6"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultActionTimeout = 2 * time.Minute
	pendingRefresh       = 5
	executingRefresh     = 1

	// A handle whose last job failed is not re-enqueued by page views for
	// this long. POST /{handle} retries immediately.
	failedJobCooldown = 15 * time.Minute
)

// GenerationReader serves stored generations.
type GenerationReader interface {
	GetLatestCompletedGeneration(ctx context.Context, handle string) (*models.Generation, error)
	ListGenerations(ctx context.Context, handle string, limit int) ([]models.Generation, error)
}

// JobScheduler enqueues background synthesize runs.
type JobScheduler interface {
	Schedule(ctx context.Context, handle string) (uuid.UUID, error)
}

// JobReader reports background job progress.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetLatestJob(ctx context.Context, handle string) (*models.Job, error)
}

// Deps are the collaborators of Handler. Generations and Scheduler are
// optional.
type Deps struct {
	Action        form.Action
	Sessions      *Sessions
	Pages         *Pages
	Generations   GenerationReader
	Scheduler     JobScheduler
	Jobs          JobReader
	AssetsDir     string
	ActionTimeout time.Duration
}

type Handler struct {
	action        form.Action
	sessions      *Sessions
	pages         *Pages
	generations   GenerationReader
	scheduler     JobScheduler
	jobs          JobReader
	assetsDir     string
	actionTimeout time.Duration
}

func NewHandler(deps Deps) *Handler {
	if deps.ActionTimeout <= 0 {
		deps.ActionTimeout = defaultActionTimeout
	}
	return &Handler{
		action:        deps.Action,
		sessions:      deps.Sessions,
		pages:         deps.Pages,
		generations:   deps.Generations,
		scheduler:     deps.Scheduler,
		jobs:          deps.Jobs,
		assetsDir:     deps.AssetsDir,
		actionTimeout: deps.ActionTimeout,
	}
}

type formView struct {
	Handle    string
	Executing bool
	CanSubmit bool
	Label     string
}

type exampleView struct {
	Handle      string
	Name        string
	Description string
	Href        string
}

func exampleViews() []exampleView {
	entries := form.Examples()
	views := make([]exampleView, len(entries))
	for i, e := range entries {
		views[i] = exampleView{
			Handle:      e.Handle,
			Name:        e.DisplayName,
			Description: e.Description,
			Href:        e.Href(),
		}
	}
	return views
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Ensure(w, r)
	snap := sess.Form.Snapshot()

	label := form.LabelFor(snap.Status)
	view := formView{
		Handle:    snap.Handle,
		Executing: snap.Status == models.SubmissionStatusExecuting,
		CanSubmit: snap.CanSubmit,
		Label:     label.Text,
	}
	// Each auto-refresh shows the frame the looping animation has reached.
	if view.Executing {
		view.Label = label.FrameAt(time.Since(sess.StatusChangedAt()))
	}

	data := pongo2.Context{
		"form":          view,
		"examples":      exampleViews(),
		"notifications": sess.Toasts.Drain(),
	}
	if view.Executing {
		data["refresh"] = executingRefresh
	}
	if snap.Result != nil && snap.Result.Data != nil {
		data["result"] = snap.Result.Data
	}

	h.pages.Render(w, http.StatusOK, "index.html", data)
}

// Submit handles POST /
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Ensure(w, r)

	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	// A disabled input is not posted; keep the stored handle then.
	if _, ok := r.PostForm["handle"]; ok {
		sess.Form.SetHandle(r.PostForm.Get("handle"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.actionTimeout)
	done, err := sess.Form.SubmitAsync(ctx)
	if err != nil {
		cancel()
		if !errors.Is(err, form.ErrSubmitDisabled) {
			log.Printf("[API] Submit failed for session %s: %v", sess.ID, err)
		}
	} else {
		go func() {
			<-done
			cancel()
		}()
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Synthesize handles POST /actions/synthesize
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req models.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.action.Execute(r.Context(), req)
	if err != nil {
		log.Printf("[API] Action failed: %v", err)
		respondError(w, http.StatusBadGateway, "Action failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// HandlePage handles GET /{handle}
func (h *Handler) HandlePage(w http.ResponseWriter, r *http.Request) {
	handle, err := action.NormalizeHandle(chi.URLParam(r, "handle"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	// Without a database the form itself is the only way to generate.
	if h.generations == nil {
		sess := h.sessions.Ensure(w, r)
		sess.Form.SetHandle(handle)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := pongo2.Context{"handle": handle}

	gen, err := h.generations.GetLatestCompletedGeneration(r.Context(), handle)
	switch {
	case err == nil:
		data["result"] = gen.Result()
		h.pages.Render(w, http.StatusOK, "handle.html", data)
		return
	case !errors.Is(err, db.ErrNotFound):
		log.Printf("[API] Failed to load generation for @%s: %v", handle, err)
		respondError(w, http.StatusInternalServerError, "Failed to load generation")
		return
	}

	if h.jobs != nil {
		job, err := h.jobs.GetLatestJob(r.Context(), handle)
		switch {
		case err == nil && recentlyFailed(job, time.Now()):
			data["failure"] = jobFailureMessage(job)
			h.pages.Render(w, http.StatusOK, "handle.html", data)
			return
		case err != nil && !errors.Is(err, db.ErrNotFound):
			log.Printf("[API] Failed to load latest job for @%s: %v", handle, err)
		}
	}

	h.schedulePending(r.Context(), handle, data)
	h.pages.Render(w, http.StatusOK, "handle.html", data)
}

// RetryHandle handles POST /{handle}
// It schedules a new run regardless of a recent failure.
func (h *Handler) RetryHandle(w http.ResponseWriter, r *http.Request) {
	handle, err := action.NormalizeHandle(chi.URLParam(r, "handle"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if h.scheduler != nil {
		if _, err := h.scheduler.Schedule(r.Context(), handle); err != nil {
			log.Printf("[API] Failed to schedule retry for @%s: %v", handle, err)
		}
	}

	http.Redirect(w, r, "/"+handle, http.StatusSeeOther)
}

func (h *Handler) schedulePending(ctx context.Context, handle string, data pongo2.Context) {
	if h.scheduler == nil {
		return
	}
	if _, err := h.scheduler.Schedule(ctx, handle); err != nil {
		log.Printf("[API] Failed to schedule @%s: %v", handle, err)
		return
	}
	data["pending"] = true
	data["refresh"] = pendingRefresh
}

func recentlyFailed(job *models.Job, now time.Time) bool {
	if job.Status != models.JobStatusFailed {
		return false
	}
	finished := job.CreatedAt
	if job.FinishedAt != nil {
		finished = *job.FinishedAt
	}
	return now.Sub(finished) < failedJobCooldown
}

func jobFailureMessage(job *models.Job) string {
	if job.ErrorMessage == nil || *job.ErrorMessage == "" {
		return action.DefaultServerErrorMessage
	}
	return *job.ErrorMessage
}

// ListExamples handles GET /v1/examples
func (h *Handler) ListExamples(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, form.Examples())
}

// ListGenerations handles GET /v1/generations/{handle}
// Query params:
//   - limit: max results (default 20, max 100)
func (h *Handler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	if h.generations == nil {
		respondError(w, http.StatusServiceUnavailable, "Generation history is not enabled")
		return
	}

	handle, err := action.NormalizeHandle(chi.URLParam(r, "handle"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid X handle")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	generations, err := h.generations.ListGenerations(r.Context(), handle, limit)
	if err != nil {
		log.Printf("[API] Failed to list generations for @%s: %v", handle, err)
		respondError(w, http.StatusInternalServerError, "Failed to list generations")
		return
	}

	respondJSON(w, http.StatusOK, models.ListGenerationsResponse{
		Generations: generations,
		Limit:       limit,
	})
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondError(w, http.StatusServiceUnavailable, "Background jobs are not enabled")
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log.Printf("[API] Failed to get job %s: %v", jobID, err)
		respondError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// Logo handles GET /x.png
func (h *Handler) Logo(w http.ResponseWriter, r *http.Request) {
	if h.assetsDir == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, filepath.Join(h.assetsDir, "x.png"))
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": h.sessions.Len(),
	})
}
