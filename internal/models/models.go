package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enums
type SubmissionStatus string

const (
	SubmissionStatusIdle      SubmissionStatus = "idle"
	SubmissionStatusExecuting SubmissionStatus = "executing"
	SubmissionStatusSucceeded SubmissionStatus = "succeeded"
	SubmissionStatusFailed    SubmissionStatus = "failed"
)

// Interactive reports whether the form accepts input in this status.
func (s SubmissionStatus) Interactive() bool {
	return s != SubmissionStatusExecuting
}

type GenerationStatus string

const (
	GenerationStatusPending   GenerationStatus = "pending"
	GenerationStatusCompleted GenerationStatus = "completed"
	GenerationStatusFailed    GenerationStatus = "failed"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Previews is stored in a JSONB column.
type Previews []VoicePreview

func (p Previews) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

func (p *Previews) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported previews column type %T", value)
	}
	return json.Unmarshal(raw, p)
}

// Models

// VoicePreview is one candidate voice returned by the voice design endpoint.
type VoicePreview struct {
	GeneratedVoiceID string  `json:"generated_voice_id"`
	VoiceID          string  `json:"voice_id,omitempty"`
	MediaType        string  `json:"media_type"`
	DurationSecs     float64 `json:"duration_secs"`
	AudioURL         string  `json:"audio_url,omitempty"`
	StoragePath      string  `json:"storage_path,omitempty"`
}

// Profile is the subset of an X account used for voice analysis.
type Profile struct {
	ID              string   `json:"id"`
	Handle          string   `json:"handle"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Location        string   `json:"location,omitempty"`
	ProfileImageURL string   `json:"profile_image_url,omitempty"`
	Verified        bool     `json:"verified"`
	FollowersCount  int      `json:"followers_count"`
	RecentPosts     []string `json:"recent_posts,omitempty"`
}

// ProfileAnalysis is what the language model derives from a profile.
type ProfileAnalysis struct {
	Summary          string `json:"summary"`
	VoiceDescription string `json:"voice_description"`
	SampleText       string `json:"sample_text"`
}

// VoiceResult is the success payload of the synthesize action.
type VoiceResult struct {
	GenerationID     uuid.UUID      `json:"generation_id"`
	Handle           string         `json:"handle"`
	Name             string         `json:"name"`
	Summary          string         `json:"summary"`
	VoiceDescription string         `json:"voice_description"`
	SampleText       string         `json:"sample_text"`
	Previews         []VoicePreview `json:"previews"`
	CreatedAt        time.Time      `json:"created_at"`
}

type Generation struct {
	ID               uuid.UUID        `json:"id"`
	Handle           string           `json:"handle"`
	Status           GenerationStatus `json:"status"`
	Name             *string          `json:"name,omitempty"`
	Summary          *string          `json:"summary,omitempty"`
	VoiceDescription *string          `json:"voice_description,omitempty"`
	SampleText       *string          `json:"sample_text,omitempty"`
	Previews         Previews         `json:"previews"`
	ErrorMessage     *string          `json:"error_message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Result converts a completed generation into the action payload.
func (g *Generation) Result() *VoiceResult {
	return &VoiceResult{
		GenerationID:     g.ID,
		Handle:           g.Handle,
		Name:             deref(g.Name),
		Summary:          deref(g.Summary),
		VoiceDescription: deref(g.VoiceDescription),
		SampleText:       deref(g.SampleText),
		Previews:         g.Previews,
		CreatedAt:        g.CreatedAt,
	}
}

// Job tracks one queued synthesize request.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	Handle       string     `json:"handle"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	GenerationID *uuid.UUID `json:"generation_id,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ExampleEntry is a suggested handle shown under the form.
type ExampleEntry struct {
	Handle      string `json:"handle" yaml:"handle"`
	DisplayName string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Href is the per-handle page path.
func (e ExampleEntry) Href() string {
	return "/" + e.Handle
}

// DTOs for the action endpoint

type ActionRequest struct {
	Handle string `json:"handle"`
}

// ActionResult carries either a success payload or a server-reported error.
type ActionResult struct {
	Data        *VoiceResult `json:"data,omitempty"`
	ServerError string       `json:"serverError,omitempty"`
}

// Failed reports whether the server reported an error.
func (r *ActionResult) Failed() bool {
	return r != nil && r.ServerError != ""
}

type ListGenerationsResponse struct {
	Generations []Generation `json:"generations"`
	Limit       int          `json:"limit"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
