package action

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bobarin/xvoice/internal/models"
	"github.com/bobarin/xvoice/internal/services"
	"github.com/bobarin/xvoice/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// Synthesize action
// Turns an X handle into a set of designed voice previews: profile fetch,
// LLM analysis, ElevenLabs voice design, then upload and persistence.
// ---------------------------------------------------------------------------

const defaultUploadConcurrency = 2

// AudioStore persists preview audio and serves it back by URL.
type AudioStore interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) error
	GetPublicURL(objectPath string) string
}

// GenerationStore records each synthesize run.
type GenerationStore interface {
	CreateGeneration(ctx context.Context, g *models.Generation) error
	CompleteGeneration(ctx context.Context, id uuid.UUID, name string, analysis *models.ProfileAnalysis, previews models.Previews) error
	FailGeneration(ctx context.Context, id uuid.UUID, errorMessage string) error
}

// ResultCache short-circuits repeat requests for the same handle.
type ResultCache interface {
	Get(ctx context.Context, handle string) (*models.VoiceResult, bool, error)
	Set(ctx context.Context, handle string, result *models.VoiceResult) error
}

// VoiceSaver turns a generated preview into a permanent voice.
type VoiceSaver interface {
	SaveVoice(ctx context.Context, name, voiceDescription, generatedVoiceID string) (string, error)
}

// Options holds the optional collaborators. Nil fields disable the feature.
type Options struct {
	Audio             AudioStore
	Generations       GenerationStore
	Cache             ResultCache
	Saver             VoiceSaver
	UploadConcurrency int
}

type Synthesizer struct {
	profiles    services.ProfileFetcher
	analyzer    services.ProfileAnalyzer
	designer    services.VoiceDesigner
	audio       AudioStore
	generations GenerationStore
	cache       ResultCache
	saver       VoiceSaver
	uploadLimit int
	now         func() time.Time
}

func New(profiles services.ProfileFetcher, analyzer services.ProfileAnalyzer, designer services.VoiceDesigner, opts Options) *Synthesizer {
	if opts.UploadConcurrency < 1 {
		opts.UploadConcurrency = defaultUploadConcurrency
	}
	return &Synthesizer{
		profiles:    profiles,
		analyzer:    analyzer,
		designer:    designer,
		audio:       opts.Audio,
		generations: opts.Generations,
		cache:       opts.Cache,
		saver:       opts.Saver,
		uploadLimit: opts.UploadConcurrency,
		now:         time.Now,
	}
}

// Execute runs the action and reports failures in the result rather than as
// an error, so it can be served directly to the form.
func (s *Synthesizer) Execute(ctx context.Context, req models.ActionRequest) (*models.ActionResult, error) {
	result, err := s.Run(ctx, req.Handle)
	if err != nil {
		return &models.ActionResult{ServerError: ServerErrorMessage(err)}, nil
	}
	return &models.ActionResult{Data: result}, nil
}

// Run synthesizes voice previews for handle.
func (s *Synthesizer) Run(ctx context.Context, rawHandle string) (*models.VoiceResult, error) {
	handle, err := NormalizeHandle(rawHandle)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, handle)
		if err != nil {
			log.Printf("[Action] Cache lookup for @%s failed (continuing): %v", handle, err)
		} else if ok {
			log.Printf("[Action] @%s served from cache", handle)
			return cached, nil
		}
	}

	gen := &models.Generation{
		ID:     uuid.New(),
		Handle: handle,
		Status: models.GenerationStatusPending,
	}
	if s.generations != nil {
		if err := s.generations.CreateGeneration(ctx, gen); err != nil {
			return nil, fmt.Errorf("failed to create generation: %w", err)
		}
	}

	start := s.now()
	log.Printf("[Action] Synthesizing @%s (generation %s)", handle, gen.ID)

	result, err := s.synthesize(ctx, gen)
	if err != nil {
		log.Printf("[Action] @%s failed after %v: %v", handle, s.now().Sub(start), err)
		if s.generations != nil {
			// The request context may already be cancelled.
			failCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if ferr := s.generations.FailGeneration(failCtx, gen.ID, err.Error()); ferr != nil {
				log.Printf("[Action] Failed to record failure for generation %s: %v", gen.ID, ferr)
			}
			cancel()
		}
		return nil, err
	}

	log.Printf("[Action] @%s done in %v (%d previews)", handle, s.now().Sub(start), len(result.Previews))

	if s.cache != nil {
		if err := s.cache.Set(ctx, handle, result); err != nil {
			log.Printf("[Action] Failed to cache @%s: %v", handle, err)
		}
	}

	return result, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, gen *models.Generation) (*models.VoiceResult, error) {
	profile, err := s.profiles.FetchProfile(ctx, gen.Handle)
	if err != nil {
		return nil, classify("fetch profile", err)
	}

	analysis, err := s.analyzer.AnalyzeProfile(ctx, profile)
	if err != nil {
		return nil, classify("analyze profile", err)
	}

	design, err := s.designer.CreatePreviews(ctx, analysis.VoiceDescription, analysis.SampleText)
	if err != nil {
		return nil, classify("design voice", err)
	}
	if len(design.Previews) == 0 {
		return nil, fmt.Errorf("voice design returned no previews")
	}
	if design.Text != "" {
		analysis.SampleText = design.Text
	}

	previews, err := s.storePreviews(ctx, gen, design.Previews)
	if err != nil {
		return nil, err
	}

	name := profile.Name
	if name == "" {
		name = profile.Handle
	}

	if s.saver != nil {
		voiceID, err := s.saver.SaveVoice(ctx, voiceName(profile), analysis.VoiceDescription, previews[0].GeneratedVoiceID)
		if err != nil {
			log.Printf("[Action] Failed to save voice for @%s (previews kept): %v", profile.Handle, err)
		} else {
			previews[0].VoiceID = voiceID
		}
	}

	if s.generations != nil {
		if err := s.generations.CompleteGeneration(ctx, gen.ID, name, analysis, previews); err != nil {
			return nil, fmt.Errorf("failed to complete generation: %w", err)
		}
	}

	return &models.VoiceResult{
		GenerationID:     gen.ID,
		Handle:           profile.Handle,
		Name:             name,
		Summary:          analysis.Summary,
		VoiceDescription: analysis.VoiceDescription,
		SampleText:       analysis.SampleText,
		Previews:         previews,
		CreatedAt:        s.now(),
	}, nil
}

// storePreviews uploads preview audio concurrently. Without an audio store
// the audio is inlined as data URIs.
func (s *Synthesizer) storePreviews(ctx context.Context, gen *models.Generation, designed []services.DesignedPreview) (models.Previews, error) {
	previews := make(models.Previews, len(designed))
	for i, d := range designed {
		previews[i] = models.VoicePreview{
			GeneratedVoiceID: d.GeneratedVoiceID,
			MediaType:        d.MediaType,
			DurationSecs:     d.DurationSecs,
		}
	}

	if s.audio == nil {
		for i, d := range designed {
			previews[i].AudioURL = dataURI(d.MediaType, d.AudioData)
		}
		return previews, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.uploadLimit)

	for i, d := range designed {
		i, d := i, d
		g.Go(func() error {
			objectPath := storage.PreviewPath(gen.Handle, gen.ID, i, storage.ExtensionFor(d.MediaType))
			if err := s.audio.Upload(gctx, objectPath, d.AudioData, d.MediaType); err != nil {
				return fmt.Errorf("failed to upload preview %d: %w", i, err)
			}
			previews[i].StoragePath = objectPath
			previews[i].AudioURL = s.audio.GetPublicURL(objectPath)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return previews, nil
}

// classify turns known upstream failures into user-facing errors.
func classify(step string, err error) error {
	switch {
	case errors.Is(err, services.ErrProfileNotFound):
		return userError(msgProfileNotFound, err)
	case services.IsRateLimited(err):
		return userError(msgRateLimited, err)
	default:
		return fmt.Errorf("failed to %s: %w", step, err)
	}
}

func voiceName(profile *models.Profile) string {
	return "@" + profile.Handle + " (xvoice)"
}

func dataURI(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = "audio/mpeg"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
