package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// ElevenLabs Voice Design Service
// Uses the text-to-voice endpoints to design a brand-new voice from a natural
// language description, returning playable previews.
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsOutputFormat = "mp3_44100_128"

	// Limits enforced by the voice design endpoint.
	VoiceDescriptionMinLen = 20
	VoiceDescriptionMaxLen = 1000
	PreviewTextMinLen      = 100
	PreviewTextMaxLen      = 1000
)

// VoiceDesigner creates voice previews from a description.
type VoiceDesigner interface {
	CreatePreviews(ctx context.Context, voiceDescription, text string) (*DesignResponse, error)
}

// DesignedPreview is one decoded voice preview.
type DesignedPreview struct {
	GeneratedVoiceID string
	MediaType        string
	DurationSecs     float64
	AudioData        []byte
}

// DesignResponse is the decoded create-previews response.
type DesignResponse struct {
	Previews []DesignedPreview
	Text     string // the text the previews speak (generated when none was sent)
}

// ElevenLabsService handles voice design via the ElevenLabs API.
type ElevenLabsService struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// Ensure ElevenLabsService implements VoiceDesigner at compile time.
var _ VoiceDesigner = (*ElevenLabsService)(nil)

// NewElevenLabsService creates a new ElevenLabs voice design service.
func NewElevenLabsService(apiKey string) *ElevenLabsService {
	return &ElevenLabsService{
		apiKey:  apiKey,
		baseURL: elevenLabsBaseURL,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

// ---------------------------------------------------------------------------
// Request / response types
// ---------------------------------------------------------------------------

type designPreviewsRequest struct {
	VoiceDescription string `json:"voice_description"`
	Text             string `json:"text,omitempty"`
	AutoGenerateText bool   `json:"auto_generate_text"`
}

type designPreviewsResponse struct {
	Previews []struct {
		AudioBase64      string  `json:"audio_base_64"`
		GeneratedVoiceID string  `json:"generated_voice_id"`
		MediaType        string  `json:"media_type"`
		DurationSecs     float64 `json:"duration_secs"`
	} `json:"previews"`
	Text string `json:"text"`
}

type saveVoiceRequest struct {
	VoiceName        string `json:"voice_name"`
	VoiceDescription string `json:"voice_description"`
	GeneratedVoiceID string `json:"generated_voice_id"`
}

// CreatePreviews designs voices matching voiceDescription. When text falls
// outside the endpoint's length limits, ElevenLabs generates the preview text
// itself.
func (s *ElevenLabsService) CreatePreviews(ctx context.Context, voiceDescription, text string) (*DesignResponse, error) {
	if l := len(voiceDescription); l < VoiceDescriptionMinLen || l > VoiceDescriptionMaxLen {
		return nil, fmt.Errorf("voice description must be %d-%d characters, got %d",
			VoiceDescriptionMinLen, VoiceDescriptionMaxLen, l)
	}

	reqBody := designPreviewsRequest{VoiceDescription: voiceDescription}
	if l := len(text); l >= PreviewTextMinLen && l <= PreviewTextMaxLen {
		reqBody.Text = text
	} else {
		reqBody.AutoGenerateText = true
	}

	// POST /v1/text-to-voice/create-previews?output_format=mp3_44100_128
	url := fmt.Sprintf("%s/v1/text-to-voice/create-previews?output_format=%s", s.baseURL, elevenLabsOutputFormat)

	log.Printf("[ElevenLabs] Designing voice (descriptionLen=%d, textLen=%d, autoText=%v)",
		len(voiceDescription), len(reqBody.Text), reqBody.AutoGenerateText)

	var resp designPreviewsResponse
	if err := s.post(ctx, url, reqBody, &resp); err != nil {
		return nil, err
	}

	if len(resp.Previews) == 0 {
		return nil, fmt.Errorf("ElevenLabs returned no previews")
	}

	out := &DesignResponse{Text: resp.Text, Previews: make([]DesignedPreview, 0, len(resp.Previews))}
	for i, p := range resp.Previews {
		audio, err := base64.StdEncoding.DecodeString(p.AudioBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode preview %d audio: %w", i, err)
		}
		if len(audio) == 0 {
			return nil, fmt.Errorf("ElevenLabs returned empty audio for preview %d", i)
		}
		mediaType := p.MediaType
		if mediaType == "" {
			mediaType = "audio/mpeg"
		}
		out.Previews = append(out.Previews, DesignedPreview{
			GeneratedVoiceID: p.GeneratedVoiceID,
			MediaType:        mediaType,
			DurationSecs:     p.DurationSecs,
			AudioData:        audio,
		})
	}

	log.Printf("[ElevenLabs] Designed %d previews", len(out.Previews))

	return out, nil
}

// SaveVoice adds a designed preview to the account's voice library and
// returns the permanent voice ID.
func (s *ElevenLabsService) SaveVoice(ctx context.Context, name, voiceDescription, generatedVoiceID string) (string, error) {
	if generatedVoiceID == "" {
		return "", fmt.Errorf("generated voice ID is required")
	}

	url := fmt.Sprintf("%s/v1/text-to-voice/create-voice-from-preview", s.baseURL)

	var resp struct {
		VoiceID string `json:"voice_id"`
	}
	if err := s.post(ctx, url, saveVoiceRequest{
		VoiceName:        name,
		VoiceDescription: voiceDescription,
		GeneratedVoiceID: generatedVoiceID,
	}, &resp); err != nil {
		return "", err
	}

	if resp.VoiceID == "" {
		return "", fmt.Errorf("ElevenLabs returned no voice ID")
	}

	log.Printf("[ElevenLabs] Saved voice %q as %s", name, resp.VoiceID)
	return resp.VoiceID, nil
}

func (s *ElevenLabsService) post(ctx context.Context, url string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ElevenLabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Provider: "ElevenLabs", StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ElevenLabs response: %w", err)
	}
	return nil
}
