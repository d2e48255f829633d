package services

import (
	"context"
	"fmt"
	"log"

	"github.com/bobarin/xvoice/internal/models"
	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.5-flash"

// GeminiService analyzes profiles with Gemini through the genai SDK. It is
// used when no OpenAI key is configured.
type GeminiService struct {
	client *genai.Client
	model  string
}

var _ ProfileAnalyzer = (*GeminiService)(nil)

// NewGeminiService creates the genai client once; it is safe for concurrent use.
func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	return NewGeminiServiceWithConfig(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model)
}

// NewGeminiServiceWithConfig allows overriding HTTP options (base URL in tests).
func NewGeminiServiceWithConfig(ctx context.Context, cfg *genai.ClientConfig, model string) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if model == "" {
		model = geminiDefaultModel
	}
	return &GeminiService{client: client, model: model}, nil
}

// AnalyzeProfile requests a JSON analysis from Gemini.
func (s *GeminiService) AnalyzeProfile(ctx context.Context, profile *models.Profile) (*models.ProfileAnalysis, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(analysisSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.9),
	}

	log.Printf("[Gemini analysis] Analyzing @%s (model=%s)", profile.Handle, s.model)

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(buildAnalysisUserPrompt(profile)), config)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("no response from gemini")
	}

	analysis, err := parseAnalysis("Gemini", text)
	if err != nil {
		return nil, err
	}

	log.Printf("[Gemini analysis] @%s analyzed (descriptionLen=%d, sampleLen=%d)",
		profile.Handle, len(analysis.VoiceDescription), len(analysis.SampleText))

	return analysis, nil
}
