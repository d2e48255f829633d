package services

import (
	"context"
	"fmt"
	"log"

	"github.com/bobarin/xvoice/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

type OpenAIService struct {
	client *openai.Client
	model  string
}

var _ ProfileAnalyzer = (*OpenAIService)(nil)

func NewOpenAIService(apiKey, model string) *OpenAIService {
	return NewOpenAIServiceWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIServiceWithConfig allows a custom base URL (proxies, tests).
func NewOpenAIServiceWithConfig(cfg openai.ClientConfig, model string) *OpenAIService {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// AnalyzeProfile asks the chat model for a voice description using JSON mode.
func (s *OpenAIService) AnalyzeProfile(ctx context.Context, profile *models.Profile) (*models.ProfileAnalysis, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: analysisSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildAnalysisUserPrompt(profile),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.9,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	analysis, err := parseAnalysis("OpenAI", resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	log.Printf("[OpenAI analysis] @%s analyzed (descriptionLen=%d, sampleLen=%d)",
		profile.Handle, len(analysis.VoiceDescription), len(analysis.SampleText))

	return analysis, nil
}
