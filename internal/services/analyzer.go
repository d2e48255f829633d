package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/bobarin/xvoice/internal/models"
)

// ProfileAnalyzer turns a profile into a voice description and sample script.
// Both the OpenAI and Gemini analyzers implement it so the action can use
// whichever is configured.
type ProfileAnalyzer interface {
	AnalyzeProfile(ctx context.Context, profile *models.Profile) (*models.ProfileAnalysis, error)
}

const (
	maxPromptPosts    = 20
	maxPromptPostLen  = 280
	maxLoggedResponse = 2000
)

const analysisSystemPrompt = `You are a voice casting director. Given a public social media profile, imagine the speaking voice that best matches the persona it projects and describe it for a voice design engine.

Return a JSON object with exactly these fields:
- summary: one or two sentences describing the persona, in the third person.
- voice_description: 20 to 1000 characters describing the voice: perceived age, gender, accent, pitch, timbre, pacing, energy and emotional tone. Describe an original voice inspired by the persona; never name or claim to imitate a real person.
- sample_text: 100 to 1000 characters the voice will read aloud, written in the first person in the style of the profile's posts. Plain spoken sentences only: no hashtags, links, emoji or @mentions.

All fields are required. Respond with JSON only.`

// buildAnalysisUserPrompt renders the profile as the user turn.
func buildAnalysisUserPrompt(profile *models.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Handle: @%s\n", profile.Handle)
	fmt.Fprintf(&b, "Name: %s\n", profile.Name)
	if profile.Description != "" {
		fmt.Fprintf(&b, "Bio: %s\n", profile.Description)
	}
	if profile.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", profile.Location)
	}
	if profile.Verified {
		b.WriteString("Verified account\n")
	}
	fmt.Fprintf(&b, "Followers: %d\n", profile.FollowersCount)

	posts := profile.RecentPosts
	if len(posts) > maxPromptPosts {
		posts = posts[:maxPromptPosts]
	}
	if len(posts) > 0 {
		b.WriteString("\nRecent posts:\n")
		for _, p := range posts {
			fmt.Fprintf(&b, "- %s\n", truncateString(p, maxPromptPostLen))
		}
	}

	return b.String()
}

// parseAnalysis decodes and validates a model response. Overlong fields are
// trimmed to the voice design limits; a sample text that is too short is kept
// and the voice design endpoint generates its own.
func parseAnalysis(provider, raw string) (*models.ProfileAnalysis, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var analysis models.ProfileAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		log.Printf("[%s analysis] parse failed: %v", provider, err)
		log.Printf("[%s analysis] raw response: %s", provider, truncateString(raw, maxLoggedResponse))
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}

	analysis.Summary = strings.TrimSpace(analysis.Summary)
	analysis.VoiceDescription = clampText(strings.TrimSpace(analysis.VoiceDescription), VoiceDescriptionMaxLen)
	analysis.SampleText = clampText(strings.TrimSpace(analysis.SampleText), PreviewTextMaxLen)

	var missing []string
	if analysis.Summary == "" {
		missing = append(missing, "summary")
	}
	if len(analysis.VoiceDescription) < VoiceDescriptionMinLen {
		missing = append(missing, "voice_description")
	}
	if len(missing) > 0 {
		log.Printf("[%s analysis] missing required fields: %v", provider, missing)
		return nil, fmt.Errorf("analysis missing required fields: %v", missing)
	}

	return &analysis, nil
}

// clampText cuts s to at most maxLen bytes, preferring a word boundary.
func clampText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if i := strings.LastIndexAny(cut, " \n"); i > maxLen/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(strings.ToValidUTF8(cut, ""))
}
