package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestElevenLabs(srv *httptest.Server) *ElevenLabsService {
	return &ElevenLabsService{
		apiKey:  "test-key",
		baseURL: srv.URL,
		client:  srv.Client(),
	}
}

var (
	testDescription = "A warm, confident baritone in his forties with a slight Southern drawl."
	testSampleText  = strings.Repeat("Every morning I wake up and think about what we can build next. ", 3)
)

func TestCreatePreviewsSuccess(t *testing.T) {
	audio := []byte{0x49, 0x44, 0x33, 0x04}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-voice/create-previews" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != "mp3_44100_128" {
			t.Errorf("output_format = %q", r.URL.Query().Get("output_format"))
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("xi-api-key = %q", r.Header.Get("xi-api-key"))
		}

		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if payload["voice_description"] != testDescription {
			t.Errorf("voice_description = %v", payload["voice_description"])
		}
		if payload["text"] != testSampleText {
			t.Errorf("text = %v", payload["text"])
		}
		if payload["auto_generate_text"] != false {
			t.Errorf("auto_generate_text = %v, want false", payload["auto_generate_text"])
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"previews": []map[string]interface{}{
				{"audio_base_64": base64.StdEncoding.EncodeToString(audio), "generated_voice_id": "gv1", "media_type": "audio/mpeg", "duration_secs": 5.2},
				{"audio_base_64": base64.StdEncoding.EncodeToString(audio), "generated_voice_id": "gv2", "duration_secs": 4.8},
			},
			"text": testSampleText,
		})
	}))
	defer srv.Close()

	resp, err := newTestElevenLabs(srv).CreatePreviews(context.Background(), testDescription, testSampleText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Previews) != 2 {
		t.Fatalf("got %d previews, want 2", len(resp.Previews))
	}
	if resp.Previews[0].GeneratedVoiceID != "gv1" || string(resp.Previews[0].AudioData) != string(audio) {
		t.Errorf("unexpected first preview: %+v", resp.Previews[0])
	}
	if resp.Previews[1].MediaType != "audio/mpeg" {
		t.Errorf("missing media type should default to audio/mpeg, got %q", resp.Previews[1].MediaType)
	}
}

func TestCreatePreviewsAutoGeneratesShortText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		if _, ok := payload["text"]; ok {
			t.Errorf("short text should not be sent, got %v", payload["text"])
		}
		if payload["auto_generate_text"] != true {
			t.Errorf("auto_generate_text = %v, want true", payload["auto_generate_text"])
		}
		w.Write([]byte(`{"previews":[{"audio_base_64":"AQI=","generated_voice_id":"gv1"}],"text":"generated"}`))
	}))
	defer srv.Close()

	resp, err := newTestElevenLabs(srv).CreatePreviews(context.Background(), testDescription, "too short")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "generated" {
		t.Errorf("Text = %q, want generated", resp.Text)
	}
}

func TestCreatePreviewsValidation(t *testing.T) {
	s := &ElevenLabsService{apiKey: "k", baseURL: "http://localhost"}
	if _, err := s.CreatePreviews(context.Background(), "short", testSampleText); err == nil {
		t.Fatal("expected error for short voice description")
	}
	if _, err := s.CreatePreviews(context.Background(), strings.Repeat("a", VoiceDescriptionMaxLen+1), testSampleText); err == nil {
		t.Fatal("expected error for long voice description")
	}
}

func TestCreatePreviewsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail":{"status":"too_many_concurrent_requests"}}`))
	}))
	defer srv.Close()

	_, err := newTestElevenLabs(srv).CreatePreviews(context.Background(), testDescription, testSampleText)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !IsRateLimited(err) {
		t.Errorf("expected rate limited error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Provider != "ElevenLabs" {
		t.Errorf("expected ElevenLabs APIError, got %v", err)
	}
}

func TestCreatePreviewsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"previews":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestElevenLabs(srv).CreatePreviews(context.Background(), testDescription, testSampleText); err == nil {
		t.Fatal("expected error for empty previews")
	}
}

func TestCreatePreviewsBadAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"previews":[{"audio_base_64":"!!not base64!!","generated_voice_id":"gv1"}]}`))
	}))
	defer srv.Close()

	if _, err := newTestElevenLabs(srv).CreatePreviews(context.Background(), testDescription, testSampleText); err == nil {
		t.Fatal("expected error for undecodable audio")
	}
}

func TestSaveVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-voice/create-voice-from-preview" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var payload saveVoiceRequest
		json.NewDecoder(r.Body).Decode(&payload)
		if payload.GeneratedVoiceID != "gv1" || payload.VoiceName != "@jo" {
			t.Errorf("unexpected payload: %+v", payload)
		}
		w.Write([]byte(`{"voice_id":"voice-123"}`))
	}))
	defer srv.Close()

	id, err := newTestElevenLabs(srv).SaveVoice(context.Background(), "@jo", testDescription, "gv1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "voice-123" {
		t.Errorf("voice ID = %q", id)
	}

	if _, err := newTestElevenLabs(srv).SaveVoice(context.Background(), "@jo", testDescription, ""); err == nil {
		t.Error("expected error for empty generated voice ID")
	}
}
