package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStorage(srv *httptest.Server) *Storage {
	s := New(srv.URL+"/", "svc-key", "voice-previews")
	s.client = srv.Client()
	s.retryBase = time.Millisecond
	return s
}

func TestUploadSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if r.URL.Path != "/storage/v1/object/voice-previews/jo/preview_0.mp3" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer svc-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("x-upsert") != "true" {
			t.Error("x-upsert header missing")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "audio" {
			t.Errorf("body = %q", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := newTestStorage(srv).Upload(context.Background(), "jo/preview_0.mp3", []byte("audio"), "audio/mpeg"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestUploadRetriesRetryableStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	if err := newTestStorage(srv).Upload(context.Background(), "p", []byte("a"), "audio/mpeg"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestUploadNonRetryableStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("forbidden"))
	}))
	defer srv.Close()

	err := newTestStorage(srv).Upload(context.Background(), "p", []byte("a"), "audio/mpeg")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("error = %v, want status 403", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestUploadGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newTestStorage(srv).Upload(context.Background(), "p", []byte("a"), "audio/mpeg")
	if err == nil || !strings.Contains(err.Error(), "after 5 attempts") {
		t.Fatalf("error = %v", err)
	}
	if calls != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls, maxRetries+1)
	}
}

func TestUploadCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newTestStorage(srv)
	s.retryBase = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Upload(ctx, "p", []byte("a"), "audio/mpeg")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestGetPublicURL(t *testing.T) {
	s := New("https://abc.supabase.co/", "k", "voice-previews")
	want := "https://abc.supabase.co/storage/v1/object/public/voice-previews/jo/preview_0.mp3"
	if got := s.GetPublicURL("jo/preview_0.mp3"); got != want {
		t.Errorf("GetPublicURL = %q, want %q", got, want)
	}
}

func TestPreviewPath(t *testing.T) {
	id := uuid.MustParse("6f1c1f4e-8f36-4d0a-9f3e-1c2d3e4f5a6b")
	want := "elonmusk/6f1c1f4e-8f36-4d0a-9f3e-1c2d3e4f5a6b/preview_2.mp3"
	if got := PreviewPath("ElonMusk", id, 2, "mp3"); got != want {
		t.Errorf("PreviewPath = %q, want %q", got, want)
	}
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"audio/mpeg": "mp3",
		"":           "mp3",
		"audio/wav":  "wav",
		"audio/ogg":  "ogg",
	}
	for mediaType, want := range cases {
		if got := ExtensionFor(mediaType); got != want {
			t.Errorf("ExtensionFor(%q) = %q, want %q", mediaType, got, want)
		}
	}
}

func TestRetryClassification(t *testing.T) {
	if !isRetryableError(io.ErrUnexpectedEOF) {
		t.Error("unexpected EOF should be retryable")
	}
	if isRetryableError(errors.New("x509: certificate signed by unknown authority")) {
		t.Error("certificate errors should not be retryable")
	}
	for _, status := range []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout} {
		if !isRetryableStatus(status) {
			t.Errorf("status %d should be retryable", status)
		}
	}
	if isRetryableStatus(http.StatusBadRequest) {
		t.Error("400 should not be retryable")
	}
}
