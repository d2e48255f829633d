package form

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bobarin/xvoice/internal/models"
)

func TestHTTPActionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ActionPath {
			t.Errorf("path = %q, want %q", r.URL.Path, ActionPath)
		}
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("X-API-Key = %q", r.Header.Get("X-API-Key"))
		}
		var req models.ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(models.ActionResult{Data: &models.VoiceResult{Handle: req.Handle}})
	}))
	defer srv.Close()

	a := NewHTTPAction(srv.URL+"/", "secret", srv.Client())
	result, err := a.Execute(context.Background(), models.ActionRequest{Handle: "jo"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Data == nil || result.Data.Handle != "jo" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestHTTPActionServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"serverError":"profile not found"}`))
	}))
	defer srv.Close()

	result, err := NewHTTPAction(srv.URL, "", srv.Client()).Execute(context.Background(), models.ActionRequest{Handle: "jo"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ServerError != "profile not found" {
		t.Errorf("ServerError = %q", result.ServerError)
	}
}

func TestHTTPActionTransportFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"gateway html", http.StatusBadGateway, "<html>bad gateway</html>", "status 502"},
		{"auth error", http.StatusUnauthorized, `{"error":"Missing API key"}`, "status 401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPAction(srv.URL, "", srv.Client()).Execute(context.Background(), models.ActionRequest{Handle: "jo"})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPActionConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	notifier := &recordingNotifier{}
	c := NewController(NewHTTPAction(url, "", nil), notifier)
	c.SetHandle("jo")
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	msgs := notifier.messages()
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0], "An unexpected error occurred: action request failed") {
		t.Errorf("unexpected notifications: %v", msgs)
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	body := strings.Repeat("é", 150) // 300 bytes

	got := truncate(body, 199)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("é", 99) + "..."; got != want {
		t.Errorf("truncate = %q, want %q", got, want)
	}
	if got := truncate("short", 200); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
}
