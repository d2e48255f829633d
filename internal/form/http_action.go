package form

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bobarin/xvoice/internal/models"
)

// ActionPath is where the synthesize action is served.
const ActionPath = "/actions/synthesize"

// HTTPAction invokes the synthesize action over HTTP. Network failures and
// non-JSON responses are returned as errors; server-reported failures come back
// inside the result.
type HTTPAction struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Action = (*HTTPAction)(nil)

// NewHTTPAction creates an action client for the server at baseURL.
func NewHTTPAction(baseURL, apiKey string, client *http.Client) *HTTPAction {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAction{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: client,
	}
}

func (a *HTTPAction) Execute(ctx context.Context, req models.ActionRequest) (*models.ActionResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+ActionPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create action request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("X-API-Key", a.apiKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("action request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read action response: %w", err)
	}

	var result models.ActionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("action returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	// Auth and routing failures answer with {"error": ...} rather than an
	// action result.
	if result.Data == nil && result.ServerError == "" {
		return nil, fmt.Errorf("action returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	return &result, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return strings.ToValidUTF8(s[:maxLen], "") + "..."
}
