package queue

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestJobEncoding(t *testing.T) {
	job := &Job{
		ID:        uuid.MustParse("0b6f3d52-4f0e-4c55-9e43-5d0c2b2f7a11"),
		Handle:    "jack",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := encodeJob(job)
	if err != nil {
		t.Fatalf("encodeJob: %v", err)
	}
	if !strings.Contains(string(data), `"handle":"jack"`) {
		t.Errorf("encoded job = %s", data)
	}

	got, err := decodeJob(string(data))
	if err != nil {
		t.Fatalf("decodeJob: %v", err)
	}
	if diff := cmp.Diff(job, got); diff != "" {
		t.Errorf("job mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeJobRejectsBadPayloads(t *testing.T) {
	for _, raw := range []string{"not json", `{"id":"0b6f3d52-4f0e-4c55-9e43-5d0c2b2f7a11"}`} {
		if _, err := decodeJob(raw); err == nil {
			t.Errorf("decodeJob(%q) succeeded, want error", raw)
		}
	}
}
