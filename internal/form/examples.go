package form

import (
	_ "embed"
	"fmt"

	"github.com/bobarin/xvoice/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed examples.yaml
var examplesYAML []byte

// ExampleCount is the fixed number of suggested handles.
const ExampleCount = 4

var examples = mustLoadExamples(examplesYAML)

// Examples returns the suggested handles in display order. The slice is a
// copy; the underlying list never changes.
func Examples() []models.ExampleEntry {
	out := make([]models.ExampleEntry, len(examples))
	copy(out, examples)
	return out
}

// ExampleHandles returns just the handles of Examples.
func ExampleHandles() []string {
	handles := make([]string, len(examples))
	for i, e := range examples {
		handles[i] = e.Handle
	}
	return handles
}

func mustLoadExamples(raw []byte) []models.ExampleEntry {
	entries, err := parseExamples(raw)
	if err != nil {
		panic(err)
	}
	return entries
}

func parseExamples(raw []byte) ([]models.ExampleEntry, error) {
	var entries []models.ExampleEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("form: parse examples: %w", err)
	}
	if len(entries) != ExampleCount {
		return nil, fmt.Errorf("form: expected %d examples, got %d", ExampleCount, len(entries))
	}
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Handle == "" || e.DisplayName == "" {
			return nil, fmt.Errorf("form: example %d is missing handle or name", i)
		}
		if seen[e.Handle] {
			return nil, fmt.Errorf("form: duplicate example handle %q", e.Handle)
		}
		seen[e.Handle] = true
	}
	return entries, nil
}
