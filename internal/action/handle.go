package action

import (
	"regexp"
	"strings"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// NormalizeHandle trims whitespace and a leading @ and validates the result
// against X's username rules.
func NormalizeHandle(raw string) (string, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(raw), "@")
	if !handlePattern.MatchString(handle) {
		return "", userError(msgInvalidHandle, nil)
	}
	return handle, nil
}
