package frappe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError is a non-2xx reply from a Frappe method.
type APIError struct {
	Method     string
	StatusCode int
	ExcType    string   // e.g. "ValidationError", "PermissionError"
	Exception  string   // "frappe.exceptions.ValidationError: ..." when present
	Messages   []string // decoded _server_messages
}

func (e *APIError) Error() string {
	msg := e.Message()
	if e.ExcType != "" {
		return fmt.Sprintf("%s: %s: %s", e.Method, e.ExcType, msg)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Method, e.StatusCode, msg)
}

// Message returns the most user-facing text the server sent.
func (e *APIError) Message() string {
	if len(e.Messages) > 0 {
		return strings.Join(e.Messages, "; ")
	}
	if e.Exception != "" {
		if i := strings.Index(e.Exception, ": "); i >= 0 {
			return e.Exception[i+2:]
		}
		return e.Exception
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// AsAPIError unwraps err into an *APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// parseServerMessages decodes the doubly-encoded _server_messages field:
// a JSON string holding an array of JSON-encoded {"message": ...} objects.
func parseServerMessages(raw string) []string {
	if raw == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return []string{raw}
	}
	msgs := make([]string, 0, len(items))
	for _, item := range items {
		var m struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(item), &m); err == nil && m.Message != "" {
			msgs = append(msgs, stripTags(m.Message))
			continue
		}
		msgs = append(msgs, stripTags(item))
	}
	return msgs
}

// stripTags drops the simple HTML markup frappe.throw messages often carry.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
