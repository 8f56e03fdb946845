package redcap

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from the REDCap API.
type APIError struct {
	Content    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	status := fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message == "" {
		return fmt.Sprintf("redcap %s export failed (%s)", e.Content, status)
	}
	return fmt.Sprintf("redcap %s export failed (%s): %s", e.Content, status, e.Message)
}

func newAPIError(content string, status int, body []byte) *APIError {
	return &APIError{Content: content, StatusCode: status, Message: errorMessage(body)}
}

// errorMessage extracts REDCap's {"error": "..."} payload, falling back to a
// trimmed plain-text body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return strings.TrimSpace(payload.Error)
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
