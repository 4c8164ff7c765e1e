// ABOUTME: Error type for non-2xx Bot Framework connector responses
// ABOUTME: Parses the {"error":{"code","message"}} envelope when present

package connector

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is returned when the connector answers with a non-2xx status.
type APIError struct {
	// StatusCode is the HTTP response status code.
	StatusCode int

	// Code and Message come from the error envelope, when the body has one.
	Code    string
	Message string

	// Body is the raw response body, truncated to maxErrorBody bytes.
	Body string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "connector: HTTP %d", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	} else if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

const maxErrorBody = 4096

func parseAPIError(statusCode int, body []byte) *APIError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	apiErr := &APIError{StatusCode: statusCode, Body: strings.TrimSpace(string(body))}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}
