package spotify

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
)

// APIError is a non-success response from the Web API.
type APIError struct {
	StatusCode int
	// Message is the provider's error message, or the status text when the body
	// carries no Spotify error object.
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API error %d: %s", e.StatusCode, e.Message)
}

// newAPIError decodes Spotify's {"error":{"status":..,"message":..}} payload.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Message:    http.StatusText(status),
		Body:       body,
	}

	var payload struct {
		Error spotify.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		apiErr.Message = payload.Error.Message
	}

	return apiErr
}
