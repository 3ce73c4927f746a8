package extract

import (
	"errors"
	"fmt"
)

// Common errors returned by the extraction client.
var (
	// ErrEmptyContent is returned when there is nothing to extract from.
	ErrEmptyContent = errors.New("empty page content")

	// ErrEmptyResponse is returned when the model response carries no choices.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrMalformedOutput is returned when the model output is not a JSON array of objects.
	ErrMalformedOutput = errors.New("malformed extraction output")
)

// APIError is a non-200 response from the completion endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error (status %d): %s", e.StatusCode, e.Message)
}
