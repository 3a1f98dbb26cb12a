package api

import (
	"errors"
	"fmt"
)

// ErrIncompleteSubmission is returned before any request is made when a
// required field is empty.
var ErrIncompleteSubmission = errors.New("body, user name and avatar url are required")

// ErrInvalidAvatarURL is returned before any request is made when the avatar
// URL is not an absolute http or https URL. The server would silently drop
// such a submission.
var ErrInvalidAvatarURL = errors.New("invalid avatar url")

// APIError is a structured error returned by the HTTP API.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status > 0 {
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return "api error"
}
