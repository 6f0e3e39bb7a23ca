package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"solva-wallet/internal/errs"
)

// ValidationDetail is one entry of a 422 response
type ValidationDetail struct {
	Loc  []interface{} `json:"loc"`
	Msg  string        `json:"msg"`
	Type string        `json:"type"`
}

// BackendError is a non-2xx response. It matches errs.ErrBackend, and
// errs.ErrAuthRequired for 401 responses.
type BackendError struct {
	StatusCode int
	Message    string
	Details    []ValidationDetail
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error: status %d: %s", e.StatusCode, e.Detail())
}

// Detail is the human-readable part of the response: the joined 422 messages,
// the plain detail text, or the status text.
func (e *BackendError) Detail() string {
	msg := e.Message
	if len(e.Details) > 0 {
		parts := make([]string, 0, len(e.Details))
		for _, d := range e.Details {
			parts = append(parts, d.Msg)
		}
		msg = strings.Join(parts, "; ")
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return msg
}

func (e *BackendError) Unwrap() error {
	return errs.ErrBackend
}

func (e *BackendError) Is(target error) bool {
	return target == errs.ErrAuthRequired && e.StatusCode == http.StatusUnauthorized
}

// newBackendError builds a BackendError from a response body. FastAPI sends
// either {"detail": "text"} or {"detail": [{loc, msg, type}]}.
func newBackendError(status int, body []byte) *BackendError {
	be := &BackendError{StatusCode: status}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		be.Message = strings.TrimSpace(string(body))
		return be
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		be.Message = text
		return be
	}

	var details []ValidationDetail
	if err := json.Unmarshal(envelope.Detail, &details); err == nil {
		be.Details = details
		return be
	}

	be.Message = string(envelope.Detail)
	return be
}

func malformed(path string, err error) error {
	return fmt.Errorf("%w: malformed response from %s: %v", errs.ErrBackend, path, err)
}

// IsValidation reports whether err is a 422 validation response.
func IsValidation(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.StatusCode == http.StatusUnprocessableEntity
}
