package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

// APIError is an error rendered to API clients with a stable code.
type APIError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

// NewAPIError builds an APIError; err is kept for errors.Is and logs only.
func NewAPIError(status int, code, message string, err error) *APIError {
	return &APIError{Status: status, Code: code, Message: message, Err: err}
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as {"error":{"code":...,"message":...}}. Anything that is not
// an *APIError is reported as a 500.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = NewAPIError(http.StatusInternalServerError, "INTERNAL", err.Error(), err)
	}
	WriteJSON(w, apiErr.Status, map[string]errorBody{
		"error": {Code: apiErr.Code, Message: apiErr.Message},
	})
}
