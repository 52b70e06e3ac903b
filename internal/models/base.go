package models

import (
	"github.com/google/uuid"
)

// NewID generates a new globally unique identifier for a Queue or Task.
func NewID() string {
	return uuid.New().String()
}

// ErrorResponse represents a general error response returned by the Control API.
type ErrorResponse struct {
	Error            string            `json:"error"`
	Details          string            `json:"details,omitempty"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
}

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}
