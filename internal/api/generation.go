package api

import (
	"errors"
	"fmt"
)

// Codes a failed answer generation surfaces to HTTP callers.
const (
	GenerationCodeTimeout     = "llm_timeout"
	GenerationCodeUnavailable = "llm_unavailable"
	GenerationCodeError       = "llm_error"
)

// GenerationError maps a model failure onto the status a caller should return.
type GenerationError struct {
	Status int
	Code   string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// AsGenerationError extracts a *GenerationError from err.
func AsGenerationError(err error) (*GenerationError, bool) {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr, true
	}
	return nil, false
}
