package proplens

import "errors"

var (
	// ErrExtractionFailed is returned when source text cannot be read or parsed.
	ErrExtractionFailed = errors.New("proplens: extraction failed")

	// ErrUnsupportedFormat is returned for unrecognized document formats.
	ErrUnsupportedFormat = errors.New("proplens: unsupported document format")

	// ErrEmbeddingFailed is returned when the embedding collaborator fails.
	ErrEmbeddingFailed = errors.New("proplens: embedding generation failed")

	// ErrCompletionFailed is returned when the completion collaborator fails.
	ErrCompletionFailed = errors.New("proplens: completion request failed")

	// ErrValidationFailed marks structured-extraction domain check failures.
	// Recorded as warnings on the ingestion result, never fatal.
	ErrValidationFailed = errors.New("proplens: extracted data failed validation")

	// ErrTaskNotFound is returned when a task id has no record.
	ErrTaskNotFound = errors.New("proplens: task not found")

	// ErrNoResults is returned when retrieval yields no candidate chunks.
	ErrNoResults = errors.New("proplens: no results found")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("proplens: invalid configuration")
)
