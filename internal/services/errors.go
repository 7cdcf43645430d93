package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed or missing input rejected before any
	// provider work happens.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing credentials or settings a stage needs.
	ErrConfiguration = errors.New("configuration error")
	// ErrProvider marks a provider that rejected input or produced an
	// unusable result.
	ErrProvider = errors.New("provider error")
	// ErrOperationFailed marks a remote operation the provider explicitly
	// reported as failed.
	ErrOperationFailed = errors.New("operation failed")
	// ErrOperationTimeout marks a remote operation that never reached a
	// terminal state within its poll budget.
	ErrOperationTimeout = errors.New("operation timeout")
	// ErrPersistence marks a job store write or read that could not complete.
	ErrPersistence = errors.New("persistence error")
	// ErrCanceled marks work abandoned because the job context was canceled.
	ErrCanceled = errors.New("canceled")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrProvider
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify returns a short machine-readable kind for a stage error, used in
// structured logs and job records.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrOperationTimeout):
		return "operation_timeout"
	case errors.Is(err, ErrOperationFailed):
		return "operation_failed"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrProvider):
		return "provider"
	default:
		return "internal"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
