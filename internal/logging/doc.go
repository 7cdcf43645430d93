// Package logging centralizes slog construction and the standardized
// structured field keys used across the pipeline.
package logging
