package stage

import (
	"dubber/internal/segments"
	"dubber/internal/services"
)

// ParseSegments parses a job's persisted segment envelope. On failure it
// returns a services.ErrValidation suitable for stage Execute methods.
func ParseSegments(stageName, raw string) (segments.Envelope, error) {
	env, err := segments.Parse(raw)
	if err != nil {
		return segments.Envelope{}, services.Wrap(
			services.ErrValidation, stageName, "parse segments",
			"segment envelope missing or invalid; rerun earlier stages", err)
	}
	return env, nil
}
