// Package config loads, normalizes, and validates the TOML configuration for
// the dubbing service, layering environment-supplied secrets over file values.
package config
