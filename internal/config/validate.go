package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir is required")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir is required")
	}

	switch c.Translation.Policy {
	case PolicyStrict, PolicyResilient:
	default:
		return fmt.Errorf("translation.policy: unsupported value %q (expected %q or %q)",
			c.Translation.Policy, PolicyStrict, PolicyResilient)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (expected \"text\" or \"json\")", c.Logging.Format)
	}

	if c.Voices.Default == "" {
		return errors.New("voices.default is required")
	}

	if c.Replicate.MaxPollAttempts < 1 {
		return errors.New("replicate.max_poll_attempts must be at least 1")
	}
	if c.Replicate.PollInterval < 1 {
		return errors.New("replicate.poll_interval must be at least 1 second")
	}

	return nil
}
