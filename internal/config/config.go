package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Replicate contains configuration for the asynchronous prediction provider
// used by the diarization and resync stages.
type Replicate struct {
	APIToken           string `toml:"api_token"`
	BaseURL            string `toml:"base_url"`
	DiarizationVersion string `toml:"diarization_version"`
	LipsyncVersion     string `toml:"lipsync_version"`
	PollInterval       int    `toml:"poll_interval"`
	MaxPollAttempts    int    `toml:"max_poll_attempts"`
}

// OpenAI contains configuration for translation and the TTS fallback.
type OpenAI struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TTSModel       string `toml:"tts_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ElevenLabs contains configuration for the primary voice synthesis provider.
type ElevenLabs struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	ModelID string `toml:"model_id"`
}

// Voices maps diarization voice descriptor tags to provider voice identifiers.
// The mapping must be total: unrecognized tags fall back to Default.
type Voices struct {
	Default string            `toml:"default"`
	Presets map[string]string `toml:"presets"`
}

// TranslationPolicy selects how per-utterance translation failures are handled.
type TranslationPolicy string

const (
	// PolicyStrict aborts the translation stage on the first failed utterance.
	PolicyStrict TranslationPolicy = "strict"
	// PolicyResilient falls back to the source text for a failed utterance
	// and continues with the rest.
	PolicyResilient TranslationPolicy = "resilient"
)

// Translation contains configuration for the translation stage.
type Translation struct {
	Policy      TranslationPolicy `toml:"policy"`
	Concurrency int               `toml:"concurrency"`
}

// Synthesis contains configuration for the voice synthesis stage.
type Synthesis struct {
	Concurrency int `toml:"concurrency"`
}

// Storage contains configuration for presigned S3 upload/download access.
type Storage struct {
	Region               string `toml:"region"`
	Bucket               string `toml:"bucket"`
	AccessKeyID          string `toml:"access_key_id"`
	SecretAccessKey      string `toml:"secret_access_key"`
	Endpoint             string `toml:"endpoint"`
	UploadPrefix         string `toml:"upload_prefix"`
	PresignExpirySeconds int    `toml:"presign_expiry_seconds"`
}

// Notifications contains configuration for job lifecycle event publishing.
type Notifications struct {
	NATSURL string `toml:"nats_url"`
	Subject string `toml:"subject"`
}

// Workflow contains configuration for orchestrator timing and concurrency.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	JobWorkers         int `toml:"job_workers"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the dubbing service.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Replicate: async prediction provider (diarization, lip resync)
//   - OpenAI: translation model and TTS fallback
//   - ElevenLabs: primary voice synthesis provider
//   - Voices: voice descriptor tag to provider voice mapping
//   - Translation/Synthesis: stage policy and concurrency limits
//   - Storage: S3 presigned upload/download settings
//   - Notifications: NATS job lifecycle events
//   - Workflow: orchestrator polling intervals and worker count
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Replicate     Replicate     `toml:"replicate"`
	OpenAI        OpenAI        `toml:"openai"`
	ElevenLabs    ElevenLabs    `toml:"elevenlabs"`
	Voices        Voices        `toml:"voices"`
	Translation   Translation   `toml:"translation"`
	Synthesis     Synthesis     `toml:"synthesis"`
	Storage       Storage       `toml:"storage"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dubber/config.toml")
}

// Load locates, parses, and validates a configuration file. Secrets may be
// supplied through the environment (optionally via a .env file) and take
// precedence over file values. The returned config has all path fields
// expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	// Optional .env alongside the process; real env vars still win.
	_ = godotenv.Load()
	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"REPLICATE_API_TOKEN", &c.Replicate.APIToken},
		{"OPENAI_API_KEY", &c.OpenAI.APIKey},
		{"ELEVENLABS_API_KEY", &c.ElevenLabs.APIKey},
		{"AWS_ACCESS_KEY_ID", &c.Storage.AccessKeyID},
		{"AWS_SECRET_ACCESS_KEY", &c.Storage.SecretAccessKey},
		{"NATS_URL", &c.Notifications.NATSURL},
	}
	for _, o := range overrides {
		if value := strings.TrimSpace(os.Getenv(o.env)); value != "" {
			*o.target = value
		}
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dubber.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// VoiceFor resolves a voice descriptor tag to a provider voice identifier,
// falling back to the configured default for unrecognized tags.
func (c *Config) VoiceFor(tag string) string {
	normalized := strings.ToLower(strings.TrimSpace(tag))
	if voice, ok := c.Voices.Presets[normalized]; ok && strings.TrimSpace(voice) != "" {
		return voice
	}
	return c.Voices.Default
}
