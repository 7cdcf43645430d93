package testsupport

import (
	"path/filepath"
	"testing"

	"dubber/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Replicate.APIToken = "test"
	cfgVal.Replicate.DiarizationVersion = "diarize-test-version"
	cfgVal.Replicate.LipsyncVersion = "lipsync-test-version"
	cfgVal.OpenAI.APIKey = "test"
	cfgVal.ElevenLabs.APIKey = "test"
	cfgVal.Storage.Bucket = "test-bucket"
	cfgVal.Storage.AccessKeyID = "test"
	cfgVal.Storage.SecretAccessKey = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTranslationPolicy overrides the translation failure policy.
func WithTranslationPolicy(policy config.TranslationPolicy) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Translation.Policy = policy
	}
}

// WithVoicePreset adds or replaces a voice descriptor mapping.
func WithVoicePreset(tag, voice string) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Voices.Presets == nil {
			b.cfg.Voices.Presets = make(map[string]string)
		}
		b.cfg.Voices.Presets[tag] = voice
	}
}

// WithJobWorkers overrides the orchestrator worker count.
func WithJobWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.JobWorkers = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
