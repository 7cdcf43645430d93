package config

const (
	defaultDataDir = "~/.local/share/dubber"
	defaultLogDir  = "~/.local/share/dubber/logs"
	defaultAPIBind = "127.0.0.1:7602"

	defaultReplicateBaseURL     = "https://api.replicate.com/v1"
	defaultReplicatePollSeconds = 5
	defaultReplicateMaxPolls    = 30

	defaultOpenAIBaseURL        = "https://api.openai.com/v1"
	defaultOpenAIModel          = "gpt-4o-mini"
	defaultOpenAITTSModel       = "gpt-4o-mini-tts"
	defaultOpenAITimeoutSeconds = 60

	defaultElevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	defaultElevenLabsModelID = "eleven_multilingual_v2"

	defaultVoice = "Adam"

	defaultTranslationConcurrency = 2
	defaultSynthesisConcurrency   = 2

	defaultUploadPrefix  = "uploads"
	defaultPresignExpiry = 300

	defaultNotifySubject = "dubber.jobs"

	defaultQueuePollInterval  = 3
	defaultErrorRetryInterval = 10
	defaultJobWorkers         = 4

	defaultLogFormat = "text"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Replicate: Replicate{
			BaseURL:         defaultReplicateBaseURL,
			PollInterval:    defaultReplicatePollSeconds,
			MaxPollAttempts: defaultReplicateMaxPolls,
		},
		OpenAI: OpenAI{
			BaseURL:        defaultOpenAIBaseURL,
			Model:          defaultOpenAIModel,
			TTSModel:       defaultOpenAITTSModel,
			TimeoutSeconds: defaultOpenAITimeoutSeconds,
		},
		ElevenLabs: ElevenLabs{
			BaseURL: defaultElevenLabsBaseURL,
			ModelID: defaultElevenLabsModelID,
		},
		Voices: Voices{
			Default: defaultVoice,
			Presets: map[string]string{
				"adult-male":     "Adam",
				"adult-female":   "Bella",
				"child":          "Charlie",
				"elderly-female": "Dorothy",
			},
		},
		Translation: Translation{
			Policy:      PolicyResilient,
			Concurrency: defaultTranslationConcurrency,
		},
		Synthesis: Synthesis{
			Concurrency: defaultSynthesisConcurrency,
		},
		Storage: Storage{
			UploadPrefix:         defaultUploadPrefix,
			PresignExpirySeconds: defaultPresignExpiry,
		},
		Notifications: Notifications{
			Subject: defaultNotifySubject,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			JobWorkers:         defaultJobWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
