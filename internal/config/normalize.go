package config

import "strings"

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.DataDir, &c.Paths.LogDir} {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)

	c.Replicate.APIToken = strings.TrimSpace(c.Replicate.APIToken)
	c.Replicate.BaseURL = strings.TrimRight(strings.TrimSpace(c.Replicate.BaseURL), "/")
	c.Replicate.DiarizationVersion = strings.TrimSpace(c.Replicate.DiarizationVersion)
	c.Replicate.LipsyncVersion = strings.TrimSpace(c.Replicate.LipsyncVersion)
	if c.Replicate.PollInterval <= 0 {
		c.Replicate.PollInterval = defaultReplicatePollSeconds
	}
	if c.Replicate.MaxPollAttempts <= 0 {
		c.Replicate.MaxPollAttempts = defaultReplicateMaxPolls
	}

	c.OpenAI.APIKey = strings.TrimSpace(c.OpenAI.APIKey)
	c.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAI.BaseURL), "/")
	c.OpenAI.Model = strings.TrimSpace(c.OpenAI.Model)
	c.OpenAI.TTSModel = strings.TrimSpace(c.OpenAI.TTSModel)
	if c.OpenAI.TimeoutSeconds <= 0 {
		c.OpenAI.TimeoutSeconds = defaultOpenAITimeoutSeconds
	}

	c.ElevenLabs.APIKey = strings.TrimSpace(c.ElevenLabs.APIKey)
	c.ElevenLabs.BaseURL = strings.TrimRight(strings.TrimSpace(c.ElevenLabs.BaseURL), "/")
	c.ElevenLabs.ModelID = strings.TrimSpace(c.ElevenLabs.ModelID)

	c.Voices.Default = strings.TrimSpace(c.Voices.Default)
	if c.Voices.Default == "" {
		c.Voices.Default = defaultVoice
	}
	normalized := make(map[string]string, len(c.Voices.Presets))
	for tag, voice := range c.Voices.Presets {
		tag = strings.ToLower(strings.TrimSpace(tag))
		voice = strings.TrimSpace(voice)
		if tag == "" || voice == "" {
			continue
		}
		normalized[tag] = voice
	}
	c.Voices.Presets = normalized

	c.Translation.Policy = TranslationPolicy(strings.ToLower(strings.TrimSpace(string(c.Translation.Policy))))
	if c.Translation.Policy == "" {
		c.Translation.Policy = PolicyResilient
	}
	if c.Translation.Concurrency <= 0 {
		c.Translation.Concurrency = defaultTranslationConcurrency
	}
	if c.Synthesis.Concurrency <= 0 {
		c.Synthesis.Concurrency = defaultSynthesisConcurrency
	}

	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.UploadPrefix = strings.Trim(strings.TrimSpace(c.Storage.UploadPrefix), "/")
	if c.Storage.UploadPrefix == "" {
		c.Storage.UploadPrefix = defaultUploadPrefix
	}
	if c.Storage.PresignExpirySeconds <= 0 {
		c.Storage.PresignExpirySeconds = defaultPresignExpiry
	}

	c.Notifications.NATSURL = strings.TrimSpace(c.Notifications.NATSURL)
	c.Notifications.Subject = strings.TrimSpace(c.Notifications.Subject)
	if c.Notifications.Subject == "" {
		c.Notifications.Subject = defaultNotifySubject
	}

	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.JobWorkers <= 0 {
		c.Workflow.JobWorkers = defaultJobWorkers
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	return nil
}
