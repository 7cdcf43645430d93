// Package synthesize generates target-language speech for every translated
// utterance.
package synthesize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/queue"
	"dubber/internal/segments"
	"dubber/internal/services"
	"dubber/internal/services/elevenlabs"
	"dubber/internal/services/openai"
	"dubber/internal/services/remoteop"
	"dubber/internal/stage"
)

const stageName = "synthesize"

// openAIFallbackVoice is used for every clip routed through the fallback
// provider, which has its own fixed voice roster.
const openAIFallbackVoice = "alloy"

// Synthesizer voices translated utterances. ElevenLabs is the primary
// provider; per-clip failures fall back to OpenAI speech before the stage
// gives up.
type Synthesizer struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	primary  *remoteop.Client
	fallback *remoteop.Client
	sink     AudioSink
}

// NewSynthesizer constructs the synthesize stage handler using default dependencies.
func NewSynthesizer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Synthesizer {
	primary := remoteop.NewClient(elevenlabs.NewSpeechProvider(elevenlabs.NewClient(elevenlabs.Config{
		APIKey:  cfg.ElevenLabs.APIKey,
		BaseURL: cfg.ElevenLabs.BaseURL,
		ModelID: cfg.ElevenLabs.ModelID,
	})))
	fallback := remoteop.NewClient(openai.NewSpeechProvider(openai.NewClient(openai.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		Model:          cfg.OpenAI.Model,
		TTSModel:       cfg.OpenAI.TTSModel,
		TimeoutSeconds: cfg.OpenAI.TimeoutSeconds,
	})))
	return NewSynthesizerWithDependencies(cfg, store, logger, primary, fallback, NewDirSink(cfg))
}

// NewSynthesizerWithDependencies allows injecting collaborators (used in tests).
func NewSynthesizerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, primary, fallback *remoteop.Client, sink AudioSink) *Synthesizer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, stageName))
	}
	return &Synthesizer{store: store, cfg: cfg, logger: stageLogger, primary: primary, fallback: fallback, sink: sink}
}

// Prepare validates the job carries translated segments.
func (s *Synthesizer) Prepare(ctx context.Context, job *queue.Job) error {
	env, err := stage.ParseSegments(stageName, job.SegmentsJSON)
	if err != nil {
		return err
	}
	if len(env.Translated) == 0 {
		return services.Wrap(services.ErrValidation, stageName, "prepare", "no translated segments to voice", nil)
	}
	return nil
}

// Execute voices every translated segment and extends the segment envelope.
func (s *Synthesizer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)

	env, err := stage.ParseSegments(stageName, job.SegmentsJSON)
	if err != nil {
		return err
	}

	synthesized := make([]segments.SynthesizedSegment, len(env.Translated))
	concurrency := s.cfg.Synthesis.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		fallbacks int
	)
	sem := make(chan struct{}, concurrency)

	for i, seg := range env.Translated {
		if runCtx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, seg segments.TranslatedSegment) {
			defer wg.Done()
			defer func() { <-sem }()

			asset, usedFallback, err := s.voiceOne(runCtx, job, i, seg, logger)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			if usedFallback {
				fallbacks++
			}
			synthesized[i] = segments.SynthesizedSegment{TranslatedSegment: seg, AudioAsset: asset}
		}(i, seg)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCanceled, stageName, "execute", "synthesis interrupted", err)
	}

	env.Synthesized = synthesized
	encoded, err := env.Encode()
	if err != nil {
		return services.Wrap(services.ErrPersistence, stageName, "encode segments", "could not persist segment envelope", err)
	}
	job.SegmentsJSON = encoded

	logger.Info("synthesis complete",
		logging.Int("segments", len(synthesized)),
		logging.Int("fallbacks", fallbacks),
	)
	return nil
}

func (s *Synthesizer) voiceOne(ctx context.Context, job *queue.Job, index int, seg segments.TranslatedSegment, logger *slog.Logger) (string, bool, error) {
	voice := s.cfg.VoiceFor(seg.VoiceTag)
	clipName := fmt.Sprintf("segment-%03d.mp3", index)

	audio, primaryErr := s.speak(ctx, s.primary, elevenlabs.SpeechRequest{Text: seg.TranslatedText, Voice: voice})
	if primaryErr == nil {
		asset, err := s.sink.Save(ctx, job.ID, clipName, audio)
		if err != nil {
			return "", false, services.Wrap(services.ErrPersistence, stageName, "store clip", "could not store synthesized audio", err)
		}
		return asset, false, nil
	}
	if ctx.Err() != nil {
		return "", false, primaryErr
	}

	logger.Warn("primary synthesis failed, trying fallback",
		logging.String("speaker", seg.SpeakerID),
		logging.Error(primaryErr),
	)

	audio, fallbackErr := s.speak(ctx, s.fallback, openai.SpeechRequest{Text: seg.TranslatedText, Voice: openAIFallbackVoice})
	if fallbackErr != nil {
		return "", false, fallbackErr
	}
	asset, err := s.sink.Save(ctx, job.ID, clipName, audio)
	if err != nil {
		return "", false, services.Wrap(services.ErrPersistence, stageName, "store clip", "could not store synthesized audio", err)
	}
	return asset, true, nil
}

func (s *Synthesizer) speak(ctx context.Context, ops *remoteop.Client, payload any) ([]byte, error) {
	op, err := ops.Run(ctx, stageName, payload)
	if err != nil {
		return nil, err
	}
	var result elevenlabs.SpeechResult
	if err := json.Unmarshal(op.Output, &result); err != nil {
		return nil, services.Wrap(services.ErrProvider, stageName, "decode output", "speech output unreadable", err)
	}
	audio, err := result.Audio()
	if err != nil {
		return nil, services.Wrap(services.ErrProvider, stageName, "decode output", "speech audio not base64", err)
	}
	return audio, nil
}

// HealthCheck verifies at least the primary synthesis provider is configured.
func (s *Synthesizer) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(s.cfg.ElevenLabs.APIKey) == "" {
		return stage.Unhealthy(stageName, "elevenlabs api key not configured")
	}
	if strings.TrimSpace(s.cfg.Voices.Default) == "" {
		return stage.Unhealthy(stageName, "default voice not configured")
	}
	return stage.Healthy(stageName)
}
