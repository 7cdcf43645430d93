// Package translate renders diarized utterances into the job's target
// language.
package translate

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/queue"
	"dubber/internal/segments"
	"dubber/internal/services"
	"dubber/internal/services/openai"
	"dubber/internal/services/remoteop"
	"dubber/internal/stage"
)

const stageName = "translate"

// Translator renders each utterance into the target language. Per-utterance
// failures are handled according to the configured policy: strict aborts the
// stage, resilient keeps the source text for the failed utterance and
// continues.
type Translator struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	ops    *remoteop.Client
}

// NewTranslator constructs the translate stage handler using default dependencies.
func NewTranslator(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Translator {
	client := openai.NewClient(openai.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		Model:          cfg.OpenAI.Model,
		TTSModel:       cfg.OpenAI.TTSModel,
		TimeoutSeconds: cfg.OpenAI.TimeoutSeconds,
	})
	ops := remoteop.NewClient(openai.NewTranslationProvider(client))
	return NewTranslatorWithDependencies(cfg, store, logger, ops)
}

// NewTranslatorWithDependencies allows injecting collaborators (used in tests).
func NewTranslatorWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, ops *remoteop.Client) *Translator {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, stageName))
	}
	return &Translator{store: store, cfg: cfg, logger: stageLogger, ops: ops}
}

// Prepare validates the job carries diarized segments and a target language.
func (t *Translator) Prepare(ctx context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.TargetLanguage) == "" {
		return services.Wrap(services.ErrValidation, stageName, "prepare", "job has no target language", nil)
	}
	env, err := stage.ParseSegments(stageName, job.SegmentsJSON)
	if err != nil {
		return err
	}
	if len(env.Speakers) == 0 {
		return services.Wrap(services.ErrValidation, stageName, "prepare", "no diarized segments to translate", nil)
	}
	return nil
}

// Execute translates every utterance and extends the segment envelope.
func (t *Translator) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, t.logger)

	env, err := stage.ParseSegments(stageName, job.SegmentsJSON)
	if err != nil {
		return err
	}

	translated := make([]segments.TranslatedSegment, len(env.Speakers))
	concurrency := t.cfg.Translation.Concurrency
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

	for i, seg := range env.Speakers {
		if runCtx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, seg segments.SpeakerSegment) {
			defer wg.Done()
			defer func() { <-sem }()

			text, err := t.translateOne(runCtx, seg.Text, job.TargetLanguage)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if t.cfg.Translation.Policy == config.PolicyStrict {
					if firstErr == nil {
						firstErr = err
						cancel()
					}
					return
				}
				logger.Warn("utterance translation failed, keeping source text",
					logging.String("speaker", seg.SpeakerID),
					logging.Error(err),
				)
				fallbacks++
				text = seg.Text
			}
			translated[i] = segments.TranslatedSegment{
				SpeakerSegment: seg,
				SourceText:     seg.Text,
				TranslatedText: text,
			}
		}(i, seg)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCanceled, stageName, "execute", "translation interrupted", err)
	}

	env.Translated = translated
	encoded, err := env.Encode()
	if err != nil {
		return services.Wrap(services.ErrPersistence, stageName, "encode segments", "could not persist segment envelope", err)
	}
	job.SegmentsJSON = encoded

	logger.Info("translation complete",
		logging.Int("segments", len(translated)),
		logging.Int("fallbacks", fallbacks),
		logging.String("target_language", job.TargetLanguage),
	)
	return nil
}

func (t *Translator) translateOne(ctx context.Context, text, targetLanguage string) (string, error) {
	op, err := t.ops.Run(ctx, stageName, openai.TranslationRequest{Text: text, TargetLanguage: targetLanguage})
	if err != nil {
		return "", err
	}
	var result openai.TranslationResult
	if err := json.Unmarshal(op.Output, &result); err != nil {
		return "", services.Wrap(services.ErrProvider, stageName, "decode output", "translation output unreadable", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return "", services.Wrap(services.ErrProvider, stageName, "decode output", "provider returned an empty translation", nil)
	}
	return result.Text, nil
}

// HealthCheck verifies the translation provider is configured and reachable.
func (t *Translator) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(t.cfg.OpenAI.APIKey) == "" {
		return stage.Unhealthy(stageName, "openai api key not configured")
	}
	type healthChecker interface{ HealthCheck(context.Context) error }
	if checker, ok := t.ops.Provider().(healthChecker); ok {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := checker.HealthCheck(checkCtx); err != nil {
			return stage.Unhealthy(stageName, err.Error())
		}
	}
	return stage.Healthy(stageName)
}
