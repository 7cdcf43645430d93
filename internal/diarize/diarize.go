// Package diarize runs speaker diarization over a job's source asset and
// seeds the segment envelope consumed by the rest of the pipeline.
package diarize

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/queue"
	"dubber/internal/segments"
	"dubber/internal/services"
	"dubber/internal/services/remoteop"
	"dubber/internal/services/replicate"
	"dubber/internal/stage"
)

const stageName = "diarize"

// TranscriptSource supplies the source-language utterance for each diarized
// segment. The default implementation derives dialogue from the segment
// metadata; tests and alternative ingest paths can swap in their own.
type TranscriptSource interface {
	Transcript(ctx context.Context, job *queue.Job, speakers []segments.SpeakerSegment) ([]string, error)
}

// Diarizer identifies speaker turns in the source asset.
type Diarizer struct {
	store       *queue.Store
	cfg         *config.Config
	logger      *slog.Logger
	ops         *remoteop.Client
	transcripts TranscriptSource
}

// NewDiarizer constructs the diarize stage handler using default dependencies.
func NewDiarizer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Diarizer {
	provider := replicate.NewClient(replicate.Config{
		APIToken: cfg.Replicate.APIToken,
		BaseURL:  cfg.Replicate.BaseURL,
		Version:  cfg.Replicate.DiarizationVersion,
	})
	ops := remoteop.NewClient(provider,
		remoteop.WithPollInterval(time.Duration(cfg.Replicate.PollInterval)*time.Second),
		remoteop.WithMaxPollAttempts(cfg.Replicate.MaxPollAttempts),
	)
	return NewDiarizerWithDependencies(cfg, store, logger, ops, ScriptedTranscripts{})
}

// NewDiarizerWithDependencies allows injecting collaborators (used in tests).
func NewDiarizerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, ops *remoteop.Client, transcripts TranscriptSource) *Diarizer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, stageName))
	}
	return &Diarizer{store: store, cfg: cfg, logger: stageLogger, ops: ops, transcripts: transcripts}
}

// Prepare validates that the job references a source asset.
func (d *Diarizer) Prepare(ctx context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.SourceAsset) == "" {
		return services.Wrap(services.ErrValidation, stageName, "prepare", "job has no source asset", nil)
	}
	return nil
}

type diarizationOutput struct {
	Segments []struct {
		Speaker  string  `json:"speaker"`
		Start    float64 `json:"start"`
		End      float64 `json:"end"`
		VoiceTag string  `json:"voice_tag"`
	} `json:"segments"`
}

// Execute submits the diarization prediction and stores the resulting
// speaker segments on the job.
func (d *Diarizer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, d.logger)

	op, err := d.ops.Run(ctx, stageName, map[string]string{"audio": job.SourceAsset})
	if err != nil {
		return err
	}

	var output diarizationOutput
	if err := json.Unmarshal(op.Output, &output); err != nil {
		return services.Wrap(services.ErrProvider, stageName, "decode output", "diarization output unreadable", err)
	}

	speakers := make([]segments.SpeakerSegment, 0, len(output.Segments))
	for _, seg := range output.Segments {
		speakers = append(speakers, segments.SpeakerSegment{
			SpeakerID: seg.Speaker,
			Start:     seg.Start,
			End:       seg.End,
			VoiceTag:  strings.ToLower(strings.TrimSpace(seg.VoiceTag)),
		})
	}
	if err := segments.Validate(speakers); err != nil {
		return services.Wrap(services.ErrProvider, stageName, "validate output", "diarization produced no usable segments", err)
	}
	segments.SortSpeakers(speakers)

	transcript, err := d.transcripts.Transcript(ctx, job, speakers)
	if err != nil {
		return services.Wrap(services.ErrProvider, stageName, "transcript", "transcript source failed", err)
	}
	if len(transcript) != len(speakers) {
		return services.Wrap(services.ErrProvider, stageName, "transcript", "transcript count does not match segment count", nil)
	}
	for i := range speakers {
		speakers[i].Text = transcript[i]
	}

	env := segments.Envelope{Speakers: speakers}
	encoded, err := env.Encode()
	if err != nil {
		return services.Wrap(services.ErrPersistence, stageName, "encode segments", "could not persist segment envelope", err)
	}
	job.SegmentsJSON = encoded

	logger.Info("diarization complete",
		logging.Int("segments", len(speakers)),
		logging.String("operation_id", op.ID),
	)
	return nil
}

// HealthCheck verifies the diarization provider is configured.
func (d *Diarizer) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(d.cfg.Replicate.APIToken) == "" {
		return stage.Unhealthy(stageName, "replicate api token not configured")
	}
	if strings.TrimSpace(d.cfg.Replicate.DiarizationVersion) == "" {
		return stage.Unhealthy(stageName, "diarization model version not configured")
	}
	return stage.Healthy(stageName)
}
