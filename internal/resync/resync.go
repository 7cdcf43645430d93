// Package resync aligns the dubbed audio track with the source video's lip
// movements and produces the final output asset.
package resync

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

const stageName = "resync"

// Resyncer submits the lip resync prediction built from the synthesized
// clips.
type Resyncer struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	ops    *remoteop.Client
}

// NewResyncer constructs the resync stage handler using default dependencies.
func NewResyncer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Resyncer {
	provider := replicate.NewClient(replicate.Config{
		APIToken: cfg.Replicate.APIToken,
		BaseURL:  cfg.Replicate.BaseURL,
		Version:  cfg.Replicate.LipsyncVersion,
	})
	ops := remoteop.NewClient(provider,
		remoteop.WithPollInterval(time.Duration(cfg.Replicate.PollInterval)*time.Second),
		remoteop.WithMaxPollAttempts(cfg.Replicate.MaxPollAttempts),
	)
	return NewResyncerWithDependencies(cfg, store, logger, ops)
}

// NewResyncerWithDependencies allows injecting collaborators (used in tests).
func NewResyncerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, ops *remoteop.Client) *Resyncer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, stageName))
	}
	return &Resyncer{store: store, cfg: cfg, logger: stageLogger, ops: ops}
}

// Prepare validates the job carries synthesized clips.
func (r *Resyncer) Prepare(ctx context.Context, job *queue.Job) error {
	env, err := stage.ParseSegments(stageName, job.SegmentsJSON)
	if err != nil {
		return err
	}
	if len(env.Synthesized) == 0 {
		return services.Wrap(services.ErrValidation, stageName, "prepare", "no synthesized clips to align", nil)
	}
	return nil
}

type resyncClip struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Audio string  `json:"audio"`
}

type resyncInput struct {
	Video string       `json:"video"`
	Clips []resyncClip `json:"clips"`
}

// Execute submits the resync prediction and records the final output asset
// on the job.
func (r *Resyncer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, r.logger)

	env, err := stage.ParseSegments(stageName, job.SegmentsJSON)
	if err != nil {
		return err
	}

	// Alignment depends on clips arriving in playback order.
	segments.SortSynthesized(env.Synthesized)

	input := resyncInput{Video: job.SourceAsset, Clips: make([]resyncClip, 0, len(env.Synthesized))}
	for _, seg := range env.Synthesized {
		input.Clips = append(input.Clips, resyncClip{Start: seg.Start, End: seg.End, Audio: seg.AudioAsset})
	}

	op, err := r.ops.Run(ctx, stageName, input)
	if err != nil {
		return err
	}

	output, err := decodeOutput(op.Output)
	if err != nil {
		return services.Wrap(services.ErrProvider, stageName, "decode output", "resync output unreadable", err)
	}
	if output == "" {
		return services.Wrap(services.ErrProvider, stageName, "decode output", "resync produced no output asset", nil)
	}
	job.OutputAsset = output

	encoded, err := env.Encode()
	if err != nil {
		return services.Wrap(services.ErrPersistence, stageName, "encode segments", "could not persist segment envelope", err)
	}
	job.SegmentsJSON = encoded

	logger.Info("resync complete",
		logging.Int("clips", len(input.Clips)),
		logging.String("operation_id", op.ID),
		logging.String("output_asset", output),
	)
	return nil
}

// decodeOutput accepts the two shapes the lipsync model is known to emit: a
// bare URL string or an object with a video field.
func decodeOutput(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString), nil
	}
	var asObject struct {
		Video string `json:"video"`
	}
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return "", err
	}
	return strings.TrimSpace(asObject.Video), nil
}

// HealthCheck verifies the resync provider is configured.
func (r *Resyncer) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(r.cfg.Replicate.APIToken) == "" {
		return stage.Unhealthy(stageName, "replicate api token not configured")
	}
	if strings.TrimSpace(r.cfg.Replicate.LipsyncVersion) == "" {
		return stage.Unhealthy(stageName, "lipsync model version not configured")
	}
	return stage.Healthy(stageName)
}
