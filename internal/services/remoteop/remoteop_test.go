package remoteop_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"dubber/internal/services"
	"dubber/internal/services/remoteop"
)

type scriptedProvider struct {
	name      string
	submitOp  remoteop.Operation
	submitErr error
	polls     []remoteop.Operation
	pollErr   error
	pollCount int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Submit(ctx context.Context, payload any) (remoteop.Operation, error) {
	return p.submitOp, p.submitErr
}

func (p *scriptedProvider) Poll(ctx context.Context, operationID string) (remoteop.Operation, error) {
	if p.pollErr != nil {
		return remoteop.Operation{}, p.pollErr
	}
	op := p.polls[p.pollCount]
	if p.pollCount < len(p.polls)-1 {
		p.pollCount++
	}
	return op, nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestRunPollsUntilSuccess(t *testing.T) {
	provider := &scriptedProvider{
		name:     "replicate",
		submitOp: remoteop.Operation{ID: "op-1", Status: remoteop.StatusPending},
		polls: []remoteop.Operation{
			{ID: "op-1", Status: remoteop.StatusPending},
			{ID: "op-1", Status: remoteop.StatusPending},
			{ID: "op-1", Status: remoteop.StatusSucceeded, Output: json.RawMessage(`{"segments":[]}`)},
		},
	}
	client := remoteop.NewClient(provider, remoteop.WithSleeper(noSleep))

	op, err := client.Run(context.Background(), "diarize", map[string]string{"audio": "a.wav"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if op.Status != remoteop.StatusSucceeded {
		t.Fatalf("expected success, got %s", op.Status)
	}
	if provider.pollCount != 2 {
		t.Fatalf("expected polling to stop at the succeeding attempt, got %d extra polls", provider.pollCount)
	}
}

func TestRunTimesOutAfterAttemptBudget(t *testing.T) {
	provider := &scriptedProvider{
		name:     "replicate",
		submitOp: remoteop.Operation{ID: "op-2", Status: remoteop.StatusPending},
		polls:    []remoteop.Operation{{ID: "op-2", Status: remoteop.StatusPending}},
	}
	client := remoteop.NewClient(provider,
		remoteop.WithSleeper(noSleep),
		remoteop.WithMaxPollAttempts(4),
	)

	_, err := client.Run(context.Background(), "resync", nil)
	if !errors.Is(err, services.ErrOperationTimeout) {
		t.Fatalf("expected ErrOperationTimeout, got %v", err)
	}
}

func TestRunSurfacesOperationFailure(t *testing.T) {
	provider := &scriptedProvider{
		name:     "replicate",
		submitOp: remoteop.Operation{ID: "op-3", Status: remoteop.StatusPending},
		polls: []remoteop.Operation{
			{ID: "op-3", Status: remoteop.StatusFailed, Error: "model crashed"},
		},
	}
	client := remoteop.NewClient(provider, remoteop.WithSleeper(noSleep))

	_, err := client.Run(context.Background(), "diarize", nil)
	if !errors.Is(err, services.ErrOperationFailed) {
		t.Fatalf("expected ErrOperationFailed, got %v", err)
	}
}

func TestAwaitSkipsPollingForTerminalSubmit(t *testing.T) {
	provider := &scriptedProvider{
		name: "elevenlabs",
		submitOp: remoteop.Operation{
			ID:     "speech-1",
			Status: remoteop.StatusSucceeded,
			Output: json.RawMessage(`{"audio_asset":"s3://bucket/speech-1.mp3"}`),
		},
		pollErr: errors.New("poll must not be called"),
	}
	client := remoteop.NewClient(provider, remoteop.WithSleeper(noSleep))

	op, err := client.Run(context.Background(), "synthesize", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if op.Status != remoteop.StatusSucceeded {
		t.Fatalf("expected success, got %s", op.Status)
	}
}

func TestRunWrapsSubmitError(t *testing.T) {
	provider := &scriptedProvider{
		name:      "replicate",
		submitErr: errors.New("http 500"),
	}
	client := remoteop.NewClient(provider, remoteop.WithSleeper(noSleep))

	_, err := client.Run(context.Background(), "diarize", nil)
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	provider := &scriptedProvider{
		name:     "replicate",
		submitOp: remoteop.Operation{ID: "op-4", Status: remoteop.StatusPending},
		polls:    []remoteop.Operation{{ID: "op-4", Status: remoteop.StatusPending}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := remoteop.NewClient(provider, remoteop.WithPollInterval(time.Millisecond))

	_, err := client.Run(ctx, "diarize", nil)
	if !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
}
