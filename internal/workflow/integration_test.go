package workflow_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dubber/internal/diarize"
	"dubber/internal/logging"
	"dubber/internal/notifications"
	"dubber/internal/queue"
	"dubber/internal/resync"
	"dubber/internal/segments"
	"dubber/internal/services/elevenlabs"
	"dubber/internal/services/openai"
	"dubber/internal/services/remoteop"
	"dubber/internal/synthesize"
	"dubber/internal/testsupport"
	"dubber/internal/translate"
	"dubber/internal/workflow"
)

// scriptedDiarization reports two speaker turns and only finishes on the
// first poll, so the submit-then-poll path runs end to end.
type scriptedDiarization struct{}

func (p *scriptedDiarization) Name() string { return "replicate" }

func (p *scriptedDiarization) Submit(ctx context.Context, payload any) (remoteop.Operation, error) {
	return remoteop.Operation{ID: "prediction-diarize", Status: remoteop.StatusPending}, nil
}

func (p *scriptedDiarization) Poll(ctx context.Context, id string) (remoteop.Operation, error) {
	output := []byte(`{"segments":[
		{"speaker":"SPEAKER_00","start":0,"end":4.2,"voice_tag":"adult-male"},
		{"speaker":"SPEAKER_01","start":4.5,"end":9.1,"voice_tag":"adult-female"}
	]}`)
	return remoteop.Operation{ID: id, Status: remoteop.StatusSucceeded, Output: output}, nil
}

// scriptedTranslation completes at submission, like the real chat API.
type scriptedTranslation struct{}

func (p *scriptedTranslation) Name() string { return "openai-translate" }

func (p *scriptedTranslation) Submit(ctx context.Context, payload any) (remoteop.Operation, error) {
	req := payload.(openai.TranslationRequest)
	output, _ := json.Marshal(openai.TranslationResult{Text: "[" + req.TargetLanguage + "] " + req.Text})
	return remoteop.Operation{ID: "translate", Status: remoteop.StatusSucceeded, Output: output}, nil
}

func (p *scriptedTranslation) Poll(ctx context.Context, id string) (remoteop.Operation, error) {
	return remoteop.Operation{}, errors.New("poll must not be called")
}

// scriptedSpeech voices clips with fake audio derived from the requested
// voice, recording each voice it was asked for.
type scriptedSpeech struct {
	mu     sync.Mutex
	voices []string
}

func (p *scriptedSpeech) Name() string { return "elevenlabs" }

func (p *scriptedSpeech) Submit(ctx context.Context, payload any) (remoteop.Operation, error) {
	req := payload.(elevenlabs.SpeechRequest)
	p.mu.Lock()
	p.voices = append(p.voices, req.Voice)
	p.mu.Unlock()
	audio := []byte("audio for " + req.Voice)
	output, _ := json.Marshal(elevenlabs.SpeechResult{AudioB64: base64.StdEncoding.EncodeToString(audio)})
	return remoteop.Operation{ID: "speech", Status: remoteop.StatusSucceeded, Output: output}, nil
}

func (p *scriptedSpeech) Poll(ctx context.Context, id string) (remoteop.Operation, error) {
	return remoteop.Operation{}, errors.New("poll must not be called")
}

// idleSpeech counts calls so the test can assert the fallback stayed unused.
type idleSpeech struct{ calls atomic.Int64 }

func (p *idleSpeech) Name() string { return "openai-speech" }

func (p *idleSpeech) Submit(ctx context.Context, payload any) (remoteop.Operation, error) {
	p.calls.Add(1)
	return remoteop.Operation{}, errors.New("fallback provider must stay idle")
}

func (p *idleSpeech) Poll(ctx context.Context, id string) (remoteop.Operation, error) {
	return remoteop.Operation{}, errors.New("poll must not be called")
}

// scriptedLipsync finishes on the first poll with the final video URL.
type scriptedLipsync struct{}

func (p *scriptedLipsync) Name() string { return "replicate" }

func (p *scriptedLipsync) Submit(ctx context.Context, payload any) (remoteop.Operation, error) {
	return remoteop.Operation{ID: "prediction-lipsync", Status: remoteop.StatusPending}, nil
}

func (p *scriptedLipsync) Poll(ctx context.Context, id string) (remoteop.Operation, error) {
	return remoteop.Operation{ID: id, Status: remoteop.StatusSucceeded, Output: []byte(`{"video":"https://cdn.example.com/jobs/talk-es.mp4"}`)}, nil
}

func TestPipelineRunsWithRealStageHandlers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJobWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	job := testsupport.NewJob(t, store, "uploads/talk.mp4", "es")

	instant := func(ctx context.Context, d time.Duration) error { return nil }
	fallback := &idleSpeech{}
	speech := &scriptedSpeech{}

	stages := workflow.StageSet{
		Diarizer: diarize.NewDiarizerWithDependencies(cfg, store, logging.NewNop(),
			remoteop.NewClient(&scriptedDiarization{}, remoteop.WithSleeper(instant)),
			diarize.ScriptedTranscripts{}),
		Translator: translate.NewTranslatorWithDependencies(cfg, store, logging.NewNop(),
			remoteop.NewClient(&scriptedTranslation{})),
		Synthesizer: synthesize.NewSynthesizerWithDependencies(cfg, store, logging.NewNop(),
			remoteop.NewClient(speech),
			remoteop.NewClient(fallback),
			synthesize.NewDirSink(cfg)),
		Resyncer: resync.NewResyncerWithDependencies(cfg, store, logging.NewNop(),
			remoteop.NewClient(&scriptedLipsync{}, remoteop.WithSleeper(instant))),
	}
	startManager(t, cfg, store, notifier, stages)

	final := waitForTerminal(t, store, job.ID)
	if final.Status != queue.StatusDone {
		t.Fatalf("expected done, got %s (%s)", final.Status, final.ErrorMessage)
	}
	if final.OutputAsset != "https://cdn.example.com/jobs/talk-es.mp4" {
		t.Fatalf("unexpected output asset %q", final.OutputAsset)
	}
	if final.ErrorMessage != "" {
		t.Fatalf("done job carries error %q", final.ErrorMessage)
	}

	env, err := segments.Parse(final.SegmentsJSON)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if len(env.Speakers) != 2 || len(env.Translated) != 2 || len(env.Synthesized) != 2 {
		t.Fatalf("incomplete envelope: %d speakers, %d translated, %d synthesized",
			len(env.Speakers), len(env.Translated), len(env.Synthesized))
	}
	for i, seg := range env.Translated {
		if seg.SourceText == "" {
			t.Fatalf("segment %d lost its source text", i)
		}
		if seg.TranslatedText != "[es] "+seg.SourceText {
			t.Fatalf("segment %d unexpected translation %q", i, seg.TranslatedText)
		}
	}
	for i, seg := range env.Synthesized {
		voice := cfg.VoiceFor(seg.VoiceTag)
		clip, err := os.ReadFile(seg.AudioAsset)
		if err != nil {
			t.Fatalf("read clip %d: %v", i, err)
		}
		if string(clip) != "audio for "+voice {
			t.Fatalf("clip %d content %q does not match voice %q", i, clip, voice)
		}
	}

	speech.mu.Lock()
	voiced := append([]string(nil), speech.voices...)
	speech.mu.Unlock()
	if len(voiced) != 2 {
		t.Fatalf("expected 2 synthesized clips, got %v", voiced)
	}
	want := map[string]bool{"Adam": false, "Bella": false}
	for _, voice := range voiced {
		if _, ok := want[voice]; !ok {
			t.Fatalf("unexpected voice %q", voice)
		}
		want[voice] = true
	}
	for voice, seen := range want {
		if !seen {
			t.Fatalf("voice %q never synthesized", voice)
		}
	}
	if fallback.calls.Load() != 0 {
		t.Fatal("fallback provider must stay idle when the primary succeeds")
	}

	entries, err := store.LogsForJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("LogsForJob failed: %v", err)
	}
	wantTrail := []string{
		"diarizing started", "diarizing completed",
		"translating started", "translating completed",
		"synthesizing started", "synthesizing completed",
		"resyncing started", "resyncing completed",
		"job completed",
	}
	if len(entries) != len(wantTrail) {
		var messages []string
		for _, entry := range entries {
			messages = append(messages, entry.Message)
		}
		t.Fatalf("expected %d log entries, got:\n%s", len(wantTrail), strings.Join(messages, "\n"))
	}
	for i, entry := range entries {
		if entry.Message != wantTrail[i] {
			t.Fatalf("log entry %d is %q, want %q", i, entry.Message, wantTrail[i])
		}
	}

	if !notifier.has(notifications.EventJobCompleted) {
		t.Fatal("expected job completed notification")
	}
}
