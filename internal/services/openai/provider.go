package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"dubber/internal/services/remoteop"
)

// TranslationRequest is the payload accepted by the translation provider.
type TranslationRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

// TranslationResult is the decoded output of a finished translation operation.
type TranslationResult struct {
	Text string `json:"text"`
}

// TranslationProvider adapts the chat completion API to the operation model.
// Translation is synchronous, so Submit returns a terminal operation and Poll
// is never reached.
type TranslationProvider struct {
	client *Client
	seq    atomic.Int64
}

// NewTranslationProvider wraps the client for use with a polling client.
func NewTranslationProvider(client *Client) *TranslationProvider {
	return &TranslationProvider{client: client}
}

func (p *TranslationProvider) Name() string { return "openai-translate" }

func (p *TranslationProvider) Submit(ctx context.Context, payload any) (remoteop.Operation, error) {
	req, ok := payload.(TranslationRequest)
	if !ok {
		return remoteop.Operation{}, fmt.Errorf("openai translate: unexpected payload type %T", payload)
	}
	id := fmt.Sprintf("translate-%d", p.seq.Add(1))

	translated, err := p.client.Translate(ctx, req.Text, req.TargetLanguage)
	if err != nil {
		return remoteop.Operation{ID: id, Status: remoteop.StatusFailed, Error: err.Error()}, err
	}
	output, err := json.Marshal(TranslationResult{Text: translated})
	if err != nil {
		return remoteop.Operation{}, fmt.Errorf("openai translate: marshal output: %w", err)
	}
	return remoteop.Operation{ID: id, Status: remoteop.StatusSucceeded, Output: output}, nil
}

func (p *TranslationProvider) Poll(ctx context.Context, operationID string) (remoteop.Operation, error) {
	return remoteop.Operation{}, errors.New("openai translate: operations complete at submission")
}

// HealthCheck verifies the underlying API key is accepted.
func (p *TranslationProvider) HealthCheck(ctx context.Context) error {
	return p.client.HealthCheck(ctx)
}

// SpeechRequest is the payload accepted by the speech provider.
type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// SpeechResult is the decoded output of a finished speech operation.
type SpeechResult struct {
	AudioB64 string `json:"audio_b64"`
}

// Audio decodes the synthesized audio bytes.
func (r SpeechResult) Audio() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.AudioB64)
}

// SpeechProvider adapts the speech API to the operation model.
type SpeechProvider struct {
	client *Client
	seq    atomic.Int64
}

// NewSpeechProvider wraps the client for use with a polling client.
func NewSpeechProvider(client *Client) *SpeechProvider {
	return &SpeechProvider{client: client}
}

func (p *SpeechProvider) Name() string { return "openai-speech" }

func (p *SpeechProvider) Submit(ctx context.Context, payload any) (remoteop.Operation, error) {
	req, ok := payload.(SpeechRequest)
	if !ok {
		return remoteop.Operation{}, fmt.Errorf("openai speech: unexpected payload type %T", payload)
	}
	id := fmt.Sprintf("speech-%d", p.seq.Add(1))

	audio, err := p.client.Speech(ctx, req.Text, req.Voice)
	if err != nil {
		return remoteop.Operation{ID: id, Status: remoteop.StatusFailed, Error: err.Error()}, err
	}
	output, err := json.Marshal(SpeechResult{AudioB64: base64.StdEncoding.EncodeToString(audio)})
	if err != nil {
		return remoteop.Operation{}, fmt.Errorf("openai speech: marshal output: %w", err)
	}
	return remoteop.Operation{ID: id, Status: remoteop.StatusSucceeded, Output: output}, nil
}

func (p *SpeechProvider) Poll(ctx context.Context, operationID string) (remoteop.Operation, error) {
	return remoteop.Operation{}, errors.New("openai speech: operations complete at submission")
}

// HealthCheck verifies the underlying API key is accepted.
func (p *SpeechProvider) HealthCheck(ctx context.Context) error {
	return p.client.HealthCheck(ctx)
}
