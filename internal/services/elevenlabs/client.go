package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"dubber/internal/services/remoteop"
)

const (
	defaultBaseURL     = "https://api.elevenlabs.io/v1"
	defaultModelID     = "eleven_multilingual_v2"
	defaultHTTPTimeout = 60 * time.Second
)

// Config captures the runtime settings required to talk to ElevenLabs.
type Config struct {
	APIKey  string
	BaseURL string
	ModelID string
}

// Client wraps the ElevenLabs text-to-speech API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an ElevenLabs client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			ModelID: strings.TrimSpace(cfg.ModelID),
		},
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.ModelID == "" {
		client.cfg.ModelID = defaultModelID
	}
	return client
}

type speechRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings map[string]any `json:"voice_settings,omitempty"`
}

// Speech synthesizes the supplied text with the named voice and returns the
// raw audio bytes.
func (c *Client) Speech(ctx context.Context, text, voice string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("elevenlabs speech: api key required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("elevenlabs speech: text required")
	}
	voice = strings.TrimSpace(voice)
	if voice == "" {
		return nil, errors.New("elevenlabs speech: voice required")
	}

	body, err := json.Marshal(speechRequest{Text: text, ModelID: c.cfg.ModelID})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs speech: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/text-to-speech/"+voice, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs speech: build request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs speech: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("elevenlabs speech: http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if len(data) == 0 {
		return nil, errors.New("elevenlabs speech: empty audio response")
	}
	return data, nil
}

// HealthCheck verifies the API key is accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("elevenlabs health: api key required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/voices", nil)
	if err != nil {
		return fmt.Errorf("elevenlabs health: build request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("elevenlabs health: http %d", resp.StatusCode)
	}
	return nil
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

// SpeechProvider adapts the synchronous speech API to the operation model.
type SpeechProvider struct {
	client *Client
	seq    atomic.Int64
}

// NewSpeechProvider wraps the client for use with a polling client.
func NewSpeechProvider(client *Client) *SpeechProvider {
	return &SpeechProvider{client: client}
}

func (p *SpeechProvider) Name() string { return "elevenlabs" }

func (p *SpeechProvider) Submit(ctx context.Context, payload any) (remoteop.Operation, error) {
	req, ok := payload.(SpeechRequest)
	if !ok {
		return remoteop.Operation{}, fmt.Errorf("elevenlabs speech: unexpected payload type %T", payload)
	}
	id := fmt.Sprintf("speech-%d", p.seq.Add(1))

	audio, err := p.client.Speech(ctx, req.Text, req.Voice)
	if err != nil {
		return remoteop.Operation{ID: id, Status: remoteop.StatusFailed, Error: err.Error()}, err
	}
	output, err := json.Marshal(SpeechResult{AudioB64: base64.StdEncoding.EncodeToString(audio)})
	if err != nil {
		return remoteop.Operation{}, fmt.Errorf("elevenlabs speech: marshal output: %w", err)
	}
	return remoteop.Operation{ID: id, Status: remoteop.StatusSucceeded, Output: output}, nil
}

func (p *SpeechProvider) Poll(ctx context.Context, operationID string) (remoteop.Operation, error) {
	return remoteop.Operation{}, errors.New("elevenlabs speech: operations complete at submission")
}

// HealthCheck verifies the underlying API key is accepted.
func (p *SpeechProvider) HealthCheck(ctx context.Context) error {
	return p.client.HealthCheck(ctx)
}
