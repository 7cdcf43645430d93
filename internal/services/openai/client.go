package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dubber/internal/language"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o-mini"
	defaultTTSModel    = "gpt-4o-mini-tts"
	defaultHTTPTimeout = 30 * time.Second
)

// Config captures the runtime settings required to talk to OpenAI.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TTSModel       string
	TimeoutSeconds int
}

// Client wraps the OpenAI chat completion and speech APIs.
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

// NewClient constructs an OpenAI client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			TTSModel:       strings.TrimSpace(cfg.TTSModel),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	if client.cfg.TTSModel == "" {
		client.cfg.TTSModel = defaultTTSModel
	}
	return client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Translate renders the supplied text into the target language. Empty model
// content is reported as an error; the caller decides whether the utterance
// falls back to its source text.
func (c *Client) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("openai translate: api key required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("openai translate: text required")
	}
	targetLanguage = strings.TrimSpace(targetLanguage)
	if targetLanguage == "" {
		return "", errors.New("openai translate: target language required")
	}

	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: fmt.Sprintf("You are a professional dubbing translator. Translate the user's text into %s. Preserve tone and approximate spoken length. Respond with the translation only.", language.Describe(targetLanguage)),
			},
			{Role: "user", Content: text},
		},
		Temperature: 0.3,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("openai translate: marshal request: %w", err)
	}

	data, err := c.post(ctx, "/chat/completions", "application/json", body)
	if err != nil {
		return "", fmt.Errorf("openai translate: %w", err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("openai translate: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openai translate: response missing choices")
	}
	translated := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if translated == "" {
		return "", errors.New("openai translate: model returned empty content")
	}
	return translated, nil
}

type speechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

// Speech synthesizes the supplied text and returns the raw audio bytes. This
// is the fallback path used when the primary synthesis provider is down.
func (c *Client) Speech(ctx context.Context, text, voice string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("openai speech: api key required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("openai speech: text required")
	}
	if strings.TrimSpace(voice) == "" {
		voice = "alloy"
	}

	body, err := json.Marshal(speechRequest{Model: c.cfg.TTSModel, Input: text, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("openai speech: marshal request: %w", err)
	}

	data, err := c.post(ctx, "/audio/speech", "application/json", body)
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("openai speech: empty audio response")
	}
	return data, nil
}

// HealthCheck verifies the API key is accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("openai health: api key required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("openai health: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("openai health: http %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
