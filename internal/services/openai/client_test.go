package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dubber/internal/services/openai"
	"dubber/internal/services/remoteop"
)

func newTestClient(t *testing.T, handler http.Handler) *openai.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return openai.NewClient(openai.Config{APIKey: "key", BaseURL: server.URL})
}

func TestTranslateReturnsModelContent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "Hello there" {
			t.Fatalf("unexpected messages: %#v", req.Messages)
		}
		if !strings.Contains(req.Messages[0].Content, "Spanish (es)") {
			t.Fatalf("system prompt should name the target language: %q", req.Messages[0].Content)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Hola"}}]}`))
	}))

	got, err := client.Translate(context.Background(), "Hello there", "es")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "Hola" {
		t.Fatalf("expected Hola, got %q", got)
	}
}

func TestTranslateRejectsEmptyContent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  "}}]}`))
	}))

	got, err := client.Translate(context.Background(), "Keep me", "French")
	if err == nil {
		t.Fatalf("expected error on empty model content, got %q", got)
	}
	if !strings.Contains(err.Error(), "empty content") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTranslateSurfacesHTTPErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))

	if _, err := client.Translate(context.Background(), "text", "German"); err == nil {
		t.Fatal("expected error on http 401")
	}
}

func TestSpeechReturnsAudioBytes(t *testing.T) {
	audio := []byte{0x49, 0x44, 0x33, 0x04}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Voice string `json:"voice"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Voice != "alloy" {
			t.Fatalf("expected default voice, got %q", req.Voice)
		}
		_, _ = w.Write(audio)
	}))

	got, err := client.Speech(context.Background(), "say this", "")
	if err != nil {
		t.Fatalf("Speech failed: %v", err)
	}
	if string(got) != string(audio) {
		t.Fatalf("unexpected audio bytes %v", got)
	}
}

func TestTranslationProviderReturnsTerminalOperation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Bonjour"}}]}`))
	}))
	provider := openai.NewTranslationProvider(client)

	op, err := provider.Submit(context.Background(), openai.TranslationRequest{Text: "Hello", TargetLanguage: "French"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !op.Terminal() || op.Status != remoteop.StatusSucceeded {
		t.Fatalf("expected terminal success, got %#v", op)
	}
	var result openai.TranslationResult
	if err := json.Unmarshal(op.Output, &result); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if result.Text != "Bonjour" {
		t.Fatalf("unexpected translation %q", result.Text)
	}
}

func TestSpeechProviderEncodesAudio(t *testing.T) {
	audio := []byte("mp3-bytes")
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(audio)
	}))
	provider := openai.NewSpeechProvider(client)

	op, err := provider.Submit(context.Background(), openai.SpeechRequest{Text: "hi", Voice: "alloy"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	var result openai.SpeechResult
	if err := json.Unmarshal(op.Output, &result); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	decoded, err := result.Audio()
	if err != nil {
		t.Fatalf("decode audio: %v", err)
	}
	if string(decoded) != string(audio) {
		t.Fatalf("unexpected audio %q", decoded)
	}
}
