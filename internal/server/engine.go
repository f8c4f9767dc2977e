package server

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Engine is the speech-to-text backend behind POST /transcribe.
type Engine interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// OpenAIEngine transcribes with the OpenAI audio API.
type OpenAIEngine struct {
	client   *openai.Client
	model    string
	language string
}

// NewOpenAIEngine returns an engine for apiKey. An empty baseURL uses the
// public API; an empty model uses whisper-1.
func NewOpenAIEngine(apiKey, baseURL, model, language string) *OpenAIEngine {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIEngine{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: language,
	}
}

// Transcribe implements Engine. filename carries the container extension the
// API uses to detect the format.
func (e *OpenAIEngine) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    e.model,
		FilePath: filename,
		Reader:   audio,
		Language: e.language,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
