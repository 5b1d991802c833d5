// Package transcribe converts patient voice messages to text so the chat
// pipeline can treat them as ordinary turns.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Transcriber converts raw audio bytes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

type transcriptionAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// WhisperTranscriber transcribes audio through the OpenAI Whisper API.
type WhisperTranscriber struct {
	api   transcriptionAPI
	model string
}

// NewWhisperTranscriber creates a Whisper-backed transcriber.
func NewWhisperTranscriber(apiKey, model string) (*WhisperTranscriber, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("transcribe: api key required")
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{api: openai.NewClient(apiKey), model: model}, nil
}

// NewWhisperTranscriberWithAPI injects the API, for tests.
func NewWhisperTranscriberWithAPI(api transcriptionAPI, model string) *WhisperTranscriber {
	if api == nil {
		panic("transcribe: api cannot be nil")
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{api: api, model: model}
}

// Transcribe sends the audio to Whisper and returns the recognized text.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("transcribe: empty audio")
	}
	resp, err := t.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
