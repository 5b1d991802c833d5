package transcribe

import (
	"context"
	"errors"
	"io"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type mockTranscriptionAPI struct {
	gotRequest openai.AudioRequest
	text       string
	err        error
}

func (m *mockTranscriptionAPI) CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	m.gotRequest = req
	if m.err != nil {
		return openai.AudioResponse{}, m.err
	}
	return openai.AudioResponse{Text: m.text}, nil
}

func TestTranscribe(t *testing.T) {
	api := &mockTranscriptionAPI{text: "  I have lung cancer  "}
	tr := NewWhisperTranscriberWithAPI(api, "whisper-1")

	got, err := tr.Transcribe(context.Background(), "message.webm", []byte("audio-bytes"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "I have lung cancer" {
		t.Errorf("text = %q", got)
	}
	if api.gotRequest.Model != "whisper-1" || api.gotRequest.FilePath != "message.webm" {
		t.Errorf("request = %+v", api.gotRequest)
	}
	data, _ := io.ReadAll(api.gotRequest.Reader)
	if string(data) != "audio-bytes" {
		t.Errorf("audio payload = %q", data)
	}
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	tr := NewWhisperTranscriberWithAPI(&mockTranscriptionAPI{}, "")
	if _, err := tr.Transcribe(context.Background(), "a.wav", nil); err == nil {
		t.Error("expected error for empty audio")
	}
}

func TestTranscribePropagatesAPIErrors(t *testing.T) {
	tr := NewWhisperTranscriberWithAPI(&mockTranscriptionAPI{err: errors.New("rate limited")}, "")
	if _, err := tr.Transcribe(context.Background(), "a.wav", []byte("x")); err == nil {
		t.Error("expected error from API failure")
	}
}
