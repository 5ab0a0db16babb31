package backend

import (
	"bytes"
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperTranscriber transcribes audio by calling the Whisper API directly.
// It is the fallback for deployments where the inference backend exposes no
// speech-to-text endpoint of its own.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

func NewWhisperTranscriber(apiKey, model string) *WhisperTranscriber {
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperTranscriber{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Transcribe satisfies the same contract as Client.Transcribe: recognized
// text on success, possibly empty when no speech was detected.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	tr, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		Reader:   bytes.NewReader(audio),
		FilePath: "recording.webm",
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(tr.Text), nil
}
