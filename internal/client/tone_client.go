package client

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/coachcall/api/internal/model"
)

// ToneRequest is one multimodal tone analysis call
type ToneRequest struct {
	SystemPrompt string
	UserPrompt   string
	Audio        []byte
	Format       model.AudioFormat
}

// ToneModel analyzes raw call audio and returns the model's text output
type ToneModel interface {
	AnalyzeAudio(ctx context.Context, req *ToneRequest) (string, error)
	// SupportedFormats lists the audio containers the backend accepts.
	SupportedFormats() []string
	Name() string
	IsConfigured() bool
}

// OpenAIToneClient sends audio as an input_audio message part
type OpenAIToneClient struct {
	chat  ChatModel
	model string
}

func NewOpenAIToneClient(chat ChatModel, modelName string) *OpenAIToneClient {
	return &OpenAIToneClient{chat: chat, model: modelName}
}

func (c *OpenAIToneClient) Name() string { return "openai:" + c.model }

// SupportedFormats are the input_audio formats of the chat completions API.
func (c *OpenAIToneClient) SupportedFormats() []string {
	return []string{"wav", "mp3"}
}

func (c *OpenAIToneClient) IsConfigured() bool {
	return c.chat != nil && c.chat.IsConfigured()
}

func (c *OpenAIToneClient) AnalyzeAudio(ctx context.Context, tr *ToneRequest) (string, error) {
	req := &ChatCompletionRequest{
		Model:      c.model,
		Modalities: []string{"text"},
		Messages: []ChatMessage{
			{Role: "system", Content: tr.SystemPrompt},
			{Role: "user", Content: []ContentPart{
				{Type: "text", Text: tr.UserPrompt},
				{Type: "input_audio", InputAudio: &InputAudio{
					Data:   base64.StdEncoding.EncodeToString(tr.Audio),
					Format: tr.Format.Extension,
				}},
			}},
		},
	}

	resp, err := c.chat.ChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("tone completion failed: %w", err)
	}
	return resp.Content()
}
