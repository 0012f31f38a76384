package client

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/coachcall/api/internal/config"
)

// GeminiToneClient runs tone analysis on Gemini with inline audio
type GeminiToneClient struct {
	client *genai.Client
	model  string
}

// NewGeminiToneClient creates a new Gemini client
func NewGeminiToneClient(ctx context.Context, cfg *config.GeminiConfig) (*GeminiToneClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini configuration incomplete")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiToneClient{client: client, model: cfg.Model}, nil
}

func (c *GeminiToneClient) Name() string { return "gemini:" + c.model }

func (c *GeminiToneClient) SupportedFormats() []string {
	return []string{"wav", "mp3", "aiff", "aac", "ogg", "flac"}
}

func (c *GeminiToneClient) IsConfigured() bool {
	return c.client != nil
}

func (c *GeminiToneClient) AnalyzeAudio(ctx context.Context, tr *ToneRequest) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(tr.UserPrompt),
		genai.NewPartFromBytes(tr.Audio, tr.Format.MIMEType),
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(tr.SystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		var gErr genai.APIError
		if errors.As(err, &gErr) {
			return "", &APIError{Service: "gemini", StatusCode: gErr.Code, Body: gErr.Message}
		}
		return "", fmt.Errorf("gemini tone analysis failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from gemini")
	}
	return text, nil
}
