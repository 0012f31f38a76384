package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "8000" {
		t.Errorf("expected port 8000, got %q", cfg.Server.Port)
	}
	if cfg.OpenAI.TranscriptionModel != "whisper-1" {
		t.Errorf("unexpected transcription model %q", cfg.OpenAI.TranscriptionModel)
	}
	if cfg.Pipeline.SignedURLTTL != 5*time.Minute {
		t.Errorf("expected 5m signed URL TTL, got %v", cfg.Pipeline.SignedURLTTL)
	}
	if cfg.Pipeline.TranscribeAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.Pipeline.TranscribeAttempts)
	}
	if cfg.Content.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", cfg.Content.Temperature)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("TONE_PROVIDER", "Gemini")
	t.Setenv("PIPELINE_STALL_AFTER", "30m")
	t.Setenv("WORKER_CONCURRENCY", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Tone.Provider != "gemini" {
		t.Errorf("expected provider gemini, got %q", cfg.Tone.Provider)
	}
	if cfg.Pipeline.StallAfter != 30*time.Minute {
		t.Errorf("expected 30m, got %v", cfg.Pipeline.StallAfter)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Worker.Concurrency)
	}
}

func TestLoad_SecretFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "openai_key")
	if err := os.WriteFile(path, []byte("sk-from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-from-file" {
		t.Errorf("expected key from file, got %q", cfg.OpenAI.APIKey)
	}
}
