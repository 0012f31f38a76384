package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	RateLimit RateLimitConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Tone      ToneConfig
	Content   ContentConfig
	Pipeline  PipelineConfig
	Worker    WorkerConfig
	R2        R2Config
	Prompts   PromptsConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PostgresConfig selects the Postgres call store when DSN is set;
// otherwise calls live in Redis.
type PostgresConfig struct {
	DSN string
}

type RateLimitConfig struct {
	ProcessPerHour int
}

type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	ToneModel          string
	ContentModel       string
	Language           string
	Timeout            time.Duration
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type ToneConfig struct {
	Provider string // openai | gemini
}

type ContentConfig struct {
	Temperature float64
	MaxTokens   int
}

type PipelineConfig struct {
	SignedURLTTL       time.Duration
	TranscribeAttempts int
	BackoffBase        time.Duration
	Timeout            time.Duration
	StallAfter         time.Duration
	SweepSchedule      string
}

type WorkerConfig struct {
	Concurrency int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type PromptsConfig struct {
	File string
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("POSTGRES_DSN")
	readSecret("OPENAI_API_KEY")
	readSecret("GEMINI_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("postgres.dsn", "POSTGRES_DSN")
	_ = v.BindEnv("ratelimit.process_per_hour", "RATELIMIT_PROCESS_PER_HOUR")
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("openai.transcription_model", "OPENAI_TRANSCRIPTION_MODEL")
	_ = v.BindEnv("openai.tone_model", "OPENAI_TONE_MODEL")
	_ = v.BindEnv("openai.content_model", "OPENAI_CONTENT_MODEL")
	_ = v.BindEnv("openai.language", "OPENAI_LANGUAGE")
	_ = v.BindEnv("openai.timeout", "OPENAI_TIMEOUT")
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = v.BindEnv("tone.provider", "TONE_PROVIDER")
	_ = v.BindEnv("content.temperature", "CONTENT_TEMPERATURE")
	_ = v.BindEnv("content.max_tokens", "CONTENT_MAX_TOKENS")
	_ = v.BindEnv("pipeline.signed_url_ttl", "PIPELINE_SIGNED_URL_TTL")
	_ = v.BindEnv("pipeline.transcribe_attempts", "PIPELINE_TRANSCRIBE_ATTEMPTS")
	_ = v.BindEnv("pipeline.backoff_base", "PIPELINE_BACKOFF_BASE")
	_ = v.BindEnv("pipeline.timeout", "PIPELINE_TIMEOUT")
	_ = v.BindEnv("pipeline.stall_after", "PIPELINE_STALL_AFTER")
	_ = v.BindEnv("pipeline.sweep_schedule", "PIPELINE_SWEEP_SCHEDULE")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("prompts.file", "PROMPTS_FILE")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.process_per_hour", 60)

	// Model defaults
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.transcription_model", "whisper-1")
	v.SetDefault("openai.tone_model", "gpt-4o-audio-preview")
	v.SetDefault("openai.content_model", "gpt-4o")
	v.SetDefault("openai.language", "he")
	v.SetDefault("openai.timeout", 120*time.Second)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("tone.provider", "openai")
	v.SetDefault("content.temperature", 0.2)
	v.SetDefault("content.max_tokens", 4096)

	// Pipeline defaults
	v.SetDefault("pipeline.signed_url_ttl", 5*time.Minute)
	v.SetDefault("pipeline.transcribe_attempts", 3)
	v.SetDefault("pipeline.backoff_base", time.Second)
	v.SetDefault("pipeline.timeout", 5*time.Minute)
	v.SetDefault("pipeline.stall_after", 15*time.Minute)
	v.SetDefault("pipeline.sweep_schedule", "0 */5 * * * *")
	v.SetDefault("worker.concurrency", 10)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Postgres: PostgresConfig{
			DSN: v.GetString("postgres.dsn"),
		},
		RateLimit: RateLimitConfig{
			ProcessPerHour: v.GetInt("ratelimit.process_per_hour"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             v.GetString("openai.api_key"),
			BaseURL:            v.GetString("openai.base_url"),
			TranscriptionModel: v.GetString("openai.transcription_model"),
			ToneModel:          v.GetString("openai.tone_model"),
			ContentModel:       v.GetString("openai.content_model"),
			Language:           v.GetString("openai.language"),
			Timeout:            v.GetDuration("openai.timeout"),
		},
		Gemini: GeminiConfig{
			APIKey: v.GetString("gemini.api_key"),
			Model:  v.GetString("gemini.model"),
		},
		Tone: ToneConfig{
			Provider: strings.ToLower(v.GetString("tone.provider")),
		},
		Content: ContentConfig{
			Temperature: v.GetFloat64("content.temperature"),
			MaxTokens:   v.GetInt("content.max_tokens"),
		},
		Pipeline: PipelineConfig{
			SignedURLTTL:       v.GetDuration("pipeline.signed_url_ttl"),
			TranscribeAttempts: v.GetInt("pipeline.transcribe_attempts"),
			BackoffBase:        v.GetDuration("pipeline.backoff_base"),
			Timeout:            v.GetDuration("pipeline.timeout"),
			StallAfter:         v.GetDuration("pipeline.stall_after"),
			SweepSchedule:      v.GetString("pipeline.sweep_schedule"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Prompts: PromptsConfig{
			File: v.GetString("prompts.file"),
		},
	}

	return cfg, nil
}
