package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/coachcall/api/internal/client"
	"github.com/coachcall/api/internal/config"
	"github.com/coachcall/api/internal/handler"
	"github.com/coachcall/api/internal/middleware"
	"github.com/coachcall/api/internal/repair"
	"github.com/coachcall/api/internal/service"
	"github.com/coachcall/api/internal/store"
)

const (
	toneOutput    = "```json\n{\"טון_כללי\": \"חם ומקצועי\", \"ציון_טונציה\": 7, \"דגלים_אדומים\": {\"לחץ_גבוה\": false}}\n```"
	contentOutput = `{"ציון_כללי": 8.5, "red_flag": false, "סיכום": "שיחה טובה", "quotes": [{"text": "שלום, מדבר דני", "timestamp_seconds": 0.4, "category": "פתיחה"}]}`
)

// fakeBackend serves the recordings and an OpenAI-compatible API
type fakeBackend struct {
	srv *httptest.Server

	mu            sync.Mutex
	transcribeErr int
	chatCalls     int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}
	mux := http.NewServeMux()

	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, "fake-audio-bytes")
	})

	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		fail := b.transcribeErr
		if fail > 0 {
			b.transcribeErr--
		}
		b.mu.Unlock()
		if fail > 0 {
			http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
			return
		}
		io.WriteString(w, `{"text": "שלום, מדבר דני", "language": "he", "duration": 3.2,
			"segments": [{"id": 0, "start": 0.0, "end": 1.5, "text": "שלום, מדבר דני"}],
			"words": [{"word": "שלום", "start": 0.0, "end": 0.4}]}`)
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.chatCalls++
		b.mu.Unlock()

		content := contentOutput
		if strings.Contains(string(body), "input_audio") {
			content = toneOutput
		}
		data, _ := json.Marshal(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) audioURL(name string) string {
	return b.srv.URL + "/files/" + name
}

// recordingQueue stands in for the asynq client
type recordingQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (q *recordingQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(q.tasks)), Queue: service.QueueAnalysis}, nil
}

func (q *recordingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	store   *store.MemoryStore
	queue   *recordingQueue
	backend *fakeBackend
	callLog *service.CallLogger
}

// setupApp wires the same routes as main.go over an in-memory store and a
// fake model backend.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	backend := newFakeBackend(t)
	cfg := &config.Config{
		OpenAI: config.OpenAIConfig{
			APIKey:             "test-key",
			BaseURL:            backend.srv.URL + "/v1",
			TranscriptionModel: "whisper-1",
			ToneModel:          "gpt-4o-audio-preview",
			ContentModel:       "gpt-4o",
			Language:           "he",
			Timeout:            5 * time.Second,
		},
		Content:  config.ContentConfig{Temperature: 0.3, MaxTokens: 4000},
		Pipeline: config.PipelineConfig{TranscribeAttempts: 2, BackoffBase: time.Millisecond, Timeout: 30 * time.Second, SignedURLTTL: time.Hour},
	}

	st := store.NewMemoryStore()
	callLog := service.NewCallLogger(st, nil)
	t.Cleanup(callLog.Wait)

	validate := validator.New()
	engine := repair.New()

	openai := client.NewOpenAIClient(&cfg.OpenAI)
	audio := service.NewAudioSource(nil, client.NewHTTPDownloader(5*time.Second, 0), cfg.Pipeline.SignedURLTTL)

	transcription := service.NewTranscriptionService(audio, openai, cfg, callLog)
	tone := service.NewToneService(audio, client.NewOpenAIToneClient(openai, cfg.OpenAI.ToneModel), engine, callLog)
	content := service.NewContentService(openai, st, st, engine, cfg, callLog)
	pipeline := service.NewPipeline(st, transcription, tone, content, callLog, service.WithTimeout(cfg.Pipeline.Timeout))

	queue := &recordingQueue{}
	callService := service.NewCallService(st, queue, 0, callLog)
	reportService := service.NewReportService(st, nil, time.Hour)

	callHandler := handler.NewCallHandler(callService, reportService, pipeline, validate)
	promptHandler := handler.NewPromptHandler(callService, validate)
	healthHandler := handler.NewHealthHandler(st, map[string]bool{"openai": true, "r2": false})

	rateLimiter := middleware.NewRateLimiter(nil)

	app := fiber.New(fiber.Config{
		BodyLimit: 4 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", healthHandler.Check)

	api := app.Group("/api")

	calls := api.Group("/calls")
	calls.Post("/", callHandler.Create)
	calls.Get("/:callId", callHandler.Get)
	calls.Get("/:callId/logs", callHandler.Logs)
	calls.Get("/:callId/report", callHandler.Report)

	process := api.Group("/process-call", rateLimiter.ProcessLimit(10000))
	process.Post("/", callHandler.Process)
	process.Post("/sync", callHandler.ProcessSync)

	prompts := api.Group("/prompts")
	prompts.Put("/", promptHandler.Upsert)
	prompts.Get("/:callType", promptHandler.Get)
	prompts.Delete("/:callType", promptHandler.Delete)

	return &testApp{app: app, store: st, queue: queue, backend: backend, callLog: callLog}
}

// createCall registers a call through the API and returns its ID.
func (ta *testApp) createCall(t *testing.T, body string) string {
	t.Helper()
	resp, err := doRequest(ta.app, http.MethodPost, "/api/calls", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)

	result := parseJSON(t, resp)
	call, ok := result["call"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected 'call' object, got %v", result)
	}
	id, _ := call["id"].(string)
	if id == "" {
		t.Fatal("expected call id")
	}
	return id
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
