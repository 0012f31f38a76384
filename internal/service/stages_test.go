package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coachcall/api/internal/client"
	"github.com/coachcall/api/internal/config"
	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/store"
)

type fakeStorage struct {
	configured bool
	signErr    error
	base       string
	uploads    map[string][]byte
}

func (s *fakeStorage) GetSignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	return s.base + "/" + key, nil
}

func (s *fakeStorage) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if s.uploads == nil {
		s.uploads = make(map[string][]byte)
	}
	s.uploads[key] = data
	return key, nil
}

func (s *fakeStorage) IsConfigured() bool { return s.configured }

type fakeSTT struct {
	responses []error
	calls     int
	got       *client.TranscriptionRequest
}

func (f *fakeSTT) Transcribe(_ context.Context, req *client.TranscriptionRequest) (*client.TranscriptionResponse, error) {
	f.calls++
	f.got = req
	if i := f.calls - 1; i < len(f.responses) && f.responses[i] != nil {
		return nil, f.responses[i]
	}
	return &client.TranscriptionResponse{Text: "שלום", Language: "he"}, nil
}

func (f *fakeSTT) IsConfigured() bool { return true }

type fakeToneModel struct {
	output  string
	err     error
	formats []string
	got     *client.ToneRequest
}

func (f *fakeToneModel) AnalyzeAudio(_ context.Context, req *client.ToneRequest) (string, error) {
	f.got = req
	return f.output, f.err
}

func (f *fakeToneModel) SupportedFormats() []string { return f.formats }
func (f *fakeToneModel) Name() string               { return "fake" }
func (f *fakeToneModel) IsConfigured() bool         { return true }

type fakeChat struct {
	content string
	finish  string
	err     error
	got     *client.ChatCompletionRequest
}

func (f *fakeChat) ChatCompletion(_ context.Context, req *client.ChatCompletionRequest) (*client.ChatCompletionResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	data, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": f.content}, "finish_reason": f.finish},
		},
	})
	var resp client.ChatCompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *fakeChat) IsConfigured() bool { return true }

func newAudioServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, "RIFF-audio")
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig() *config.Config {
	return &config.Config{
		OpenAI: config.OpenAIConfig{
			TranscriptionModel: "whisper-1",
			ContentModel:       "gpt-4o",
			Language:           "he",
		},
		Content:  config.ContentConfig{Temperature: 0.3, MaxTokens: 4000},
		Pipeline: config.PipelineConfig{TranscribeAttempts: 3, BackoffBase: time.Millisecond},
	}
}

func TestTranscriptionService_RetriesThenSucceeds(t *testing.T) {
	srv, hits := newAudioServer(t)
	storage := &fakeStorage{configured: true, base: srv.URL}
	stt := &fakeSTT{responses: []error{
		&client.APIError{Service: "openai", StatusCode: http.StatusServiceUnavailable},
		&client.APIError{Service: "openai", StatusCode: http.StatusTooManyRequests},
	}}

	svc := NewTranscriptionService(NewAudioSource(storage, client.NewHTTPDownloader(time.Second, 0), time.Minute), stt, testConfig(), nil)
	tr, err := svc.Transcribe(context.Background(), &model.Call{ID: "c1", AudioFilePath: "calls/c1.mp3"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if tr.Text != "שלום" {
		t.Errorf("unexpected transcript %q", tr.Text)
	}
	if stt.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", stt.calls)
	}
	if atomic.LoadInt32(hits) != 3 {
		t.Errorf("expected audio re-downloaded per attempt, got %d", *hits)
	}
	if stt.got.Format.Extension != "mp3" || stt.got.Format.MIMEType != "audio/mpeg" {
		t.Errorf("expected corrected mp3 format, got %+v", stt.got.Format)
	}
	if stt.got.ResponseFormat != "verbose_json" || stt.got.Language != "he" {
		t.Errorf("unexpected request %+v", stt.got)
	}
}

func TestTranscriptionService_ClientErrorIsPermanent(t *testing.T) {
	srv, _ := newAudioServer(t)
	stt := &fakeSTT{responses: []error{
		&client.APIError{Service: "openai", StatusCode: http.StatusBadRequest, Body: "bad file"},
	}}

	svc := NewTranscriptionService(NewAudioSource(&fakeStorage{configured: true, base: srv.URL}, client.NewHTTPDownloader(time.Second, 0), time.Minute), stt, testConfig(), nil)
	_, err := svc.Transcribe(context.Background(), &model.Call{ID: "c1", AudioFilePath: "calls/c1.wav"})
	if err == nil {
		t.Fatal("expected error")
	}
	if stt.calls != 1 {
		t.Errorf("expected a single attempt, got %d", stt.calls)
	}
}

func TestTranscriptionService_StorageUnavailable(t *testing.T) {
	stt := &fakeSTT{}
	svc := NewTranscriptionService(NewAudioSource(&fakeStorage{}, client.NewHTTPDownloader(time.Second, 0), time.Minute), stt, testConfig(), nil)

	_, err := svc.Transcribe(context.Background(), &model.Call{ID: "c1", AudioFilePath: "calls/c1.wav"})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if stt.calls != 0 {
		t.Error("STT must not be called without audio")
	}
}

func TestToneService_UnsupportedContainer(t *testing.T) {
	srv, _ := newAudioServer(t)
	toneModel := &fakeToneModel{formats: []string{"wav", "mp3"}}
	svc := NewToneService(NewAudioSource(&fakeStorage{configured: true, base: srv.URL}, client.NewHTTPDownloader(time.Second, 0), time.Minute), toneModel, nil, nil)

	_, err := svc.Analyze(context.Background(), &model.Call{ID: "c1", AudioFilePath: "calls/c1.m4a"}, nil)

	var unsupported *UnsupportedAudioError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedAudioError, got %v", err)
	}
	if unsupported.Format != "m4a" || len(unsupported.Supported) != 2 {
		t.Errorf("unexpected error %+v", unsupported)
	}
	if !errors.Is(err, ErrUnsupportedAudio) {
		t.Error("expected errors.Is ErrUnsupportedAudio")
	}
	if toneModel.got != nil {
		t.Error("model must not be called for an unsupported container")
	}
}

func TestToneService_FormatRejection(t *testing.T) {
	srv, _ := newAudioServer(t)
	toneModel := &fakeToneModel{
		formats: []string{"wav", "mp3"},
		err:     &client.APIError{Service: "openai", StatusCode: http.StatusBadRequest, Body: `{"error":{"message":"Invalid audio format"}}`},
	}
	svc := NewToneService(NewAudioSource(&fakeStorage{configured: true, base: srv.URL}, client.NewHTTPDownloader(time.Second, 0), time.Minute), toneModel, nil, nil)

	_, err := svc.Analyze(context.Background(), &model.Call{ID: "c1", AudioFilePath: "calls/c1.mp3"}, nil)
	if !errors.Is(err, ErrUnsupportedAudio) {
		t.Fatalf("expected unsupported audio, got %v", err)
	}
}

func TestToneService_RepairsFencedOutput(t *testing.T) {
	srv, _ := newAudioServer(t)
	toneModel := &fakeToneModel{
		formats: []string{"wav", "mp3"},
		output:  "```json\n{\"טון_כללי\": \"חם\", \"ציון_טונציה\": 8, \"דגלים_אדומים\": {\"לחץ_גבוה\": true}}\n```",
	}
	svc := NewToneService(NewAudioSource(&fakeStorage{configured: true, base: srv.URL}, client.NewHTTPDownloader(time.Second, 0), time.Minute), toneModel, nil, nil)

	transcript := "שלום"
	report, err := svc.Analyze(context.Background(), &model.Call{ID: "c1", CallType: "sales_call", AudioFilePath: "calls/c1.wav"}, &transcript)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Score != 8 || report.OverallTone != "חם" || !report.RedFlags.HighPressure {
		t.Errorf("unexpected report %+v", report)
	}
	if !strings.Contains(toneModel.got.UserPrompt, transcript) {
		t.Error("user prompt must include the transcript")
	}
	if toneModel.got.Format.Extension != "wav" {
		t.Errorf("unexpected format %+v", toneModel.got.Format)
	}
}

func TestContentService_PromptSelection(t *testing.T) {
	st := store.NewMemoryStore()
	if err := st.UpsertPrompt(context.Background(), "sales_call", "דרג את השיחה לפי שיטת החברה"); err != nil {
		t.Fatal(err)
	}
	svc := NewContentService(&fakeChat{}, st, st, nil, testConfig(), nil)

	custom := svc.SystemPrompt(context.Background(), &model.Call{ID: "c1", CallType: "sales_call"})
	if !strings.HasPrefix(custom, "דרג את השיחה") || !strings.HasSuffix(custom, jsonReminder) {
		t.Errorf("expected registry prompt with JSON reminder, got %q", custom)
	}

	fallback := svc.SystemPrompt(context.Background(), &model.Call{ID: "c1", CallType: "service_call"})
	if !strings.Contains(fallback, "JSON") || strings.HasPrefix(fallback, "דרג את השיחה") {
		t.Error("expected the built-in rubric for unknown categories")
	}
}

func TestContentService_Analyze(t *testing.T) {
	st := store.NewMemoryStore()
	st.SetBusinessContext("co-1", &model.BusinessContext{CompanyName: "אקמה"})
	chat := &fakeChat{content: `{"overall_score": 7.5, "red_flag": false, "summary": "שיחה טובה"}`, finish: "stop"}
	svc := NewContentService(chat, st, st, nil, testConfig(), nil)

	transcript := "שלום"
	segments := make([]model.TranscriptSegment, 15)
	for i := range segments {
		segments[i] = model.TranscriptSegment{ID: i, Start: float64(i), End: float64(i + 1), Text: "קטע"}
	}
	report, err := svc.Analyze(context.Background(), &ContentInput{
		Call:       &model.Call{ID: "c1", CallType: "sales_call", CompanyID: "co-1", AnalysisNotes: "התמקד בסגירה"},
		Transcript: &transcript,
		Segments:   segments,
		Tone:       &model.ToneReport{Score: 6},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.OverallScore == nil || *report.OverallScore != 7.5 || report.Summary != "שיחה טובה" {
		t.Errorf("unexpected report %+v", report)
	}

	if chat.got.ResponseFormat == nil || chat.got.ResponseFormat.Type != "json_object" {
		t.Error("expected JSON response format")
	}
	if chat.got.Temperature != 0.3 || chat.got.MaxTokens != 4000 {
		t.Errorf("unexpected sampling settings %v/%d", chat.got.Temperature, chat.got.MaxTokens)
	}
	user, _ := chat.got.Messages[1].Content.(string)
	for _, want := range []string{"אקמה", "התמקד בסגירה", transcript} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
	if strings.Count(user, `"text":"קטע"`) != maxPromptSegments {
		t.Errorf("expected %d segments in prompt", maxPromptSegments)
	}
}

func TestContentService_ModelError(t *testing.T) {
	chat := &fakeChat{err: &client.APIError{Service: "openai", StatusCode: http.StatusInternalServerError}}
	svc := NewContentService(chat, nil, nil, nil, testConfig(), nil)

	_, err := svc.Analyze(context.Background(), &ContentInput{Call: &model.Call{ID: "c1", CallType: "sales_call"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := client.AsAPIError(err); !ok {
		t.Errorf("expected wrapped APIError, got %v", err)
	}
}
