package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coachcall/api/internal/config"
	"github.com/coachcall/api/internal/model"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(&config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
}

func TestChatCompletion(t *testing.T) {
	var got ChatCompletionRequest
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}]}`)
	})

	resp, err := c.ChatCompletion(context.Background(), &ChatCompletionRequest{
		Model:          "gpt-4o",
		Messages:       []ChatMessage{{Role: "user", Content: "hi"}},
		Temperature:    0.2,
		ResponseFormat: JSONObjectFormat,
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	content, err := resp.Content()
	if err != nil || content != `{"ok":true}` {
		t.Errorf("unexpected content %q (%v)", content, err)
	}
	if resp.Truncated() {
		t.Error("expected not truncated")
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("expected json_object response format, got %+v", got.ResponseFormat)
	}
}

func TestChatCompletion_APIError(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "overloaded")
	})

	_, err := c.ChatCompletion(context.Background(), &ChatCompletionRequest{Model: "m"})
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || !apiErr.Retryable() {
		t.Errorf("unexpected api error %+v", apiErr)
	}
}

func TestChatCompletion_NotConfigured(t *testing.T) {
	c := NewOpenAIClient(&config.OpenAIConfig{BaseURL: "http://localhost"})
	if _, err := c.ChatCompletion(context.Background(), &ChatCompletionRequest{}); err != ErrNotConfigured {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestTranscribe_Multipart(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("language") != "he" {
			t.Errorf("unexpected fields %v", r.MultipartForm.Value)
		}
		if g := r.MultipartForm.Value["timestamp_granularities[]"]; len(g) != 2 {
			t.Errorf("expected 2 granularities, got %v", g)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "audio.mp3" || header.Header.Get("Content-Type") != "audio/mpeg" {
			t.Errorf("unexpected file header %s %v", header.Filename, header.Header)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "ID3audio" {
			t.Errorf("unexpected file body %q", data)
		}
		io.WriteString(w, `{"text":"שלום","language":"hebrew","duration":1.5}`)
	})

	resp, err := c.Transcribe(context.Background(), &TranscriptionRequest{
		Audio:                  []byte("ID3audio"),
		Format:                 model.DetectAudioFormat("a/b.mp3", ""),
		Model:                  "whisper-1",
		Language:               "he",
		ResponseFormat:         "verbose_json",
		TimestampGranularities: []string{"word", "segment"},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	tr := resp.Transcript()
	if tr.Text != "שלום" {
		t.Errorf("unexpected text %q", tr.Text)
	}
	if tr.Segments == nil || tr.Words == nil || len(tr.Segments) != 0 {
		t.Errorf("expected empty non-nil segments and words, got %v %v", tr.Segments, tr.Words)
	}
}

func TestOpenAIToneClient_SendsInputAudio(t *testing.T) {
	var raw map[string]interface{}
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		io.WriteString(w, `{"choices":[{"message":{"content":"{}"}}]}`)
	})

	tone := NewOpenAIToneClient(c, "gpt-4o-audio-preview")
	out, err := tone.AnalyzeAudio(context.Background(), &ToneRequest{
		SystemPrompt: "sys",
		UserPrompt:   "user",
		Audio:        []byte("abc"),
		Format:       model.AudioFormat{Extension: "wav", MIMEType: "audio/wav"},
	})
	if err != nil || out != "{}" {
		t.Fatalf("unexpected result %q (%v)", out, err)
	}

	messages := raw["messages"].([]interface{})
	user := messages[1].(map[string]interface{})
	parts := user["content"].([]interface{})
	audio := parts[1].(map[string]interface{})["input_audio"].(map[string]interface{})
	if audio["data"] != "YWJj" || audio["format"] != "wav" {
		t.Errorf("unexpected audio part %v", audio)
	}
}

func TestHTTPDownloader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, "0123456789")
	}))
	defer srv.Close()

	d := NewHTTPDownloader(5*time.Second, 0)
	got, err := d.Fetch(context.Background(), srv.URL+"/call.mp3")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got.Data) != "0123456789" || got.ContentType != "application/octet-stream" {
		t.Errorf("unexpected download %+v", got)
	}

	if _, err := d.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404")
	} else if apiErr, ok := AsAPIError(err); !ok || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 APIError, got %v", err)
	}

	limited := NewHTTPDownloader(5*time.Second, 4)
	if _, err := limited.Fetch(context.Background(), srv.URL+"/call.mp3"); err == nil {
		t.Error("expected size limit error")
	}
}

func newTestR2(t *testing.T) *R2Client {
	t.Helper()
	c, err := NewR2Client(&config.R2Config{
		AccountID:       "acct",
		AccessKeyID:     "AKIDTEST",
		SecretAccessKey: "secret",
		BucketName:      "recordings",
	})
	if err != nil {
		t.Fatalf("NewR2Client: %v", err)
	}
	return c
}

func TestNewR2Client_Incomplete(t *testing.T) {
	if _, err := NewR2Client(&config.R2Config{AccountID: "acct"}); err == nil {
		t.Error("expected error for missing credentials")
	}
	var nilClient *R2Client
	if nilClient.IsConfigured() {
		t.Error("nil client must not be configured")
	}
}

func TestR2Client_GetSignedURL(t *testing.T) {
	c := newTestR2(t)

	tests := []struct {
		name     string
		key      string
		expiry   time.Duration
		contains []string
		absent   []string
	}{
		{
			name:     "recording with bucket prefix",
			key:      "/recordings/calls/c1.m4a",
			contains: []string{"/recordings/calls/c1.m4a?", "X-Amz-Expires=300", "response-content-type=audio%2Fmp4"},
			absent:   []string{"recordings/recordings"},
		},
		{
			name:     "report",
			key:      "reports/c1/1.xlsx",
			expiry:   time.Hour,
			contains: []string{"X-Amz-Expires=3600", "response-content-disposition="},
			absent:   []string{"response-content-type"},
		},
		{
			name:     "expiry clamped",
			key:      "calls/c2.mp3",
			expiry:   30 * 24 * time.Hour,
			contains: []string{"X-Amz-Expires=604800", "response-content-type=audio%2Fmpeg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, err := c.GetSignedURL(context.Background(), tt.key, tt.expiry)
			if err != nil {
				t.Fatalf("GetSignedURL: %v", err)
			}
			for _, s := range tt.contains {
				if !strings.Contains(url, s) {
					t.Errorf("expected %q in %s", s, url)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(url, s) {
					t.Errorf("unexpected %q in %s", s, url)
				}
			}
		})
	}

	if _, err := c.GetSignedURL(context.Background(), "/", time.Minute); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestAttachmentDisposition(t *testing.T) {
	if got := attachmentDisposition("reports/c1/17.xlsx"); got != `attachment; filename="17.xlsx"` {
		t.Errorf("unexpected disposition %q", got)
	}
	if got := attachmentDisposition("calls/c1.mp3"); got != "" {
		t.Errorf("recordings must not be attachments, got %q", got)
	}
}
