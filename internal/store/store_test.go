package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coachcall/api/internal/model"
)

func sampleCall() *model.Call {
	transcript := "שלום, מדבר דני"
	score := 7.5
	flag := true
	analyzed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	overall := 8.0
	return &model.Call{
		ID:               "call-1",
		UserID:           "user-1",
		CompanyID:        "company-1",
		CallType:         "sales_call",
		AnalysisType:     model.AnalysisTypeFull,
		AudioFilePath:    "calls/call-1.mp3",
		CustomerName:     "רונית",
		AgentNotes:       "לקוחה חוזרת",
		ProcessingStatus: model.CallStatusCompleted,
		Transcript:       &transcript,
		TranscriptSegments: []model.TranscriptSegment{
			{ID: 0, Start: 0, End: 1.5, Text: "שלום"},
		},
		TranscriptWords: []model.TranscriptWord{{Word: "שלום", Start: 0, End: 0.5}},
		ToneReport:      &model.ToneReport{OverallTone: "חם", Score: 8},
		ContentReport:   &model.ContentReport{OverallScore: &overall, KeyInsights: []string{"פתיחה טובה"}},
		OverallScore:    &score,
		RedFlag:         &flag,
		AnalyzedAt:      &analyzed,
		CreatedAt:       time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestCallHashRoundTrip(t *testing.T) {
	in := sampleCall()

	cols, err := callColumns(in)
	if err != nil {
		t.Fatalf("callColumns: %v", err)
	}

	fields := hashFields(cols)
	h := make(map[string]string, len(fields))
	for k, v := range fields {
		h[k] = v.(string)
	}

	out, err := callFromHash(h)
	if err != nil {
		t.Fatalf("callFromHash: %v", err)
	}

	if out.ID != in.ID || out.CallType != in.CallType || out.CustomerName != in.CustomerName {
		t.Errorf("identity fields differ: %+v", out)
	}
	if out.ProcessingStatus != model.CallStatusCompleted {
		t.Errorf("unexpected status %s", out.ProcessingStatus)
	}
	if out.Transcript == nil || *out.Transcript != *in.Transcript {
		t.Errorf("unexpected transcript %v", out.Transcript)
	}
	if len(out.TranscriptSegments) != 1 || out.TranscriptSegments[0].End != 1.5 {
		t.Errorf("unexpected segments %+v", out.TranscriptSegments)
	}
	if out.ToneReport == nil || out.ToneReport.OverallTone != "חם" {
		t.Errorf("unexpected tone report %+v", out.ToneReport)
	}
	if out.ContentReport == nil || out.ContentReport.OverallScore == nil || *out.ContentReport.OverallScore != 8 {
		t.Errorf("unexpected content report %+v", out.ContentReport)
	}
	if out.OverallScore == nil || *out.OverallScore != 7.5 {
		t.Errorf("unexpected score %v", out.OverallScore)
	}
	if out.RedFlag == nil || !*out.RedFlag {
		t.Errorf("unexpected red flag %v", out.RedFlag)
	}
	if out.AnalyzedAt == nil || !out.AnalyzedAt.Equal(*in.AnalyzedAt) {
		t.Errorf("unexpected analyzed_at %v", out.AnalyzedAt)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("unexpected created_at %v", out.CreatedAt)
	}
	if err := out.Validate(); err != nil {
		t.Errorf("round-tripped call invalid: %v", err)
	}
}

func TestCallFromHash_Defaults(t *testing.T) {
	c, err := callFromHash(map[string]string{
		colID:                 "c1",
		model.ColErrorMessage: "",
	})
	if err != nil {
		t.Fatalf("callFromHash: %v", err)
	}
	if c.ProcessingStatus != model.CallStatusPending {
		t.Errorf("expected pending, got %s", c.ProcessingStatus)
	}
	if c.AnalysisType != model.AnalysisTypeFull {
		t.Errorf("expected full analysis, got %s", c.AnalysisType)
	}
	if c.ErrorMessage != nil {
		t.Errorf("expected cleared error message, got %q", *c.ErrorMessage)
	}
}

func TestCallFromHash_BadValue(t *testing.T) {
	if _, err := callFromHash(map[string]string{model.ColOverallScore: "abc"}); err == nil {
		t.Error("expected decode error")
	}
}

func TestSQLValues_ClearsErrorMessage(t *testing.T) {
	empty := ""
	cols, err := model.CallUpdate{ErrorMessage: &empty}.Columns()
	if err != nil {
		t.Fatal(err)
	}
	if v := sqlValues(cols)[model.ColErrorMessage]; v != nil {
		t.Errorf("expected NULL error message, got %v", v)
	}
}

func TestParsePromptRegistry(t *testing.T) {
	r, err := ParsePromptRegistry([]byte(`
prompts:
  sales_call: |
    אתה מאמן מכירות. החזר JSON.
  " service_call ": "שירות לקוחות"
  empty: "   "
`))
	if err != nil {
		t.Fatalf("ParsePromptRegistry: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 prompts, got %d", r.Len())
	}

	p, ok, err := r.GetPromptForCategory(context.Background(), "sales_call")
	if err != nil || !ok || p == "" {
		t.Errorf("expected sales prompt, got %q %v %v", p, ok, err)
	}
	if _, ok, _ := r.GetPromptForCategory(context.Background(), "service_call"); !ok {
		t.Error("expected trimmed key lookup to succeed")
	}
	if _, ok, _ := r.GetPromptForCategory(context.Background(), "empty"); ok {
		t.Error("blank prompt must be ignored")
	}
}

func TestLoadFilePromptRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("prompts:\n  sales_call: rubric\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := LoadFilePromptRegistry(path)
	if err != nil {
		t.Fatalf("LoadFilePromptRegistry: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 prompt, got %d", r.Len())
	}

	if _, err := LoadFilePromptRegistry(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

type errRegistry struct{ err error }

func (e errRegistry) GetPromptForCategory(context.Context, string) (string, bool, error) {
	return "", false, e.err
}

func TestChainRegistry(t *testing.T) {
	ctx := context.Background()

	primary := NewMemoryStore()
	_ = primary.UpsertPrompt(ctx, "sales_call", "from store")
	file, _ := ParsePromptRegistry([]byte("prompts:\n  sales_call: from file\n  service_call: file only\n"))

	chain := ChainRegistry{primary, nil, file}

	if p, ok, _ := chain.GetPromptForCategory(ctx, "sales_call"); !ok || p != "from store" {
		t.Errorf("expected store prompt first, got %q", p)
	}
	if p, ok, _ := chain.GetPromptForCategory(ctx, "service_call"); !ok || p != "file only" {
		t.Errorf("expected file fallback, got %q", p)
	}
	if _, ok, _ := chain.GetPromptForCategory(ctx, "unknown"); ok {
		t.Error("expected miss")
	}

	boom := errors.New("boom")
	if _, _, err := (ChainRegistry{errRegistry{boom}, file}).GetPromptForCategory(ctx, "sales_call"); !errors.Is(err, boom) {
		t.Errorf("expected registry error, got %v", err)
	}
}

func TestMemoryStore_PartialUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	call := &model.Call{ID: "c1", CallType: "sales_call", ProcessingStatus: model.CallStatusPending, CreatedAt: time.Now()}
	if err := s.CreateCall(ctx, call); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	if err := s.CreateCall(ctx, call); !errors.Is(err, ErrCallExists) {
		t.Errorf("expected ErrCallExists, got %v", err)
	}

	transcript := "טקסט"
	if err := s.UpdateCall(ctx, "c1", model.CallUpdate{Transcript: &transcript}); err != nil {
		t.Fatalf("UpdateCall: %v", err)
	}
	if err := s.UpdateCall(ctx, "c1", model.StatusUpdate(model.CallStatusAnalyzingTone)); err != nil {
		t.Fatalf("UpdateCall: %v", err)
	}

	got, err := s.GetCall(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.Transcript == nil || *got.Transcript != transcript {
		t.Error("status update clobbered the transcript")
	}
	if got.ProcessingStatus != model.CallStatusAnalyzingTone {
		t.Errorf("unexpected status %s", got.ProcessingStatus)
	}

	got.CallType = "mutated"
	again, _ := s.GetCall(ctx, "c1")
	if again.CallType != "sales_call" {
		t.Error("GetCall must return a copy")
	}

	if err := s.UpdateCall(ctx, "missing", model.StatusUpdate(model.CallStatusError)); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("expected ErrCallNotFound, got %v", err)
	}
}

func TestMemoryStore_ResetResults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateCall(ctx, sampleCall()); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}

	transcript := "תמלול חדש"
	u := model.StatusUpdate(model.CallStatusTranscribing)
	u.ResetResults = true
	u.Transcript = &transcript
	if err := s.UpdateCall(ctx, "call-1", u); err != nil {
		t.Fatalf("UpdateCall: %v", err)
	}

	got, err := s.GetCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.Transcript == nil || *got.Transcript != transcript {
		t.Errorf("transcript set on the same update must win, got %v", got.Transcript)
	}
	if got.ToneReport != nil || got.ContentReport != nil || got.OverallScore != nil || got.RedFlag != nil || got.AnalyzedAt != nil || got.TranscriptSegments != nil {
		t.Errorf("expected earlier results cleared, got %+v", got)
	}
}

func TestUpdateColumns_ResetResultsNullsColumns(t *testing.T) {
	u := model.StatusUpdate(model.CallStatusTranscribing)
	u.ResetResults = true
	u.ErrorMessage = new(string)
	cols, err := updateColumns(u)
	if err != nil {
		t.Fatal(err)
	}
	if cols[model.ColProcessingStatus] != string(model.CallStatusTranscribing) {
		t.Errorf("expected status kept, got %v", cols[model.ColProcessingStatus])
	}
	if v, ok := cols[model.ColErrorMessage]; !ok || v != nil {
		t.Errorf("expected empty error_message set to NULL, got %v", v)
	}
	for _, col := range []string{model.ColTranscript, model.ColToneReport, model.ColContentReport, model.ColOverallScore} {
		if v, ok := cols[col]; !ok || v != nil {
			t.Errorf("expected %s set to NULL, got %v (present=%v)", col, v, ok)
		}
	}
}

func TestMemoryStore_ListStalled(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	old := time.Now().Add(-time.Hour)

	_ = s.CreateCall(ctx, &model.Call{ID: "a", ProcessingStatus: model.CallStatusTranscribing, CreatedAt: old})
	_ = s.CreateCall(ctx, &model.Call{ID: "b", ProcessingStatus: model.CallStatusCompleted, CreatedAt: old})
	_ = s.CreateCall(ctx, &model.Call{ID: "c", ProcessingStatus: model.CallStatusPending, CreatedAt: old})
	_ = s.CreateCall(ctx, &model.Call{ID: "d", ProcessingStatus: model.CallStatusAnalyzingContent, CreatedAt: time.Now()})

	stalled, err := s.ListStalled(ctx, time.Now().Add(-10*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListStalled: %v", err)
	}
	if len(stalled) != 1 || stalled[0].ID != "a" {
		t.Errorf("expected only call a, got %+v", stalled)
	}
}

func TestMemoryStore_Logs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, msg := range []string{"one", "two", "three"} {
		if err := s.AppendLog(ctx, &model.CallLog{CallID: "c1", Message: msg}); err != nil {
			t.Fatal(err)
		}
	}

	logs, _ := s.ListLogs(ctx, "c1", 2)
	if len(logs) != 2 || logs[0].Message != "two" || logs[1].Message != "three" {
		t.Errorf("unexpected logs %+v", logs)
	}
	if logs[0].ID == "" || logs[0].CreatedAt.IsZero() {
		t.Error("expected generated id and timestamp")
	}
}

// newTestRedis connects to a local Redis on DB 15 or skips.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisStore(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	s := NewRedisStore(rdb)

	call := sampleCall()
	call.ID = "redis-test-" + time.Now().Format("150405.000000000")
	call.ProcessingStatus = model.CallStatusTranscribing
	t.Cleanup(func() {
		rdb.Del(ctx, callKey(call.ID), callLogsKey(call.ID))
		rdb.ZRem(ctx, activeCallsKey, call.ID)
	})

	if err := s.CreateCall(ctx, call); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}

	msg := "שגיאת תמלול"
	if err := s.UpdateCall(ctx, call.ID, model.CallUpdate{ErrorMessage: &msg}); err != nil {
		t.Fatalf("UpdateCall: %v", err)
	}
	got, err := s.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != msg {
		t.Errorf("unexpected error message %v", got.ErrorMessage)
	}
	if got.Transcript == nil || *got.Transcript != *call.Transcript {
		t.Error("partial update clobbered transcript")
	}

	stalled, err := s.ListStalled(ctx, time.Now().Add(time.Minute), 100)
	if err != nil {
		t.Fatalf("ListStalled: %v", err)
	}
	found := false
	for _, c := range stalled {
		found = found || c.ID == call.ID
	}
	if !found {
		t.Error("expected in-flight call in stalled list")
	}

	if err := s.UpdateCall(ctx, call.ID, model.StatusUpdate(model.CallStatusCompleted)); err != nil {
		t.Fatalf("UpdateCall: %v", err)
	}
	if n, _ := rdb.ZScore(ctx, activeCallsKey, call.ID).Result(); n != 0 {
		t.Error("terminal call must leave the active index")
	}

	reset := model.StatusUpdate(model.CallStatusTranscribing)
	reset.ResetResults = true
	if err := s.UpdateCall(ctx, call.ID, reset); err != nil {
		t.Fatalf("UpdateCall: %v", err)
	}
	got, err = s.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.Transcript != nil || got.ToneReport != nil || got.ContentReport != nil || got.OverallScore != nil {
		t.Errorf("reset left earlier results: %+v", got)
	}

	if err := s.AppendLog(ctx, &model.CallLog{CallID: call.ID, Message: "התחלת תמלול"}); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	logs, err := s.ListLogs(ctx, call.ID, 10)
	if err != nil || len(logs) != 1 {
		t.Errorf("unexpected logs %+v (%v)", logs, err)
	}

	if err := s.UpdateCall(ctx, "redis-test-missing", model.StatusUpdate(model.CallStatusError)); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("expected ErrCallNotFound, got %v", err)
	}
}
