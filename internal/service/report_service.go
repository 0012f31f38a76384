package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/coachcall/api/internal/client"
	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/store"
)

const (
	sheetSummary    = "סיכום"
	sheetCategories = "קטגוריות"
	sheetQuotes     = "ציטוטים"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ErrReportNotReady is returned for calls that have not completed analysis.
var ErrReportNotReady = errors.New("call analysis not completed")

// Report is a rendered XLSX workbook
type Report struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ReportService exports analyzed calls as spreadsheets
type ReportService struct {
	calls   store.CallStore
	storage client.StorageClient
	ttl     time.Duration
}

func NewReportService(calls store.CallStore, storage client.StorageClient, ttl time.Duration) *ReportService {
	return &ReportService{calls: calls, storage: storage, ttl: ttl}
}

// CanUpload reports whether reports can be published to object storage.
func (s *ReportService) CanUpload() bool {
	return s.storage != nil && s.storage.IsConfigured()
}

// Generate renders the workbook of a completed call.
func (s *ReportService) Generate(ctx context.Context, callID string) (*Report, error) {
	call, err := s.calls.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.ProcessingStatus != model.CallStatusCompleted {
		return nil, ErrReportNotReady
	}

	data, err := renderWorkbook(call)
	if err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	return &Report{
		FileName:    fmt.Sprintf("call-%s.xlsx", call.ID),
		ContentType: xlsxContentType,
		Data:        data,
	}, nil
}

// Export uploads the workbook and returns a time-limited download URL.
func (s *ReportService) Export(ctx context.Context, callID string) (*model.ReportExportResponse, error) {
	if !s.CanUpload() {
		return nil, fmt.Errorf("%w: storage client not configured", ErrStorageUnavailable)
	}

	report, err := s.Generate(ctx, callID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("reports/%s/%d.xlsx", callID, time.Now().Unix())
	if _, err := s.storage.Upload(ctx, key, bytes.NewReader(report.Data), report.ContentType); err != nil {
		return nil, fmt.Errorf("failed to upload report: %w", err)
	}

	url, err := s.storage.GetSignedURL(ctx, key, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign report URL: %w", err)
	}

	return &model.ReportExportResponse{
		CallID:    callID,
		FileURL:   url,
		ExpiresAt: time.Now().UTC().Add(s.ttl),
	}, nil
}

func renderWorkbook(call *model.Call) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetCategories, sheetQuotes} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	rtl := true
	for _, name := range []string{sheetSummary, sheetCategories, sheetQuotes} {
		if err := f.SetSheetView(name, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
			return nil, err
		}
	}

	if err := writeSummary(f, call, header); err != nil {
		return nil, err
	}
	if err := writeCategories(f, call.ContentReport, header); err != nil {
		return nil, err
	}
	if err := writeQuotes(f, call.ContentReport, header); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, call *model.Call, header int) error {
	rows := [][]interface{}{
		{"מזהה שיחה", call.ID},
		{"סוג שיחה", call.CallType},
		{"סוג ניתוח", string(call.Mode())},
		{"שם לקוח", call.CustomerName},
	}
	if call.OverallScore != nil {
		rows = append(rows, []interface{}{"ציון כללי", *call.OverallScore})
	}
	if call.RedFlag != nil {
		rows = append(rows, []interface{}{"דגל אדום", yesNo(*call.RedFlag)})
	}
	if call.AnalyzedAt != nil {
		rows = append(rows, []interface{}{"נותח בתאריך", call.AnalyzedAt.Format(time.RFC3339)})
	}
	if call.ErrorMessage != nil {
		rows = append(rows, []interface{}{"הערות עיבוד", *call.ErrorMessage})
	}

	if t := call.ToneReport; t != nil {
		rows = append(rows,
			[]interface{}{"ציון טונציה", t.Score},
			[]interface{}{"טון כללי", t.OverallTone},
			[]interface{}{"דגלי טונציה", strings.Join(t.RedFlags.Raised(), ", ")},
			[]interface{}{"המלצות טונציה", strings.Join(t.ImprovementSuggestions, "\n")},
		)
	}
	if c := call.ContentReport; c != nil {
		rows = append(rows,
			[]interface{}{"סיכום", c.Summary},
			[]interface{}{"תובנות מרכזיות", strings.Join(c.KeyInsights, "\n")},
			[]interface{}{"נקודות לשיפור", strings.Join(c.ImprovementPoints, "\n")},
			[]interface{}{"נקודות חוזק", strings.Join(c.Strengths, "\n")},
			[]interface{}{"המלצות פרקטיות", strings.Join(c.PracticalRecommendations, "\n")},
		)
	}

	if err := writeRows(f, sheetSummary, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetSummary, "A1", fmt.Sprintf("A%d", len(rows)), header); err != nil {
		return err
	}
	return f.SetColWidth(sheetSummary, "A", "B", 40)
}

func writeCategories(f *excelize.File, report *model.ContentReport, header int) error {
	rows := [][]interface{}{{"קטגוריה", "פרמטר", "ציון", "תובנות", "איך משפרים"}}
	if report != nil {
		for _, c := range report.Categories {
			rows = append(rows, []interface{}{c.Title, "ממוצע", c.Average, "", ""})
			for _, p := range c.Parameters {
				rows = append(rows, []interface{}{c.Title, p.Key, p.Score, p.Insights, p.ImprovementAdvice})
			}
		}
	}

	if err := writeRows(f, sheetCategories, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetCategories, "A1", "E1", header); err != nil {
		return err
	}
	return f.SetColWidth(sheetCategories, "A", "E", 30)
}

func writeQuotes(f *excelize.File, report *model.ContentReport, header int) error {
	rows := [][]interface{}{{"ציטוט", "קטגוריה", "הערה", "זמן (שניות)"}}
	if report != nil {
		for _, q := range report.Quotes {
			var ts interface{} = ""
			if q.TimestampSeconds != nil {
				ts = *q.TimestampSeconds
			}
			rows = append(rows, []interface{}{q.Quote, q.Category, q.Note, ts})
		}
	}

	if err := writeRows(f, sheetQuotes, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetQuotes, "A1", "D1", header); err != nil {
		return err
	}
	return f.SetColWidth(sheetQuotes, "A", "D", 35)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "כן"
	}
	return "לא"
}
