package services

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func readCSV(b []byte) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(string(b)))
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

func TestExportLongCSV(t *testing.T) {
	rows := []LongRow{
		{RunID: "R1", Email: "a@test.fr", QuestionID: "Q1", Dimension: "vision", RawValue: 4, ScoreValue: 2, SubmittedAt: "2026-01-01T00:00:00Z"},
		{RunID: "R1", Email: "a@test.fr", QuestionID: "Q2", Dimension: "communication", RawValue: 5, ScoreValue: 5, SubmittedAt: "2026-01-01T00:00:00Z"},
	}
	b, err := ExportLongCSV(rows)
	if err != nil {
		t.Fatalf("export long: %v", err)
	}
	recs, err := readCSV(b)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(recs) != 1+len(rows) {
		t.Fatalf("want %d rows, got %d", 1+len(rows), len(recs))
	}
	if got := strings.Join(recs[0], ","); got != "run_id,email,question_id,dimension,raw_value,score_value,submitted_at" {
		t.Fatalf("bad header: %s", got)
	}
	if recs[1][5] != "2" {
		t.Fatalf("score value not written: %v", recs[1])
	}
}

func TestExportWideCSV_MissingAnswersAreEmpty(t *testing.T) {
	q := loadQuestionnaire(t)
	full := scoredRun(t, q, "r1", "management", 4, time.Now())
	partial := scoredRun(t, q, "r2", "management", 3, time.Now())
	partial.Responses = partial.Responses[:1]

	b, err := ExportWideCSV([]*DiagnosticRun{full, partial})
	if err != nil {
		t.Fatalf("export wide: %v", err)
	}
	recs, err := readCSV(b)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("rows mismatch: %d", len(recs))
	}
	if strings.Join(recs[0][:6], ",") != "run_id,email,status,total,orientation,created_at" {
		t.Fatalf("header mismatch: %v", recs[0])
	}
	if len(recs[0]) != 6+len(full.Responses) {
		t.Fatalf("expected one column per question: %v", recs[0])
	}
	empty := 0
	for _, cell := range recs[2][6:] {
		if cell == "" {
			empty++
		}
	}
	if empty != len(full.Responses)-1 {
		t.Fatalf("expected %d empty cells, got %d", len(full.Responses)-1, empty)
	}
}

func TestExportCSV_AuditsAndFilters(t *testing.T) {
	q := loadQuestionnaire(t)
	store := &stubAnalyticsStore{runs: []*DiagnosticRun{
		scoredRun(t, q, "r1", "management", 4, time.Now()),
		scoredRun(t, q, "r2", "commercial", 4, time.Now()),
	}}
	svc := NewAnalyticsService(store, q)

	res, err := svc.ExportCSV(ExportParams{Domain: "management", Actor: "staff"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Filename != "diagnostics-long.csv" || !strings.HasPrefix(res.ContentType, "text/csv") {
		t.Fatalf("unexpected result meta: %+v", res)
	}
	if strings.Contains(string(res.Data), "r2@test.fr") {
		t.Fatalf("export leaked another domain")
	}
	if len(store.audit) != 1 || store.audit[0].Action != "diagnostic.export" {
		t.Fatalf("export not audited: %+v", store.audit)
	}

	if _, err := svc.ExportCSV(ExportParams{Format: "xlsx"}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	if _, err := svc.ExportCSV(ExportParams{Domain: "nope"}); err == nil {
		t.Fatalf("expected unknown domain error")
	}
}
