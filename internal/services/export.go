package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"time"
)

type ExportParams struct {
	// Domain limits the export to one questionnaire domain; empty exports all.
	Domain string
	// Format is long (one row per answer) or wide (one row per run).
	Format string
	Actor  string
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type LongRow struct {
	RunID       string
	Email       string
	QuestionID  string
	Dimension   string
	RawValue    int
	ScoreValue  int
	SubmittedAt string
}

// ExportCSV renders the stored runs as CSV and records the export in the
// audit log.
func (s *AnalyticsService) ExportCSV(p ExportParams) (*ExportResult, error) {
	if p.Domain != "" {
		if _, ok := s.q.Domain(p.Domain); !ok {
			return nil, NewNotFoundError("unknown domain " + p.Domain)
		}
	}
	format := p.Format
	if format == "" {
		format = "long"
	}
	runs, err := runsForDomain(s.store, p.Domain)
	if err != nil {
		return nil, err
	}

	var (
		data []byte
		name string
	)
	switch format {
	case "long":
		data, err = ExportLongCSV(buildLongRows(runs))
		name = "diagnostics-long.csv"
	case "wide":
		data, err = ExportWideCSV(runs)
		name = "diagnostics-wide.csv"
	default:
		return nil, NewInvalidError("unsupported format " + strconv.Quote(format))
	}
	if err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{
		Time:   time.Now().UTC(),
		Actor:  p.Actor,
		Action: "diagnostic.export",
		Target: p.Domain,
		Note:   format + " " + strconv.Itoa(len(runs)) + " runs",
	})
	return &ExportResult{Filename: name, ContentType: "text/csv; charset=utf-8", Data: data}, nil
}

func buildLongRows(runs []*DiagnosticRun) []LongRow {
	var rows []LongRow
	for _, r := range runs {
		at := r.CreatedAt.UTC().Format(time.RFC3339)
		for _, resp := range r.Responses {
			rows = append(rows, LongRow{
				RunID:       r.ID,
				Email:       r.Email,
				QuestionID:  resp.QuestionID,
				Dimension:   resp.Dimension,
				RawValue:    resp.RawValue,
				ScoreValue:  resp.ScoreValue,
				SubmittedAt: at,
			})
		}
	}
	return rows
}

// ExportLongCSV renders one row per answer.
func ExportLongCSV(rows []LongRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"run_id", "email", "question_id", "dimension", "raw_value", "score_value", "submitted_at"})
	for _, r := range rows {
		rec := []string{
			r.RunID,
			r.Email,
			r.QuestionID,
			r.Dimension,
			strconv.Itoa(r.RawValue),
			strconv.Itoa(r.ScoreValue),
			r.SubmittedAt,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportWideCSV renders one row per run with a score column per question.
// Question columns are sorted; a question the run did not answer is empty.
func ExportWideCSV(runs []*DiagnosticRun) ([]byte, error) {
	set := map[string]struct{}{}
	for _, r := range runs {
		for _, resp := range r.Responses {
			set[resp.QuestionID] = struct{}{}
		}
	}
	questions := make([]string, 0, len(set))
	for id := range set {
		questions = append(questions, id)
	}
	sort.Strings(questions)

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := append([]string{"run_id", "email", "status", "total", "orientation", "created_at"}, questions...)
	_ = w.Write(header)
	for _, r := range runs {
		byID := make(map[string]int, len(r.Responses))
		for _, resp := range r.Responses {
			byID[resp.QuestionID] = resp.ScoreValue
		}
		row := make([]string, 0, len(header))
		row = append(row, r.ID, r.Email, string(r.Status), strconv.Itoa(r.Total), r.Orientation,
			r.CreatedAt.UTC().Format(time.RFC3339))
		for _, id := range questions {
			if v, ok := byID[id]; ok {
				row = append(row, strconv.Itoa(v))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
