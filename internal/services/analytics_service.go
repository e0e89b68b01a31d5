package services

import (
	"sort"

	"github.com/maconsulting/parcours/internal/diagnostic"
)

// AnalyticsStore lists every stored run, oldest first.
type AnalyticsStore interface {
	ListRuns() ([]*DiagnosticRun, error)
	AddAudit(entry AuditEntry)
}

// AnalyticsService aggregates diagnostic runs for staff.
type AnalyticsService struct {
	store AnalyticsStore
	q     *diagnostic.Questionnaire
}

type AnalyticsQuestion struct {
	ID        string `json:"id"`
	Dimension string `json:"dimension"`
	Reverse   bool   `json:"reverse"`
	// Histogram counts score values 1..points.
	Histogram []int `json:"histogram"`
	Total     int   `json:"total"`
}

type AnalyticsTimeseries struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type DomainAnalytics struct {
	Domain       string                       `json:"domain"`
	Points       int                          `json:"points"`
	Runs         int                          `json:"runs"`
	MeanTotal    float64                      `json:"meanTotal"`
	ByStatus     map[string]int               `json:"byStatus"`
	Orientations map[string]int               `json:"orientations"`
	Questions    []AnalyticsQuestion          `json:"questions"`
	Timeseries   []AnalyticsTimeseries        `json:"timeseries"`
	Alpha        float64                      `json:"alpha"`
	N            int                          `json:"n"`
	Dimensions   map[string]DimensionAnalytic `json:"dimensions"`
}

// DimensionAnalytic is the mean score of one dimension across runs.
type DimensionAnalytic struct {
	Mean float64 `json:"mean"`
	N    int     `json:"n"`
}

func NewAnalyticsService(store AnalyticsStore, q *diagnostic.Questionnaire) *AnalyticsService {
	return &AnalyticsService{store: store, q: q}
}

// runsForDomain returns the runs tagged with domainID. An empty id keeps
// every run.
func runsForDomain(store AnalyticsStore, domainID string) ([]*DiagnosticRun, error) {
	runs, err := store.ListRuns()
	if err != nil {
		return nil, err
	}
	if domainID == "" {
		return runs, nil
	}
	out := runs[:0]
	for _, r := range runs {
		if r.Metadata["domain"] == domainID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Summary aggregates the runs of one questionnaire domain.
func (s *AnalyticsService) Summary(domainID string) (*DomainAnalytics, error) {
	dom, ok := s.q.Domain(domainID)
	if !ok {
		return nil, NewNotFoundError("unknown domain " + domainID)
	}
	runs, err := runsForDomain(s.store, domainID)
	if err != nil {
		return nil, err
	}
	points := s.q.Points
	if points <= 0 {
		points = 5
	}

	out := &DomainAnalytics{
		Domain:       dom.ID,
		Points:       points,
		Runs:         len(runs),
		ByStatus:     map[string]int{},
		Orientations: map[string]int{},
		Dimensions:   map[string]DimensionAnalytic{},
	}
	questions, countsByDay := buildAnalyticsQuestions(dom, runs, points)
	out.Questions = questions
	out.Timeseries = buildTimeseries(countsByDay)
	matrix, n := buildAlphaMatrix(dom, runs)
	out.Alpha, out.N = CronbachAlpha(matrix), n

	sums := map[string]int{}
	total := 0
	for _, r := range runs {
		total += r.Total
		out.ByStatus[string(r.Status)]++
		out.Orientations[r.Orientation]++
		for dim, v := range r.Scores {
			sums[dim] += v
			d := out.Dimensions[dim]
			d.N++
			out.Dimensions[dim] = d
		}
	}
	if len(runs) > 0 {
		out.MeanTotal = float64(total) / float64(len(runs))
	}
	for dim, d := range out.Dimensions {
		d.Mean = float64(sums[dim]) / float64(d.N)
		out.Dimensions[dim] = d
	}
	return out, nil
}

func buildAnalyticsQuestions(dom diagnostic.Domain, runs []*DiagnosticRun, points int) ([]AnalyticsQuestion, map[string]int) {
	index := make(map[string]int, len(dom.Questions))
	out := make([]AnalyticsQuestion, 0, len(dom.Questions))
	for i, q := range dom.Questions {
		out = append(out, AnalyticsQuestion{
			ID:        q.ID,
			Dimension: q.Dimension,
			Reverse:   q.Reverse,
			Histogram: make([]int, points),
		})
		index[q.ID] = i
	}
	countsByDay := map[string]int{}
	for _, r := range runs {
		for _, resp := range r.Responses {
			idx, ok := index[resp.QuestionID]
			if !ok {
				continue
			}
			if v := resp.ScoreValue; v >= 1 && v <= points {
				out[idx].Histogram[v-1]++
				out[idx].Total++
			}
		}
		countsByDay[r.CreatedAt.UTC().Format("2006-01-02")]++
	}
	return out, countsByDay
}

// buildAlphaMatrix keeps only runs that answered every question of dom.
func buildAlphaMatrix(dom diagnostic.Domain, runs []*DiagnosticRun) ([][]float64, int) {
	matrix := make([][]float64, 0, len(runs))
	for _, r := range runs {
		byID := make(map[string]float64, len(r.Responses))
		for _, resp := range r.Responses {
			byID[resp.QuestionID] = float64(resp.ScoreValue)
		}
		row := make([]float64, 0, len(dom.Questions))
		for _, q := range dom.Questions {
			v, ok := byID[q.ID]
			if !ok {
				break
			}
			row = append(row, v)
		}
		if len(row) == len(dom.Questions) {
			matrix = append(matrix, row)
		}
	}
	return matrix, len(matrix)
}

func buildTimeseries(counts map[string]int) []AnalyticsTimeseries {
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]AnalyticsTimeseries, 0, len(days))
	for _, d := range days {
		out = append(out, AnalyticsTimeseries{Date: d, Count: counts[d]})
	}
	return out
}
