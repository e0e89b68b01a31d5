// Package diagnostic runs the professional diagnostic questionnaire: email
// check, domain choice, Likert answers and submission.
package diagnostic

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/maconsulting/parcours/internal/models"
)

//go:embed questionnaire.yaml
var questionnaireYAML []byte

type Question struct {
	ID        string `yaml:"id"`
	Dimension string `yaml:"dimension"`
	Text      string `yaml:"text"`
	Reverse   bool   `yaml:"reverse"`
}

type Domain struct {
	ID        string     `yaml:"id"`
	Title     string     `yaml:"title"`
	Questions []Question `yaml:"questions"`
}

// Questionnaire is the set of domains a participant chooses from.
type Questionnaire struct {
	Points  int      `yaml:"points"`
	Domains []Domain `yaml:"domains"`
}

// Default returns the embedded questionnaire.
func Default() (*Questionnaire, error) {
	return ParseQuestionnaire(questionnaireYAML)
}

// ParseQuestionnaire decodes and checks a YAML questionnaire.
func ParseQuestionnaire(data []byte) (*Questionnaire, error) {
	var q Questionnaire
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("parse questionnaire: %w", err)
	}
	if q.Points < 2 {
		return nil, fmt.Errorf("questionnaire: points must be >= 2, got %d", q.Points)
	}
	seen := map[string]bool{}
	for _, d := range q.Domains {
		if d.ID == "" || len(d.Questions) == 0 {
			return nil, fmt.Errorf("questionnaire: domain %q is empty", d.ID)
		}
		for _, it := range d.Questions {
			if it.ID == "" || it.Dimension == "" {
				return nil, fmt.Errorf("questionnaire: domain %s has a question without id or dimension", d.ID)
			}
			if seen[it.ID] {
				return nil, fmt.Errorf("questionnaire: duplicate question %s", it.ID)
			}
			seen[it.ID] = true
		}
	}
	return &q, nil
}

// Domain looks up a domain by id.
func (q *Questionnaire) Domain(id string) (Domain, bool) {
	for _, d := range q.Domains {
		if d.ID == id {
			return d, true
		}
	}
	return Domain{}, false
}

// ReverseScore maps a raw Likert value to its reverse-scored value for a
// scale of points (e.g. 5 or 7). Out-of-range values are clamped.
func ReverseScore(raw, points int) int {
	if points < 2 {
		return raw
	}
	if raw < 1 {
		raw = 1
	}
	if raw > points {
		raw = points
	}
	return (points + 1) - raw
}

// Score turns answers into wire responses and per-dimension sums. Every
// question of d must be answered with a value in [1, points].
func Score(d Domain, points int, answers map[string]int) ([]models.DiagnosticResponse, map[string]int, error) {
	responses := make([]models.DiagnosticResponse, 0, len(d.Questions))
	scores := map[string]int{}
	for _, it := range d.Questions {
		raw, ok := answers[it.ID]
		if !ok {
			return nil, nil, fmt.Errorf("question %s: %w", it.ID, ErrIncomplete)
		}
		if raw < 1 || raw > points {
			return nil, nil, fmt.Errorf("question %s: value %d out of range 1..%d", it.ID, raw, points)
		}
		score := raw
		if it.Reverse {
			score = ReverseScore(raw, points)
		}
		responses = append(responses, models.DiagnosticResponse{
			QuestionID: it.ID,
			Dimension:  it.Dimension,
			RawValue:   raw,
			ScoreValue: score,
		})
		scores[it.Dimension] += score
	}
	return responses, scores, nil
}

// Orientation labels a total relative to the best possible total.
func Orientation(total, max int) string {
	if max <= 0 {
		return OrientationFoundations
	}
	pct := total * 100 / max
	switch {
	case pct >= 75:
		return OrientationConsolidation
	case pct >= 50:
		return OrientationDevelopment
	default:
		return OrientationFoundations
	}
}

const (
	OrientationConsolidation = "consolidation"
	OrientationDevelopment   = "developpement"
	OrientationFoundations   = "fondations"
)

// Dimensions lists the dimension names of d in sorted order.
func Dimensions(d Domain) []string {
	set := map[string]bool{}
	for _, it := range d.Questions {
		set[it.Dimension] = true
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
