package services

import (
	"encoding/json"
	"time"

	"github.com/maconsulting/parcours/internal/models"
)

// DiagnosticRun is one stored questionnaire submission.
type DiagnosticRun struct {
	ID          string
	Email       string
	IP          string
	Participant models.DiagnosticParticipant
	Status      models.SessionStatus
	Responses   []models.DiagnosticResponse
	Scores      map[string]int
	Metadata    map[string]string
	Total       int
	Orientation string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *DiagnosticRun) Result() models.DiagnosticResult {
	return models.DiagnosticResult{
		ID:          r.ID,
		Email:       r.Email,
		Status:      r.Status,
		Total:       r.Total,
		Orientation: r.Orientation,
		Scores:      r.Scores,
		CreatedAt:   r.CreatedAt,
	}
}

// QuestAccount grants Career Quest access to an email.
type QuestAccount struct {
	Email     string
	CodeHash  []byte
	CreatedAt time.Time
}

type QuestSessionRecord struct {
	ID        string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// QuestProgressRecord is the server copy of a player's progress. Progress
// is stored as sent.
type QuestProgressRecord struct {
	Email     string
	Progress  json.RawMessage
	Revision  int
	UpdatedAt time.Time
}

func (r *QuestProgressRecord) Snapshot() models.QuestSnapshot {
	return models.QuestSnapshot{Progress: r.Progress, Revision: r.Revision, UpdatedAt: r.UpdatedAt}
}

// DealQuery selects a page of one partner's deals.
type DealQuery struct {
	Partner string
	Status  models.DealStatus
	Search  string
	Offset  int
	Limit   int
}

type AuditEntry struct {
	Time   time.Time
	Actor  string
	Action string
	Target string
	Note   string
}
