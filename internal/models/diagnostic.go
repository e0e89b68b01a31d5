package models

import "time"

// DiagnosticParticipant identifies who answered a diagnostic run.
type DiagnosticParticipant struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Company   string `json:"company,omitempty"`
}

// DiagnosticResponse is one answered Likert question.
type DiagnosticResponse struct {
	QuestionID string `json:"questionId"`
	Dimension  string `json:"dimension"`
	RawValue   int    `json:"rawValue"`
	ScoreValue int    `json:"scoreValue"`
}

// DiagnosticRunRequest is the body of POST /diagnostic-sessions.
type DiagnosticRunRequest struct {
	Participant DiagnosticParticipant `json:"participant"`
	Responses   []DiagnosticResponse  `json:"responses"`
	Scores      map[string]int        `json:"scores"`
	Metadata    map[string]string     `json:"metadata,omitempty"`
}

// DiagnosticResult is what the backend echoes after storing a run. The
// client displays Total and Orientation as received.
type DiagnosticResult struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Status      SessionStatus  `json:"status"`
	Total       int            `json:"total"`
	Orientation string         `json:"orientation"`
	Scores      map[string]int `json:"scores"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Subscription is the public view of a participant's Service 1 access.
type Subscription struct {
	Email     string     `json:"email"`
	Active    bool       `json:"active"`
	Plan      string     `json:"plan,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}
