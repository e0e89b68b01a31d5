package models

import (
	"encoding/json"
	"time"
)

// QuestLoginRequest is the body of POST /career-quest/login.
type QuestLoginRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// QuestSession is returned by the login call and persisted client-side.
type QuestSession struct {
	SessionID string    `json:"sessionId"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// QuestSnapshot is the server's copy of a progress document. Progress is
// kept raw so the backend never reinterprets client fields.
type QuestSnapshot struct {
	Progress  json.RawMessage `json:"progress"`
	Revision  int             `json:"revision"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// QuestPutRequest is the body of PUT /career-quest/progress. Revision is the
// last revision the client observed.
type QuestPutRequest struct {
	Progress json.RawMessage `json:"progress"`
	Revision int             `json:"revision"`
}

// ProofScore is the AI assessment of a proof screenshot.
type ProofScore struct {
	Score int             `json:"score"`
	Label string          `json:"label"`
	Tips  []string        `json:"tips,omitempty"`
	Meta  json.RawMessage `json:"meta,omitempty"`
}

// CoachRequest is the body of POST /career-quest/coach.
type CoachRequest struct {
	Question string `json:"question"`
	Level    int    `json:"level"`
	TaskID   string `json:"taskId,omitempty"`
}

// CoachReply is the coach's answer.
type CoachReply struct {
	Answer string `json:"answer"`
}

// Header names carrying the Career Quest session on progress calls.
const (
	HeaderQuestSessionID = "x-career-quest-session-id"
	HeaderQuestToken     = "x-career-quest-token"
)
