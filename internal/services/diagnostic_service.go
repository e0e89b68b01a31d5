package services

import (
	"net/mail"
	"strconv"
	"time"

	"github.com/maconsulting/parcours/internal/diagnostic"
	"github.com/maconsulting/parcours/internal/models"
	"github.com/maconsulting/parcours/internal/utils"
)

type DiagnosticStore interface {
	AddRun(r *DiagnosticRun) error
	GetRun(id string) (*DiagnosticRun, error)
	UpdateRun(r *DiagnosticRun) error
	LatestRunByEmail(email string) (*DiagnosticRun, error)
	LatestRunByIP(ip string) (*DiagnosticRun, error)
	AddAudit(entry AuditEntry)
}

// DiagnosticService stores questionnaire runs and answers the eligibility
// and public lookups derived from them.
type DiagnosticService struct {
	store DiagnosticStore
	q     *diagnostic.Questionnaire
	now   func() time.Time
	idGen func() string
}

func NewDiagnosticService(store DiagnosticStore, q *diagnostic.Questionnaire) *DiagnosticService {
	return &DiagnosticService{
		store: store,
		q:     q,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return "run_" + shortID(12) },
	}
}

func normalizeEmail(email string) (string, error) {
	e := utils.NormalizeEmail(email)
	if e == "" {
		return "", NewInvalidError("email required")
	}
	if addr, err := mail.ParseAddress(e); err != nil || addr.Address != e {
		return "", NewInvalidError("invalid email")
	}
	return e, nil
}

// blocking reports whether status prevents a new run.
func blocking(s models.SessionStatus) bool {
	switch s {
	case models.StatusPending, models.StatusCancelled, models.StatusSuspended:
		return true
	}
	return false
}

// Eligibility derives the decision from the latest run for email, then for
// ip when the email has no history.
func (s *DiagnosticService) Eligibility(email, ip string) (models.Eligibility, error) {
	e, err := normalizeEmail(email)
	if err != nil {
		return models.Eligibility{}, err
	}
	run, err := s.store.LatestRunByEmail(e)
	if err != nil {
		return models.Eligibility{}, err
	}
	by := models.BlockedByEmail
	if run == nil && ip != "" {
		if run, err = s.store.LatestRunByIP(ip); err != nil {
			return models.Eligibility{}, err
		}
		by = models.BlockedByIP
		if run != nil && !blocking(run.Status) {
			run = nil
		}
	}
	if run == nil {
		return models.Eligibility{AllowNew: true, Reason: models.ReasonNew, BlockedBy: models.BlockedByNone}, nil
	}
	if !blocking(run.Status) {
		return models.Eligibility{AllowNew: true, Reason: run.Status.Reason(), BlockedBy: models.BlockedByNone}, nil
	}
	return models.Eligibility{AllowNew: false, Reason: run.Status.Reason(), BlockedBy: by}, nil
}

// Create stores a run. Scores are recomputed from the embedded
// questionnaire; the client's totals are not trusted.
func (s *DiagnosticService) Create(req models.DiagnosticRunRequest, ip string) (*DiagnosticRun, error) {
	e, err := normalizeEmail(req.Participant.Email)
	if err != nil {
		return nil, err
	}
	elig, err := s.Eligibility(e, "")
	if err != nil {
		return nil, err
	}
	if !elig.AllowNew {
		return nil, NewConflictError("a diagnostic is already " + string(elig.Reason))
	}
	if len(req.Responses) == 0 {
		return nil, NewInvalidError("responses required")
	}

	domainID := req.Metadata["domain"]
	dom, ok := s.q.Domain(domainID)
	if !ok {
		return nil, NewInvalidError("unknown domain " + strconv.Quote(domainID))
	}
	answers := make(map[string]int, len(req.Responses))
	for _, r := range req.Responses {
		answers[r.QuestionID] = r.RawValue
	}
	responses, scores, err := diagnostic.Score(dom, s.q.Points, answers)
	if err != nil {
		return nil, NewInvalidError(err.Error())
	}
	total := 0
	for _, r := range responses {
		total += r.ScoreValue
	}

	now := s.now()
	participant := req.Participant
	participant.Email = e
	run := &DiagnosticRun{
		ID:          s.idGen(),
		Email:       e,
		IP:          ip,
		Participant: participant,
		Status:      models.StatusPending,
		Responses:   responses,
		Scores:      scores,
		Metadata:    req.Metadata,
		Total:       total,
		Orientation: diagnostic.Orientation(total, len(responses)*s.q.Points),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.AddRun(run); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: now, Actor: e, Action: "diagnostic_create", Target: run.ID})
	return run, nil
}

// PublicResult returns the latest run for email.
func (s *DiagnosticService) PublicResult(email string) (*DiagnosticRun, error) {
	e, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	run, err := s.store.LatestRunByEmail(e)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, NewNotFoundError("diagnostic not found")
	}
	return run, nil
}

// SubscriptionTerm is how long a validated run grants Service 1 access.
const SubscriptionTerm = 365 * 24 * time.Hour

// PublicSubscription reports Service 1 access. A done run is active for
// SubscriptionTerm after its last update.
func (s *DiagnosticService) PublicSubscription(email string) (models.Subscription, error) {
	e, err := normalizeEmail(email)
	if err != nil {
		return models.Subscription{}, err
	}
	run, err := s.store.LatestRunByEmail(e)
	if err != nil {
		return models.Subscription{}, err
	}
	sub := models.Subscription{Email: e}
	if run == nil || run.Status != models.StatusDone {
		return sub, nil
	}
	exp := run.UpdatedAt.Add(SubscriptionTerm)
	if !s.now().Before(exp) {
		return sub, nil
	}
	sub.Active = true
	sub.Plan = "service1"
	sub.ExpiresAt = &exp
	return sub, nil
}

// SetStatus moves a run to status; used by staff tooling.
func (s *DiagnosticService) SetStatus(id string, status models.SessionStatus) (*DiagnosticRun, error) {
	switch status {
	case models.StatusPending, models.StatusCancelled, models.StatusSuspended, models.StatusDone:
	default:
		return nil, NewInvalidError("invalid status " + strconv.Quote(string(status)))
	}
	run, err := s.store.GetRun(id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, NewNotFoundError("diagnostic not found")
	}
	run.Status = status
	run.UpdatedAt = s.now()
	if err := s.store.UpdateRun(run); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: run.UpdatedAt, Actor: "staff", Action: "diagnostic_status", Target: id, Note: string(status)})
	return run, nil
}
