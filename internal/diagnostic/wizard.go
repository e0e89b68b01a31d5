package diagnostic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/apiclient"
	"github.com/maconsulting/parcours/internal/async"
	"github.com/maconsulting/parcours/internal/eligibility"
	"github.com/maconsulting/parcours/internal/kvstore"
	"github.com/maconsulting/parcours/internal/logging"
	"github.com/maconsulting/parcours/internal/models"
)

// Step is the wizard's current screen.
type Step string

const (
	StepEmail     Step = "email"
	StepBlocked   Step = "blocked"
	StepDomain    Step = "domain"
	StepQuestions Step = "questions"
	StepResult    Step = "result"
)

var (
	ErrIncomplete = errors.New("questionnaire incomplete")
	ErrWrongStep  = errors.New("action not available at this step")
	ErrUnknown    = errors.New("unknown domain or question")
)

// Draft is the wizard state persisted between runs.
type Draft struct {
	Step     Step                         `json:"step"`
	Email    string                       `json:"email"`
	Identity models.DiagnosticParticipant `json:"identity"`
	DomainID string                       `json:"domainId,omitempty"`
	Answers  map[string]int               `json:"answers"`
	Decision *eligibility.Decision        `json:"decision,omitempty"`
	Result   *models.DiagnosticResult     `json:"result,omitempty"`
}

// Wizard walks one participant through the questionnaire.
type Wizard struct {
	mu     sync.Mutex
	gate   *eligibility.Gate
	client *apiclient.Client
	store  kvstore.Store
	q      *Questionnaire
	log    *zap.Logger
	submit async.Guard
	draft  Draft
}

func NewWizard(client *apiclient.Client, store kvstore.Store, q *Questionnaire, log *zap.Logger) *Wizard {
	log = logging.OrNop(log)
	return &Wizard{
		gate:   eligibility.NewGate(client, log),
		client: client,
		store:  store,
		q:      q,
		log:    log,
		draft:  Draft{Step: StepEmail},
	}
}

// Restore reloads a saved draft. A missing or unreadable draft restarts at
// the email step.
func (w *Wizard) Restore(ctx context.Context) error {
	var d Draft
	err := kvstore.GetJSON(ctx, w.store, kvstore.KeyDiagnosticDraft, &d)
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		w.draft = Draft{Step: StepEmail}
		return nil
	case err != nil:
		w.log.Warn("discarding unreadable diagnostic draft", zap.Error(err))
		w.draft = Draft{Step: StepEmail}
		return nil
	}
	if d.Step == "" {
		d.Step = StepEmail
	}
	if d.Answers == nil {
		d.Answers = map[string]int{}
	}
	w.draft = d
	return nil
}

// Draft returns a copy of the current state.
func (w *Wizard) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := w.draft
	if d.Answers != nil {
		d.Answers = make(map[string]int, len(w.draft.Answers))
		for k, v := range w.draft.Answers {
			d.Answers[k] = v
		}
	}
	return d
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.Step
}

// Start checks eligibility and moves to the domain step, or to blocked.
func (w *Wizard) Start(ctx context.Context, email string, identity models.DiagnosticParticipant) (eligibility.Decision, error) {
	dec, err := w.gate.Check(ctx, email)
	if err != nil {
		return eligibility.Decision{}, err
	}
	normalized, _ := eligibility.NormalizeAndValidate(email)

	w.mu.Lock()
	identity.Email = normalized
	w.draft = Draft{Email: normalized, Identity: identity, Decision: &dec}
	if dec.AllowNew {
		w.draft.Step = StepDomain
	} else {
		w.draft.Step = StepBlocked
	}
	d := w.draft
	w.mu.Unlock()

	return dec, w.save(ctx, d)
}

// ChooseDomain selects the questionnaire domain and resets answers.
func (w *Wizard) ChooseDomain(ctx context.Context, id string) error {
	if _, ok := w.q.Domain(id); !ok {
		return fmt.Errorf("domain %q: %w", id, ErrUnknown)
	}
	w.mu.Lock()
	if w.draft.Step != StepDomain && w.draft.Step != StepQuestions {
		w.mu.Unlock()
		return ErrWrongStep
	}
	w.draft.DomainID = id
	w.draft.Answers = map[string]int{}
	w.draft.Step = StepQuestions
	d := w.draft
	w.mu.Unlock()
	return w.save(ctx, d)
}

// Answer records a Likert value for a question of the chosen domain.
func (w *Wizard) Answer(ctx context.Context, questionID string, value int) error {
	w.mu.Lock()
	if w.draft.Step != StepQuestions {
		w.mu.Unlock()
		return ErrWrongStep
	}
	dom, _ := w.q.Domain(w.draft.DomainID)
	found := false
	for _, it := range dom.Questions {
		if it.ID == questionID {
			found = true
			break
		}
	}
	if !found {
		w.mu.Unlock()
		return fmt.Errorf("question %q: %w", questionID, ErrUnknown)
	}
	if value < 1 || value > w.q.Points {
		w.mu.Unlock()
		return apiclient.NewValidationError(questionID, fmt.Sprintf("Réponse attendue entre 1 et %d", w.q.Points))
	}
	if w.draft.Answers == nil {
		w.draft.Answers = map[string]int{}
	}
	w.draft.Answers[questionID] = value
	d := w.draft
	w.mu.Unlock()
	return w.save(ctx, d)
}

// Remaining lists unanswered questions of the chosen domain in order.
func (w *Wizard) Remaining() []Question {
	w.mu.Lock()
	defer w.mu.Unlock()
	dom, ok := w.q.Domain(w.draft.DomainID)
	if !ok {
		return nil
	}
	var out []Question
	for _, it := range dom.Questions {
		if _, done := w.draft.Answers[it.ID]; !done {
			out = append(out, it)
		}
	}
	return out
}

// Submit scores the answers and stores the run. The result shows the
// backend's total and orientation as returned.
func (w *Wizard) Submit(ctx context.Context) (models.DiagnosticResult, error) {
	return async.Exclusive(&w.submit, func() (models.DiagnosticResult, error) {
		w.mu.Lock()
		if w.draft.Step != StepQuestions {
			w.mu.Unlock()
			return models.DiagnosticResult{}, ErrWrongStep
		}
		dom, _ := w.q.Domain(w.draft.DomainID)
		responses, scores, err := Score(dom, w.q.Points, w.draft.Answers)
		req := models.DiagnosticRunRequest{
			Participant: w.draft.Identity,
			Responses:   responses,
			Scores:      scores,
			Metadata:    map[string]string{"domain": dom.ID, "points": fmt.Sprint(w.q.Points)},
		}
		w.mu.Unlock()
		if err != nil {
			return models.DiagnosticResult{}, err
		}

		res, err := apiclient.Send[models.DiagnosticResult](ctx, w.client, http.MethodPost, "/diagnostic-sessions", req, nil)
		if err != nil {
			return models.DiagnosticResult{}, fmt.Errorf("submit diagnostic: %w", err)
		}
		w.log.Info("diagnostic submitted", zap.String("run", res.ID), zap.Int("total", res.Total))

		w.mu.Lock()
		w.draft.Step = StepResult
		w.draft.Result = &res
		w.mu.Unlock()
		if err := w.store.Remove(ctx, kvstore.KeyDiagnosticDraft); err != nil {
			w.log.Warn("clear diagnostic draft", zap.Error(err))
		}
		return res, nil
	})
}

// Reset discards the draft and returns to the email step.
func (w *Wizard) Reset(ctx context.Context) error {
	w.mu.Lock()
	w.draft = Draft{Step: StepEmail}
	w.mu.Unlock()
	return w.store.Remove(ctx, kvstore.KeyDiagnosticDraft)
}

func (w *Wizard) save(ctx context.Context, d Draft) error {
	if err := kvstore.SetJSON(ctx, w.store, kvstore.KeyDiagnosticDraft, d); err != nil {
		return fmt.Errorf("save diagnostic draft: %w", err)
	}
	return nil
}

// PublicResult fetches the latest run stored for email.
func PublicResult(ctx context.Context, c *apiclient.Client, email string) (models.DiagnosticResult, error) {
	e, err := eligibility.NormalizeAndValidate(email)
	if err != nil {
		return models.DiagnosticResult{}, err
	}
	return apiclient.Get[models.DiagnosticResult](ctx, c, "/diagnostic-sessions/public-result", apiclient.EmailQuery(e), nil)
}

// PublicSubscription fetches the participant's Service 1 subscription.
func PublicSubscription(ctx context.Context, c *apiclient.Client, email string) (models.Subscription, error) {
	e, err := eligibility.NormalizeAndValidate(email)
	if err != nil {
		return models.Subscription{}, err
	}
	return apiclient.Get[models.Subscription](ctx, c, "/diagnostic-sessions/public-subscription", apiclient.EmailQuery(e), nil)
}
