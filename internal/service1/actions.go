package service1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/apiclient"
	"github.com/maconsulting/parcours/internal/async"
	"github.com/maconsulting/parcours/internal/models"
)

// act posts an action for key and returns the typed replacement state.
func act[T any](ctx context.Context, c *Controller, key PhaseKey, action string, body any) (*T, error) {
	st, err := c.post(ctx, key, action, body)
	if err != nil {
		return nil, err
	}
	return st.(*T), nil
}

// Phase 0

// AnalyzeCV uploads a CV for analysis.
func (c *Controller) AnalyzeCV(ctx context.Context, fileName string, r io.Reader) (*models.Phase0State, error) {
	if strings.TrimSpace(fileName) == "" || r == nil {
		return nil, apiclient.NewValidationError("cv", "Fichier CV requis")
	}
	return async.Exclusive(&c.analyzing, func() (*models.Phase0State, error) {
		body := &apiclient.MultipartBody{
			Fields: map[string]string{"email": c.email},
			Files:  []apiclient.FilePart{{Field: "cv", FileName: fileName, Content: r}},
		}
		return act[models.Phase0State](ctx, c, Phase0, "analyze-cv", body)
	})
}

// StartInterview opens the framing interview once the CV is analysed.
func (c *Controller) StartInterview(ctx context.Context) (*models.Phase0State, error) {
	p0, err := ensure[models.Phase0State](ctx, c, Phase0)
	if err != nil {
		return nil, err
	}
	if p0.CV == nil {
		return nil, prerequisite("CV not analysed")
	}
	return async.Exclusive(&c.interviewBusy, func() (*models.Phase0State, error) {
		return act[models.Phase0State](ctx, c, Phase0, "interview/start", c.body())
	})
}

// AnswerInterview answers the next interview question. When the interview
// completes without a cadrage note, the note is polled for; a note still
// missing after the poll is not an error.
func (c *Controller) AnswerInterview(ctx context.Context, answer string) (*models.Phase0State, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, apiclient.NewValidationError("answer", "Réponse requise")
	}
	p0, err := ensure[models.Phase0State](ctx, c, Phase0)
	if err != nil {
		return nil, err
	}
	q, ok := p0.Interview.NextQuestion()
	if !ok {
		return nil, prerequisite("no pending interview question")
	}

	st, err := async.Exclusive(&c.interviewBusy, func() (*models.Phase0State, error) {
		body := c.body()
		body.QuestionID = q.ID
		body.Answer = strings.TrimSpace(answer)
		return act[models.Phase0State](ctx, c, Phase0, "interview/answer", body)
	})
	if err != nil {
		return nil, err
	}
	if st.Interview == nil || !st.Interview.Completed || st.CadrageNote != "" {
		return st, nil
	}
	return c.pollCadrage(ctx, st)
}

func (c *Controller) pollCadrage(ctx context.Context, last *models.Phase0State) (*models.Phase0State, error) {
	ok, err := async.PollUntil(ctx, c.poll, func(ctx context.Context, attempt int) (bool, error) {
		st, err := c.fetch(ctx, Phase0)
		if err != nil {
			return false, err
		}
		last = st.(*models.Phase0State)
		return last.CadrageNote != "", nil
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return last, err
	}
	if !ok {
		c.log.Info("cadrage note not ready after polling", zap.Int("attempts", c.poll.MaxAttempts))
	}
	return last, nil
}

// Phase 2

// AnswerScenarios submits one answer per scenario.
func (c *Controller) AnswerScenarios(ctx context.Context, answers map[string]string) (*models.Phase2State, error) {
	p2, err := ensure[models.Phase2State](ctx, c, Phase2)
	if err != nil {
		return nil, err
	}
	if len(p2.Scenarios) != 3 {
		return nil, prerequisite("scenarios not generated")
	}
	clean := make(map[string]string, len(p2.Scenarios))
	for _, sc := range p2.Scenarios {
		a := strings.TrimSpace(answers[sc.ID])
		if a == "" {
			return nil, apiclient.NewValidationError(sc.ID, "Réponse requise pour chaque situation")
		}
		clean[sc.ID] = a
	}
	body := c.body()
	body.Answers = clean
	return act[models.Phase2State](ctx, c, Phase2, "answer", body)
}

// GenerateReport builds the phase 2 report from the submitted answers.
func (c *Controller) GenerateReport(ctx context.Context) (*models.Phase2State, error) {
	p2, err := ensure[models.Phase2State](ctx, c, Phase2)
	if err != nil {
		return nil, err
	}
	if len(p2.Scenarios) != 3 || len(p2.Answers) < len(p2.Scenarios) {
		return nil, prerequisite("scenario answers missing")
	}
	return act[models.Phase2State](ctx, c, Phase2, "generate-report", c.body())
}

// Phase 3

// SelectPath picks one of the three generated growth paths.
func (c *Controller) SelectPath(ctx context.Context, pathID string) (*models.Phase3State, error) {
	p3, err := ensure[models.Phase3State](ctx, c, Phase3)
	if err != nil {
		return nil, err
	}
	if len(p3.Paths) != 3 {
		return nil, prerequisite("growth paths not generated")
	}
	found := false
	for _, p := range p3.Paths {
		if p.ID == pathID {
			found = true
			break
		}
	}
	if !found {
		return nil, apiclient.NewValidationError("pathId", fmt.Sprintf("Parcours inconnu: %s", pathID))
	}
	body := c.body()
	body.PathID = pathID
	return act[models.Phase3State](ctx, c, Phase3, "select", body)
}

// Phase 4

// GeneratePlan (re)builds the action plan on the selected growth path.
func (c *Controller) GeneratePlan(ctx context.Context) (*models.Phase4State, error) {
	if err := c.checkEntry(ctx, Phase4); err != nil {
		return nil, err
	}
	return act[models.Phase4State](ctx, c, Phase4, "generate-plan", c.body())
}

// Phase 5

// Aggregate snapshots the profile built by phases 0 to 4.
func (c *Controller) Aggregate(ctx context.Context) (*models.Phase5State, error) {
	return act[models.Phase5State](ctx, c, Phase5, "aggregate", c.body())
}

func (c *Controller) phase5(ctx context.Context) (*models.Phase5State, error) {
	return ensure[models.Phase5State](ctx, c, Phase5)
}

// SubmitSelfDescription sends the participant's self-portrait for the
// self-awareness check.
func (c *Controller) SubmitSelfDescription(ctx context.Context, text string) (*models.Phase5State, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apiclient.NewValidationError("text", "Description requise")
	}
	p5, err := c.phase5(ctx)
	if err != nil {
		return nil, err
	}
	if p5.AggregatedProfile == nil {
		return nil, prerequisite("profile not aggregated")
	}
	body := c.body()
	body.Text = text
	return act[models.Phase5State](ctx, c, Phase5, "self-description", body)
}

// GenerateFinalActions proposes final actions after the self-awareness check.
func (c *Controller) GenerateFinalActions(ctx context.Context) (*models.Phase5State, error) {
	p5, err := c.phase5(ctx)
	if err != nil {
		return nil, err
	}
	if p5.SelfAwareness == nil {
		return nil, prerequisite("self-awareness check missing")
	}
	return async.Exclusive(&c.actionLoading, func() (*models.Phase5State, error) {
		return act[models.Phase5State](ctx, c, Phase5, "final-actions", c.body())
	})
}

// SelectFinalAction picks a final action. It is refused while actions are
// being generated.
func (c *Controller) SelectFinalAction(ctx context.Context, actionID string) (*models.Phase5State, error) {
	if c.actionLoading.Busy() {
		return nil, async.ErrBusy
	}
	p5, err := c.phase5(ctx)
	if err != nil {
		return nil, err
	}
	if len(p5.FinalActions) == 0 {
		return nil, prerequisite("final actions not generated")
	}
	found := false
	for _, a := range p5.FinalActions {
		if a.ID == actionID {
			found = true
			break
		}
	}
	if !found {
		return nil, apiclient.NewValidationError("actionId", fmt.Sprintf("Action inconnue: %s", actionID))
	}
	return async.Exclusive(&c.actionLoading, func() (*models.Phase5State, error) {
		body := c.body()
		body.ActionID = actionID
		return act[models.Phase5State](ctx, c, Phase5, "select-action", body)
	})
}

func (c *Controller) requireSelectedAction(ctx context.Context) error {
	p5, err := c.phase5(ctx)
	if err != nil {
		return err
	}
	if p5.SelectedFinalAction == nil {
		return prerequisite("no final action selected")
	}
	return nil
}

// GenerateSkillGap analyses the gap for the selected action.
func (c *Controller) GenerateSkillGap(ctx context.Context) (*models.Phase5State, error) {
	if err := c.requireSelectedAction(ctx); err != nil {
		return nil, err
	}
	return act[models.Phase5State](ctx, c, Phase5, "skill-gap", c.body())
}

// StartGrandSimulation generates the grand simulation scenario.
func (c *Controller) StartGrandSimulation(ctx context.Context) (*models.Phase5State, error) {
	if err := c.requireSelectedAction(ctx); err != nil {
		return nil, err
	}
	return act[models.Phase5State](ctx, c, Phase5, "grand-simulation", c.body())
}

// SubmitGrandAnswer answers the grand simulation. Only one submission may be
// in flight.
func (c *Controller) SubmitGrandAnswer(ctx context.Context, answer string) (*models.Phase5State, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, apiclient.NewValidationError("answer", "Réponse requise")
	}
	p5, err := c.phase5(ctx)
	if err != nil {
		return nil, err
	}
	if p5.GrandSimulation == nil || p5.GrandSimulation.Scenario == "" {
		return nil, prerequisite("grand simulation not started")
	}
	return async.Exclusive(&c.grandBusy, func() (*models.Phase5State, error) {
		body := c.body()
		body.Answer = answer
		return act[models.Phase5State](ctx, c, Phase5, "grand-answer", body)
	})
}

func (c *Controller) requireGrandAnswer(ctx context.Context) error {
	p5, err := c.phase5(ctx)
	if err != nil {
		return err
	}
	if p5.GrandAnswer == "" {
		return prerequisite("grand answer not submitted")
	}
	return nil
}

// Evaluate scores the grand answer.
func (c *Controller) Evaluate(ctx context.Context) (*models.Phase5State, error) {
	if err := c.requireGrandAnswer(ctx); err != nil {
		return nil, err
	}
	return act[models.Phase5State](ctx, c, Phase5, "evaluate", c.body())
}

// Handover produces the handover note and closes phase 5.
func (c *Controller) Handover(ctx context.Context) (*models.Phase5State, error) {
	if err := c.requireGrandAnswer(ctx); err != nil {
		return nil, err
	}
	return act[models.Phase5State](ctx, c, Phase5, "handover", c.body())
}
