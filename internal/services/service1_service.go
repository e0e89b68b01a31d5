package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/maconsulting/parcours/internal/models"
)

// PhaseStore keeps one JSON document per participant and phase.
type PhaseStore interface {
	// GetPhaseDoc returns nil when the phase was never written.
	GetPhaseDoc(email, phase string) ([]byte, error)
	PutPhaseDoc(email, phase string, doc []byte) error
}

// Service1Phases are the phase names used in routes and response envelopes.
var Service1Phases = []string{"phase0", "phase1", "phase2", "phase3", "phase4", "phase5"}

// Upload is a file received with a multipart action.
type Upload struct {
	FileName string
	Content  []byte
}

// Service1Service runs the Service 1 phases. Generation is deterministic
// templating over what earlier phases stored.
type Service1Service struct {
	store PhaseStore
	now   func() time.Time
}

func NewService1Service(store PhaseStore) *Service1Service {
	return &Service1Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func prerequisite(msg string) error {
	return NewInvalidError("prerequisite not met: " + msg)
}

func loadPhase[T any](s *Service1Service, email, phase string) (*T, error) {
	st := new(T)
	raw, err := s.store.GetPhaseDoc(email, phase)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("decode %s: %w", phase, err)
	}
	return st, nil
}

func (s *Service1Service) save(email, phase string, st any) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode %s: %w", phase, err)
	}
	return s.store.PutPhaseDoc(email, phase, raw)
}

// State returns the stored state of phase. A completed interview without a
// cadrage note gets its note here.
func (s *Service1Service) State(email, phase string) (any, error) {
	e, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	switch phase {
	case "phase0":
		p0, err := loadPhase[models.Phase0State](s, e, phase)
		if err != nil {
			return nil, err
		}
		if p0.Interview != nil && p0.Interview.Completed && p0.CadrageNote == "" {
			p0.CadrageNote = cadrageNote(p0)
			p0.Status = "completed"
			s.touch(p0)
			if err := s.save(e, phase, p0); err != nil {
				return nil, err
			}
		}
		return p0, nil
	case "phase1":
		return loadPhase[models.Phase1State](s, e, phase)
	case "phase2":
		return loadPhase[models.Phase2State](s, e, phase)
	case "phase3":
		return loadPhase[models.Phase3State](s, e, phase)
	case "phase4":
		return loadPhase[models.Phase4State](s, e, phase)
	case "phase5":
		return loadPhase[models.Phase5State](s, e, phase)
	}
	return nil, NewNotFoundError("unknown phase " + phase)
}

// Act runs action on phase and returns the replacement state.
func (s *Service1Service) Act(email, phase, action string, req models.Service1Request, up *Upload) (any, error) {
	e, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	var st any
	switch phase {
	case "phase0":
		st, err = s.actPhase0(e, action, req, up)
	case "phase1":
		st, err = s.actPhase1(e, action)
	case "phase2":
		st, err = s.actPhase2(e, action, req)
	case "phase3":
		st, err = s.actPhase3(e, action, req)
	case "phase4":
		st, err = s.actPhase4(e, action)
	case "phase5":
		st, err = s.actPhase5(e, action, req)
	default:
		return nil, NewNotFoundError("unknown phase " + phase)
	}
	if err != nil {
		return nil, err
	}
	if err := s.save(e, phase, st); err != nil {
		return nil, err
	}
	return st, nil
}

func unknownAction(phase, action string) error {
	return NewNotFoundError(fmt.Sprintf("unknown action %s/%s", phase, action))
}

func (s *Service1Service) touch(p0 *models.Phase0State) {
	now := s.now()
	p0.UpdatedAt = &now
}

func (s *Service1Service) actPhase0(email, action string, req models.Service1Request, up *Upload) (*models.Phase0State, error) {
	p0, err := loadPhase[models.Phase0State](s, email, "phase0")
	if err != nil {
		return nil, err
	}
	switch action {
	case "compute":
		if p0.Status == "" {
			p0.Status = "awaiting_cv"
		}
	case "analyze-cv":
		if up == nil || len(up.Content) == 0 {
			return nil, NewInvalidError("cv required")
		}
		p0.CV = analyzeCV(up.FileName, string(up.Content))
		p0.Status = "cv_analyzed"
	case "interview/start":
		if p0.CV == nil {
			return nil, prerequisite("cv not analysed")
		}
		p0.Interview = &models.Interview{Questions: interviewQuestions(p0.CV)}
		p0.CadrageNote = ""
		p0.Status = "interview"
	case "interview/answer":
		next, ok := p0.Interview.NextQuestion()
		if !ok {
			return nil, prerequisite("no pending interview question")
		}
		if req.QuestionID != "" && req.QuestionID != next.ID {
			return nil, NewConflictError("expected answer to " + next.ID)
		}
		answer := strings.TrimSpace(req.Answer)
		if answer == "" {
			return nil, NewInvalidError("answer required")
		}
		p0.Interview.Answers = append(p0.Interview.Answers, models.InterviewAnswer{QuestionID: next.ID, Answer: answer})
		if _, more := p0.Interview.NextQuestion(); !more {
			p0.Interview.Completed = true
			p0.Status = "interview_completed"
		}
	default:
		return nil, unknownAction("phase0", action)
	}
	s.touch(p0)
	return p0, nil
}

func (s *Service1Service) actPhase1(email, action string) (*models.Phase1State, error) {
	if action != "compute" {
		return nil, unknownAction("phase1", action)
	}
	p0, err := loadPhase[models.Phase0State](s, email, "phase0")
	if err != nil {
		return nil, err
	}
	analysis := profileAnalysis(p0)
	return &models.Phase1State{
		Status:         "completed",
		Analysis:       analysis,
		ReportMarkdown: profileReport(analysis),
	}, nil
}

func (s *Service1Service) actPhase2(email, action string, req models.Service1Request) (*models.Phase2State, error) {
	p2, err := loadPhase[models.Phase2State](s, email, "phase2")
	if err != nil {
		return nil, err
	}
	switch action {
	case "generate-scenarios":
		p1, err := loadPhase[models.Phase1State](s, email, "phase1")
		if err != nil {
			return nil, err
		}
		p2 = &models.Phase2State{Status: "awaiting_answers", Scenarios: scenarios(p1.Analysis)}
	case "answer":
		if len(p2.Scenarios) != 3 {
			return nil, prerequisite("scenarios not generated")
		}
		answers := make(map[string]string, len(p2.Scenarios))
		for _, sc := range p2.Scenarios {
			a := strings.TrimSpace(req.Answers[sc.ID])
			if a == "" {
				return nil, NewInvalidError("answer required for " + sc.ID)
			}
			answers[sc.ID] = a
		}
		p2.Answers = answers
		p2.ReportMarkdown = ""
		p2.Status = "answered"
	case "generate-report":
		if len(p2.Scenarios) != 3 || len(p2.Answers) < len(p2.Scenarios) {
			return nil, prerequisite("scenario answers missing")
		}
		p2.ReportMarkdown = scenarioReport(p2)
		p2.Status = "completed"
	default:
		return nil, unknownAction("phase2", action)
	}
	return p2, nil
}

func (s *Service1Service) actPhase3(email, action string, req models.Service1Request) (*models.Phase3State, error) {
	p3, err := loadPhase[models.Phase3State](s, email, "phase3")
	if err != nil {
		return nil, err
	}
	switch action {
	case "generate-paths":
		p1, err := loadPhase[models.Phase1State](s, email, "phase1")
		if err != nil {
			return nil, err
		}
		p3 = &models.Phase3State{Status: "awaiting_selection", Paths: growthPaths(p1.Analysis)}
	case "select":
		if len(p3.Paths) != 3 {
			return nil, prerequisite("growth paths not generated")
		}
		for _, p := range p3.Paths {
			if p.ID == req.PathID {
				p3.SelectedGrowthPath = &p
				p3.Status = "selected"
				return p3, nil
			}
		}
		return nil, NewInvalidError("unknown path " + req.PathID)
	default:
		return nil, unknownAction("phase3", action)
	}
	return p3, nil
}

func (s *Service1Service) actPhase4(email, action string) (*models.Phase4State, error) {
	if action != "generate-plan" {
		return nil, unknownAction("phase4", action)
	}
	p3, err := loadPhase[models.Phase3State](s, email, "phase3")
	if err != nil {
		return nil, err
	}
	if p3.SelectedGrowthPath == nil {
		return nil, prerequisite("growth path not selected")
	}
	return actionPlan(*p3.SelectedGrowthPath), nil
}

func (s *Service1Service) actPhase5(email, action string, req models.Service1Request) (*models.Phase5State, error) {
	p5, err := loadPhase[models.Phase5State](s, email, "phase5")
	if err != nil {
		return nil, err
	}
	switch action {
	case "aggregate":
		p1, err := loadPhase[models.Phase1State](s, email, "phase1")
		if err != nil {
			return nil, err
		}
		p3, err := loadPhase[models.Phase3State](s, email, "phase3")
		if err != nil {
			return nil, err
		}
		now := s.now()
		return &models.Phase5State{
			Status:            models.Phase5AwaitingSelfDescription,
			AggregatedProfile: aggregate(p1.Analysis, p3.SelectedGrowthPath),
			SnapshotAt:        &now,
		}, nil
	case "self-description":
		if p5.AggregatedProfile == nil {
			return nil, prerequisite("profile not aggregated")
		}
		text := strings.TrimSpace(req.Text)
		if text == "" {
			return nil, NewInvalidError("text required")
		}
		p5.SelfDescription = text
		p5.SelfAwareness = selfAwareness(p5.AggregatedProfile, text)
		p5.Status = models.Phase5AwaitingActionChoice
	case "final-actions":
		if p5.SelfAwareness == nil {
			return nil, prerequisite("self-awareness check missing")
		}
		p5.FinalActions = finalActions(p5.AggregatedProfile)
		p5.SelectedFinalAction = nil
		p5.Status = models.Phase5AwaitingActionChoice
	case "select-action":
		if len(p5.FinalActions) == 0 {
			return nil, prerequisite("final actions not generated")
		}
		var picked *models.FinalAction
		for _, a := range p5.FinalActions {
			if a.ID == req.ActionID {
				picked = &a
				break
			}
		}
		if picked == nil {
			return nil, NewInvalidError("unknown action " + req.ActionID)
		}
		p5.SelectedFinalAction = picked
		p5.SkillGap, p5.GrandSimulation, p5.GrandAnswer, p5.Evaluation = nil, nil, "", nil
		p5.Status = models.Phase5AwaitingGrandSimulation
	case "skill-gap":
		if p5.SelectedFinalAction == nil {
			return nil, prerequisite("no final action selected")
		}
		p5.SkillGap = skillGap(p5.AggregatedProfile, *p5.SelectedFinalAction)
	case "grand-simulation":
		if p5.SelectedFinalAction == nil {
			return nil, prerequisite("no final action selected")
		}
		p5.GrandSimulation = grandSimulation(*p5.SelectedFinalAction)
		p5.GrandAnswer, p5.Evaluation = "", nil
		p5.Status = models.Phase5AwaitingGrandAnswer
	case "grand-answer":
		if p5.GrandSimulation == nil || p5.GrandSimulation.Scenario == "" {
			return nil, prerequisite("grand simulation not started")
		}
		answer := strings.TrimSpace(req.Answer)
		if answer == "" {
			return nil, NewInvalidError("answer required")
		}
		p5.GrandAnswer = answer
	case "evaluate":
		if p5.GrandAnswer == "" {
			return nil, prerequisite("grand answer not submitted")
		}
		p5.Evaluation = evaluate(p5.GrandAnswer)
	case "handover":
		if p5.GrandAnswer == "" {
			return nil, prerequisite("grand answer not submitted")
		}
		if p5.Evaluation == nil {
			p5.Evaluation = evaluate(p5.GrandAnswer)
		}
		p5.Handover = handover(p5)
		p5.Status = models.Phase5Completed
		p5.Completed = true
	default:
		return nil, unknownAction("phase5", action)
	}
	return p5, nil
}

// Final assembles the synthesis once phase 5 is completed.
func (s *Service1Service) Final(email string) (models.FinalSynthesis, error) {
	e, err := normalizeEmail(email)
	if err != nil {
		return models.FinalSynthesis{}, err
	}
	p5, err := loadPhase[models.Phase5State](s, e, "phase5")
	if err != nil {
		return models.FinalSynthesis{}, err
	}
	if !p5.IsCompleted() {
		return models.FinalSynthesis{}, prerequisite("phase 5 not completed")
	}
	p4, err := loadPhase[models.Phase4State](s, e, "phase4")
	if err != nil {
		return models.FinalSynthesis{}, err
	}
	return models.FinalSynthesis{Markdown: finalMarkdown(p4, p5), GeneratedAt: s.now()}, nil
}
