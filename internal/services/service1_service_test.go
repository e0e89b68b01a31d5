package services

import (
	"strings"
	"testing"
	"time"

	"github.com/maconsulting/parcours/internal/models"
)

type stubPhaseStore struct {
	docs map[string][]byte
}

func (s *stubPhaseStore) GetPhaseDoc(email, phase string) ([]byte, error) {
	return s.docs[email+"/"+phase], nil
}

func (s *stubPhaseStore) PutPhaseDoc(email, phase string, doc []byte) error {
	s.docs[email+"/"+phase] = append([]byte(nil), doc...)
	return nil
}

func newService1() *Service1Service {
	svc := NewService1Service(&stubPhaseStore{docs: map[string][]byte{}})
	svc.now = func() time.Time { return time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC) }
	return svc
}

const s1Email = "p@test.fr"

func act(t *testing.T, svc *Service1Service, phase, action string, req models.Service1Request, up *Upload) any {
	t.Helper()
	st, err := svc.Act(s1Email, phase, action, req, up)
	if err != nil {
		t.Fatalf("%s/%s: %v", phase, action, err)
	}
	return st
}

func TestService1EmptyStates(t *testing.T) {
	svc := newService1()
	for _, phase := range Service1Phases {
		st, err := svc.State(s1Email, phase)
		if err != nil || st == nil {
			t.Fatalf("%s: %v", phase, err)
		}
	}
	if _, err := svc.State(s1Email, "phase9"); err == nil {
		t.Fatalf("expected unknown phase error")
	}
	if _, err := svc.Act(s1Email, "phase1", "nope", models.Service1Request{}, nil); err == nil {
		t.Fatalf("expected unknown action error")
	}
}

func TestService1Phase0Interview(t *testing.T) {
	svc := newService1()
	p0 := act(t, svc, "phase0", "compute", models.Service1Request{}, nil).(*models.Phase0State)
	if p0.Status != "awaiting_cv" {
		t.Fatalf("unexpected status %q", p0.Status)
	}
	if _, err := svc.Act(s1Email, "phase0", "interview/start", models.Service1Request{}, nil); err == nil {
		t.Fatalf("expected prerequisite error before cv")
	}
	p0 = act(t, svc, "phase0", "analyze-cv", models.Service1Request{}, &Upload{FileName: "cv.txt", Content: []byte("Comptabilité Fiscalité et Management depuis dix ans")}).(*models.Phase0State)
	if p0.CV == nil || len(p0.CV.Skills) != 3 {
		t.Fatalf("unexpected cv analysis %+v", p0.CV)
	}
	p0 = act(t, svc, "phase0", "interview/start", models.Service1Request{}, nil).(*models.Phase0State)
	for i := 0; i < len(p0.Interview.Questions); i++ {
		q, _ := p0.Interview.NextQuestion()
		p0 = act(t, svc, "phase0", "interview/answer", models.Service1Request{QuestionID: q.ID, Answer: "réponse"}, nil).(*models.Phase0State)
	}
	if !p0.Interview.Completed || p0.CadrageNote != "" {
		t.Fatalf("note is produced on the next read: %+v", p0)
	}
	if _, err := svc.Act(s1Email, "phase0", "interview/answer", models.Service1Request{Answer: "x"}, nil); err == nil {
		t.Fatalf("expected error once every question is answered")
	}

	st, err := svc.State(s1Email, "phase0")
	if err != nil {
		t.Fatalf("State returned error: %v", err)
	}
	if note := st.(*models.Phase0State).CadrageNote; !strings.Contains(note, "Note de cadrage") {
		t.Fatalf("expected cadrage note, got %q", note)
	}
}

func TestService1FullJourney(t *testing.T) {
	svc := newService1()
	act(t, svc, "phase1", "compute", models.Service1Request{}, nil)

	p2 := act(t, svc, "phase2", "generate-scenarios", models.Service1Request{}, nil).(*models.Phase2State)
	if len(p2.Scenarios) != 3 {
		t.Fatalf("expected 3 scenarios")
	}
	if _, err := svc.Act(s1Email, "phase2", "answer", models.Service1Request{Answers: map[string]string{"sc1": "a"}}, nil); err == nil {
		t.Fatalf("expected error for missing answers")
	}
	act(t, svc, "phase2", "answer", models.Service1Request{Answers: map[string]string{"sc1": "a", "sc2": "b", "sc3": "c"}}, nil)
	p2 = act(t, svc, "phase2", "generate-report", models.Service1Request{}, nil).(*models.Phase2State)
	if p2.ReportMarkdown == "" || p2.Status != "completed" {
		t.Fatalf("unexpected phase 2 %+v", p2)
	}

	if _, err := svc.Act(s1Email, "phase4", "generate-plan", models.Service1Request{}, nil); err == nil {
		t.Fatalf("expected prerequisite error without a growth path")
	}
	p3 := act(t, svc, "phase3", "generate-paths", models.Service1Request{}, nil).(*models.Phase3State)
	p3 = act(t, svc, "phase3", "select", models.Service1Request{PathID: p3.Paths[1].ID}, nil).(*models.Phase3State)
	if p3.SelectedGrowthPath == nil || p3.SelectedGrowthPath.ID != "path-manager" {
		t.Fatalf("unexpected selection %+v", p3.SelectedGrowthPath)
	}
	p4 := act(t, svc, "phase4", "generate-plan", models.Service1Request{}, nil).(*models.Phase4State)
	if p4.Note == "" || len(p4.Planning) == 0 || len(p4.Roadmap3Months) != 3 {
		t.Fatalf("incomplete plan %+v", p4)
	}

	if _, err := svc.Final(s1Email); err == nil {
		t.Fatalf("expected final to require phase 5")
	}
	p5 := act(t, svc, "phase5", "aggregate", models.Service1Request{}, nil).(*models.Phase5State)
	if p5.AggregatedProfile == nil || p5.SnapshotAt == nil || p5.AggregatedProfile.SelectedPath != "Management" {
		t.Fatalf("unexpected aggregate %+v", p5)
	}
	p5 = act(t, svc, "phase5", "self-description", models.Service1Request{Text: "Je progresse en négociation salariale"}, nil).(*models.Phase5State)
	if p5.SelfAwareness == nil || p5.SelfAwareness.Score == 0 {
		t.Fatalf("expected self awareness %+v", p5.SelfAwareness)
	}
	p5 = act(t, svc, "phase5", "final-actions", models.Service1Request{}, nil).(*models.Phase5State)
	if len(p5.FinalActions) != 3 {
		t.Fatalf("expected 3 final actions")
	}
	p5 = act(t, svc, "phase5", "select-action", models.Service1Request{ActionID: "fa-2"}, nil).(*models.Phase5State)
	if p5.Status != models.Phase5AwaitingGrandSimulation {
		t.Fatalf("unexpected status %s", p5.Status)
	}
	p5 = act(t, svc, "phase5", "skill-gap", models.Service1Request{}, nil).(*models.Phase5State)
	if p5.SkillGap == nil || p5.SkillGap.Pressure != "medium" || len(p5.SkillGap.MicroActions) != 5 {
		t.Fatalf("unexpected skill gap %+v", p5.SkillGap)
	}
	act(t, svc, "phase5", "grand-simulation", models.Service1Request{}, nil)
	if _, err := svc.Act(s1Email, "phase5", "evaluate", models.Service1Request{}, nil); err == nil {
		t.Fatalf("expected evaluate to require an answer")
	}
	act(t, svc, "phase5", "grand-answer", models.Service1Request{Answer: "Je pose le contexte puis je propose deux options."}, nil)
	act(t, svc, "phase5", "evaluate", models.Service1Request{}, nil)
	p5 = act(t, svc, "phase5", "handover", models.Service1Request{}, nil).(*models.Phase5State)
	if !p5.IsCompleted() || p5.Handover == "" {
		t.Fatalf("expected completed phase 5 %+v", p5)
	}

	final, err := svc.Final(s1Email)
	if err != nil {
		t.Fatalf("Final returned error: %v", err)
	}
	if !strings.Contains(final.Markdown, "Synthèse finale") || !strings.Contains(final.Markdown, "Management") {
		t.Fatalf("unexpected synthesis %q", final.Markdown)
	}
}
