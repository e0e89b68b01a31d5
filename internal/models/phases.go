package models

import "time"

// Phase5Status walks the Phase 5 sub-workflow.
type Phase5Status string

const (
	Phase5AwaitingSelfDescription Phase5Status = "awaiting_self_description"
	Phase5AwaitingActionChoice    Phase5Status = "awaiting_action_choice"
	Phase5AwaitingGrandSimulation Phase5Status = "awaiting_grand_simulation"
	Phase5AwaitingGrandAnswer     Phase5Status = "awaiting_grand_answer"
	Phase5Completed               Phase5Status = "completed"
)

// Phase0State covers CV analysis, the framing interview and the cadrage note.
type Phase0State struct {
	Status      string      `json:"status,omitempty"`
	CV          *CVAnalysis `json:"cv,omitempty"`
	Interview   *Interview  `json:"interview,omitempty"`
	CadrageNote string      `json:"cadrageNote,omitempty"`
	UpdatedAt   *time.Time  `json:"updatedAt,omitempty"`
}

type CVAnalysis struct {
	FileName string   `json:"fileName"`
	Summary  string   `json:"summary"`
	Skills   []string `json:"skills,omitempty"`
}

type Interview struct {
	Questions []InterviewQuestion `json:"questions"`
	Answers   []InterviewAnswer   `json:"answers,omitempty"`
	Completed bool                `json:"completed"`
}

type InterviewQuestion struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type InterviewAnswer struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// NextQuestion returns the first unanswered question, if any.
func (iv *Interview) NextQuestion() (InterviewQuestion, bool) {
	if iv == nil {
		return InterviewQuestion{}, false
	}
	answered := make(map[string]bool, len(iv.Answers))
	for _, a := range iv.Answers {
		answered[a.QuestionID] = true
	}
	for _, q := range iv.Questions {
		if !answered[q.ID] {
			return q, true
		}
	}
	return InterviewQuestion{}, false
}

// Phase1State holds the profile analysis report.
type Phase1State struct {
	Status         string           `json:"status,omitempty"`
	Analysis       *ProfileAnalysis `json:"analysis,omitempty"`
	ReportMarkdown string           `json:"reportMarkdown,omitempty"`
}

type ProfileAnalysis struct {
	Summary    string   `json:"summary"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
}

// Phase2State holds the three situational scenarios and their report.
type Phase2State struct {
	Status         string            `json:"status,omitempty"`
	Scenarios      []Scenario        `json:"scenarios,omitempty"`
	Answers        map[string]string `json:"answers,omitempty"`
	ReportMarkdown string            `json:"reportMarkdown,omitempty"`
}

type Scenario struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Situation string `json:"situation"`
	Question  string `json:"question"`
}

// Phase3State holds the generated growth paths and the participant's pick.
type Phase3State struct {
	Status             string       `json:"status,omitempty"`
	Paths              []GrowthPath `json:"paths,omitempty"`
	SelectedGrowthPath *GrowthPath  `json:"selectedGrowthPath,omitempty"`
}

type GrowthPath struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Horizon     string `json:"horizon,omitempty"`
}

// Phase4State is the action plan built on the selected growth path.
type Phase4State struct {
	Status         string         `json:"status,omitempty"`
	Note           string         `json:"note,omitempty"`
	Planning       []PlanningItem `json:"planning,omitempty"`
	Roadmap3Months []RoadmapMonth `json:"roadmap3Months,omitempty"`
}

type PlanningItem struct {
	Week  int    `json:"week"`
	Title string `json:"title"`
}

type RoadmapMonth struct {
	Month      int      `json:"month"`
	Focus      string   `json:"focus"`
	Milestones []string `json:"milestones,omitempty"`
}

// Phase5State is the self-awareness, final action and grand simulation flow.
type Phase5State struct {
	Status              Phase5Status       `json:"status,omitempty"`
	AggregatedProfile   *AggregatedProfile `json:"aggregatedProfile,omitempty"`
	SnapshotAt          *time.Time         `json:"snapshotAt,omitempty"`
	SelfDescription     string             `json:"selfDescription,omitempty"`
	SelfAwareness       *SelfAwareness     `json:"selfAwareness,omitempty"`
	FinalActions        []FinalAction      `json:"finalActions,omitempty"`
	SelectedFinalAction *FinalAction       `json:"selectedFinalAction,omitempty"`
	SkillGap            *SkillGap          `json:"skillGap,omitempty"`
	GrandSimulation     *GrandSimulation   `json:"grandSimulation,omitempty"`
	GrandAnswer         string             `json:"grandAnswer,omitempty"`
	Evaluation          *Evaluation        `json:"evaluation,omitempty"`
	Handover            string             `json:"handover,omitempty"`
	Completed           bool               `json:"completed,omitempty"`
}

// IsCompleted reports whether the final synthesis may be shown.
func (s *Phase5State) IsCompleted() bool {
	return s != nil && (s.Status == Phase5Completed || s.Completed)
}

type AggregatedProfile struct {
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths,omitempty"`
	Weaknesses   []string `json:"weaknesses,omitempty"`
	SelectedPath string   `json:"selectedPath,omitempty"`
}

type SelfAwareness struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// FinalAction is one concrete action proposed at the end of Service 1.
// Pressure is low, medium or high.
type FinalAction struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Pressure    string `json:"pressure,omitempty"`
}

type SkillGap struct {
	Skill        string   `json:"skill"`
	Current      string   `json:"current,omitempty"`
	Required     string   `json:"required,omitempty"`
	Gap          string   `json:"gap,omitempty"`
	Pressure     string   `json:"pressure,omitempty"`
	MicroActions []string `json:"microActions,omitempty"`
}

type GrandSimulation struct {
	Scenario string `json:"scenario"`
	Question string `json:"question"`
}

type Evaluation struct {
	Score    int    `json:"score"`
	Verdict  string `json:"verdict"`
	Feedback string `json:"feedback,omitempty"`
}

// FinalSynthesis is the document behind the "final" tab.
type FinalSynthesis struct {
	Markdown    string    `json:"markdown"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Service1Request is the body of every Service 1 POST. Only the fields an
// action needs are set.
type Service1Request struct {
	Email      string            `json:"email"`
	QuestionID string            `json:"questionId,omitempty"`
	Answer     string            `json:"answer,omitempty"`
	Answers    map[string]string `json:"answers,omitempty"`
	PathID     string            `json:"pathId,omitempty"`
	ActionID   string            `json:"actionId,omitempty"`
	Text       string            `json:"text,omitempty"`
}
