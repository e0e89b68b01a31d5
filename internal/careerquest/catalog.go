package careerquest

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maconsulting/parcours/internal/models"
)

//go:embed catalog.yaml
var catalogYAML []byte

// QuestTask is one mission of the quest.
type QuestTask struct {
	ID        string   `yaml:"id" json:"id"`
	Title     string   `yaml:"title" json:"title"`
	Objective string   `yaml:"objective" json:"objective"`
	Actions   []string `yaml:"actions" json:"actions,omitempty"`
	Reward    Reward   `yaml:"reward" json:"reward"`
	// Personalized tasks come from the participant's Service 1 results.
	Personalized bool `yaml:"-" json:"personalized,omitempty"`
	// Priority marks tasks matching the participant's weak spots.
	Priority bool `yaml:"-" json:"priority,omitempty"`
}

// QuestPhase groups tasks; phases unlock in order.
type QuestPhase struct {
	ID    string      `yaml:"id" json:"id"`
	Title string      `yaml:"title" json:"title"`
	Tasks []QuestTask `yaml:"tasks" json:"tasks"`
}

// Catalog is the ordered list of phases for one participant.
type Catalog struct {
	Phases []QuestPhase `json:"phases"`
}

// PersonalizedPhaseID is the id of the phase built from Service 1 results.
const PersonalizedPhaseID = "service1"

// Pressure tiers for personalized tasks.
var pressureRewards = map[string]Reward{
	"low":    {XP: 520, Coins: 260},
	"medium": {XP: 700, Coins: 340},
	"high":   {XP: 880, Coins: 420},
}

// RewardForPressure maps low, medium or high to a reward; anything else is
// medium.
func RewardForPressure(pressure string) Reward {
	if r, ok := pressureRewards[strings.ToLower(strings.TrimSpace(pressure))]; ok {
		return r
	}
	return pressureRewards["medium"]
}

// maxMicroActions bounds the skill-gap tasks added to the catalog.
const maxMicroActions = 4

// Profile is what the catalog is personalized with.
type Profile struct {
	Weaknesses   []string
	SelectedPath string
	FinalActions []models.FinalAction
	SkillGap     *models.SkillGap
}

// ProfileFromPhase5 extracts a Profile from a Service 1 phase 5 state.
func ProfileFromPhase5(p5 *models.Phase5State) Profile {
	if p5 == nil {
		return Profile{}
	}
	var pr Profile
	if ap := p5.AggregatedProfile; ap != nil {
		pr.Weaknesses = ap.Weaknesses
		pr.SelectedPath = ap.SelectedPath
	}
	pr.FinalActions = p5.FinalActions
	pr.SkillGap = p5.SkillGap
	return pr
}

// StaticPhases parses the embedded catalog.
func StaticPhases() ([]QuestPhase, error) {
	var doc struct {
		Phases []QuestPhase `yaml:"phases"`
	}
	if err := yaml.Unmarshal(catalogYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse quest catalog: %w", err)
	}
	return doc.Phases, nil
}

// BuildCatalog returns the static phases, each task flagged when it matches
// the profile's keywords, followed by a personalized phase when the profile
// has final actions or micro-actions.
func BuildCatalog(profile Profile) (Catalog, error) {
	phases, err := StaticPhases()
	if err != nil {
		return Catalog{}, err
	}
	keywords := ProfileKeywords(profile)
	for i := range phases {
		for j := range phases[i].Tasks {
			phases[i].Tasks[j].Priority = IsService1Priority(phases[i].Tasks[j], keywords)
		}
	}
	if extra := personalizedTasks(profile); len(extra) > 0 {
		title := "Plan personnalisé"
		if profile.SelectedPath != "" {
			title += " : " + profile.SelectedPath
		}
		phases = append(phases, QuestPhase{ID: PersonalizedPhaseID, Title: title, Tasks: extra})
	}
	return Catalog{Phases: phases}, nil
}

func personalizedTasks(profile Profile) []QuestTask {
	var tasks []QuestTask
	for i, fa := range profile.FinalActions {
		id := fa.ID
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		tasks = append(tasks, QuestTask{
			ID:           "s1-action-" + id,
			Title:        fa.Title,
			Objective:    fa.Description,
			Reward:       RewardForPressure(fa.Pressure),
			Personalized: true,
		})
	}
	if gap := profile.SkillGap; gap != nil {
		for i, micro := range gap.MicroActions {
			if i == maxMicroActions {
				break
			}
			tasks = append(tasks, QuestTask{
				ID:           "s1-gap-" + strconv.Itoa(i+1),
				Title:        micro,
				Objective:    "Réduire l'écart sur : " + gap.Skill,
				Reward:       RewardForPressure(gap.Pressure),
				Personalized: true,
			})
		}
	}
	return tasks
}

// Task finds a task and its phase index.
func (c Catalog) Task(id string) (QuestTask, int, bool) {
	for i, ph := range c.Phases {
		for _, t := range ph.Tasks {
			if t.ID == id {
				return t, i, true
			}
		}
	}
	return QuestTask{}, -1, false
}

// PhaseUnlocked reports whether phase i is open: phase 0 always, any other
// once every task of phase i-1 is completed.
func (c Catalog) PhaseUnlocked(i int, completed map[string]bool) bool {
	if i <= 0 {
		return i == 0
	}
	if i >= len(c.Phases) {
		return false
	}
	for _, t := range c.Phases[i-1].Tasks {
		if !completed[t.ID] {
			return false
		}
	}
	return true
}

// CurrentTask is the first task not yet completed, in catalog order.
func (c Catalog) CurrentTask(completed map[string]bool) (QuestTask, int, bool) {
	for i, ph := range c.Phases {
		for _, t := range ph.Tasks {
			if !completed[t.ID] {
				return t, i, true
			}
		}
	}
	return QuestTask{}, -1, false
}
