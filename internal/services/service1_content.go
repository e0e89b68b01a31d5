package services

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/maconsulting/parcours/internal/models"
)

var defaultWeaknesses = []string{"Négociation salariale", "Prise de parole en public"}

func analyzeCV(fileName, text string) *models.CVAnalysis {
	words := strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) })
	seen := map[string]bool{}
	var skills []string
	for _, w := range words {
		if len([]rune(w)) < 6 || !unicode.IsUpper([]rune(w)[0]) {
			continue
		}
		k := strings.ToLower(w)
		if seen[k] {
			continue
		}
		seen[k] = true
		skills = append(skills, w)
		if len(skills) == 5 {
			break
		}
	}
	return &models.CVAnalysis{
		FileName: fileName,
		Summary:  fmt.Sprintf("CV de %d mots analysé.", len(words)),
		Skills:   skills,
	}
}

func interviewQuestions(cv *models.CVAnalysis) []models.InterviewQuestion {
	focus := "ton parcours"
	if len(cv.Skills) > 0 {
		focus = cv.Skills[0]
	}
	return []models.InterviewQuestion{
		{ID: "q1", Text: "Qu'est-ce qui t'amène à faire ce bilan aujourd'hui ?"},
		{ID: "q2", Text: fmt.Sprintf("Raconte une réussite liée à %s.", focus)},
		{ID: "q3", Text: "Quelle situation professionnelle te met le plus en difficulté ?"},
	}
}

func cadrageNote(p0 *models.Phase0State) string {
	var b strings.Builder
	b.WriteString("## Note de cadrage\n\n")
	for i, a := range p0.Interview.Answers {
		q := a.QuestionID
		if i < len(p0.Interview.Questions) {
			q = p0.Interview.Questions[i].Text
		}
		fmt.Fprintf(&b, "- **%s** %s\n", q, a.Answer)
	}
	return b.String()
}

func profileAnalysis(p0 *models.Phase0State) *models.ProfileAnalysis {
	strengths := []string{"Sens du service", "Rigueur"}
	if p0.CV != nil && len(p0.CV.Skills) > 0 {
		strengths = append([]string(nil), p0.CV.Skills[:min(3, len(p0.CV.Skills))]...)
	}
	weaknesses := append([]string(nil), defaultWeaknesses...)
	if p0.Interview != nil {
		for _, a := range p0.Interview.Answers {
			if strings.Contains(strings.ToLower(a.Answer), "stress") {
				weaknesses = append(weaknesses, "Gestion du stress")
				break
			}
		}
	}
	return &models.ProfileAnalysis{
		Summary:    fmt.Sprintf("Profil appuyé sur %s.", strings.Join(strengths, ", ")),
		Strengths:  strengths,
		Weaknesses: weaknesses,
	}
}

func weaknessesOf(a *models.ProfileAnalysis) []string {
	if a == nil || len(a.Weaknesses) == 0 {
		return defaultWeaknesses
	}
	return a.Weaknesses
}

func profileReport(a *models.ProfileAnalysis) string {
	var b strings.Builder
	b.WriteString("# Analyse de profil\n\n")
	b.WriteString(a.Summary + "\n\n## Forces\n")
	for _, s := range a.Strengths {
		b.WriteString("- " + s + "\n")
	}
	b.WriteString("\n## Axes de progrès\n")
	for _, w := range a.Weaknesses {
		b.WriteString("- " + w + "\n")
	}
	return b.String()
}

func scenarios(a *models.ProfileAnalysis) []models.Scenario {
	w := weaknessesOf(a)
	return []models.Scenario{
		{ID: "sc1", Title: "Entretien annuel", Situation: "Ton manager ouvre la discussion sur ta rémunération.", Question: "Que réponds-tu ?"},
		{ID: "sc2", Title: "Réunion d'équipe", Situation: "On te demande de présenter un projet au pied levé.", Question: "Comment t'y prends-tu ?"},
		{ID: "sc3", Title: w[0], Situation: fmt.Sprintf("Une situation te confronte à : %s.", strings.ToLower(w[0])), Question: "Quelle est ta première action ?"},
	}
}

func scenarioReport(p2 *models.Phase2State) string {
	var b strings.Builder
	b.WriteString("# Mises en situation\n")
	for _, sc := range p2.Scenarios {
		a := p2.Answers[sc.ID]
		level := "à approfondir"
		if len(strings.Fields(a)) >= 12 {
			level = "réponse structurée"
		}
		fmt.Fprintf(&b, "\n## %s\n%s\n\n> %s\n", sc.Title, level, a)
	}
	return b.String()
}

func growthPaths(a *models.ProfileAnalysis) []models.GrowthPath {
	w := weaknessesOf(a)
	return []models.GrowthPath{
		{ID: "path-expert", Title: "Expertise", Description: "Approfondir ton métier actuel et devenir la référence.", Horizon: "12 mois"},
		{ID: "path-manager", Title: "Management", Description: "Prendre la responsabilité d'une équipe.", Horizon: "18 mois"},
		{ID: "path-pivot", Title: "Évolution", Description: fmt.Sprintf("Changer de poste en travaillant : %s.", strings.ToLower(w[0])), Horizon: "9 mois"},
	}
}

func actionPlan(path models.GrowthPath) *models.Phase4State {
	return &models.Phase4State{
		Status: "completed",
		Note:   fmt.Sprintf("Plan d'action pour le parcours %s (%s).", path.Title, path.Horizon),
		Planning: []models.PlanningItem{
			{Week: 1, Title: "Clarifier l'objectif avec ton manager"},
			{Week: 2, Title: "Identifier deux personnes ressources"},
			{Week: 3, Title: "Réaliser une première mise en pratique"},
			{Week: 4, Title: "Faire le bilan et ajuster"},
		},
		Roadmap3Months: []models.RoadmapMonth{
			{Month: 1, Focus: "Poser les bases", Milestones: []string{"Objectif validé"}},
			{Month: 2, Focus: "Pratiquer", Milestones: []string{"Trois mises en situation"}},
			{Month: 3, Focus: "Consolider", Milestones: []string{"Bilan partagé", path.Title + " engagé"}},
		},
	}
}

func aggregate(a *models.ProfileAnalysis, path *models.GrowthPath) *models.AggregatedProfile {
	p := &models.AggregatedProfile{Summary: "Profil consolidé des phases 0 à 4.", Weaknesses: weaknessesOf(a)}
	if a != nil {
		p.Strengths = a.Strengths
		p.Summary = a.Summary
	}
	if path != nil {
		p.SelectedPath = path.Title
	}
	return p
}

func selfAwareness(p *models.AggregatedProfile, text string) *models.SelfAwareness {
	lower := strings.ToLower(text)
	score := min(40, len(strings.Fields(text))*2)
	hits := 0
	for _, w := range append(append([]string(nil), p.Strengths...), p.Weaknesses...) {
		if strings.Contains(lower, strings.ToLower(w)) {
			hits++
		}
	}
	score = min(100, score+hits*20)
	feedback := "Ta description reste éloignée de ton profil."
	if hits > 0 {
		feedback = fmt.Sprintf("Tu identifies %d élément(s) clé(s) de ton profil.", hits)
	}
	return &models.SelfAwareness{Score: score, Feedback: feedback}
}

func finalActions(p *models.AggregatedProfile) []models.FinalAction {
	w := defaultWeaknesses
	if p != nil && len(p.Weaknesses) > 0 {
		w = p.Weaknesses
	}
	return []models.FinalAction{
		{ID: "fa-1", Title: "Observer un pair sur : " + w[0], Description: "Une séance d'observation.", Pressure: "low"},
		{ID: "fa-2", Title: "Préparer une simulation : " + w[0], Description: "Un jeu de rôle avec un collègue.", Pressure: "medium"},
		{ID: "fa-3", Title: "Passer à l'action : " + w[len(w)-1], Description: "Une situation réelle dans le mois.", Pressure: "high"},
	}
}

func skillGap(p *models.AggregatedProfile, a models.FinalAction) *models.SkillGap {
	skill := a.Title
	if p != nil && len(p.Weaknesses) > 0 {
		skill = p.Weaknesses[0]
	}
	return &models.SkillGap{
		Skill:    skill,
		Current:  "Débutant",
		Required: "Autonome",
		Gap:      "Pratique régulière en situation réelle",
		Pressure: a.Pressure,
		MicroActions: []string{
			"Lister trois situations récentes",
			"Écrire ton argumentaire en cinq lignes",
			"Répéter à voix haute",
			"Demander un retour précis",
			"Refaire l'exercice sous contrainte de temps",
		},
	}
}

func grandSimulation(a models.FinalAction) *models.GrandSimulation {
	return &models.GrandSimulation{
		Scenario: fmt.Sprintf("Tu dois mener à bien : %s. Ton interlocuteur est pressé et sceptique.", strings.ToLower(a.Title)),
		Question: "Comment conduis-tu l'échange, étape par étape ?",
	}
}

func evaluate(answer string) *models.Evaluation {
	n := len(strings.Fields(answer))
	score := min(100, 30+n*2)
	verdict := "À retravailler"
	switch {
	case score >= 80:
		verdict = "Prêt"
	case score >= 55:
		verdict = "En bonne voie"
	}
	return &models.Evaluation{Score: score, Verdict: verdict, Feedback: fmt.Sprintf("Réponse de %d mots.", n)}
}

func handover(p5 *models.Phase5State) string {
	action := ""
	if p5.SelectedFinalAction != nil {
		action = p5.SelectedFinalAction.Title
	}
	return fmt.Sprintf("Passage de relais : %s. Évaluation %d/100 (%s).", action, p5.Evaluation.Score, p5.Evaluation.Verdict)
}

func finalMarkdown(p4 *models.Phase4State, p5 *models.Phase5State) string {
	var b strings.Builder
	b.WriteString("# Synthèse finale\n\n")
	if p := p5.AggregatedProfile; p != nil {
		fmt.Fprintf(&b, "%s\n\nParcours retenu : %s\n\n", p.Summary, p.SelectedPath)
	}
	if p4.Note != "" {
		b.WriteString("## Plan\n" + p4.Note + "\n\n")
	}
	b.WriteString("## Action finale\n" + p5.Handover + "\n")
	if g := p5.SkillGap; g != nil {
		b.WriteString("\n## Micro-actions\n")
		for _, m := range g.MicroActions {
			b.WriteString("- " + m + "\n")
		}
	}
	return b.String()
}
