package careerquest

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	minKeywordLen = 4
	maxKeywords   = 24
)

// fold lower-cases s and strips accents.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ExtractKeywords returns the distinct folded words of at least four
// characters found in texts, in order of appearance, at most 24.
func ExtractKeywords(texts ...string) []string {
	var out []string
	seen := map[string]bool{}
	for _, text := range texts {
		for _, w := range splitWords(fold(text)) {
			if len([]rune(w)) < minKeywordLen || seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
			if len(out) == maxKeywords {
				return out
			}
		}
	}
	return out
}

// ProfileKeywords extracts keywords from weaknesses and skill-gap fields.
func ProfileKeywords(p Profile) []string {
	texts := append([]string(nil), p.Weaknesses...)
	if g := p.SkillGap; g != nil {
		texts = append(texts, g.Skill, g.Gap, g.Required)
		texts = append(texts, g.MicroActions...)
	}
	return ExtractKeywords(texts...)
}

// IsService1Priority reports whether the task text mentions any keyword.
func IsService1Priority(t QuestTask, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	hay := fold(t.Title + " " + t.Objective + " " + strings.Join(t.Actions, " "))
	for _, k := range keywords {
		if strings.Contains(hay, k) {
			return true
		}
	}
	return false
}
