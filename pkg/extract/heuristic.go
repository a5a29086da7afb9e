package extract

import (
	"strings"
	"unicode"

	"github.com/halldyll/recall-go/pkg/model"
)

// SplitSentences splits text on newlines and on '.', '!' or '?' when they
// end a sentence (followed by whitespace or end of text). A dot inside a
// token such as "main.go" does not split.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	emit := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
	}
	for i, r := range runes {
		switch {
		case r == '\n':
			emit(i)
			start = i + 1
		case r == '.' || r == '!' || r == '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				emit(i)
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		emit(len(runes))
	}
	return out
}

// Heuristic runs the rule table over every sentence of a turn.
type Heuristic struct {
	rules *RuleSet
}

// NewHeuristic creates a heuristic pass over rules.
func NewHeuristic(rules *RuleSet) *Heuristic {
	return &Heuristic{rules: rules}
}

// Extract returns one draft per matching sentence, in turn order: user
// text, then assistant text, then tool events.
func (h *Heuristic) Extract(turn model.Turn) []model.Draft {
	var drafts []model.Draft
	scan := func(role model.Role, text string) {
		for _, sentence := range SplitSentences(text) {
			rule, ok := h.rules.Match(role, sentence)
			if !ok {
				continue
			}
			salience := rule.Salience
			if salience == 0 {
				salience = rule.Kind.DefaultSalience()
			}
			drafts = append(drafts, model.Draft{
				Kind:     rule.Kind,
				Content:  sentence,
				Salience: salience,
				Source:   model.SourceHeuristic,
				Rule:     rule.Name,
			})
		}
	}

	scan(model.RoleUser, turn.UserText)
	scan(model.RoleAssistant, turn.AssistantText)
	for _, ev := range turn.ToolEvents {
		scan(model.RoleTool, ev.Content)
	}
	return drafts
}
