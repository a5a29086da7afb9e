package extract

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/halldyll/recall-go/pkg/model"
)

// Rule maps a sentence pattern to a memory kind.
//
// Rules are plain data so they can be listed, tested and extended without
// touching the extraction loop.
type Rule struct {
	// Name identifies the rule in drafts and logs.
	Name string `json:"name" yaml:"name"`

	// Pattern is an RE2 regular expression matched against one sentence.
	Pattern string `json:"pattern" yaml:"pattern"`

	// Kind is the kind assigned to a matching sentence.
	Kind model.MemoryKind `json:"kind" yaml:"kind"`

	// Salience overrides the kind's default salience when positive.
	Salience float64 `json:"salience,omitempty" yaml:"salience,omitempty"`

	// Priority orders evaluation; higher is checked first.
	Priority int `json:"priority" yaml:"priority"`

	// When is an optional boolean expression over role, text and length
	// that must hold for the rule to apply, e.g. `role == "user"`.
	When string `json:"when,omitempty" yaml:"when,omitempty"`
}

const userOnly = `role == "user"`

// DefaultRules returns the built-in rule table.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "identity.name", Kind: model.KindIdentity, Priority: 100, When: userOnly,
			Pattern: `(?i)\b(my name is|i'm called|call me)\s+\w+`},
		{Name: "identity.age", Kind: model.KindIdentity, Priority: 100, When: userOnly,
			Pattern: `(?i)\b(i am|i'm)\s+\d+\s*(years? old|yo)\b`},
		{Name: "identity.location", Kind: model.KindIdentity, Priority: 100, When: userOnly,
			Pattern: `(?i)\b(i live in|i'm from|i am from|based in)\s+\w+`},
		{Name: "identity.work", Kind: model.KindIdentity, Priority: 100, When: userOnly,
			Pattern: `(?i)\b(i work (at|for|as)|my job is|my role is)\s+\w+`},
		{Name: "identity.language", Kind: model.KindIdentity, Priority: 100, When: userOnly,
			Pattern: `(?i)\b(i speak|i'm (fluent in|native)|my (native|first) language)\b`},

		{Name: "constraint.negation", Kind: model.KindConstraint, Priority: 95, When: userOnly,
			Pattern: `(?i)\b(do not|don't|never|must not|cannot|can't|shouldn't|won't)\b`},
		{Name: "constraint.emphasis", Kind: model.KindConstraint, Priority: 95, When: userOnly,
			Pattern: `(?i)\b(it's (important|critical|essential|crucial) that|always make sure)\b`},

		{Name: "aversion.dislike", Kind: model.KindAversion, Priority: 90, When: userOnly,
			Pattern: `(?i)\b(i hate|i dislike|i despise|i loathe)\b`},
		{Name: "aversion.allergy", Kind: model.KindAversion, Priority: 90, When: userOnly,
			Pattern: `(?i)\b(i'm allergic to|i am allergic to|i'm intolerant)\b`},
		{Name: "aversion.annoyance", Kind: model.KindAversion, Priority: 90, When: userOnly,
			Pattern: `(?i)\b(i'm (annoyed|frustrated|bothered) (by|when)|it annoys me)\b`},

		{Name: "preference.like", Kind: model.KindPreference, Priority: 85, When: userOnly,
			Pattern: `(?i)\b(i|we)\s+(like|love|prefer|enjoy|adore)\b`},
		{Name: "preference.favorite", Kind: model.KindPreference, Priority: 85, When: userOnly,
			Pattern: `(?i)\b(my favou?rite|i always choose|i'm a fan of)\b`},
		{Name: "preference.habit", Kind: model.KindPreference, Priority: 85, When: userOnly,
			Pattern: `(?i)\b(i usually|i tend to|i often|i always)\b`},

		{Name: "instruction.format", Kind: model.KindInstruction, Priority: 82, When: userOnly,
			Pattern: `(?i)\b(always respond|always use|use .+ format|respond in|answer in)\b`},
		{Name: "instruction.style", Kind: model.KindInstruction, Priority: 82, When: userOnly,
			Pattern: `(?i)\b(be (concise|brief|detailed|formal|casual)|keep (it|things|responses) (short|brief|simple))\b`},
		{Name: "instruction.language", Kind: model.KindInstruction, Priority: 82, When: userOnly,
			Pattern: `(?i)\b(speak|write|reply|answer)\s+(in|only in)\s+\w+`},

		{Name: "goal.intent", Kind: model.KindGoal, Priority: 80, When: userOnly,
			Pattern: `(?i)\b(i|we)\s+(want|need|plan|aim|intend|hope)\s+to\b`},
		{Name: "goal.effort", Kind: model.KindGoal, Priority: 80, When: userOnly,
			Pattern: `(?i)\b(my goal is|i'm trying to|i'm (working on|learning|studying))\b`},
		{Name: "goal.aspiration", Kind: model.KindGoal, Priority: 80, When: userOnly,
			Pattern: `(?i)\b(one day i|someday i|i dream of)\b`},

		{Name: "decision.choice", Kind: model.KindDecision, Priority: 75, When: userOnly,
			Pattern: `(?i)\b(i|we)\s+(decided|will|chose|picked|selected|went with)\b`},
		{Name: "decision.plan", Kind: model.KindDecision, Priority: 75, When: userOnly,
			Pattern: `(?i)\b(i'm going to|we're going to|let's (go with|use|do))\b`},

		{Name: "task.todo", Kind: model.KindTask, Priority: 72, When: userOnly,
			Pattern: `(?i)\b(todo|to-do|next step|action item)\b`},
		{Name: "task.reminder", Kind: model.KindTask, Priority: 72, When: userOnly,
			Pattern: `(?i)\b(remind me to|remember to|i should)\b`},

		{Name: "feedback.judgement", Kind: model.KindFeedback, Priority: 70, When: userOnly,
			Pattern: `(?i)\b(good job|well done|that's (wrong|incorrect|right)|you (should|shouldn't))\b`},
		{Name: "feedback.correction", Kind: model.KindFeedback, Priority: 70, When: userOnly,
			Pattern: `(?i)\b(actually|that's not|you made a mistake)\b`},

		{Name: "artifact.code_ref", Kind: model.KindArtifact, Priority: 65,
			Pattern: `(?i)\bthe (file|function|class|module|method|variable) (is|called|named)\b`},
		{Name: "artifact.source_file", Kind: model.KindArtifact, Priority: 65,
			Pattern: `\w\.(rs|py|ts|tsx|js|jsx|go|java|cpp|c|h|hpp|css|html|json|yaml|yml|toml|sql)\b`},
		{Name: "artifact.vcs_ref", Kind: model.KindArtifact, Priority: 65,
			Pattern: `(?i)\b(commit|branch|pull request|pr|issue)\s*(#\d+|[a-f0-9]{7,}\b)`},

		{Name: "procedure.steps", Kind: model.KindProcedure, Priority: 62, When: userOnly,
			Pattern: `(?i)\b(how to|step\s*\d+|first,?\s+(you|we)|then,?\s+(you|we))\b`},
		{Name: "procedure.howto", Kind: model.KindProcedure, Priority: 62, When: userOnly,
			Pattern: `(?i)\b(to do this|the process is|follow these|here's how)\b`},

		{Name: "fact.first_person", Kind: model.KindFact, Priority: 60, When: userOnly,
			Pattern: `(?i)\b(i am|i'm|i have|i've got|i own|my \w+( \w+)? is)\b`},
		{Name: "fact.knowledge", Kind: model.KindFact, Priority: 60, When: userOnly,
			Pattern: `(?i)\b(i know|i remember|i learned|i read|i heard)\b`},
		{Name: "fact.project", Kind: model.KindFact, Priority: 60,
			Pattern: `(?i)\b(the project|this (app|application|system|code|codebase))\s+(is|uses|has)\b`},

		{Name: "event.temporal", Kind: model.KindEvent, Priority: 58, When: userOnly,
			Pattern: `(?i)\b(today|yesterday|tomorrow|tonight|last (night|week|month|year)|this (morning|afternoon|evening|weekend)|next (week|month))\b`},

		{Name: "artifact.document", Kind: model.KindArtifact, Priority: 55, Salience: 0.55,
			Pattern: `(?i)(\bthe (document|doc|readme|wiki|guide|manual) (is|says|mentions)\b|\w\.(md|txt|pdf|docx?|xlsx?|pptx?)\b)`},
		{Name: "artifact.media", Kind: model.KindArtifact, Priority: 50, Salience: 0.55,
			Pattern: `(?i)(\bthe (image|picture|photo|audio|video) (shows|is|was)\b|\w\.(png|jpe?g|gif|svg|mp3|wav|mp4|webm|ogg)\b)`},
	}
}

// compiledRule is a Rule ready for matching.
type compiledRule struct {
	Rule
	re   *regexp.Regexp
	cond *vm.Program
}

// RuleSet is an immutable, priority-ordered set of compiled rules. It is
// safe for concurrent use.
type RuleSet struct {
	rules []compiledRule
}

// ruleEnv declares the variables a When expression may use.
func ruleEnv(role model.Role, text string) map[string]interface{} {
	return map[string]interface{}{
		"role":   string(role),
		"text":   text,
		"length": len([]rune(text)),
	}
}

// NewRuleSet compiles rules and orders them by descending priority. Rules
// with equal priority keep their given order.
//
// Parameters:
//   - rules: Rule definitions; each needs a name, a valid pattern and a known kind
//
// Returns:
//   - *RuleSet: The compiled rule set
//   - error: Error naming the first invalid rule
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule with pattern %q has no name", r.Pattern)
		}
		if !r.Kind.Valid() {
			return nil, fmt.Errorf("rule %s: %w: %q", r.Name, model.ErrUnknownKind, r.Kind)
		}
		if r.Salience < 0 || r.Salience > 1 {
			return nil, fmt.Errorf("rule %s: salience %v out of [0,1]", r.Name, r.Salience)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		cr := compiledRule{Rule: r, re: re}
		if r.When != "" {
			prog, err := expr.Compile(r.When, expr.Env(ruleEnv("", "")), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("rule %s: when: %w", r.Name, err)
			}
			cr.cond = prog
		}
		compiled = append(compiled, cr)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})
	return &RuleSet{rules: compiled}, nil
}

// Match returns the highest-priority rule matching the sentence.
func (rs *RuleSet) Match(role model.Role, sentence string) (Rule, bool) {
	var env map[string]interface{}
	for _, r := range rs.rules {
		if !r.re.MatchString(sentence) {
			continue
		}
		if r.cond != nil {
			if env == nil {
				env = ruleEnv(role, sentence)
			}
			out, err := expr.Run(r.cond, env)
			if err != nil {
				continue
			}
			if ok, _ := out.(bool); !ok {
				continue
			}
		}
		return r.Rule, true
	}
	return Rule{}, false
}

// Rules returns the rules in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.Rule
	}
	return out
}
