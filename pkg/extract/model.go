package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/halldyll/recall-go/pkg/llm"
	"github.com/halldyll/recall-go/pkg/model"
)

// Errors returned by the model-assisted pass. Either one discards the whole
// response.
var (
	ErrMalformed = errors.New("malformed model response")
	ErrOversized = errors.New("model response has too many items")
)

// ModelPass asks a language model for structured memory candidates.
//
// Example usage:
//
//	pass := NewModelPass(provider, 6)
//	drafts, err := pass.Extract(ctx, turn)
type ModelPass struct {
	// llm is the provider asked for candidates.
	llm llm.Provider

	// maxItems bounds the accepted response size.
	maxItems int

	// customPrompt replaces the default system prompt when set.
	customPrompt string
}

// NewModelPass creates a model-assisted pass.
//
// Parameters:
//   - provider: LLM provider (required)
//   - maxItems: Largest acceptable number of candidates; larger responses are discarded
//
// Returns a new ModelPass with the default prompt.
func NewModelPass(provider llm.Provider, maxItems int) *ModelPass {
	return &ModelPass{llm: provider, maxItems: maxItems}
}

// NewModelPassWithPrompt creates a model-assisted pass with a custom system
// prompt. The prompt must still ask for the {"memories": [...]} format.
func NewModelPassWithPrompt(provider llm.Provider, maxItems int, customPrompt string) *ModelPass {
	return &ModelPass{llm: provider, maxItems: maxItems, customPrompt: customPrompt}
}

// envelope is the JSON object the model is asked for.
type envelope struct {
	Memories *[]json.RawMessage `json:"memories"`
}

// candidate is one element of the memories array.
type candidate struct {
	Kind     string   `json:"kind"`
	Content  string   `json:"content"`
	Salience *float64 `json:"salience"`
}

// Extract asks the model for candidates from one turn.
//
// The extraction process:
//  1. Renders the turn as role-labelled lines
//  2. Calls the LLM with the extraction prompt
//  3. Parses the {"memories": [...]} object, tolerating a fenced code block
//     or a bare array
//
// Responses without an array of objects fail with ErrMalformed;
// more than maxItems entries fail with ErrOversized. Neither is retried.
// Unknown kinds become fact; missing or out-of-range salience falls back to
// the kind default.
func (p *ModelPass) Extract(ctx context.Context, turn model.Turn) ([]model.Draft, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: p.systemPrompt()},
		{Role: llm.RoleUser, Content: "Input:\n" + renderTurn(turn)},
	}

	response, err := p.llm.GenerateWithMessages(ctx, messages, llm.WithTemperature(0), llm.WithJSON())
	if err != nil {
		return nil, fmt.Errorf("model extraction: %w", err)
	}

	return p.parse(response)
}

func (p *ModelPass) parse(response string) ([]model.Draft, error) {
	body := []byte(llm.Unfence(response))

	var raw []json.RawMessage
	if len(body) > 0 && body[0] == '{' {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if env.Memories == nil {
			return nil, fmt.Errorf("%w: missing \"memories\"", ErrMalformed)
		}
		raw = *env.Memories
	} else if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.maxItems > 0 && len(raw) > p.maxItems {
		return nil, fmt.Errorf("%w: got %d, limit %d", ErrOversized, len(raw), p.maxItems)
	}

	drafts := make([]model.Draft, 0, len(raw))
	for _, r := range raw {
		var c candidate
		if err := json.Unmarshal(r, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		content := strings.TrimSpace(c.Content)
		if content == "" {
			continue
		}
		kind, err := model.ParseMemoryKind(c.Kind)
		if err != nil {
			kind = model.KindFact
		}
		salience := kind.DefaultSalience()
		if c.Salience != nil && *c.Salience > 0 && *c.Salience <= 1 {
			salience = *c.Salience
		}
		drafts = append(drafts, model.Draft{
			Kind:     kind,
			Content:  content,
			Salience: salience,
			Source:   model.SourceModel,
		})
	}
	return drafts, nil
}

func (p *ModelPass) systemPrompt() string {
	if p.customPrompt != "" {
		return p.customPrompt
	}
	kinds := make([]string, 0, len(model.Kinds()))
	for _, k := range model.Kinds() {
		kinds = append(kinds, string(k))
	}
	return fmt.Sprintf(`You extract stable, long-term memories about the user from one conversation turn.

Return a JSON object {"memories": [...]} whose array holds objects with fields:
- "kind": one of %s
- "content": a short self-contained statement, in the user's language
- "salience": importance from 0 to 1

Rules:
- Return at most %d items
- Keep time references ("yesterday", "next week") inside content
- Never store secrets, passwords or API keys
- Return {"memories": []} if nothing should be stored`, strings.Join(kinds, ", "), p.maxItems)
}

// renderTurn renders a turn as role-labelled lines.
func renderTurn(turn model.Turn) string {
	var b strings.Builder
	if turn.UserText != "" {
		fmt.Fprintf(&b, "%s: %s\n", model.RoleUser.Label(), turn.UserText)
	}
	if turn.AssistantText != "" {
		fmt.Fprintf(&b, "%s: %s\n", model.RoleAssistant.Label(), turn.AssistantText)
	}
	for _, ev := range turn.ToolEvents {
		fmt.Fprintf(&b, "%s (%s): %s\n", model.RoleTool.Label(), ev.Name, ev.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
