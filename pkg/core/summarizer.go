package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/halldyll/recall-go/pkg/llm"
	"github.com/halldyll/recall-go/pkg/model"
)

// eventsPerTurn sizes the first transcript read used to find the turns a
// summary has not covered yet. Turns with more events widen the read.
const eventsPerTurn = 4

const summaryPrompt = `You maintain a running summary of a conversation between a user and an assistant.
Merge the new dialogue into the existing summary. Keep durable facts, preferences, decisions and open tasks; drop small talk.
Write plain prose, no headings, at most %d characters. Reply with the summary only.`

// summarizer regenerates the rolling session summary.
type summarizer struct {
	llm         llm.Provider
	maxChars    int
	timeout     time.Duration
	temperature float64
	maxTokens   int
}

// summarize returns the new summary text. Without a language model it
// appends the dialogue to the prior summary and keeps the most recent
// maxChars characters.
func (s *summarizer) summarize(ctx context.Context, prior string, events []model.TranscriptEvent) (string, error) {
	if s.llm == nil {
		return extractiveSummary(prior, events, s.maxChars), nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var in strings.Builder
	if prior != "" {
		in.WriteString("Existing summary:\n")
		in.WriteString(prior)
		in.WriteString("\n\n")
	}
	in.WriteString("New dialogue:")
	in.WriteString(renderEvents(events))

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(summaryPrompt, s.maxChars)},
		{Role: llm.RoleUser, Content: in.String()},
	}
	text, err := s.llm.GenerateWithMessages(ctx, messages,
		llm.WithTemperature(s.temperature),
		llm.WithMaxTokens(s.maxTokens),
	)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return model.Truncate(text, s.maxChars), nil
}

func extractiveSummary(prior string, events []model.TranscriptEvent, maxChars int) string {
	return strings.TrimSpace(truncateHead(prior+renderEvents(events), maxChars))
}

func renderEvents(events []model.TranscriptEvent) string {
	var b strings.Builder
	for _, ev := range events {
		b.WriteByte('\n')
		b.WriteString(ev.Role.Label())
		b.WriteString(": ")
		b.WriteString(ev.Content)
	}
	return b.String()
}

// truncateHead keeps the last n runes of s.
func truncateHead(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// lastTurns keeps the events of the last n distinct turns, chronological.
func lastTurns(events []model.TranscriptEvent, n int64) []model.TranscriptEvent {
	if n <= 0 {
		return nil
	}
	seen := make(map[model.TurnID]struct{})
	start := len(events)
	for i := len(events) - 1; i >= 0; i-- {
		if _, ok := seen[events[i].TurnID]; !ok {
			if int64(len(seen)) == n {
				break
			}
			seen[events[i].TurnID] = struct{}{}
		}
		start = i
	}
	return events[start:]
}

// distinctTurns counts the turns present in events.
func distinctTurns(events []model.TranscriptEvent) int64 {
	seen := make(map[model.TurnID]struct{})
	for _, ev := range events {
		seen[ev.TurnID] = struct{}{}
	}
	return int64(len(seen))
}
