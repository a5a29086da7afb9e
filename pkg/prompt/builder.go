// Package prompt assembles the memory context injected into a model prompt.
//
// Output is a fixed sequence of tagged sections:
//
//	[MEMORY_SUMMARY]
//	[MEMORY_RELEVANT]
//	[SHORT_TERM]
//	[USER_MESSAGE]
//
// Sections with no content are omitted. Formatting depends only on the
// inputs and the supplied instant, so the same inputs always produce the
// same string.
package prompt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/halldyll/recall-go/pkg/model"
)

// Section tags.
const (
	TagSummary   = "[MEMORY_SUMMARY]"
	TagMemories  = "[MEMORY_RELEVANT]"
	TagShortTerm = "[SHORT_TERM]"
	TagUser      = "[USER_MESSAGE]"
)

// Parts are the inputs of a prompt block.
type Parts struct {
	// Summary is the rolling session summary, empty if none.
	Summary string

	// Memories are ranked highest score first.
	Memories []model.RankedMemory

	// ShortTerm holds transcript events in chronological order.
	ShortTerm []model.TranscriptEvent

	UserMessage string
}

// Build renders parts as of instant now.
func Build(p Parts, now time.Time) string {
	var b strings.Builder

	if p.Summary != "" {
		b.WriteString(TagSummary)
		b.WriteByte('\n')
		b.WriteString(p.Summary)
		b.WriteByte('\n')
	}

	if len(p.Memories) > 0 {
		b.WriteString(TagMemories)
		b.WriteByte('\n')
		for _, m := range p.Memories {
			b.WriteString(memoryLine(m, now))
		}
	}

	if len(p.ShortTerm) > 0 {
		b.WriteString(TagShortTerm)
		b.WriteByte('\n')
		for _, ev := range p.ShortTerm {
			b.WriteString(eventLine(ev))
		}
	}

	if p.UserMessage != "" {
		b.WriteString(userSection(p.UserMessage))
	}

	return b.String()
}

// Len returns the rendered length of parts in characters.
func Len(p Parts, now time.Time) int {
	return utf8.RuneCountInString(Build(p, now))
}

func memoryLine(m model.RankedMemory, now time.Time) string {
	age := int64(m.Item.Age(now) / time.Second)
	return fmt.Sprintf("* (%s) %s [salience: %s] [age_s: %d]\n",
		m.Item.Kind, m.Item.Content, strconv.FormatFloat(m.Item.Salience, 'f', 2, 64), age)
}

func eventLine(ev model.TranscriptEvent) string {
	label := ev.Role.Label()
	if ev.Role == model.RoleTool && ev.ToolName != "" {
		label = fmt.Sprintf("%s (%s)", label, ev.ToolName)
	}
	return "- " + label + ": " + ev.Content + "\n"
}

func userSection(msg string) string {
	return TagUser + "\n" + msg + "\n"
}
