package prompt

import (
	"time"
	"unicode/utf8"

	"github.com/halldyll/recall-go/pkg/model"
)

// Budget bounds the rendered prompt block.
type Budget struct {
	// MaxChars is the hard limit on the rendered block.
	MaxChars int

	// SummaryChars is the slice reserved for the summary; a longer summary
	// is truncated to it before anything else is dropped.
	SummaryChars int
}

// Report describes what Fit removed.
type Report struct {
	SummaryTruncated bool
	SummaryDropped   bool
	DroppedMemories  int
	DroppedEvents    int
	// UserOnly is set when the user message alone exceeds the budget.
	UserOnly bool
}

// Fit trims parts until the rendered block fits the budget. In order it
//  1. truncates the summary to its slice,
//  2. drops the lowest-scored memory, one at a time, keeping survivor order,
//  3. drops the oldest short-term event, one at a time,
//  4. shortens, then drops, the summary.
//
// The user message is never altered. When its section alone exceeds
// MaxChars the result holds only the user message.
func (bg Budget) Fit(p Parts, now time.Time) (Parts, Report) {
	var rep Report

	p.Memories = append([]model.RankedMemory(nil), p.Memories...)
	p.ShortTerm = append([]model.TranscriptEvent(nil), p.ShortTerm...)

	if Len(p, now) <= bg.MaxChars {
		return p, rep
	}

	if bg.SummaryChars > 0 && utf8.RuneCountInString(p.Summary) > bg.SummaryChars {
		p.Summary = model.Truncate(p.Summary, bg.SummaryChars)
		rep.SummaryTruncated = true
	}

	if p.UserMessage != "" && utf8.RuneCountInString(userSection(p.UserMessage)) > bg.MaxChars {
		rep.UserOnly = true
		rep.DroppedMemories = len(p.Memories)
		rep.DroppedEvents = len(p.ShortTerm)
		rep.SummaryDropped = p.Summary != ""
		return Parts{UserMessage: p.UserMessage}, rep
	}

	for Len(p, now) > bg.MaxChars && len(p.Memories) > 0 {
		p.Memories = dropLowest(p.Memories)
		rep.DroppedMemories++
	}

	for Len(p, now) > bg.MaxChars && len(p.ShortTerm) > 0 {
		p.ShortTerm = p.ShortTerm[1:]
		rep.DroppedEvents++
	}

	if over := Len(p, now) - bg.MaxChars; over > 0 && p.Summary != "" {
		keep := utf8.RuneCountInString(p.Summary) - over
		p.Summary = model.Truncate(p.Summary, keep)
		rep.SummaryTruncated = true
		if p.Summary == "" || Len(p, now) > bg.MaxChars {
			p.Summary = ""
			rep.SummaryDropped = true
		}
	}

	return p, rep
}

// dropLowest removes the lowest-scored memory. Among equal scores the one
// ranked last goes first.
func dropLowest(ms []model.RankedMemory) []model.RankedMemory {
	idx := len(ms) - 1
	for i := len(ms) - 2; i >= 0; i-- {
		if ms[i].Score < ms[idx].Score {
			idx = i
		}
	}
	return append(ms[:idx], ms[idx+1:]...)
}
