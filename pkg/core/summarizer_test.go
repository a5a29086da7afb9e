package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/halldyll/recall-go/pkg/model"
)

func TestLastTurns(t *testing.T) {
	now := time.Now()
	t1, t2, t3 := model.NewTurnID(now), model.NewTurnID(now), model.NewTurnID(now)
	events := []model.TranscriptEvent{
		{TurnID: t1, Role: model.RoleUser, Content: "a"},
		{TurnID: t1, Role: model.RoleAssistant, Content: "b"},
		{TurnID: t2, Role: model.RoleUser, Content: "c"},
		{TurnID: t2, Role: model.RoleTool, Content: "d"},
		{TurnID: t2, Role: model.RoleAssistant, Content: "e"},
		{TurnID: t3, Role: model.RoleUser, Content: "f"},
	}

	assert.Nil(t, lastTurns(events, 0))
	assert.Equal(t, events[5:], lastTurns(events, 1))
	assert.Equal(t, events[2:], lastTurns(events, 2))
	assert.Equal(t, events, lastTurns(events, 5))

	assert.Equal(t, int64(3), distinctTurns(events))
	assert.Equal(t, int64(1), distinctTurns(events[2:5]))
	assert.Zero(t, distinctTurns(nil))
}

func TestRetrievalQuery(t *testing.T) {
	now := time.Now()
	t1, t2 := model.NewTurnID(now), model.NewTurnID(now)
	events := []model.TranscriptEvent{
		{TurnID: t1, Role: model.RoleUser, Content: "I love dark themes"},
		{TurnID: t2, Role: model.RoleUser, Content: "Which deploy targets exist?"},
		{TurnID: t2, Role: model.RoleTool, Content: "staging,prod"},
		{TurnID: t2, Role: model.RoleAssistant, Content: "Staging and production."},
	}

	assert.Equal(t, "and the second one?", retrievalQuery("and the second one?", nil, 100))
	assert.Equal(t,
		"and the second one?\nWhich deploy targets exist?\nStaging and production.",
		retrievalQuery("and the second one?", events, 100))
	assert.Equal(t, "why?\nWhich", retrievalQuery("why?", events, 6))
}

func TestExtractiveSummaryKeepsTail(t *testing.T) {
	events := []model.TranscriptEvent{
		{Role: model.RoleUser, Content: "where is the config?"},
		{Role: model.RoleAssistant, Content: "in config.yaml"},
	}
	got := extractiveSummary("Earlier: set up the repo.", events, 40)
	assert.Equal(t, "Assistant: in config.yaml", got[len(got)-25:])
	assert.LessOrEqual(t, len([]rune(got)), 40)

	assert.Equal(t, "User: hi", extractiveSummary("", []model.TranscriptEvent{{Role: model.RoleUser, Content: "hi"}}, 100))
}

func TestTruncateHead(t *testing.T) {
	assert.Equal(t, "héllo", truncateHead("héllo", 10))
	assert.Equal(t, "llo", truncateHead("héllo", 3))
}
