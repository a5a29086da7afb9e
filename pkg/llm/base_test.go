package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/halldyll/recall-go/pkg/llm"
)

func TestApplyGenerateOptions(t *testing.T) {
	opts := llm.ApplyGenerateOptions(nil)
	assert.Equal(t, 0.2, opts.Temperature)
	assert.Equal(t, 512, opts.MaxTokens)
	assert.Equal(t, llm.FormatText, opts.Format)

	opts = llm.ApplyGenerateOptions([]llm.GenerateOption{
		llm.WithTemperature(0), llm.WithMaxTokens(64), llm.WithJSON(), llm.WithStop("\n\n"),
	})
	assert.Equal(t, 0.0, opts.Temperature)
	assert.Equal(t, 64, opts.MaxTokens)
	assert.Equal(t, llm.FormatJSON, opts.Format)
	assert.Equal(t, []string{"\n\n"}, opts.Stop)
}

func TestUnfence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"memories": []}`, `{"memories": []}`},
		{"```json\n{\"memories\": []}\n```", `{"memories": []}`},
		{"```\n[1, 2]\n```", "[1, 2]"},
		{"```[1]```", "[1]"},
		{"  plain text  ", "plain text"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, llm.Unfence(tt.in), tt.in)
	}
}

func TestSystemPrompt(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You summarize."},
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleSystem, Content: "Be brief."},
	}
	text := llm.ApplyGenerateOptions(nil)
	json := llm.ApplyGenerateOptions([]llm.GenerateOption{llm.WithJSON()})

	assert.Equal(t, "You summarize.\n\nBe brief.", llm.SystemPrompt(messages, text, false))
	assert.Equal(t, "You summarize.\n\nBe brief.", llm.SystemPrompt(messages, json, true))
	assert.Contains(t, llm.SystemPrompt(messages, json, false), "JSON object")
	assert.Empty(t, llm.SystemPrompt(messages[1:2], text, false))
}

func TestFinish(t *testing.T) {
	out, err := llm.Finish("  summary \n", false)
	assert.NoError(t, err)
	assert.Equal(t, "summary", out)

	_, err = llm.Finish("half a sent", true)
	assert.ErrorIs(t, err, llm.ErrTruncated)

	_, err = llm.Finish("   ", false)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}
