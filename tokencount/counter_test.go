package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentrelay/types"
)

func TestCountTokensAlwaysPositive(t *testing.T) {
	c := New("", zaptest.NewLogger(t))
	assert.Equal(t, "tiktoken[cl100k_base]", c.Name())

	// Works whether the encoding loaded or the estimator kicked in.
	n := c.CountTokens("the quick brown fox jumps over the lazy dog")
	assert.Greater(t, n, 0)
	assert.Greater(t, c.CountTokens("a much longer piece of text that should cost strictly more tokens than the short one above, because it carries many more words"), n)
}

func TestUnknownEncodingFallsBackToEstimate(t *testing.T) {
	c := New("no_such_encoding", zaptest.NewLogger(t))
	est := types.NewEstimateCounter()

	text := "hello handoff world"
	assert.Equal(t, est.CountTokens(text), c.CountTokens(text))
}

func TestForModelSelectsEncoding(t *testing.T) {
	assert.Equal(t, "tiktoken[o200k_base]", ForModel("gpt-4o", zaptest.NewLogger(t)).Name())
	assert.Equal(t, "tiktoken[o200k_base]", ForModel("gpt-4o-2024-05-13", zaptest.NewLogger(t)).Name())
	assert.Equal(t, "tiktoken[cl100k_base]", ForModel("unknown-model", zaptest.NewLogger(t)).Name())
}

func TestCountWindowIncludesOverhead(t *testing.T) {
	c := New("no_such_encoding", zaptest.NewLogger(t))

	msgs := []types.Message{
		types.NewUserMessage("hello"),
		types.NewAssistantMessage("hi there"),
	}
	perMessage := c.CountTokens(string(types.RoleUser)) + c.CountTokens("hello") +
		c.CountTokens(string(types.RoleAssistant)) + c.CountTokens("hi there")

	total := c.CountWindow(msgs)
	require.Equal(t, perMessage+2*4+3, total)
	assert.Zero(t, c.CountWindow(nil))
}
