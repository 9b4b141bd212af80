package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "hello "},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: "world"},
	}}
	assert.Equal(t, "hello world", resp.Text())
}

func TestEstimateCost_KnownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 500_000}
	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 0.80+2.00, cost, 1e-9)
}

func TestEstimateCost_CacheTokens(t *testing.T) {
	usage := TokenUsage{
		CacheCreationInputTokens: 1_000_000,
		CacheReadInputTokens:     1_000_000,
	}
	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	// Writes at 1.25x input, reads at 0.1x input.
	assert.InDelta(t, 0.80*1.25+0.80*0.1, cost, 1e-9)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000}
	assert.Zero(t, usage.EstimateCost("some-future-model"))
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("you are a bid reviewer")
	require.Len(t, blocks, 1)
	assert.Equal(t, "you are a bid reviewer", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestMockClient_RoundTrip(t *testing.T) {
	m := &MockClient{}
	m.On("CreateMessage", mock.Anything, mock.Anything).Return(&MessageResponse{
		Content: []ContentBlock{{Type: "text", Text: "ok"}},
	}, nil)

	resp, err := m.CreateMessage(context.Background(), MessageRequest{Model: "m", MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
	m.AssertExpectations(t)
}
