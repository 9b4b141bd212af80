package advisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hnv-commerce/adpilot/internal/config"
	"github.com/hnv-commerce/adpilot/pkg/anthropic"
)

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(config.AdvisorConfig{})
	require.Error(t, err)

	a, err := New(config.AdvisorConfig{Key: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, a.model)

	a, err = New(config.AdvisorConfig{Key: "sk-test", Model: "claude-sonnet-4-5-20250929"})
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5-20250929", a.model)
}

func TestReviseFactor_ParsesRevision(t *testing.T) {
	client := &anthropic.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == DefaultModel && len(req.System) == 1
	})).Return(textResponse(`{"factor": 0.85, "comment": "slightly less aggressive"}`), nil)

	a := NewWithClient(client, "")
	factor, comment, err := a.ReviseFactor(context.Background(), "B00X:SKU-1", "reduce", 0.8, "acos above target")
	require.NoError(t, err)
	assert.InDelta(t, 0.85, factor, 1e-9)
	assert.Equal(t, "slightly less aggressive", comment)
	client.AssertExpectations(t)
}

func TestReviseFactor_TransportErrorPropagates(t *testing.T) {
	client := &anthropic.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	a := NewWithClient(client, "")
	_, _, err := a.ReviseFactor(context.Background(), "B00X", "expand", 1.1, "acos under target")
	require.Error(t, err)
}

func TestParseRevision(t *testing.T) {
	rev, err := parseRevision(`{"factor": 1.1, "comment": "ok"}`)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, rev.Factor, 1e-9)

	// Markdown fences and surrounding prose are tolerated.
	rev, err = parseRevision("Sure.\n```json\n{\"factor\": 0.9, \"comment\": \"\"}\n```")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, rev.Factor, 1e-9)

	_, err = parseRevision("no json here")
	require.Error(t, err)

	_, err = parseRevision(`{"factor": 0}`)
	require.Error(t, err)

	_, err = parseRevision(`{"factor": broken`)
	require.Error(t, err)
}
