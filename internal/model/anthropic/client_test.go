package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holidai/agentcore/internal/model"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestComplete_TextOnly(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "world"}},
			StopReason: sdk.StopReasonEndTurn,
		},
	}
	cl, err := New(stub, Options{DefaultModel: "claude-3.5-sonnet", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Text: "hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "world", resp.Text)
	assert.Equal(t, string(sdk.StopReasonEndTurn), resp.StopReason)
	assert.Len(t, stub.lastParams.Messages, 1)
}

func TestComplete_SystemMessageSeparated(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}}},
	}
	cl, err := New(stub, Options{DefaultModel: "claude-3.5-sonnet", MaxTokens: 128})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), &model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Text: "be concise"},
			{Role: model.RoleUser, Text: "hello"},
		},
	})

	require.NoError(t, err)
	require.Len(t, stub.lastParams.System, 1)
	assert.Equal(t, "be concise", stub.lastParams.System[0].Text)
	assert.Len(t, stub.lastParams.Messages, 1, "system text must not become a conversation turn")
}

func TestComplete_RequiresMessages(t *testing.T) {
	cl, err := New(&stubMessagesClient{}, Options{DefaultModel: "claude-3.5-sonnet"})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), &model.Request{})

	require.Error(t, err)
}

func TestComplete_SmallModelClass(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}}}}
	cl, err := New(stub, Options{DefaultModel: "claude-3.5-sonnet", SmallModel: "claude-3-haiku"})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), &model.Request{
		ModelClass: model.ModelClassSmall,
		Messages:   []model.Message{{Role: model.RoleUser, Text: "summarize"}},
	})

	require.NoError(t, err)
	assert.Equal(t, sdk.Model("claude-3-haiku"), stub.lastParams.Model)
}
