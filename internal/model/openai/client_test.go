package openai

import (
	"context"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentmodel "github.com/holidai/agentcore/internal/model"
)

type stubChatClient struct {
	lastParams openai.ChatCompletionNewParams
	resp       *openai.ChatCompletion
	err        error
}

func (s *stubChatClient) New(_ context.Context, params openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	s.lastParams = params
	return s.resp, s.err
}

func TestComplete_TextOnly(t *testing.T) {
	stub := &stubChatClient{
		resp: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "world"}, FinishReason: "stop"},
			},
		},
	}
	cl, err := New(Options{Client: stub, DefaultModel: "gpt-4o-mini"})
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), &agentmodel.Request{
		Messages: []agentmodel.Message{{Role: agentmodel.RoleUser, Text: "hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "world", resp.Text)
	assert.Equal(t, "gpt-4o-mini", stub.lastParams.Model)
}

func TestComplete_RequiresMessages(t *testing.T) {
	cl, err := New(Options{Client: &stubChatClient{}, DefaultModel: "gpt-4o-mini"})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), &agentmodel.Request{})

	require.Error(t, err)
}

func TestComplete_SmallModelClass(t *testing.T) {
	stub := &stubChatClient{resp: &openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}}}}
	cl, err := New(Options{Client: stub, DefaultModel: "gpt-4o", SmallModel: "gpt-4o-mini"})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), &agentmodel.Request{
		ModelClass: agentmodel.ModelClassSmall,
		Messages:   []agentmodel.Message{{Role: agentmodel.RoleUser, Text: "summarize"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", stub.lastParams.Model)
}
