package ai

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeChatModel struct {
	reply *schema.Message
	err   error
	opts  *model.Options
	input []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.input = input
	f.opts = model.GetCommonOptions(nil, opts...)
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func TestEinoCompleterSuccess(t *testing.T) {
	fake := &fakeChatModel{reply: schema.AssistantMessage("answer", nil)}
	c := NewEinoCompleter(fake)

	resp, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.Equal(t, "answer", resp.Content)
	require.Len(t, fake.input, 2)

	require.NotNil(t, fake.opts.MaxTokens)
	require.Equal(t, 1024, *fake.opts.MaxTokens)
	require.NotNil(t, fake.opts.Temperature)
	require.InDelta(t, 0.7, *fake.opts.Temperature, 1e-6)
}

func TestEinoCompleterModelError(t *testing.T) {
	c := NewEinoCompleter(&fakeChatModel{err: errors.New("account needs more credits")})

	resp, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.Status)
	require.Contains(t, string(resp.Body), "more credits")
}

func TestEinoCompleterNetworkError(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	c := NewEinoCompleter(&fakeChatModel{err: errors.Wrap(netErr, "ark request")})

	_, err := c.Complete(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrTransport)
}
