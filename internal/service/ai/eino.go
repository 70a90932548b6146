package ai

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"

	"github.com/cloudwego/eino/components/model"
	"github.com/pkg/errors"
)

// EinoCompleter adapts any eino chat model (the Ark model in production) to
// the Completer port. The SDK hides HTTP details, so a model error that is not
// a network failure is reported as a 502 carrying the error text.
type EinoCompleter struct {
	model model.BaseChatModel
}

var _ Completer = (*EinoCompleter)(nil)

// NewEinoCompleter wraps chatModel.
func NewEinoCompleter(chatModel model.BaseChatModel) *EinoCompleter {
	return &EinoCompleter{model: chatModel}
}

func (c *EinoCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	var opts []model.Option
	if req.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*req.MaxTokens))
	}
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(float32(*req.Temperature)))
	}

	msg, err := c.model.Generate(ctx, req.Messages, opts...)
	if err != nil {
		if isNetworkError(err) {
			return nil, &TransportError{Err: err}
		}
		body, _ := json.Marshal(map[string]any{
			"error": map[string]string{"message": err.Error()},
		})
		return &Response{Status: http.StatusBadGateway, Body: body}, nil
	}

	body, _ := json.Marshal(msg)
	resp := &Response{Status: http.StatusOK, Body: body}
	if msg != nil {
		resp.Content = msg.Content
	}
	return resp, nil
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
