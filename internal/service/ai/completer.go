package ai

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
)

// DefaultModel is the model requested when neither the profile nor the
// configuration names one.
const DefaultModel = "openai/gpt-3.5-turbo"

// ErrTransport marks failures where no response came back from the boundary.
var ErrTransport = errors.New("completion boundary unreachable")

// Request is one outbound completion call.
type Request struct {
	Model       string
	Messages    []*schema.Message
	MaxTokens   *int
	Temperature *float64
}

// Response is whatever came back, successful or not.
type Response struct {
	Status  int
	Body    []byte
	Content string // first choice's text; empty when the body had no usable reply
}

// OK reports whether the boundary answered with a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Completer is the completion boundary. Complete returns an error only when no
// response was received; every received response is returned as-is.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// TransportError wraps the cause of a request that never got a response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return ErrTransport.Error()
	}
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransport) match.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }
