package ai

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultOpenRouterBaseURL is the OpenAI-compatible OpenRouter API root.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1/"

// OpenRouterConfig carries the credential and attribution headers.
type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
	Referer string // sent as HTTP-Referer
	Title   string // sent as X-Title
}

// OpenRouterCompleter talks to OpenRouter through the openai-go client.
type OpenRouterCompleter struct {
	client openai.Client
}

var _ Completer = (*OpenRouterCompleter)(nil)

// NewOpenRouterCompleter builds a client that never retries on its own.
// The API key is not validated; a missing key surfaces as a 401 from the boundary.
func NewOpenRouterCompleter(cfg OpenRouterConfig, extra ...option.RequestOption) *OpenRouterCompleter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}
	opts = append(opts, extra...)

	return &OpenRouterCompleter{client: openai.NewClient(opts...)}
}

type capturedResponse struct {
	status int
	body   []byte
}

// capture keeps the raw status and body so error bodies that are not JSON,
// and in-band errors of 200 responses, stay available to the caller.
func (c *capturedResponse) middleware() option.RequestOption {
	return option.WithMiddleware(func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		res, err := next(req)
		if err != nil || res == nil {
			return res, err
		}

		body, readErr := io.ReadAll(res.Body)
		_ = res.Body.Close()
		if readErr != nil {
			return nil, errors.Wrap(readErr, "read completion response")
		}

		c.status = res.StatusCode
		c.body = body
		res.Body = io.NopCloser(bytes.NewReader(body))
		return res, nil
	})
}

func (c *OpenRouterCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	captured := &capturedResponse{}
	completion, err := c.client.Chat.Completions.New(ctx, params, captured.middleware())
	if captured.status == 0 {
		if err == nil {
			err = errors.New("no response received")
		}
		return nil, &TransportError{Err: err}
	}

	resp := &Response{Status: captured.status, Body: captured.body}
	if err != nil {
		log.Debug().Err(err).Int("status", captured.status).Msg("[ai] completion returned an error")
		return resp, nil
	}
	if completion != nil && len(completion.Choices) > 0 {
		resp.Content = completion.Choices[0].Message.Content
	}
	return resp, nil
}

func toOpenAIMessages(messages []*schema.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			out = append(out, openai.SystemMessage(msg.Content))
		case schema.Assistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
