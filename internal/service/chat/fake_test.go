package chat_test

import (
	"context"
	"sync"

	"github.com/zhouzirui/med-chat/backend/internal/model/profile"
	"github.com/zhouzirui/med-chat/backend/internal/service/ai"
)

type scriptedReply struct {
	resp *ai.Response
	err  error
}

// fakeCompleter replays scripted replies and records every request. When gate
// is set, each call blocks until the gate yields.
type fakeCompleter struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []ai.Request
	gate     chan struct{}
	started  chan struct{}
	onCall   func(ai.Request)
}

func (f *fakeCompleter) Complete(ctx context.Context, req ai.Request) (*ai.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var next scriptedReply
	if len(f.replies) > 0 {
		next = f.replies[0]
		f.replies = f.replies[1:]
	} else {
		next = scriptedReply{resp: okResponse("ok")}
	}
	onCall, gate, started := f.onCall, f.gate, f.started
	f.mu.Unlock()

	if onCall != nil {
		onCall(req)
	}
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &ai.TransportError{Err: ctx.Err()}
		}
	}
	return next.resp, next.err
}

func (f *fakeCompleter) calls() []ai.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ai.Request(nil), f.requests...)
}

func okResponse(content string) *ai.Response {
	return &ai.Response{
		Status:  200,
		Body:    []byte(`{"choices":[{"message":{"role":"assistant","content":"` + content + `"}}]}`),
		Content: content,
	}
}

func testProfile() profile.Profile {
	maxTokens := 1024
	temperature := 0.7
	return profile.Profile{
		ID:            "medical",
		StorageKey:    "medical-chatbot-history",
		Greeting:      "hello, ask me anything medical",
		SystemPrompt:  "You are a helpful medical assistant.",
		MaxTokens:     &maxTokens,
		Temperature:   &temperature,
		HistoryWindow: profile.DefaultHistoryWindow,
	}
}
