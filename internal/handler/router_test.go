package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/med-chat/backend/internal/model/profile"
	"github.com/zhouzirui/med-chat/backend/internal/service/ai"
	chatService "github.com/zhouzirui/med-chat/backend/internal/service/chat"
	"github.com/zhouzirui/med-chat/backend/internal/store"
)

type stubCompleter struct{}

func (stubCompleter) Complete(context.Context, ai.Request) (*ai.Response, error) {
	return &ai.Response{Status: 200, Content: "ok"}, nil
}

func newTestRouter() http.Handler {
	return NewRouter(chatService.NewService(chatService.Options{
		Profiles:  profile.NewMemoryStore(profile.Seed()),
		Store:     store.NewMemoryStore(),
		Completer: stubCompleter{},
	}))
}

func TestRouterServesAPI(t *testing.T) {
	r := newTestRouter()

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/api/profiles", "", http.StatusOK},
		{http.MethodGet, "/api/profiles/medical-test", "", http.StatusOK},
		{http.MethodPost, "/api/sessions", `{"profileId":"medical"}`, http.StatusCreated},
		{http.MethodGet, "/api/sessions/unknown", "", http.StatusNotFound},
		{http.MethodOptions, "/api/sessions", "", http.StatusNoContent},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)

		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.Code)
		}
	}
}
