package chat

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	chatService "github.com/zhouzirui/med-chat/backend/internal/service/chat"
	"github.com/zhouzirui/med-chat/backend/pkg/utils"
)

// Handler exposes chat sessions over REST.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates a chat handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts the session routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Post("/sessions/{sessionID}/messages", h.handleSubmit)
	r.Delete("/sessions/{sessionID}/messages", h.handleReset)
}

type sessionResponse struct {
	Session        chatService.Info     `json:"session"`
	Snapshot       chatService.Snapshot `json:"snapshot"`
	QuickQuestions []string             `json:"quickQuestions,omitempty"`
}

type submitResponse struct {
	Outcome      chatService.Outcome  `json:"outcome"`
	Snapshot     chatService.Snapshot `json:"snapshot"`
	PersistError string               `json:"persistError,omitempty"`
}

type resetResponse struct {
	Snapshot     chatService.Snapshot `json:"snapshot"`
	PersistError string               `json:"persistError,omitempty"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProfileID string `json:"profileId"`
		SessionID string `json:"sessionId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.ProfileID == "" {
		utils.RespondError(w, http.StatusBadRequest, "profileId is required")
		return
	}

	sess, info, err := h.chatSvc.OpenSession(r.Context(), payload.ProfileID, payload.SessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sessionResponse{
		Session:        info,
		Snapshot:       sess.Snapshot(),
		QuickQuestions: sess.QuickQuestions(),
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, info, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, sessionResponse{
		Session:        info,
		Snapshot:       sess.Snapshot(),
		QuickQuestions: sess.QuickQuestions(),
	})
}

// handleSubmit blocks until the exchange settles. The exchange is detached
// from the request so a client that goes away still gets its reply recorded.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := sess.Submit(context.WithoutCancel(r.Context()), payload.Content)
	resp := submitResponse{Outcome: outcome, Snapshot: sess.Snapshot()}
	if err != nil {
		log.Warn().Err(err).Str("session", sess.ID()).Msg("[chat] transcript not persisted")
		resp.PersistError = err.Error()
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := resetResponse{}
	if err := sess.Reset(r.Context()); err != nil {
		resp.PersistError = err.Error()
	}
	resp.Snapshot = sess.Snapshot()

	utils.RespondJSON(w, http.StatusOK, resp)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrProfileNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrSessionConflict):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chatService.ErrProfileRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("[chat] request failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
