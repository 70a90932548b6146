package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	chatService "github.com/zhouzirui/med-chat/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
	outboxSize   = 64
)

// Handler lets the browser widget drive a session over a websocket and
// receive every session event as it happens.
type Handler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
}

// New creates a websocket handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type submitData struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connection struct {
	conn      *websocket.Conn
	session   *chatService.Session
	sessionID string
	outbox    chan outgoingMessage
}

// enqueue never blocks: it is called from session listeners.
func (c *connection) enqueue(msgType string, data interface{}) {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	select {
	case c.outbox <- msg:
	default:
		log.Warn().Str("session", c.sessionID).Str("type", msgType).Msg("[websocket] outbox full, message dropped")
	}
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	sess, _, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("[websocket] upgrade failed")
		return
	}
	defer conn.Close()

	log.Info().Str("session", sessionID).Msg("[websocket] new connection")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &connection{
		conn:      conn,
		session:   sess,
		sessionID: sessionID,
		outbox:    make(chan outgoingMessage, outboxSize),
	}

	unsubscribe := sess.Subscribe(func(ev chatService.Event) {
		c.enqueue(string(ev.Type), ev)
	})
	defer unsubscribe()

	c.enqueue("connected", map[string]any{
		"snapshot":       sess.Snapshot(),
		"quickQuestions": sess.QuickQuestions(),
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ctx, c)
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	h.readLoop(c)

	cancel()
	<-writerDone
	log.Info().Str("session", sessionID).Msg("[websocket] connection closed")
}

func (h *Handler) readLoop(c *connection) {
	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("session", c.sessionID).Msg("[websocket] read error")
			}
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(c, &msg)
	}
}

func (h *Handler) handleMessage(c *connection, msg *inboundMessage) {
	switch msg.Type {
	case "submit":
		var data submitData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.enqueue("error", map[string]string{"message": "invalid submit payload"})
			return
		}
		// submits are not serialised; the session tracks overlap itself
		go h.submit(c, data.Text)
	case "reset":
		go h.reset(c)
	case "ping":
		c.enqueue("pong", nil)
	default:
		c.enqueue("error", map[string]string{"message": "unsupported message type: " + msg.Type})
	}
}

// submit is detached from the socket so the reply still reaches the transcript
// when the client disconnects mid-exchange.
func (h *Handler) submit(c *connection, text string) {
	outcome, err := c.session.Submit(context.Background(), text)
	if err != nil {
		log.Warn().Err(err).Str("session", c.sessionID).Msg("[websocket] transcript not persisted")
	}
	if outcome.Skipped {
		return
	}
	c.enqueue("outcome", outcome)
}

func (h *Handler) reset(c *connection) {
	if err := c.session.Reset(context.Background()); err != nil {
		log.Warn().Err(err).Str("session", c.sessionID).Msg("[websocket] reset not persisted")
	}
}

// writePump owns every write to the socket, pings included, since gorilla
// connections allow one concurrent writer.
func (h *Handler) writePump(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return
		case msg := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Warn().Err(err).Str("session", c.sessionID).Msg("[websocket] write failed")
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
