package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/med-chat/backend/internal/analysis/failure"
	chatmodel "github.com/zhouzirui/med-chat/backend/internal/model/chat"
	"github.com/zhouzirui/med-chat/backend/internal/model/profile"
	"github.com/zhouzirui/med-chat/backend/internal/service/ai"
	"github.com/zhouzirui/med-chat/backend/internal/store"
)

const lastResponseLimit = 300

// Config wires a Session to its collaborators.
type Config struct {
	ID         string
	Key        string
	Profile    profile.Profile
	Model      string
	Store      store.Store
	Completer  ai.Completer
	Classifier *failure.Classifier
	Prompt     *ai.PromptBuilder
}

// Outcome reports how a Submit call settled.
type Outcome struct {
	Skipped bool              `json:"skipped,omitempty"`
	Failure failure.Kind      `json:"failure,omitempty"`
	Reply   chatmodel.Message `json:"reply"`
	Notice  *Notice           `json:"notice,omitempty"`
}

// OK reports whether the boundary produced a usable reply.
func (o Outcome) OK() bool {
	return !o.Skipped && o.Failure == ""
}

// Session owns one transcript and its in-flight request count. Overlapping
// Submit calls are not serialised: each appends its own result when it settles.
type Session struct {
	id         string
	key        string
	profile    profile.Profile
	model      string
	store      store.Store
	completer  ai.Completer
	classifier *failure.Classifier
	prompt     *ai.PromptBuilder

	// emitMu orders mutation, persistence and delivery so subscribers and the
	// store observe changes in the order they happened.
	emitMu sync.Mutex

	mu           sync.RWMutex
	messages     []chatmodel.Message
	inflight     int
	lastResponse string
	listeners    map[int]Listener
	nextListener int
}

// Open restores the transcript stored under cfg.Key, or seeds the greeting.
// A stored value that cannot be decoded is logged and replaced by the greeting
// in memory; any other storage error is returned.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("session requires a store")
	}
	if cfg.Completer == nil {
		return nil, errors.New("session requires a completer")
	}
	if cfg.Key == "" {
		cfg.Key = cfg.Profile.StorageKey
	}
	if cfg.Classifier == nil {
		cfg.Classifier = failure.Default()
	}
	if cfg.Prompt == nil {
		cfg.Prompt = ai.NewPromptBuilder()
	}

	s := &Session{
		id:         cfg.ID,
		key:        cfg.Key,
		profile:    cfg.Profile,
		model:      cfg.Model,
		store:      cfg.Store,
		completer:  cfg.Completer,
		classifier: cfg.Classifier,
		prompt:     cfg.Prompt,
		listeners:  make(map[int]Listener),
	}

	restored, err := cfg.Store.Load(ctx, cfg.Key)
	switch {
	case err == nil:
		s.messages = restored
		log.Info().Str("session", s.id).Str("key", s.key).Int("messages", len(restored)).Msg("[chat] transcript restored")
	case errors.Is(err, store.ErrNotFound):
		s.messages = chatmodel.Greeting(cfg.Profile.Greeting)
	case errors.Is(err, store.ErrCorrupt):
		log.Warn().Err(err).Str("session", s.id).Str("key", s.key).Msg("[chat] stored transcript unreadable, starting fresh")
		s.messages = chatmodel.Greeting(cfg.Profile.Greeting)
	default:
		return nil, errors.Wrapf(err, "restore transcript %s", cfg.Key)
	}

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Key returns the storage key the transcript is mirrored under.
func (s *Session) Key() string { return s.key }

// Profile returns the profile the session was opened with.
func (s *Session) Profile() profile.Profile { return s.profile }

// QuickQuestions returns preset questions for the input field.
func (s *Session) QuickQuestions() []string {
	return append([]string(nil), s.profile.QuickQuestions...)
}

// Busy reports whether at least one request is outstanding.
func (s *Session) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight > 0
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []chatmodel.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return chatmodel.Clone(s.messages)
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:    s.id,
		ProfileID:    s.profile.ID,
		Messages:     chatmodel.Clone(s.messages),
		Busy:         s.inflight > 0,
		LastResponse: s.lastResponse,
	}
}

// Subscribe registers l and returns a function that removes it.
func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Submit sends text to the completion boundary and records the result.
// Whitespace-only text is ignored. Boundary failures are reported through the
// Outcome and the transcript, never as an error; the returned error is only
// set when the transcript could not be persisted.
func (s *Session) Submit(ctx context.Context, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{Skipped: true}, nil
	}

	transcript, persistErr := s.append(ctx, chatmodel.UserMessage(text))

	s.begin()
	defer s.end()

	outcome := s.exchange(ctx, transcript)

	if _, err := s.append(ctx, outcome.Reply); err != nil && persistErr == nil {
		persistErr = err
	}
	if outcome.Notice != nil {
		s.raise(outcome.Notice)
	}
	return outcome, persistErr
}

func (s *Session) exchange(ctx context.Context, transcript []chatmodel.Message) Outcome {
	messages, err := s.prompt.Build(ctx, s.profile.SystemPrompt, transcript, s.profile.Window())
	if err != nil {
		log.Error().Err(err).Str("session", s.id).Msg("[chat] failed to build request")
		ev := failure.Evidence{Body: err.Error()}
		return Outcome{
			Failure: failure.Generic,
			Reply:   chatmodel.AssistantMessage(RequestFailedReply),
			Notice:  newNotice(failure.Generic, 0, "حدث خطأ في معالجة طلبك.", failure.Excerpt(ev.Body, 150), defaultNoticeTTL),
		}
	}

	resp, err := s.completer.Complete(ctx, ai.Request{
		Model:       s.requestModel(),
		Messages:    messages,
		MaxTokens:   s.profile.MaxTokens,
		Temperature: s.profile.Temperature,
	})
	if err == nil && resp == nil {
		err = ai.ErrTransport
	}
	if err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("[chat] completion boundary unreachable")
		return Outcome{
			Failure: failure.Transport,
			Reply:   chatmodel.AssistantMessage(ConnectionErrorReply),
			Notice:  transportNotice(err),
		}
	}

	if !resp.OK() {
		ev := failure.ParseEvidence(resp.Status, resp.Body)
		kind, rule := s.classifier.Explain(ev)
		log.Warn().
			Str("session", s.id).
			Int("status", resp.Status).
			Str("classification", string(kind)).
			Str("rule", rule).
			Str("excerpt", failure.Excerpt(ev.Body, 200)).
			Msg("[chat] completion rejected")
		return Outcome{
			Failure: kind,
			Reply:   chatmodel.AssistantMessage(rejectionReply(kind)),
			Notice:  rejectionNotice(kind, ev),
		}
	}

	s.recordLastResponse(resp.Body)

	if resp.Content != "" {
		return Outcome{Reply: chatmodel.AssistantMessage(resp.Content)}
	}

	ev := failure.ParseEvidence(resp.Status, resp.Body)
	kind, rule := s.classifier.Explain(ev)
	log.Warn().
		Str("session", s.id).
		Str("classification", string(kind)).
		Str("rule", rule).
		Str("excerpt", failure.Excerpt(ev.Body, 200)).
		Msg("[chat] completion response has no reply")
	return Outcome{
		Failure: kind,
		Reply:   chatmodel.AssistantMessage(malformedReply(kind, ev)),
		Notice:  malformedNotice(kind, ev),
	}
}

func (s *Session) requestModel() string {
	if s.profile.Model != "" {
		return s.profile.Model
	}
	if s.model != "" {
		return s.model
	}
	return ai.DefaultModel
}

func (s *Session) recordLastResponse(body []byte) {
	if !s.profile.RecordLastResponse {
		return
	}

	pretty := string(body)
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err == nil {
		pretty = buf.String()
	}

	s.mu.Lock()
	s.lastResponse = failure.Excerpt(pretty, lastResponseLimit)
	s.mu.Unlock()
}

// Reset replaces the transcript with the greeting and removes the stored copy.
func (s *Session) Reset(ctx context.Context) error {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.messages = chatmodel.Greeting(s.profile.Greeting)
	s.lastResponse = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()

	err := s.store.Delete(context.WithoutCancel(ctx), s.key)
	if err != nil {
		log.Warn().Err(err).Str("session", s.id).Str("key", s.key).Msg("[chat] failed to clear stored transcript")
		err = errors.Wrap(err, "clear stored transcript")
	}

	s.deliver(Event{Type: EventTranscript, Snapshot: snap})
	return err
}

// append adds msg, mirrors the transcript to storage and notifies subscribers.
// It returns the transcript as it stood right after the append.
func (s *Session) append(ctx context.Context, msg chatmodel.Message) ([]chatmodel.Message, error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	err := s.store.Save(context.WithoutCancel(ctx), s.key, snap.Messages)
	if err != nil {
		log.Warn().Err(err).Str("session", s.id).Str("key", s.key).Msg("[chat] failed to persist transcript")
		err = errors.Wrap(err, "persist transcript")
	}

	s.deliver(Event{Type: EventTranscript, Snapshot: snap})
	return snap.Messages, err
}

func (s *Session) begin() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.inflight++
	changed := s.inflight == 1
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.deliver(Event{Type: EventBusy, Snapshot: snap})
	}
}

func (s *Session) end() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.inflight--
	changed := s.inflight == 0
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.deliver(Event{Type: EventBusy, Snapshot: snap})
	}
}

func (s *Session) raise(notice *Notice) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.deliver(Event{Type: EventNotice, Snapshot: s.Snapshot(), Notice: notice})
}

func (s *Session) deliver(ev Event) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
