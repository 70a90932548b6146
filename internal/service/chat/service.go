package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/med-chat/backend/internal/analysis/failure"
	"github.com/zhouzirui/med-chat/backend/internal/model/profile"
	"github.com/zhouzirui/med-chat/backend/internal/service/ai"
	"github.com/zhouzirui/med-chat/backend/internal/store"
)

var (
	ErrProfileRequired = errors.New("profile id is required")
	ErrProfileNotFound = errors.New("profile not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionConflict = errors.New("session belongs to another profile")
)

// Options configures the shared collaborators every session receives.
type Options struct {
	Profiles   profile.Store
	Store      store.Store
	Completer  ai.Completer
	Classifier *failure.Classifier
	Model      string
}

// Info describes a registered session.
type Info struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profileId"`
	Key       string    `json:"storageKey"`
	CreatedAt time.Time `json:"createdAt"`
}

type entry struct {
	session *Session
	info    Info
}

// Service keeps the live sessions of one process.
type Service struct {
	opts   Options
	prompt *ai.PromptBuilder

	mu       sync.RWMutex
	sessions map[string]entry
}

// NewService builds a registry around shared storage and completion boundary.
func NewService(opts Options) *Service {
	if opts.Classifier == nil {
		opts.Classifier = failure.Default()
	}
	return &Service{
		opts:     opts,
		prompt:   ai.NewPromptBuilder(),
		sessions: make(map[string]entry),
	}
}

// Profiles exposes the profile catalogue sessions are opened against.
func (s *Service) Profiles() profile.Store {
	return s.opts.Profiles
}

// CreateSession opens a fresh session for profileID under a new identifier.
func (s *Service) CreateSession(ctx context.Context, profileID string) (*Session, Info, error) {
	return s.OpenSession(ctx, profileID, uuid.NewString())
}

// OpenSession opens sessionID for profileID, restoring its stored transcript.
// Opening an id that is already live returns the live session.
func (s *Service) OpenSession(ctx context.Context, profileID, sessionID string) (*Session, Info, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if existing, ok := s.lookup(sessionID); ok {
		if profileID != "" && existing.info.ProfileID != profileID {
			return nil, Info{}, errors.Wrapf(ErrSessionConflict, "session %s is bound to %s", sessionID, existing.info.ProfileID)
		}
		return existing.session, existing.info, nil
	}

	p, err := s.resolveProfile(profileID)
	if err != nil {
		return nil, Info{}, err
	}

	return s.open(ctx, p, sessionID, p.StorageKey+":"+sessionID)
}

// OpenLocal opens the single-user session for profileID under the profile's
// own storage key, so a terminal client resumes where it left off.
func (s *Service) OpenLocal(ctx context.Context, profileID string) (*Session, error) {
	p, err := s.resolveProfile(profileID)
	if err != nil {
		return nil, err
	}
	sess, _, err := s.open(ctx, p, p.ID, p.StorageKey)
	return sess, err
}

// GetSession retrieves a live session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (*Session, Info, error) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return nil, Info{}, ErrSessionNotFound
	}
	return e.session, e.info, nil
}

func (s *Service) lookup(sessionID string) (entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	return e, ok
}

func (s *Service) resolveProfile(profileID string) (profile.Profile, error) {
	if profileID == "" {
		return profile.Profile{}, ErrProfileRequired
	}
	if s.opts.Profiles == nil {
		return profile.Profile{}, ErrProfileNotFound
	}
	p, ok := s.opts.Profiles.FindByID(profileID)
	if !ok {
		return profile.Profile{}, ErrProfileNotFound
	}
	return p, nil
}

func (s *Service) open(ctx context.Context, p profile.Profile, sessionID, key string) (*Session, Info, error) {
	sess, err := Open(ctx, Config{
		ID:         sessionID,
		Key:        key,
		Profile:    p,
		Model:      s.opts.Model,
		Store:      s.opts.Store,
		Completer:  s.opts.Completer,
		Classifier: s.opts.Classifier,
		Prompt:     s.prompt,
	})
	if err != nil {
		return nil, Info{}, err
	}

	info := Info{
		ID:        sessionID,
		ProfileID: p.ID,
		Key:       key,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// another caller may have opened the same id while we were loading
	if existing, ok := s.sessions[sessionID]; ok {
		return existing.session, existing.info, nil
	}
	s.sessions[sessionID] = entry{session: sess, info: info}

	log.Info().Str("session", sessionID).Str("profile", p.ID).Str("key", key).Msg("[chat] session opened")
	return sess, info, nil
}
