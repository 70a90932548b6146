package store

import (
	"context"
	"sync"

	"github.com/zhouzirui/med-chat/backend/internal/model/chat"
)

// MemoryStore keeps encoded transcripts in a map. It stores raw bytes so it
// behaves like the real backends, including on corrupt values.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]chat.Message, error) {
	s.mu.RLock()
	data, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return Decode(data)
}

func (s *MemoryStore) Save(_ context.Context, key string, messages []chat.Message) error {
	data, err := Encode(messages)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.items[key] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Put stores raw bytes under key, bypassing encoding.
func (s *MemoryStore) Put(key string, raw []byte) {
	s.mu.Lock()
	s.items[key] = append([]byte(nil), raw...)
	s.mu.Unlock()
}

// Has reports whether anything is stored under key.
func (s *MemoryStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[key]
	return ok
}

// Raw returns the stored bytes for key.
func (s *MemoryStore) Raw(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.items[key]
	return append([]byte(nil), data...), ok
}
