// Package store persists whole transcripts under a single key. Stores are a
// weak mirror of the in-memory session: every write replaces the previous value.
package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/zhouzirui/med-chat/backend/internal/model/chat"
)

var (
	// ErrNotFound is returned by Load when nothing is stored under the key.
	ErrNotFound = errors.New("transcript not found")
	// ErrCorrupt is returned by Load when the stored value cannot be decoded.
	ErrCorrupt = errors.New("stored transcript is corrupt")
)

// Store is the durable storage port used by chat sessions.
// Implementations must be safe for concurrent use.
type Store interface {
	Load(ctx context.Context, key string) ([]chat.Message, error)
	Save(ctx context.Context, key string, messages []chat.Message) error
	Delete(ctx context.Context, key string) error
}

// Encode serialises a transcript as a JSON array of {role, content}.
func Encode(messages []chat.Message) ([]byte, error) {
	if messages == nil {
		messages = []chat.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return nil, errors.Wrap(err, "encode transcript")
	}
	return data, nil
}

// Decode parses a stored transcript. No schema validation beyond JSON shape.
func Decode(data []byte) ([]chat.Message, error) {
	var messages []chat.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "decode transcript: %v", err)
	}
	if messages == nil {
		return nil, errors.Wrap(ErrCorrupt, "decode transcript: null value")
	}
	return messages, nil
}
