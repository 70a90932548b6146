package ai

import (
	"context"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"

	"github.com/zhouzirui/med-chat/backend/internal/model/chat"
)

// PromptBuilder assembles the outbound message list: the fixed system
// instruction followed by a sliding window of the transcript.
type PromptBuilder struct {
	template prompt.ChatTemplate
}

// NewPromptBuilder compiles the system + history template.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.MessagesPlaceholder("history", false),
		),
	}
}

// Build returns the system instruction plus the last window messages of transcript.
func (b *PromptBuilder) Build(ctx context.Context, system string, transcript []chat.Message, window int) ([]*schema.Message, error) {
	messages, err := b.template.Format(ctx, map[string]any{
		"system":  system,
		"history": toSchemaMessages(chat.Window(transcript, window)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "format prompt")
	}
	return messages, nil
}

func toSchemaMessages(messages []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, &schema.Message{Role: toSchemaRole(msg.Role), Content: msg.Content})
	}
	return out
}

func toSchemaRole(role chat.Role) schema.RoleType {
	switch role {
	case chat.RoleSystem:
		return schema.System
	case chat.RoleAssistant:
		return schema.Assistant
	default:
		return schema.User
	}
}
