package chat

// Greeting returns the single-message transcript every fresh session starts with.
func Greeting(text string) []Message {
	return []Message{AssistantMessage(text)}
}

// Window returns a copy of the last n messages. n <= 0 yields an empty slice.
func Window(messages []Message, n int) []Message {
	if n <= 0 || len(messages) == 0 {
		return []Message{}
	}

	start := 0
	if len(messages) > n {
		start = len(messages) - n
	}

	copied := make([]Message, len(messages)-start)
	copy(copied, messages[start:])
	return copied
}

// Clone returns an independent copy of messages.
func Clone(messages []Message) []Message {
	copied := make([]Message, len(messages))
	copy(copied, messages)
	return copied
}
