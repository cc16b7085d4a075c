package ai

import "sync"

// History is the append-only conversation log. The full log is retained for
// audit and replay; provider requests only ever see a bounded window of the
// most recent messages.
//
// The window is shared across providers: whichever backend serves a request
// sees the same recent context.
type History struct {
	mu       sync.Mutex
	messages []Message
}

// NewHistory creates an empty conversation history.
func NewHistory() *History {
	return &History{}
}

// Append adds one message. Writes from concurrent callers are serialized.
func (h *History) Append(role, content string) {
	h.mu.Lock()
	h.messages = append(h.messages, Message{Role: role, Content: content})
	h.mu.Unlock()
}

// Window returns a copy of the most recent n messages, in order.
func (h *History) Window(n int) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || len(h.messages) == 0 {
		return nil
	}
	start := len(h.messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(h.messages)-start)
	copy(out, h.messages[start:])
	return out
}

// All returns a copy of the entire untrimmed history.
func (h *History) All() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the total number of retained messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}
