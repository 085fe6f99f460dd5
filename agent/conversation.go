package agent

import "github.com/seaborne/helmsman/llmclient"

// Conversation is the append-only transcript of one session. It is created
// seeded with exactly one system message, grows monotonically for the life of
// the session, and is never truncated or rewritten in place. A Conversation
// is owned exclusively by one Loop; the Loop serializes all access.
type Conversation struct {
	messages []llmclient.Message
}

// NewConversation creates a Conversation seeded with the system prompt.
func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		messages: []llmclient.Message{llmclient.SystemMessage(systemPrompt)},
	}
}

// Append adds messages to the end of the transcript.
func (c *Conversation) Append(msgs ...llmclient.Message) {
	c.messages = append(c.messages, msgs...)
}

// Messages returns a copy of the transcript in order.
func (c *Conversation) Messages() []llmclient.Message {
	out := make([]llmclient.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// SystemMessageCount returns how many system-role messages the transcript
// holds. It is always 1 for a Conversation built through NewConversation.
func (c *Conversation) SystemMessageCount() int {
	n := 0
	for _, m := range c.messages {
		if m.Role == llmclient.RoleSystem {
			n++
		}
	}
	return n
}
