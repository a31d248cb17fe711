// Package tokens estimates token usage of conversation history.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/doeshing/kshai/internal/domain"
)

const (
	encodingName    = "cl100k_base"
	messageOverhead = 4
)

// Counter counts tokens with tiktoken, falling back to a length estimate when
// the encoding cannot be loaded.
type Counter struct {
	once    sync.Once
	encoder *tiktoken.Tiktoken
	err     error
}

// NewCounter returns a lazily initialised counter.
func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) init() error {
	c.once.Do(func() {
		c.encoder, c.err = tiktoken.GetEncoding(encodingName)
	})
	return c.err
}

// Count implements ports.TokenCounter.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if err := c.init(); err != nil {
		return estimate(text)
	}
	return len(c.encoder.Encode(text, nil, nil))
}

// CountMessages totals history including per-message framing overhead.
func (c *Counter) CountMessages(messages []domain.Message) int {
	total := 0
	for _, msg := range messages {
		total += messageOverhead
		total += c.Count(string(msg.Role))
		total += c.Count(messageText(msg))
	}
	if total > 0 {
		total += 2
	}
	return total
}

func messageText(msg domain.Message) string {
	switch {
	case msg.ToolCall != nil:
		return msg.ToolCall.Name + " " + msg.ToolCall.Command()
	case msg.ToolResult != nil:
		return msg.ToolResult.Output
	case msg.Extracted != nil:
		text := msg.Extracted.RawText
		if msg.Extracted.Result != nil {
			text += "\n" + msg.Extracted.Result.Output
		}
		return text
	default:
		return msg.Content
	}
}

func estimate(text string) int {
	return (len(text) + 3) / 4
}
