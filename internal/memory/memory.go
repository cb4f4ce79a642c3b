// Package memory holds the categorised working memory of a drafting agent.
package memory

import (
	"strings"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Category is an ordered list of memory entries.
type Category struct {
	items []string
}

// Add appends an entry.
func (c *Category) Add(item string) {
	c.items = append(c.items, item)
}

// Items returns a copy of all entries, oldest first.
func (c *Category) Items() []string {
	return append([]string(nil), c.items...)
}

// Len returns the number of entries.
func (c *Category) Len() int {
	return len(c.items)
}

// Trim keeps only the newest n entries.
func (c *Category) Trim(n int) {
	if n < 0 {
		n = 0
	}
	if len(c.items) > n {
		c.items = append([]string(nil), c.items[len(c.items)-n:]...)
	}
}

// tail returns the newest n entries; n <= 0 means all of them.
func (c *Category) tail(n int) []string {
	if n <= 0 || n >= len(c.items) {
		return c.items
	}
	return c.items[len(c.items)-n:]
}

// Message is one transcript turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Memory is an agent's working memory.
type Memory struct {
	System      string
	LongTerm    Category
	Public      Category
	ShortTerm   Category
	Reflections Category
	Plans       Category
	Messages    []Message
}

// New returns an empty memory with the given system prompt.
func New(system string) *Memory {
	return &Memory{System: system}
}

// AddMessage appends a transcript turn.
func (m *Memory) AddMessage(role, content string) {
	m.Messages = append(m.Messages, Message{Role: role, Content: content})
}

// ContextBlock renders the newest maxItems entries of every category.
func (m *Memory) ContextBlock(maxItems int) string {
	blocks := []string{
		formatItems("Long-term memory", m.LongTerm.tail(maxItems)),
		formatItems("Public references", m.Public.tail(maxItems)),
		formatItems("Short-term memory", m.ShortTerm.tail(maxItems)),
		formatItems("Recent reflections", m.Reflections.tail(maxItems)),
		formatItems("Current plans", m.Plans.tail(maxItems)),
	}
	return strings.TrimSpace(strings.Join(blocks, "\n\n"))
}

func formatItems(label string, items []string) string {
	if len(items) == 0 {
		return label + ": (none)"
	}
	var b strings.Builder
	b.WriteString(label)
	b.WriteString(":")
	for _, item := range items {
		b.WriteString("\n- ")
		b.WriteString(item)
	}
	return b.String()
}

// Snapshot is a detached copy of a memory, shaped for persistence.
type Snapshot struct {
	System      string    `json:"system"`
	LongTerm    []string  `json:"long_term"`
	Public      []string  `json:"public"`
	ShortTerm   []string  `json:"short_term"`
	Reflections []string  `json:"reflections"`
	Plans       []string  `json:"plans"`
	Messages    []Message `json:"messages"`
}

// Snapshot returns a deep copy of the memory.
func (m *Memory) Snapshot() Snapshot {
	return Snapshot{
		System:      m.System,
		LongTerm:    m.LongTerm.Items(),
		Public:      m.Public.Items(),
		ShortTerm:   m.ShortTerm.Items(),
		Reflections: m.Reflections.Items(),
		Plans:       m.Plans.Items(),
		Messages:    append([]Message(nil), m.Messages...),
	}
}
