// Package prompt assembles the provider-facing message sequence for a turn.
package prompt

import (
	"strings"

	"github.com/comigor/concierge-go/internal/history"
	"github.com/comigor/concierge-go/internal/llm"
)

// Block is one fixed context entry placed ahead of the conversation.
type Block struct {
	Role llm.Role
	Text string
}

// Context holds the fixed blocks shared by every turn. It is built once at
// startup and only read afterwards.
type Context struct {
	Blocks []Block
}

// NewContext builds the fixed context from the system instruction and the
// optional reference document. The reference document is injected with the
// user role. Empty inputs produce no block.
func NewContext(system, reference string) Context {
	var blocks []Block
	if text := strings.TrimSpace(system); text != "" {
		blocks = append(blocks, Block{Role: llm.RoleSystem, Text: text})
	}
	if text := strings.TrimSpace(reference); text != "" {
		blocks = append(blocks, Block{Role: llm.RoleUser, Text: text})
	}
	return Context{Blocks: blocks}
}

// Assemble returns the fixed blocks, then every usable history entry, then the
// new message as the single trailing user entry. History entries with an
// unknown role or blank text are dropped.
func Assemble(pc Context, window []history.Message, message string) []llm.Message {
	out := make([]llm.Message, 0, len(pc.Blocks)+len(window)+1)
	for _, b := range pc.Blocks {
		out = append(out, llm.Message{Role: b.Role, Text: b.Text})
	}
	for _, m := range window {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		switch m.Role {
		case history.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Text: text})
		case history.RoleAssistant:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Text: text})
		}
	}
	return append(out, llm.Message{Role: llm.RoleUser, Text: message})
}
