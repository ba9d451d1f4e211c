package session

import "strings"

// Roles understood by the template.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	turnStart = "<|im_start|>"
	turnEnd   = "<|im_end|>"
)

// stopSequences end a generation at the close of the assistant turn.
var stopSequences = []string{turnEnd}

// Turn is one message of the conversation.
type Turn struct {
	Role    string
	Content string
}

func writeTurn(b *strings.Builder, role, content string) {
	b.WriteString(turnStart)
	b.WriteString(role)
	b.WriteByte('\n')
	b.WriteString(content)
	b.WriteString(turnEnd)
	b.WriteByte('\n')
}

// render lays out the whole conversation followed by the new user message and
// an open assistant turn.
func render(system string, history []Turn, user string) string {
	var b strings.Builder
	if system != "" {
		writeTurn(&b, RoleSystem, system)
	}
	for _, t := range history {
		writeTurn(&b, t.Role, t.Content)
	}
	writeTurn(&b, RoleUser, user)
	b.WriteString(turnStart)
	b.WriteString(RoleAssistant)
	b.WriteByte('\n')
	return b.String()
}

// trimHistory drops the oldest turns until the content of the rest fits in
// budget characters. The kept window never starts with an assistant turn.
func trimHistory(history []Turn, budget int) []Turn {
	total := 0
	for _, t := range history {
		total += len(t.Content)
	}
	i := 0
	for i < len(history) && (total > budget || history[i].Role == RoleAssistant) {
		total -= len(history[i].Content)
		i++
	}
	if i == 0 {
		return history
	}
	return append([]Turn(nil), history[i:]...)
}
