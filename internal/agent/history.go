package agent

import (
	"strings"

	"github.com/nugget/heirloom/internal/conversation"
	"github.com/nugget/heirloom/internal/llm"
)

// replayHistory converts stored messages into model turns. Only text is
// replayed: past tool calls are summarized by the replies that followed
// them. Blank messages are skipped, leading assistant turns are dropped
// so the exchange opens with the user, and consecutive turns from the
// same role are merged.
func replayHistory(history []conversation.Message) []llm.Message {
	var out []llm.Message
	var texts []string
	role := ""

	flush := func() {
		if role != "" && len(texts) > 0 {
			out = append(out, llm.TextMessage(role, strings.Join(texts, "\n\n")))
		}
		texts = nil
	}

	for _, m := range history {
		text := strings.TrimSpace(m.Text())
		if text == "" {
			continue
		}
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		if role == "" && m.Role == llm.RoleAssistant {
			continue
		}
		if m.Role != role {
			flush()
			role = m.Role
		}
		texts = append(texts, text)
	}
	flush()
	return out
}
