package memory

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/dslachut/hawat/core"
)

// NoneAvailable replaces an empty context block.
const NoneAvailable = "None available"

// contextTemplate is the fixed layout handed to the model. Blocks are never
// empty: absence is spelled out with NoneAvailable.
const contextTemplate = `Related Prior Conversations
---
%s


Related Prior Messages
---
%s


Current Conversation
---
%s
`

// FormatContextLine formats a message for the prompt context.
func FormatContextLine(m core.Message) string {
	return fmt.Sprintf("%s (%d minutes ago): %s", m.Sender, m.MinutesAgo, m.Content)
}

// FormatLogLine formats a message for a summarization log, with a humanized
// age relative to now ("3 hours ago").
func FormatLogLine(m core.Message, now time.Time) string {
	age := humanize.RelTime(m.Timestamp, now, "ago", "from now")
	return fmt.Sprintf("- %s (%s): %s", m.Sender, age, m.Content)
}

// FormatConversationLine formats a related conversation for the prompt context.
func FormatConversationLine(c core.Conversation) string {
	return fmt.Sprintf("Conversation ID: %d, Summary: %s", c.ID, c.Summary)
}

// renderContext fills the template, substituting NoneAvailable for empty blocks.
func renderContext(convos, messages, current []string) string {
	return fmt.Sprintf(contextTemplate, block(convos), block(messages), block(current))
}

func block(lines []string) string {
	if len(lines) == 0 {
		return NoneAvailable
	}
	return strings.Join(lines, "\n")
}

// truncateLog truncates text to maxLen runes for logging.
func truncateLog(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
