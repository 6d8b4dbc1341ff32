package memory

import (
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dslachut/hawat/core"
)

func TestFormatLines(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := core.Message{
		ID:         4,
		Sender:     core.SenderAssistant,
		Content:    "Hi there",
		Timestamp:  now.Add(-3 * time.Hour),
		MinutesAgo: 180,
	}

	if got := FormatContextLine(m); got != "assistant (180 minutes ago): Hi there" {
		t.Errorf("FormatContextLine = %q", got)
	}
	if got := FormatLogLine(m, now); got != "- assistant (3 hours ago): Hi there" {
		t.Errorf("FormatLogLine = %q", got)
	}
	c := core.Conversation{ID: 7, Summary: "Greetings."}
	if got := FormatConversationLine(c); got != "Conversation ID: 7, Summary: Greetings." {
		t.Errorf("FormatConversationLine = %q", got)
	}
}

func TestRenderContext_Placeholders(t *testing.T) {
	out := renderContext(nil, []string{"a", "b"}, nil)

	want := "Related Prior Conversations\n---\nNone available\n\n\n" +
		"Related Prior Messages\n---\na\nb\n\n\n" +
		"Current Conversation\n---\nNone available\n"
	if out != want {
		t.Errorf("renderContext =\n%q\nwant\n%q", out, want)
	}
}

func TestDedupeAndSort(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := []core.Message{{ID: 3, Timestamp: t0}}
	similar := []core.Message{
		{ID: 3, Timestamp: t0},
		{ID: 2, Timestamp: t0.Add(-time.Minute)},
		{ID: 1, Timestamp: t0.Add(-time.Minute)},
		{ID: 5, Timestamp: t0.Add(-time.Hour)},
	}

	out := dedupe(similar, recent)
	sortChronologically(out)

	var ids []string
	for _, m := range out {
		ids = append(ids, strconv.FormatInt(m.ID, 10))
	}
	if got := strings.Join(ids, ","); got != "5,1,2" {
		t.Errorf("order = %s, want 5,1,2", got)
	}
}

func TestTruncateLog(t *testing.T) {
	if got := truncateLog("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateLog("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("got %q", got)
	}
	if got := truncateLog("héllo wörld", 5); got != "héllo..." {
		t.Errorf("got %q", got)
	}
	if got := truncateLog("日本語のテキスト", 3); got != "日本語..." || !utf8.ValidString(got) {
		t.Errorf("got %q", got)
	}
}
