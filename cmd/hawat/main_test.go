package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dslachut/hawat/config"
	"github.com/dslachut/hawat/core"
	"github.com/dslachut/hawat/memory"
	"github.com/dslachut/hawat/memory/embedder/mock"
	"github.com/dslachut/hawat/memory/store/sqlite"
)

func setupTestManager(t *testing.T) (*memory.SimpleManager, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return memory.NewSimpleManager(store, mock.New(), nil), store
}

type fixedSummarizer string

func (s fixedSummarizer) Summarize(ctx context.Context, conversation string) (string, error) {
	return string(s), nil
}

type fakeSender struct {
	sent []string
}

func (f *fakeSender) SendChat(ctx context.Context, message string) (string, error) {
	f.sent = append(f.sent, message)
	if message == "boom" {
		return "", errors.New("server unavailable")
	}
	return "echo: " + message, nil
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "chat": false, "reflect": false, "orphans": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestChatCmd(t *testing.T) {
	sender := &fakeSender{}
	cmd := newChatCmd(sender)
	var out, errOut strings.Builder
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader("hello\n\nboom\nbye\n"))
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("chat execute: %v", err)
	}
	if len(sender.sent) != 3 {
		t.Fatalf("expected 3 sends (blank line skipped), got %v", sender.sent)
	}
	got := out.String()
	for _, want := range []string{"Welcome to Hawat!", ">> echo: hello", ">> echo: bye", "Have a nice day!"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if !strings.Contains(errOut.String(), "server unavailable") {
		t.Errorf("expected error on stderr, got %q", errOut.String())
	}
}

func TestReflectCmd(t *testing.T) {
	ctx := context.Background()
	manager, store := setupTestManager(t)
	if _, err := manager.Record(ctx, "Plan a trip to Lisbon", core.SenderUser); err != nil {
		t.Fatalf("Record: %v", err)
	}

	cmd := newReflectCmdWith(manager, fixedSummarizer("Trip planning."))
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("reflect execute: %v", err)
	}
	if !strings.Contains(out.String(), "Summarized 1 conversations") {
		t.Errorf("unexpected output %q", out.String())
	}

	id, ok, err := store.LatestConversationID(ctx)
	if err != nil || !ok {
		t.Fatalf("LatestConversationID: %v %v", ok, err)
	}
	convo, err := store.GetConversation(ctx, id)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if convo.Summary != "Trip planning." {
		t.Errorf("Summary = %q", convo.Summary)
	}
}

func TestOrphansCmd(t *testing.T) {
	ctx := context.Background()
	manager, store := setupTestManager(t)
	if _, err := manager.Record(ctx, "attached", core.SenderUser); err != nil {
		t.Fatalf("Record: %v", err)
	}

	cmd := newOrphansCmdWith(manager.Tracker())
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("orphans execute: %v", err)
	}
	if !strings.Contains(out.String(), "No orphaned messages") {
		t.Errorf("unexpected output %q", out.String())
	}

	if _, err := store.DB().ExecContext(ctx,
		`INSERT INTO messages (sender, content, timestamp) VALUES ('user', 'stray', ?)`,
		time.Now().UnixNano()); err != nil {
		t.Fatalf("insert orphan: %v", err)
	}
	cmd = newOrphansCmdWith(manager.Tracker())
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error when orphans exist")
	}
	if !strings.Contains(out.String(), "2") {
		t.Errorf("expected orphan id 2 in output, got %q", out.String())
	}
}

func TestNewApp_DegradesWithoutStore(t *testing.T) {
	cfg := &config.Config{
		DBDriver:   config.DriverSQLite,
		SQLitePath: t.TempDir() + "/missing/dir/hawat.db",
		Embedder:   config.EmbedderMock,
	}

	a, err := newApp(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.cleanup()
	if a.manager.Available() {
		t.Error("expected memory to be unavailable")
	}

	if _, err := newApp(context.Background(), cfg, true); err == nil {
		t.Error("expected error when the store is required")
	}
}

func TestNewEmbedder(t *testing.T) {
	cfg := &config.Config{Embedder: config.EmbedderMock, EmbedCacheEnabled: true}
	e, release, err := newEmbedder(cfg)
	if err != nil {
		t.Fatalf("newEmbedder: %v", err)
	}
	defer release()
	if e.Dimensions() != core.EmbeddingDimensions {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}

	cfg = &config.Config{Embedder: config.EmbedderRemote}
	if _, _, err := newEmbedder(cfg); err == nil {
		t.Error("expected error for remote embedder without base URL")
	}
}
