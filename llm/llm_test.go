package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dslachut/hawat/llm"
)

type fakeCompleter struct {
	system, user string
	reply        string
	err          error
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.system, f.user = systemPrompt, userPrompt
	return f.reply, f.err
}

func TestSummarizer(t *testing.T) {
	ctx := context.Background()
	f := &fakeCompleter{reply: "  The user said hello.\n"}

	got, err := llm.NewSummarizer(f).Summarize(ctx, "- user (1 minute ago): Hello")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "The user said hello." {
		t.Errorf("summary = %q", got)
	}
	if f.system != llm.SummarySystemPrompt || f.user != "- user (1 minute ago): Hello" {
		t.Errorf("unexpected prompts: %q / %q", f.system, f.user)
	}

	f.err = errors.New("quota")
	if _, err := llm.NewSummarizer(f).Summarize(ctx, "x"); err == nil {
		t.Error("expected error")
	}
}

func TestConversationUserPrompt(t *testing.T) {
	got := llm.ConversationUserPrompt("CTX", "How are you?")
	if !strings.HasSuffix(got, "\n\nCTX\n---\nUser (just now): How are you?") {
		t.Errorf("unexpected prompt:\n%s", got)
	}
}

func TestOpenAICompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 ||
			req.Messages[0].Role != "system" || req.Messages[1].Content != "hi" {
			t.Errorf("unexpected request: %+v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello!"}}]}`))
	}))
	defer srv.Close()

	c, err := llm.NewOpenAICompleter(llm.OpenAIConfig{BaseURL: srv.URL + "/api/v1/", APIKey: "key", Model: "test-model"})
	if err != nil {
		t.Fatalf("NewOpenAICompleter: %v", err)
	}
	got, err := c.Complete(context.Background(), "sys", "hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "hello!" {
		t.Errorf("got %q", got)
	}
}

func TestOpenAICompleter_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer empty":
			_, _ = w.Write([]byte(`{"choices":[]}`))
		default:
			http.Error(w, "upstream down", http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c, _ := llm.NewOpenAICompleter(llm.OpenAIConfig{BaseURL: srv.URL, APIKey: "bad", Model: "m"})
	if _, err := c.Complete(ctx, "s", "u"); err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status error, got %v", err)
	}

	c, _ = llm.NewOpenAICompleter(llm.OpenAIConfig{BaseURL: srv.URL, APIKey: "empty", Model: "m"})
	if _, err := c.Complete(ctx, "s", "u"); err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("expected no choices error, got %v", err)
	}

	if _, err := llm.NewOpenAICompleter(llm.OpenAIConfig{}); err == nil {
		t.Error("expected error without model")
	}
}

func TestAnthropicCompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model  string `json:"model"`
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.System) != 1 || req.System[0].Text != "sys" {
			t.Errorf("unexpected system prompt: %+v", req.System)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "Hello "}, {"type": "text", "text": "there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	c := llm.NewAnthropicCompleter(llm.AnthropicConfig{APIKey: "key", Model: "claude-test", BaseURL: srv.URL})
	got, err := c.Complete(context.Background(), "sys", "hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Hello there" {
		t.Errorf("got %q", got)
	}
}
