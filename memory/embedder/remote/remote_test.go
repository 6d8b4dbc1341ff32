package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dslachut/hawat/memory/embedder/remote"
)

func newServer(t *testing.T, dims int, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "all-minilm" || len(req.Input) != 1 {
			t.Errorf("unexpected request: %+v", req)
		}

		if status != http.StatusOK {
			http.Error(w, "rate limited", status)
			return
		}
		vec := make([]float32, dims)
		vec[0] = 1
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec, "index": 0}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, url string) *remote.Client {
	t.Helper()
	c, err := remote.New(remote.Config{BaseURL: url + "/v1/", APIKey: "secret", Model: "all-minilm"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClient_Embed(t *testing.T) {
	srv := newServer(t, 384, http.StatusOK)
	c := newClient(t, srv.URL)

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 384 || vec[0] != 1 {
		t.Errorf("unexpected vector: len=%d", len(vec))
	}
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()

	c := newClient(t, newServer(t, 384, http.StatusTooManyRequests).URL)
	if _, err := c.Embed(ctx, "hello"); err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status error, got %v", err)
	}

	c = newClient(t, newServer(t, 12, http.StatusOK).URL)
	if _, err := c.Embed(ctx, "hello"); err == nil || !strings.Contains(err.Error(), "dimension mismatch") {
		t.Errorf("expected dimension error, got %v", err)
	}

	if vec, err := c.Embed(ctx, "   "); vec != nil || err != nil {
		t.Errorf("blank text: %v %v", vec, err)
	}

	if _, err := remote.New(remote.Config{Model: "m"}); err == nil {
		t.Error("expected error without BaseURL")
	}
}
