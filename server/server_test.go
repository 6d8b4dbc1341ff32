package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dslachut/hawat/engine"
	"github.com/dslachut/hawat/server"
)

// echoChatter replies with the message upper-cased, or fails on "fail".
type echoChatter struct{}

func (echoChatter) Run(ctx context.Context, input *engine.Input) (*engine.Output, error) {
	if strings.TrimSpace(input.UserMessage) == "" {
		return nil, engine.ErrEmptyMessage
	}
	if input.UserMessage == "fail" {
		return nil, errors.New("model unavailable")
	}
	return &engine.Output{TurnID: input.TurnID, Text: strings.ToUpper(input.UserMessage)}, nil
}

func setupGRPC(t *testing.T) *server.Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := server.NewGRPCServer(echoChatter{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := server.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGRPC_SendChat(t *testing.T) {
	client := setupGRPC(t)

	reply, err := client.SendChat(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	if reply != "HELLO" {
		t.Errorf("reply = %q", reply)
	}
}

func TestGRPC_Errors(t *testing.T) {
	client := setupGRPC(t)
	ctx := context.Background()

	_, err := client.SendChat(ctx, "")
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}

	_, err = client.SendChat(ctx, "fail")
	if status.Code(err) != codes.Unavailable {
		t.Errorf("expected Unavailable, got %v", err)
	}
}

func TestHTTP_WebSocket(t *testing.T) {
	srv := httptest.NewServer(server.NewHTTPHandler(echoChatter{}, nil))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	cases := []struct {
		in       string
		wantType string
		wantMsg  string
	}{
		{"hi there", "reply", "HI THERE"},
		{"", "error", ""},
		{"fail", "error", ""},
	}
	for _, tc := range cases {
		if err := conn.WriteJSON(server.ClientMessage{Message: tc.in}); err != nil {
			t.Fatalf("WriteJSON: %v", err)
		}
		var out server.ServerMessage
		if err := conn.ReadJSON(&out); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if out.Type != tc.wantType || out.Message != tc.wantMsg {
			t.Errorf("%q: got %+v", tc.in, out)
		}
		if out.TurnID == "" {
			t.Errorf("%q: missing turn id", tc.in)
		}
		if tc.wantType == "error" && out.Error == "" {
			t.Errorf("%q: missing error text", tc.in)
		}
	}
}

func TestHTTP_Health(t *testing.T) {
	handler := server.NewHTTPHandler(echoChatter{}, func() map[string]any {
		return map[string]any{"memory": false}
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["memory"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := server.New(server.Config{GRPCAddr: ":0"}); err == nil {
		t.Error("expected error without engine")
	}
	if _, err := server.New(server.Config{Engine: echoChatter{}}); err == nil {
		t.Error("expected error without listeners")
	}
}
