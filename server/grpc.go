package server

import (
	"context"
	"errors"
	"fmt"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dslachut/hawat/engine"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "hawat.HawatChat"

const sendChatMethod = "/" + ServiceName + "/SendChat"

// ChatService is the server API of hawat.HawatChat. Request and response
// carry the message text as a google.protobuf.StringValue.
type ChatService interface {
	SendChat(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// ChatServiceDesc describes hawat.HawatChat for grpc.Server.RegisterService.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendChat",
			Handler:    sendChatHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hawat/chat.proto",
}

func sendChatHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatService).SendChat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: sendChatMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChatService).SendChat(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// chatService adapts a Chatter to ChatService.
type chatService struct {
	chatter Chatter
}

func (s *chatService) SendChat(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	out, err := s.chatter.Run(ctx, &engine.Input{UserMessage: in.GetValue()})
	if err != nil {
		if errors.Is(err, engine.ErrEmptyMessage) {
			return nil, status.Error(codes.InvalidArgument, "message is required")
		}
		log.Printf("[SERVER] SendChat failed: %v", err)
		return nil, status.Errorf(codes.Unavailable, "chat failed: %v", err)
	}
	return wrapperspb.String(out.Text), nil
}

// NewGRPCServer returns a grpc.Server with hawat.HawatChat registered.
func NewGRPCServer(chatter Chatter, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	s.RegisterService(&ChatServiceDesc, &chatService{chatter: chatter})
	return s
}

// Client calls hawat.HawatChat.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a chat server without transport security. Extra options
// are appended after the credentials option.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// SendChat sends one message and returns the assistant's reply.
func (c *Client) SendChat(ctx context.Context, message string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, sendChatMethod, wrapperspb.String(message), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
