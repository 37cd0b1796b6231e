package interceptors

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func TestLoggingUnary_SkipsFastSuccess(t *testing.T) {
	var buf bytes.Buffer
	interceptor := LoggingUnary(zerolog.New(&buf), time.Second)
	if _, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/a/B"}, okHandler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log: %s", buf.String())
	}
}

func TestLoggingUnary_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	interceptor := LoggingUnary(zerolog.New(&buf), time.Second)
	failing := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "missing")
	}
	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/a/B"}, failing)
	out := buf.String()
	if !strings.Contains(out, `"method":"/a/B"`) || !strings.Contains(out, `"code":"NotFound"`) {
		t.Errorf("log = %s", out)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"none", context.Background(), "unknown"},
		{"forwarded", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", "1.2.3.4, 5.6.7.8")), "1.2.3.4"},
		{"real ip", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-real-ip", "9.9.9.9")), "9.9.9.9"},
		{"peer", peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5000}}), "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientIP(tt.ctx); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
