package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/goleak"

	apperrors "github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echoParams struct {
	Text string `json:"text"`
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer()
	s.Register("Echo.Say", func(_ context.Context, raw json.RawMessage) (any, error) {
		p, err := Decode[echoParams](raw)
		if err != nil {
			return nil, err
		}
		if p.Text == "" {
			return nil, apperrors.Invalid("text is required")
		}
		return echoParams{Text: p.Text + "!"}, nil
	})
	s.Register("Echo.Fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("disk on fire")
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ln) }()
	t.Cleanup(func() {
		s.Stop()
		if err := <-done; err != nil {
			t.Errorf("ServeListener returned %v", err)
		}
	})
	return s, ln.Addr().String()
}

func TestCall(t *testing.T) {
	s, addr := startServer(t)
	if s.MethodCount() != 2 {
		t.Errorf("MethodCount = %d", s.MethodCount())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var out echoParams
	for _, in := range []string{"a", "b"} {
		if err := c.Call(ctx, "Echo.Say", echoParams{Text: in}, &out); err != nil {
			t.Fatalf("Call: %v", err)
		}
		if out.Text != in+"!" {
			t.Errorf("got %q", out.Text)
		}
	}
}

func TestCallErrors(t *testing.T) {
	_, addr := startServer(t)
	ctx := context.Background()
	c, err := Dial(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	tests := []struct {
		method string
		params any
		code   int
		msg    string
	}{
		{"Echo.Say", echoParams{}, http.StatusBadRequest, "text is required"},
		{"Echo.Fail", nil, http.StatusInternalServerError, "internal error"},
		{"Echo.Missing", nil, http.StatusNotFound, "unknown method: Echo.Missing"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			err := c.Call(ctx, tt.method, tt.params, nil)
			var remote *RemoteError
			if !errors.As(err, &remote) {
				t.Fatalf("err = %v, want RemoteError", err)
			}
			if remote.Code != tt.code || remote.Message != tt.msg {
				t.Errorf("got code %d %q, want %d %q", remote.Code, remote.Message, tt.code, tt.msg)
			}
		})
	}
}

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in, network, address string
	}{
		{"unix:/tmp/fz.sock", "unix", "/tmp/fz.sock"},
		{"/run/fz.sock", "unix", "/run/fz.sock"},
		{"localhost:7070", "tcp", "localhost:7070"},
		{"tcp::7070", "tcp", ":7070"},
	}
	for _, tt := range tests {
		n, a := ParseAddr(tt.in)
		if n != tt.network || a != tt.address {
			t.Errorf("ParseAddr(%q) = %s %s, want %s %s", tt.in, n, a, tt.network, tt.address)
		}
	}
}
