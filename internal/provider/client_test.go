package provider

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/log"
)

// newTestServer starts an HTTP server bound to IPv4-only loopback so
// tests work inside restricted sandboxes that forbid IPv6 listeners.
func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("unable to start test server: %v", err)
	}

	server := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	server.Start()
	t.Cleanup(server.Close)
	return server
}

func testLogger() *log.Logger {
	return log.New(log.Config{Level: log.LevelError, Format: log.FormatText, Output: log.OutputStderr()})
}

// scriptedClient returns canned responses in order and records the
// requests it saw.
type scriptedClient struct {
	responses []string
	err       error
	healthErr error
	requests  []*CompletionRequest
}

func (c *scriptedClient) Complete(_ context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	idx := len(c.requests) - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return &CompletionResponse{Content: c.responses[idx], Model: "scripted"}, nil
}

func (c *scriptedClient) Health(context.Context) error { return c.healthErr }
func (c *scriptedClient) Name() string                 { return "scripted" }
func (c *scriptedClient) Close() error                 { return nil }

func TestClassifyTransportErr(t *testing.T) {
	if err := classifyTransportErr("language", nil); err != nil {
		t.Fatalf("nil should stay nil, got %v", err)
	}

	err := classifyTransportErr("language", context.DeadlineExceeded)
	if !errors.HasCode(err, errors.ErrCodeProviderTimeout) {
		t.Errorf("deadline should map to %s, got %v", errors.ErrCodeProviderTimeout, err)
	}

	err = classifyTransportErr("vision", net.ErrClosed)
	if !errors.HasCode(err, errors.ErrCodeCollaboratorUnavailable) {
		t.Errorf("transport failure should map to %s, got %v", errors.ErrCodeCollaboratorUnavailable, err)
	}
}
