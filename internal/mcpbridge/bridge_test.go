package mcpbridge

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/replkit/replkit/internal/server"
	"github.com/replkit/replkit/internal/transport"
)

func newBridge(t *testing.T, cfg server.Config) *bridge {
	t.Helper()
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Transport == "" {
		cfg.Transport = "bencode"
	}
	srv, err := server.Serve(cfg)
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	t.Cleanup(srv.Close)

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dialing server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	factory, err := transport.Lookup("bencode")
	if err != nil {
		t.Fatalf("Lookup(bencode) error = %v", err)
	}
	return &bridge{codec: factory(conn)}
}

func evalRequest(code string) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = "eval"
	req.Params.Arguments = map[string]any{"code": code}
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatalf("result has no content: %+v", result)
	}
	switch c := result.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("unexpected content type %T", result.Content[0])
		return ""
	}
}

func TestEvalToolReturnsValue(t *testing.T) {
	b := newBridge(t, server.Config{})

	result, err := b.evalTool(context.Background(), evalRequest("6 * 7"))
	if err != nil {
		t.Fatalf("evalTool() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("evalTool() IsError, content = %v", result.Content)
	}
	if got := resultText(t, result); got != "42" {
		t.Fatalf("evalTool() = %q, want 42", got)
	}
}

func TestEvalToolIncludesPrintedOutput(t *testing.T) {
	b := newBridge(t, server.Config{})

	result, err := b.evalTool(context.Background(), evalRequest(`print("side") return 1`))
	if err != nil {
		t.Fatalf("evalTool() error = %v", err)
	}
	got := resultText(t, result)
	if !strings.Contains(got, "side\n") || !strings.HasSuffix(got, "1") {
		t.Fatalf("evalTool() = %q, want printed output then value", got)
	}
}

func TestEvalToolSurfacesEvalErrors(t *testing.T) {
	b := newBridge(t, server.Config{})

	result, err := b.evalTool(context.Background(), evalRequest(`error("nope")`))
	if err != nil {
		t.Fatalf("evalTool() error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("evalTool() IsError = false, content = %v", result.Content)
	}
}

func TestEvalToolSkipsGreetingMessages(t *testing.T) {
	b := newBridge(t, server.Config{Greeting: "default"})

	result, err := b.evalTool(context.Background(), evalRequest("2 + 2"))
	if err != nil {
		t.Fatalf("evalTool() error = %v", err)
	}
	if got := resultText(t, result); got != "4" {
		t.Fatalf("evalTool() = %q, want 4", got)
	}
}
