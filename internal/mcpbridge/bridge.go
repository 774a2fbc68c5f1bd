// Package mcpbridge exposes a running evaluation server to MCP clients:
// it serves the Model Context Protocol over stdio and proxies an "eval"
// tool onto the server's wire protocol, so agent tooling can drive the
// same session an interactive client would.
package mcpbridge

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/replkit/replkit/internal/transport"
)

const version = "0.1.0"

// Serve connects to an evaluation server at addr and serves MCP on stdio
// until the client disconnects.
func Serve(addr, transportName string) error {
	if transportName == "" {
		transportName = transport.Default
	}
	factory, err := transport.Lookup(transportName)
	if err != nil {
		return err
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	bridge := &bridge{codec: factory(conn)}

	s := mcpserver.NewMCPServer("replkit", version, mcpserver.WithToolCapabilities(false))
	s.AddTool(
		mcp.NewTool("eval",
			mcp.WithDescription("Evaluate Lua code in the attached session and return printed output and result values."),
			mcp.WithString("code", mcp.Required(), mcp.Description("Lua code to evaluate")),
		),
		bridge.evalTool,
	)
	return mcpserver.ServeStdio(s)
}

// bridge serializes tool calls onto the single server connection.
type bridge struct {
	mu    sync.Mutex
	codec transport.Codec
	seq   int
}

func (b *bridge) evalTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	if err := b.codec.Encode(transport.Message{"op": "eval", "id": fmt.Sprintf("mcp-%d", b.seq), "code": code}); err != nil {
		return nil, fmt.Errorf("sending eval: %w", err)
	}

	var out, value, evalErr string
	for {
		msg, err := b.codec.Decode()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("server closed the connection")
			}
			return nil, err
		}
		if hasStatus(msg, "greeting") {
			continue
		}
		if o, ok := transport.AsString(msg["out"]); ok {
			out += o
		}
		if v, ok := transport.AsString(msg["value"]); ok {
			value = v
		}
		if e, ok := transport.AsString(msg["err"]); ok {
			evalErr = e
		}
		if hasStatus(msg, "done") {
			break
		}
	}

	if evalErr != "" {
		return mcp.NewToolResultError(evalErr), nil
	}

	var b2 strings.Builder
	if out != "" {
		b2.WriteString(out)
		if !strings.HasSuffix(out, "\n") {
			b2.WriteString("\n")
		}
	}
	b2.WriteString(value)
	return mcp.NewToolResultText(b2.String()), nil
}

func hasStatus(msg transport.Message, want string) bool {
	list, ok := msg["status"].([]any)
	if !ok {
		return false
	}
	for _, v := range list {
		if s, _ := transport.AsString(v); s == want {
			return true
		}
	}
	return false
}
