// Package client implements the interactive terminal client that attaches
// to an evaluation server and drives an eval loop over the wire protocol.
package client

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/replkit/replkit/internal/paths"
	"github.com/replkit/replkit/internal/transport"
)

// Options configures one attach.
type Options struct {
	Transport string

	// In, Out, Errw default to the process's standard streams.
	In   io.Reader
	Out  io.Writer
	Errw io.Writer

	// HistoryFile overrides the default history location; "-" disables
	// history entirely.
	HistoryFile string
}

// Attach connects to addr (host:port) and runs the interactive loop until
// EOF or the :quit command. No attach ever happens on a port the caller did
// not learn from a handshake, a connection string, or a trampoline bind.
func Attach(addr string, opts Options) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	return run(conn, addr, opts)
}

func run(conn io.ReadWriter, addr string, opts Options) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Errw == nil {
		opts.Errw = os.Stderr
	}
	name := opts.Transport
	if name == "" {
		name = transport.Default
	}
	factory, err := transport.Lookup(name)
	if err != nil {
		return err
	}
	codec := factory(conn)

	fmt.Fprintf(opts.Out, "connected to %s\n", addr)

	// Probe with describe so a configured server greeting renders before
	// the first prompt.
	if err := codec.Encode(transport.Message{"op": "describe", "id": "0"}); err != nil {
		return fmt.Errorf("sending describe: %w", err)
	}
	if err := renderUntilDone(codec, opts.Out, opts.Errw); err != nil {
		return err
	}

	history := newHistoryWriter(opts.HistoryFile)
	defer history.Close()

	scanner := bufio.NewScanner(opts.In)
	seq := 0
	for {
		fmt.Fprint(opts.Out, "=> ")
		if !scanner.Scan() {
			fmt.Fprintln(opts.Out)
			return scanner.Err()
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.TrimSpace(line) == ":quit" {
			return nil
		}
		history.Append(line)

		seq++
		req := transport.Message{"op": "eval", "id": strconv.Itoa(seq), "code": line}
		if err := codec.Encode(req); err != nil {
			return fmt.Errorf("sending eval: %w", err)
		}
		if err := renderUntilDone(codec, opts.Out, opts.Errw); err != nil {
			return err
		}
	}
}

// renderUntilDone prints streamed output and the final value or error for
// one request. A greeting message may arrive first on a fresh connection
// and renders the same way.
func renderUntilDone(codec transport.Codec, out, errw io.Writer) error {
	for {
		msg, err := codec.Decode()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("server closed the connection")
			}
			return err
		}

		if o, ok := transport.AsString(msg["out"]); ok {
			fmt.Fprint(out, o)
		}
		if e, ok := transport.AsString(msg["err"]); ok && e != "" && !hasStatus(msg, "unknown-op") {
			fmt.Fprintln(errw, e)
		}
		if v, ok := transport.AsString(msg["value"]); ok {
			fmt.Fprintln(out, v)
		}
		if hasStatus(msg, "done") {
			return nil
		}
	}
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

type historyWriter struct {
	f *os.File
}

// newHistoryWriter appends input lines to the history file best-effort;
// history failures never interrupt a session.
func newHistoryWriter(path string) *historyWriter {
	if path == "-" {
		return &historyWriter{}
	}
	if path == "" {
		path = paths.HistoryFile()
	}
	if err := paths.EnsureDir(filepath.Dir(path)); err != nil {
		return &historyWriter{}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return &historyWriter{}
	}
	return &historyWriter{f: f}
}

func (h *historyWriter) Append(line string) {
	if h.f == nil {
		return
	}
	_, _ = h.f.WriteString(line + "\n")
}

func (h *historyWriter) Close() {
	if h.f != nil {
		h.f.Close()
	}
}
