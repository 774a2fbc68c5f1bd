package client

import (
	"os"
	"strings"
	"testing"

	"github.com/replkit/replkit/internal/server"
)

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

func startServer(t *testing.T, cfg server.Config) *server.Server {
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
	return srv
}

func TestAttachEvalLoop(t *testing.T) {
	srv := startServer(t, server.Config{})

	var out, errw strings.Builder
	err := Attach(srv.Addr(), Options{
		In:          strings.NewReader("1 + 1\n:quit\n"),
		Out:         &out,
		Errw:        &errw,
		HistoryFile: "-",
	})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	if !strings.Contains(out.String(), "2\n") {
		t.Fatalf("output %q missing evaluated value", out.String())
	}
	if errw.Len() != 0 {
		t.Fatalf("stderr output = %q, want empty", errw.String())
	}
}

func TestAttachRendersGreetingBeforePrompt(t *testing.T) {
	srv := startServer(t, server.Config{Greeting: "default"})

	var out strings.Builder
	err := Attach(srv.Addr(), Options{
		In:          strings.NewReader(":quit\n"),
		Out:         &out,
		HistoryFile: "-",
	})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	banner := strings.Index(out.String(), "replkit server on")
	prompt := strings.Index(out.String(), "=> ")
	if banner == -1 {
		t.Fatalf("output %q missing greeting banner", out.String())
	}
	if prompt != -1 && banner > prompt {
		t.Fatalf("banner appears after prompt in %q", out.String())
	}
}

func TestAttachRendersEvalErrors(t *testing.T) {
	srv := startServer(t, server.Config{})

	var out, errw strings.Builder
	err := Attach(srv.Addr(), Options{
		In:          strings.NewReader("error(\"boom\")\n:quit\n"),
		Out:         &out,
		Errw:        &errw,
		HistoryFile: "-",
	})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if !strings.Contains(errw.String(), "boom") {
		t.Fatalf("stderr %q missing eval error", errw.String())
	}
}

func TestAttachHistoryAppends(t *testing.T) {
	srv := startServer(t, server.Config{})
	history := t.TempDir() + "/history"

	var out strings.Builder
	err := Attach(srv.Addr(), Options{
		In:          strings.NewReader("7 * 6\n:quit\n"),
		Out:         &out,
		HistoryFile: history,
	})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	data, err := readFile(history)
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	if !strings.Contains(data, "7 * 6\n") {
		t.Fatalf("history %q missing input line", data)
	}
}
