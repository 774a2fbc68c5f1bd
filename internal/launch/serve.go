package launch

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/replkit/replkit/internal/resolve"
	"github.com/replkit/replkit/internal/server"
)

// RunServerProcess is the entry point for the spawned server subprocess
// (argv[1] == ServerSentinel). SIGINT is ignored for the lifetime of the
// process so an interrupt aimed at the client never tears the server down;
// SIGTERM from the launcher or from group cleanup still does.
func RunServerProcess(payload string) error {
	cfg, err := DecodePayload(payload)
	if err != nil {
		return err
	}

	signal.Ignore(syscall.SIGINT)

	srv, err := server.Serve(cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	fmt.Fprintf(os.Stderr, "replkit server: listening on %s\n", srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(os.Stderr, "replkit server: shutting down")
	return nil
}

// Headless runs the server as the foreground process indefinitely, with no
// client attached and no rendezvous: the server is the process.
func Headless(opts Options) error {
	settings, err := resolve.Resolve(opts.Resolve, opts.ProjectDir)
	if err != nil {
		return err
	}

	srv, err := server.Serve(server.Config{
		Host:       settings.Host,
		Port:       settings.Port,
		Transport:  settings.Transport,
		Greeting:   settings.Greeting,
		Middleware: settings.Middleware,
		InitScript: settings.InitScript,
		ProjectDir: opts.ProjectDir,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	fmt.Fprintf(os.Stderr, "replkit server: listening on %s\n", srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(os.Stderr, "replkit server: shutting down")
	return nil
}
