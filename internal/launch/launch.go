// Package launch starts evaluation servers. The handshake path spawns the
// server out of process and learns its bound port through the ack
// rendezvous; the trampoline and headless paths run the server in the
// foreground process, where the port is known by construction.
package launch

import (
	"errors"
	"fmt"

	"github.com/replkit/replkit/internal/ack"
	"github.com/replkit/replkit/internal/resolve"
	"github.com/replkit/replkit/internal/server"
	"github.com/replkit/replkit/internal/transport"
)

// Options selects what to launch and where.
type Options struct {
	Resolve    resolve.Options
	ProjectDir string
}

// Result describes a launched, acknowledged server ready for client attach.
type Result struct {
	Host     string
	Port     int
	Settings resolve.Settings

	// Stop tears the server down: the subprocess for the handshake path,
	// the in-process server for the trampoline path.
	Stop func()
}

// Addr returns the attachable host:port.
func (r Result) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Seams for tests; the spawn path needs a built binary otherwise.
var (
	spawnServerFn    = spawnServer
	newCoordinatorFn = ack.New
	beginHandshakeFn = func(c *ack.Coordinator) (*ack.Token, error) { return c.Begin() }
	awaitHandshakeFn = (*ack.Coordinator).Await
)

// Launch runs the handshake path: begin the rendezvous, spawn the server
// with instructions to report to it, and block until the ack or the resolved
// timeout. On timeout the spawned process is stopped best-effort and the
// distinct timeout error is returned; a failed launch never touches the
// port record, which only the successfully bound server writes.
func Launch(opts Options) (Result, error) {
	settings, err := resolve.Resolve(opts.Resolve, opts.ProjectDir)
	if err != nil {
		return Result{}, err
	}

	factory, err := transport.Lookup(settings.Transport)
	if err != nil {
		return Result{}, err
	}

	coord := newCoordinatorFn(factory)
	tok, err := beginHandshakeFn(coord)
	if err != nil {
		return Result{}, err
	}

	cfg := server.Config{
		Host:       settings.Host,
		Port:       settings.Port,
		Transport:  settings.Transport,
		Greeting:   settings.Greeting,
		Middleware: settings.Middleware,
		InitScript: settings.InitScript,
		AckAddr:    tok.Addr,
		ProjectDir: opts.ProjectDir,
	}

	exitCh, stop, err := spawnServerFn(cfg)
	if err != nil {
		tok.Close()
		return Result{}, fmt.Errorf("starting server: %w", err)
	}
	tok.ObserveProcess(exitCh)

	port, err := awaitHandshakeFn(coord, tok, settings.Timeout)
	if err != nil {
		stop()
		if errors.Is(err, ack.ErrHandshakeTimeout) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("waiting for server: %w", err)
	}

	return Result{Host: settings.Host, Port: port, Settings: settings, Stop: stop}, nil
}

// Trampoline runs server and client setup as one foreground sequence: the
// server binds synchronously in this process, so its port is known without
// any rendezvous and the ack coordinator is never involved.
func Trampoline(opts Options) (Result, error) {
	settings, err := resolve.Resolve(opts.Resolve, opts.ProjectDir)
	if err != nil {
		return Result{}, err
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
		return Result{}, err
	}

	return Result{Host: settings.Host, Port: srv.Port(), Settings: settings, Stop: srv.Close}, nil
}
