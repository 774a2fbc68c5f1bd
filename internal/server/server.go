// Package server implements the interactive evaluation server: a TCP accept
// loop that frames requests with the configured transport codec and
// dispatches them through the middleware chain into per-session Lua states.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/replkit/replkit/internal/ack"
	"github.com/replkit/replkit/internal/handler"
	"github.com/replkit/replkit/internal/portfile"
	"github.com/replkit/replkit/internal/transport"
)

// Config describes one server start. It is plain data so a subprocess launch
// can carry it as a serialized payload.
type Config struct {
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	Transport  string   `json:"transport"`
	Greeting   string   `json:"greeting"`
	Middleware []string `json:"middleware,omitempty"`
	InitScript string   `json:"init_script,omitempty"`

	// AckAddr, when set, is the rendezvous listener the server reports its
	// bound port to once listening.
	AckAddr string `json:"ack_addr,omitempty"`

	// ProjectDir, when set, is where the port record is written after a
	// successful bind.
	ProjectDir string `json:"project_dir,omitempty"`

	// Handler overrides the middleware chain entirely. Never serialized;
	// only in-process starts can supply one.
	Handler handler.Handler `json:"-"`
}

// Server is a running evaluation server.
type Server struct {
	listener net.Listener
	handler  handler.Handler
	factory  transport.Factory
	greeting Greeting
	engine   *Engine

	host       string
	port       int
	projectDir string

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Serve binds the endpoint (port 0 = OS-assigned), sends the handshake when
// an ack address was supplied, persists the port record, and starts
// accepting connections in the background. The Port Record is only ever
// written after the bind succeeds.
func Serve(cfg Config) (*Server, error) {
	factory, err := transport.Lookup(cfg.Transport)
	if err != nil {
		return nil, err
	}

	var greeting Greeting
	if cfg.Greeting != "" {
		greeting, err = LookupGreeting(cfg.Greeting)
		if err != nil {
			return nil, err
		}
	}

	engine := NewEngine(cfg.InitScript)

	declared := cfg.Middleware
	if cfg.Handler == nil && len(declared) == 0 {
		declared = DefaultMiddleware
	}
	mws, err := engine.LookupMiddleware(declared)
	if err != nil {
		return nil, err
	}
	chain, err := handler.Build(engine.initMiddleware(), mws, cfg.Handler, nil)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("binding %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	s := &Server{
		listener:   ln,
		handler:    chain,
		factory:    factory,
		greeting:   greeting,
		engine:     engine,
		host:       cfg.Host,
		port:       port,
		projectDir: cfg.ProjectDir,
	}

	if cfg.AckAddr != "" {
		if err := ack.Notify(cfg.AckAddr, port, factory); err != nil {
			ln.Close()
			return nil, fmt.Errorf("reporting bound port: %w", err)
		}
	}

	if cfg.ProjectDir != "" {
		if err := portfile.Write(cfg.ProjectDir, port); err != nil {
			fmt.Fprintf(os.Stderr, "replkit server: warning: writing port record: %v\n", err)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return s, nil
}

// Port returns the bound port, which may differ from the requested one.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the bound address as host:port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting, waits for in-flight connections, and removes the
// port record best-effort.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.listener.Close()
		s.wg.Wait()
		if s.projectDir != "" {
			portfile.Remove(s.projectDir)
		}
	})
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	codec := s.factory(conn)

	// A configured greeting arrives as the first framed message so it never
	// corrupts the codec stream.
	if s.greeting != nil {
		var banner strings.Builder
		s.greeting(&banner, s.host, s.port)
		if banner.Len() > 0 {
			if err := codec.Encode(transport.Message{"out": banner.String(), "status": []string{"greeting"}}); err != nil {
				return
			}
		}
	}

	for {
		req, err := codec.Decode()
		if err != nil {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "replkit server: dropping connection: %v\n", err)
			}
			return
		}

		respond := func(msg transport.Message) error {
			return codec.Encode(msg)
		}
		if err := s.handler(context.Background(), req, respond); err != nil {
			fmt.Fprintf(os.Stderr, "replkit server: handler error: %v\n", err)
			return
		}
	}
}
