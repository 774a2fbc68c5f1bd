// Package ack implements the one-shot rendezvous that lets a freshly bound
// server report its real listening port back to the launcher. The launcher
// opens a short-lived listener, hands its address to the server, and blocks
// until the single handshake message arrives or the timeout expires.
package ack

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/replkit/replkit/internal/transport"
)

var (
	// ErrHandshakeTimeout is returned when no ack arrives within the bound.
	ErrHandshakeTimeout = errors.New("server launch timed out")

	// ErrHandshakeInFlight is returned by Begin while a token is outstanding.
	ErrHandshakeInFlight = errors.New("handshake already in flight")

	errTokenConsumed = errors.New("ack token already consumed")
)

// Coordinator owns the single-flight handshake state for a launcher.
//
// It is non-reentrant by contract: at most one handshake may be pending at a
// time, and overlapping Begin calls fail with ErrHandshakeInFlight rather
// than risk delivering one server's port to another launch's waiter.
// Callers running multiple launches must serialize them.
type Coordinator struct {
	factory transport.Factory

	mu       sync.Mutex
	inFlight bool
}

// New creates a Coordinator that decodes handshake messages with the given
// transport codec (the same codec negotiated for the main server).
func New(factory transport.Factory) *Coordinator {
	return &Coordinator{factory: factory}
}

// Token is a single-use rendezvous record. It is created by Begin, consumed
// exactly once by Await (or released by Close), and never reused.
type Token struct {
	Addr string

	coord    *Coordinator
	listener net.Listener
	portCh   chan int
	errCh    chan error
	exitCh   <-chan error

	mu       sync.Mutex
	consumed bool
}

// Begin opens the short-lived ack listener on a loopback ephemeral port and
// returns the token the server must be told to report to.
func (c *Coordinator) Begin() (*Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return nil, ErrHandshakeInFlight
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("binding ack listener: %w", err)
	}

	tok := &Token{
		Addr:     ln.Addr().String(),
		coord:    c,
		listener: ln,
		portCh:   make(chan int, 1),
		errCh:    make(chan error, 1),
	}
	c.inFlight = true

	go tok.acceptOne(c.factory)
	return tok, nil
}

// ObserveProcess attaches a supervisory channel carrying the spawned server's
// exit. An exit observed before the ack shortens the wait; the Await timeout
// stays the outer bound either way.
func (t *Token) ObserveProcess(exitCh <-chan error) {
	t.exitCh = exitCh
}

// Await blocks until the handshake message arrives, the observed process
// exits, or the timeout expires. On success it returns the port the server
// reported, which may differ from the port the launch requested. The ack
// listener is torn down in every case and the token cannot be awaited again.
func (c *Coordinator) Await(tok *Token, timeout time.Duration) (int, error) {
	if tok == nil || tok.coord != c {
		return 0, errors.New("ack token does not belong to this coordinator")
	}

	tok.mu.Lock()
	if tok.consumed {
		tok.mu.Unlock()
		return 0, errTokenConsumed
	}
	tok.consumed = true
	tok.mu.Unlock()

	defer func() {
		tok.listener.Close()
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case port := <-tok.portCh:
		return port, nil
	case err := <-tok.errCh:
		return 0, fmt.Errorf("handshake failed: %w", err)
	case err := <-tok.exitCh:
		if err == nil {
			err = errors.New("process exited cleanly")
		}
		return 0, fmt.Errorf("server exited before handshake: %w", err)
	case <-timer.C:
		return 0, ErrHandshakeTimeout
	}
}

// Close releases an unconsumed token without waiting, for launches that fail
// between Begin and Await. Closing a consumed token is a no-op.
func (t *Token) Close() {
	t.mu.Lock()
	if t.consumed {
		t.mu.Unlock()
		return
	}
	t.consumed = true
	t.mu.Unlock()

	t.listener.Close()
	t.coord.mu.Lock()
	t.coord.inFlight = false
	t.coord.mu.Unlock()
}

// acceptOne takes the single expected connection, decodes the handshake
// message, and delivers the reported port. Both channels are buffered so a
// late delivery after timeout never blocks this goroutine.
func (t *Token) acceptOne(factory transport.Factory) {
	conn, err := t.listener.Accept()
	if err != nil {
		t.errCh <- err
		return
	}
	defer conn.Close()

	codec := factory(conn)
	msg, err := codec.Decode()
	if err != nil {
		t.errCh <- fmt.Errorf("reading handshake message: %w", err)
		return
	}

	port, ok := transport.AsInt(msg["port"])
	if !ok {
		t.errCh <- fmt.Errorf("handshake message missing port: %v", msg)
		return
	}
	t.portCh <- port
}

// Notify is the server-side half of the rendezvous: dial the ack address and
// send the one handshake message carrying the bound port.
func Notify(addr string, port int, factory transport.Factory) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing ack listener %s: %w", addr, err)
	}
	defer conn.Close()

	codec := factory(conn)
	if err := codec.Encode(transport.Message{"port": port}); err != nil {
		return fmt.Errorf("sending handshake: %w", err)
	}
	return nil
}
