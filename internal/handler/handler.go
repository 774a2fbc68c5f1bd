// Package handler assembles the server's middleware chain. Middleware
// declare the capabilities they provide and the ones they depend on; the
// builder orders the chain so every dependency is satisfied and rejects
// cycles and missing capabilities before the server ever starts.
package handler

import (
	"context"

	"github.com/replkit/replkit/internal/transport"
)

// Handler processes one request message. Responses are pushed through
// respond, so a single request may produce several messages before the
// handler returns.
type Handler func(ctx context.Context, req transport.Message, respond func(transport.Message) error) error

// Middleware wraps a handler and declares its place in the capability graph.
// Requires entries must be provided by middleware strictly earlier in the
// chain; Expects entries may also be satisfied by the middleware itself.
type Middleware struct {
	Name     string
	Provides []string
	Requires []string
	Expects  []string
	Wrap     func(Handler) Handler
}

func (m Middleware) selfProvides(capability string) bool {
	for _, p := range m.Provides {
		if p == capability {
			return true
		}
	}
	return false
}
