package server

import (
	"context"
	"fmt"
	"sort"

	"github.com/replkit/replkit/internal/handler"
	"github.com/replkit/replkit/internal/transport"
)

type sessionCtxKey struct{}

func sessionFrom(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionCtxKey{}).(*Session)
	return s
}

// DefaultMiddleware is the chain used when neither the caller nor any config
// layer declares one.
var DefaultMiddleware = []string{"eval", "describe"}

// initMiddleware is the context-initialization wrapper that always heads the
// chain: it owns the session ops and attaches the resolved session so every
// later middleware observes it.
func (e *Engine) initMiddleware() handler.Middleware {
	return handler.Middleware{
		Name:     "session",
		Provides: []string{"session"},
		Wrap: func(next handler.Handler) handler.Handler {
			return func(ctx context.Context, req transport.Message, respond func(transport.Message) error) error {
				op, _ := transport.AsString(req["op"])
				switch op {
				case "clone":
					return respond(transport.Message{
						"id":          req["id"],
						"new-session": e.NewSession(),
						"status":      []string{"done"},
					})
				case "close":
					id, _ := transport.AsString(req["session"])
					status := []string{"session-closed", "done"}
					if !e.CloseSession(id) {
						status = []string{"error", "unknown-session", "done"}
					}
					return respond(transport.Message{"id": req["id"], "status": status})
				case "ls-sessions":
					return respond(transport.Message{
						"id":       req["id"],
						"sessions": e.SessionIDs(),
						"status":   []string{"done"},
					})
				}

				id, _ := transport.AsString(req["session"])
				sess := e.Session(id)
				if sess == nil {
					return respond(transport.Message{
						"id":     req["id"],
						"status": []string{"error", "unknown-session", "done"},
						"err":    fmt.Sprintf("unknown session %q", id),
					})
				}
				return next(context.WithValue(ctx, sessionCtxKey{}, sess), req, respond)
			}
		},
	}
}

func (e *Engine) evalMiddleware() handler.Middleware {
	return handler.Middleware{
		Name:     "eval",
		Provides: []string{"eval"},
		Requires: []string{"session"},
		Wrap: func(next handler.Handler) handler.Handler {
			return func(ctx context.Context, req transport.Message, respond func(transport.Message) error) error {
				op, _ := transport.AsString(req["op"])
				if op != "eval" {
					return next(ctx, req, respond)
				}

				code, _ := transport.AsString(req["code"])
				sess := sessionFrom(ctx)

				var emitErr error
				value, err := sess.Eval(code, func(out string) {
					if emitErr == nil {
						emitErr = respond(transport.Message{"id": req["id"], "session": sess.id, "out": out})
					}
				})
				if emitErr != nil {
					return emitErr
				}
				if err != nil {
					return respond(transport.Message{
						"id":      req["id"],
						"session": sess.id,
						"err":     err.Error(),
						"status":  []string{"eval-error", "done"},
					})
				}
				return respond(transport.Message{
					"id":      req["id"],
					"session": sess.id,
					"value":   value,
					"status":  []string{"done"},
				})
			}
		},
	}
}

func (e *Engine) describeMiddleware() handler.Middleware {
	return handler.Middleware{
		Name:     "describe",
		Provides: []string{"describe"},
		Wrap: func(next handler.Handler) handler.Handler {
			return func(ctx context.Context, req transport.Message, respond func(transport.Message) error) error {
				op, _ := transport.AsString(req["op"])
				if op != "describe" {
					return next(ctx, req, respond)
				}
				return respond(transport.Message{
					"id":     req["id"],
					"ops":    []string{"clone", "close", "complete", "describe", "eval", "ls-sessions"},
					"status": []string{"done"},
				})
			}
		},
	}
}

func (e *Engine) completionMiddleware() handler.Middleware {
	return handler.Middleware{
		Name:     "completion",
		Provides: []string{"completion"},
		Requires: []string{"session"},
		Wrap: func(next handler.Handler) handler.Handler {
			return func(ctx context.Context, req transport.Message, respond func(transport.Message) error) error {
				op, _ := transport.AsString(req["op"])
				if op != "complete" {
					return next(ctx, req, respond)
				}

				prefix, _ := transport.AsString(req["prefix"])
				sess := sessionFrom(ctx)
				matches, err := sess.Complete(prefix)
				if err != nil {
					return respond(transport.Message{
						"id":     req["id"],
						"err":    err.Error(),
						"status": []string{"error", "done"},
					})
				}
				return respond(transport.Message{
					"id":          req["id"],
					"completions": matches,
					"status":      []string{"done"},
				})
			}
		},
	}
}

// LookupMiddleware resolves declared middleware names against the built-in
// registry for this engine. "interruptible-eval" is kept as an alias of
// "eval" for older client configs.
func (e *Engine) LookupMiddleware(names []string) ([]handler.Middleware, error) {
	builtin := map[string]func() handler.Middleware{
		"eval":               e.evalMiddleware,
		"interruptible-eval": e.evalMiddleware,
		"describe":           e.describeMiddleware,
		"completion":         e.completionMiddleware,
	}

	mws := make([]handler.Middleware, 0, len(names))
	for _, name := range names {
		factory, ok := builtin[name]
		if !ok {
			known := make([]string, 0, len(builtin))
			for n := range builtin {
				known = append(known, n)
			}
			sort.Strings(known)
			return nil, fmt.Errorf("middleware %q is not registered (available: %v)", name, known)
		}
		mws = append(mws, factory())
	}
	return mws, nil
}
