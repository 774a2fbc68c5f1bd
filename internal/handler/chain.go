package handler

import (
	"context"
	"fmt"
	"sort"

	"github.com/replkit/replkit/internal/transport"
)

// Build produces the final handler from the always-present init middleware,
// the declared middleware list, and an optional explicit full handler.
// Exactly one of explicit and declared may be supplied. The init middleware
// is always prepended so later middleware observes the contextual state it
// establishes; terminal handles whatever falls through the chain.
func Build(init Middleware, declared []Middleware, explicit, terminal Handler) (Handler, error) {
	if explicit != nil && len(declared) > 0 {
		return nil, fmt.Errorf("cannot supply both an explicit handler and a middleware list")
	}
	if explicit != nil {
		return explicit, nil
	}

	ordered, err := order(declared)
	if err != nil {
		return nil, err
	}
	chain := append([]Middleware{init}, ordered...)
	if err := validate(chain); err != nil {
		return nil, err
	}

	h := terminal
	if h == nil {
		h = unknownOpHandler
	}
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i].Wrap(h)
	}
	return h, nil
}

// order topologically sorts the declared middleware by their capability
// dependencies, keeping declaration order among unconstrained entries.
func order(declared []Middleware) ([]Middleware, error) {
	providers := make(map[string][]int)
	for i, mw := range declared {
		for _, capability := range mw.Provides {
			providers[capability] = append(providers[capability], i)
		}
	}

	deps := make([][]int, len(declared))
	for i, mw := range declared {
		needed := make(map[string]bool)
		for _, capability := range mw.Requires {
			needed[capability] = true
		}
		for _, capability := range mw.Expects {
			if !mw.selfProvides(capability) {
				needed[capability] = true
			}
		}
		for capability := range needed {
			deps[i] = append(deps[i], providers[capability]...)
		}
		sort.Ints(deps[i])
	}

	placed := make([]bool, len(declared))
	ordered := make([]Middleware, 0, len(declared))
	for len(ordered) < len(declared) {
		progressed := false
		for i, mw := range declared {
			if placed[i] {
				continue
			}
			ready := true
			for _, dep := range deps[i] {
				if dep != i && !placed[dep] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			placed[i] = true
			ordered = append(ordered, mw)
			progressed = true
		}
		if !progressed {
			var stuck []string
			for i, mw := range declared {
				if !placed[i] {
					stuck = append(stuck, mw.Name)
				}
			}
			return nil, fmt.Errorf("middleware dependency cycle involving %v", stuck)
		}
	}
	return ordered, nil
}

// validate checks that every dependency is satisfied in the final order.
// The init middleware participates as a provider like any other.
func validate(chain []Middleware) error {
	provided := make(map[string]bool)
	for _, mw := range chain {
		for _, capability := range mw.Requires {
			if !provided[capability] {
				return fmt.Errorf("middleware %q requires capability %q, which nothing earlier in the chain provides", mw.Name, capability)
			}
		}
		for _, capability := range mw.Expects {
			if !provided[capability] && !mw.selfProvides(capability) {
				return fmt.Errorf("middleware %q expects capability %q, which is not provided", mw.Name, capability)
			}
		}
		for _, capability := range mw.Provides {
			provided[capability] = true
		}
	}
	return nil
}

func unknownOpHandler(_ context.Context, req transport.Message, respond func(transport.Message) error) error {
	op, _ := transport.AsString(req["op"])
	return respond(transport.Message{
		"id":     req["id"],
		"status": []string{"error", "unknown-op", "done"},
		"err":    fmt.Sprintf("unknown op %q", op),
	})
}
