package handler

import (
	"context"
	"strings"
	"testing"

	"github.com/replkit/replkit/internal/transport"
)

func tagging(name string, log *[]string, provides, requires, expects []string) Middleware {
	return Middleware{
		Name:     name,
		Provides: provides,
		Requires: requires,
		Expects:  expects,
		Wrap: func(next Handler) Handler {
			return func(ctx context.Context, req transport.Message, respond func(transport.Message) error) error {
				*log = append(*log, name)
				return next(ctx, req, respond)
			}
		},
	}
}

func run(t *testing.T, h Handler) {
	t.Helper()
	err := h(context.Background(), transport.Message{"op": "noop"}, func(transport.Message) error { return nil })
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
}

func TestBuildPrependsInitMiddleware(t *testing.T) {
	var log []string
	init := tagging("session-init", &log, []string{"session"}, nil, nil)
	eval := tagging("eval", &log, []string{"eval"}, []string{"session"}, nil)

	h, err := Build(init, []Middleware{eval}, nil, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	run(t, h)
	if len(log) != 2 || log[0] != "session-init" || log[1] != "eval" {
		t.Fatalf("execution order = %v, want [session-init eval]", log)
	}
}

func TestBuildReordersDeclaredMiddlewareByDependencies(t *testing.T) {
	var log []string
	init := tagging("session-init", &log, []string{"session"}, nil, nil)
	completion := tagging("completion", &log, []string{"completion"}, []string{"eval"}, nil)
	eval := tagging("eval", &log, []string{"eval"}, []string{"session"}, nil)

	// completion declared before its eval dependency; Build must reorder.
	h, err := Build(init, []Middleware{completion, eval}, nil, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	run(t, h)
	want := []string{"session-init", "eval", "completion"}
	if strings.Join(log, ",") != strings.Join(want, ",") {
		t.Fatalf("execution order = %v, want %v", log, want)
	}
}

func TestBuildRejectsExplicitHandlerPlusMiddlewareList(t *testing.T) {
	var log []string
	init := tagging("session-init", &log, []string{"session"}, nil, nil)
	eval := tagging("eval", &log, []string{"eval"}, []string{"session"}, nil)
	explicit := func(ctx context.Context, req transport.Message, respond func(transport.Message) error) error {
		return nil
	}

	_, err := Build(init, []Middleware{eval}, explicit, nil)
	if err == nil {
		t.Fatal("Build() = nil, want error for explicit handler plus middleware list")
	}
}

func TestBuildExplicitHandlerAloneIsUsedDirectly(t *testing.T) {
	var log []string
	init := tagging("session-init", &log, []string{"session"}, nil, nil)
	called := false
	explicit := func(ctx context.Context, req transport.Message, respond func(transport.Message) error) error {
		called = true
		return nil
	}

	h, err := Build(init, nil, explicit, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	run(t, h)
	if !called {
		t.Fatal("explicit handler was not invoked")
	}
}

func TestBuildMissingCapabilityIsConstructionError(t *testing.T) {
	var log []string
	init := tagging("session-init", &log, []string{"session"}, nil, nil)
	needy := tagging("needy", &log, nil, []string{"nonexistent"}, nil)

	_, err := Build(init, []Middleware{needy}, nil, nil)
	if err == nil {
		t.Fatal("Build() = nil, want missing-capability error")
	}
	if !strings.Contains(err.Error(), "nonexistent") {
		t.Fatalf("Build() error = %v, want capability name", err)
	}
}

func TestBuildCycleIsConstructionError(t *testing.T) {
	var log []string
	init := tagging("session-init", &log, []string{"session"}, nil, nil)
	a := tagging("a", &log, []string{"cap-a"}, []string{"cap-b"}, nil)
	b := tagging("b", &log, []string{"cap-b"}, []string{"cap-a"}, nil)

	_, err := Build(init, []Middleware{a, b}, nil, nil)
	if err == nil {
		t.Fatal("Build() = nil, want cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("Build() error = %v, want cycle error", err)
	}
}

func TestBuildExpectsSatisfiedBySelf(t *testing.T) {
	var log []string
	init := tagging("session-init", &log, []string{"session"}, nil, nil)
	self := tagging("self", &log, []string{"eval"}, nil, []string{"eval"})

	if _, err := Build(init, []Middleware{self}, nil, nil); err != nil {
		t.Fatalf("Build() error = %v, want self-satisfied expects to pass", err)
	}
}
