package server

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	lua "github.com/Shopify/go-lua"
	"github.com/google/uuid"
)

// Engine owns the evaluation sessions. Each session carries its own Lua
// state; access to a session is serialized with a per-session mutex.
type Engine struct {
	initScript string

	mu       sync.Mutex
	sessions map[string]*Session
	def      *Session
}

// NewEngine creates the engine and its default session. A configured init
// script that cannot be read is advisory: the server warns and proceeds.
func NewEngine(initScript string) *Engine {
	e := &Engine{
		initScript: initScript,
		sessions:   make(map[string]*Session),
	}
	if initScript != "" {
		if _, err := os.Stat(initScript); err != nil {
			fmt.Fprintf(os.Stderr, "replkit server: warning: init script %s not available; continuing without it\n", initScript)
			e.initScript = ""
		}
	}
	e.def = e.newSessionLocked("default")
	return e
}

// NewSession creates a fresh session and returns its id.
func (e *Engine) NewSession() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := uuid.NewString()
	e.newSessionLocked(id)
	return id
}

func (e *Engine) newSessionLocked(id string) *Session {
	s := &Session{id: id, l: lua.NewState()}
	lua.OpenLibraries(s.l)
	s.bindPrint()
	if e.initScript != "" {
		if err := lua.DoFile(s.l, e.initScript); err != nil {
			fmt.Fprintf(os.Stderr, "replkit server: warning: init script failed in session %s: %v\n", id, err)
		}
	}
	e.sessions[id] = s
	return s
}

// Session returns the session for an id, or the default session when id is
// empty. Unknown ids return nil.
func (e *Engine) Session(id string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id == "" {
		return e.def
	}
	return e.sessions[id]
}

// CloseSession discards a session's state. The default session cannot be
// closed.
func (e *Engine) CloseSession(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id == "" || id == e.def.id {
		return false
	}
	if _, ok := e.sessions[id]; !ok {
		return false
	}
	delete(e.sessions, id)
	return true
}

// SessionIDs lists the live session ids, sorted.
func (e *Engine) SessionIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Session is one evaluation context backed by a Lua state.
type Session struct {
	id string

	mu   sync.Mutex
	l    *lua.State
	sink func(string)
}

// bindPrint rebinds the global print to the session's current output sink so
// evaluated code's output streams back to the attached client.
func (s *Session) bindPrint() {
	s.l.PushGoFunction(func(l *lua.State) int {
		parts := make([]string, 0, l.Top())
		for i := 1; i <= l.Top(); i++ {
			parts = append(parts, formatValue(l, i))
		}
		if s.sink != nil {
			s.sink(strings.Join(parts, "\t") + "\n")
		}
		return 0
	})
	s.l.SetGlobal("print")
}

// Eval runs code in the session, streaming print output through emit and
// returning the rendered result values.
func (s *Session) Eval(code string, emit func(string)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sink = emit
	defer func() { s.sink = nil }()

	base := s.l.Top()
	// Expressions evaluate REPL-style: try "return <code>" first so bare
	// expressions yield values, fall back to the raw chunk for statements.
	if err := lua.LoadString(s.l, "return "+code); err != nil {
		s.l.SetTop(base)
		if err := lua.LoadString(s.l, code); err != nil {
			s.l.SetTop(base)
			return "", fmt.Errorf("%v", err)
		}
	}
	if err := s.l.ProtectedCall(0, lua.MultipleReturns, 0); err != nil {
		s.l.SetTop(base)
		return "", fmt.Errorf("%v", err)
	}

	results := make([]string, 0, s.l.Top()-base)
	for i := base + 1; i <= s.l.Top(); i++ {
		results = append(results, formatValue(s.l, i))
	}
	s.l.SetTop(base)

	if len(results) == 0 {
		return "nil", nil
	}
	return strings.Join(results, "\t"), nil
}

// Complete returns the global names starting with prefix, one per line.
// The scan runs inside the session's own Lua state.
func (s *Session) Complete(prefix string) ([]string, error) {
	snippet := fmt.Sprintf(`
local matches = {}
for name in pairs(_G) do
  if string.sub(name, 1, %d) == %q then
    matches[#matches + 1] = name
  end
end
table.sort(matches)
return table.concat(matches, "\n")
`, len(prefix), prefix)

	joined, err := s.Eval(snippet, nil)
	if err != nil {
		return nil, err
	}
	if joined == "" || joined == "nil" {
		return nil, nil
	}
	return strings.Split(joined, "\n"), nil
}

func formatValue(l *lua.State, index int) string {
	switch l.TypeOf(index) {
	case lua.TypeNil:
		return "nil"
	case lua.TypeBoolean:
		if l.ToBoolean(index) {
			return "true"
		}
		return "false"
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', 14, 64)
	default:
		return lua.TypeNameOf(l, index)
	}
}
