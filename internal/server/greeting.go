package server

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Greeting writes a banner to a freshly attached client.
type Greeting func(w io.Writer, host string, port int)

var (
	greetingMu       sync.RWMutex
	greetingRegistry = map[string]Greeting{
		"default": func(w io.Writer, host string, port int) {
			fmt.Fprintf(w, "replkit server on %s:%d\nLua session ready; :quit to exit\n", host, port)
		},
		"none": func(io.Writer, string, int) {},
	}
)

// RegisterGreeting adds a named greeting function to the registry.
func RegisterGreeting(name string, g Greeting) {
	greetingMu.Lock()
	defer greetingMu.Unlock()
	greetingRegistry[name] = g
}

// LookupGreeting resolves a greeting identifier, returning an explicit error
// for unknown names.
func LookupGreeting(name string) (Greeting, error) {
	greetingMu.RLock()
	defer greetingMu.RUnlock()
	g, ok := greetingRegistry[name]
	if !ok {
		names := make([]string, 0, len(greetingRegistry))
		for n := range greetingRegistry {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("greeting %q is not registered (available: %v)", name, names)
	}
	return g, nil
}
