// Package transport provides the wire codecs used between launcher, server,
// and client. Codecs are looked up by name in a registry populated at process
// start; an unknown name is an explicit error, never a reflective lookup.
package transport

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Default is the transport used when no layer names one.
const Default = "bencode"

// Message is one framed request or response on the wire.
type Message = map[string]any

// Codec encodes and decodes framed messages over a single stream.
type Codec interface {
	Encode(msg Message) error
	Decode() (Message, error)
}

// Factory builds a Codec bound to a stream.
type Factory func(rw io.ReadWriter) Codec

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds a named codec factory. Later registrations replace earlier
// ones, which lets tests install instrumented codecs.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// Lookup returns the factory for a registered transport name.
func Lookup(name string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("transport %q is not registered (available: %v)", name, namesLocked())
	}
	return f, nil
}

// Names lists the registered transport names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
