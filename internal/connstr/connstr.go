// Package connstr resolves user-supplied connection targets into a canonical
// host:port string. Accepted shapes: a full http/https URI (passed through),
// "host:port", a bare port, and "@file" indirection whose contents are
// resolved as if typed directly.
package connstr

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var portSuffixRe = regexp.MustCompile(`:\d+(/.*)?$`)

// Resolve parses raw into a canonical "host:port" (or an unchanged URI).
// A bare port gets defaultHost; a target without a port is an error rather
// than a silent default.
func Resolve(raw, defaultHost string) (string, error) {
	return ResolveWith(raw, defaultHost, os.ReadFile)
}

// ResolveWith is Resolve with an injectable file reader for the "@file"
// indirection form.
func ResolveWith(raw, defaultHost string, readFile func(string) ([]byte, error)) (string, error) {
	// One level of indirection per pass; a file whose contents are another
	// "@file" reference resolves the same way.
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		data, err := readFile(path)
		if err != nil {
			return "", fmt.Errorf("reading connection file %s: %w", path, err)
		}
		return ResolveWith(strings.TrimSpace(string(data)), defaultHost, readFile)
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw, nil
	}

	resolved := raw
	// Segments match right-to-left against [host, port].
	if !strings.Contains(raw, ":") {
		resolved = defaultHost + ":" + raw
	}

	if !portSuffixRe.MatchString(resolved) {
		return "", fmt.Errorf("port is required in connection target %q", raw)
	}
	return resolved, nil
}
