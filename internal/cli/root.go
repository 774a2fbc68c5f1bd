// Package cli is the replkit command surface: launch (handshake, headless,
// or trampoline), connect to a running server, and the MCP bridge.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/replkit/replkit/internal/client"
	"github.com/replkit/replkit/internal/connstr"
	"github.com/replkit/replkit/internal/launch"
	"github.com/replkit/replkit/internal/mcpbridge"
	"github.com/replkit/replkit/internal/resolve"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitUsageErr = 2
	ExitInternal = 3
)

const version = "0.1.0"

// Seams for tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	launchFn     = launch.Launch
	trampolineFn = launch.Trampoline
	headlessFn   = launch.Headless
	attachFn     = client.Attach
	mcpServeFn   = mcpbridge.Serve
)

// Run is the main CLI entry point. Returns an exit code.
func Run(args []string) int {
	if len(args) == 0 {
		return runLaunch(nil)
	}

	switch args[0] {
	case "launch":
		return runLaunch(args[1:])
	case "connect":
		return runConnect(args[1:])
	case "mcp":
		return runMCP(args[1:])
	case "help", "-h", "--help":
		printUsage(stdout)
		return ExitOK
	case "version", "--version":
		fmt.Fprintln(stdout, "replkit "+version)
		return ExitOK
	}

	if strings.HasPrefix(args[0], "-") {
		return runLaunch(args)
	}

	fmt.Fprintf(stderr, "replkit: unknown command %q\n", args[0])
	printUsage(stderr)
	return ExitUsageErr
}

func runLaunch(args []string) int {
	flags, err := parseLaunchFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "replkit: %v\n", err)
		return ExitUsageErr
	}
	if flags.help {
		printUsage(stdout)
		return ExitOK
	}

	opts := launch.Options{Resolve: flags.opts, ProjectDir: flags.projectDir}

	if flags.headless {
		if err := headlessFn(opts); err != nil {
			fmt.Fprintf(stderr, "replkit: %v\n", err)
			return ExitInternal
		}
		return ExitOK
	}

	if flags.trampoline || trampolineEnv() {
		res, err := trampolineFn(opts)
		if err != nil {
			fmt.Fprintf(stderr, "replkit: %v\n", err)
			return ExitInternal
		}
		defer res.Stop()
		if flags.verbose {
			describeSettings(stderr, res.Settings)
		}
		return attach(res.Addr(), res.Settings)
	}

	res, err := launchFn(opts)
	if err != nil {
		fmt.Fprintf(stderr, "replkit: %v\n", err)
		return ExitInternal
	}
	defer res.Stop()

	if flags.verbose {
		describeSettings(stderr, res.Settings)
	}
	return attach(res.Addr(), res.Settings)
}

func runConnect(args []string) int {
	var target string
	var rest []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") && target == "" {
			target = arg
			continue
		}
		rest = append(rest, arg)
	}
	if target == "" {
		fmt.Fprintln(stderr, "replkit: connect requires a target (host:port, port, URI, or @file)")
		return ExitUsageErr
	}

	flags, err := parseLaunchFlags(rest)
	if err != nil {
		fmt.Fprintf(stderr, "replkit: %v\n", err)
		return ExitUsageErr
	}

	settings, err := resolve.Resolve(flags.opts, flags.projectDir)
	if err != nil {
		fmt.Fprintf(stderr, "replkit: %v\n", err)
		return ExitUsageErr
	}

	addr, err := connstr.Resolve(target, settings.Host)
	if err != nil {
		fmt.Fprintf(stderr, "replkit: %v\n", err)
		return ExitUsageErr
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		fmt.Fprintf(stderr, "replkit: the interactive client cannot attach to HTTP targets (%s)\n", addr)
		return ExitUsageErr
	}

	return attach(addr, settings)
}

func runMCP(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "replkit: mcp requires a target (host:port, port, or @file)")
		return ExitUsageErr
	}
	target := args[0]

	flags, err := parseLaunchFlags(args[1:])
	if err != nil {
		fmt.Fprintf(stderr, "replkit: %v\n", err)
		return ExitUsageErr
	}

	settings, err := resolve.Resolve(flags.opts, flags.projectDir)
	if err != nil {
		fmt.Fprintf(stderr, "replkit: %v\n", err)
		return ExitUsageErr
	}

	addr, err := connstr.Resolve(target, settings.Host)
	if err != nil {
		fmt.Fprintf(stderr, "replkit: %v\n", err)
		return ExitUsageErr
	}

	if err := mcpServeFn(addr, settings.Transport); err != nil {
		fmt.Fprintf(stderr, "replkit: %v\n", err)
		return ExitInternal
	}
	return ExitOK
}

func attach(addr string, settings resolve.Settings) int {
	err := attachFn(addr, client.Options{Transport: settings.Transport})
	if err != nil {
		fmt.Fprintf(stderr, "replkit: %v\n", err)
		return ExitInternal
	}
	return ExitOK
}

func trampolineEnv() bool {
	switch os.Getenv("REPLKIT_TRAMPOLINE") {
	case "1", "true", "yes":
		return true
	}
	return false
}

func describeSettings(w io.Writer, s resolve.Settings) {
	for _, key := range []string{"host", "port", "transport", "greeting", "timeout", "middleware"} {
		fmt.Fprintf(w, "replkit: %s resolved from %s\n", key, s.Source(key))
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: replkit [command] [flags]

Commands:
  launch        Start an evaluation server and attach a client (default)
  connect       Attach to a running server (host:port, port, URI, or @file)
  mcp           Bridge a running server to MCP clients over stdio
  version       Print the version

Launch flags:
  --host HOST           Bind/attach host (default 127.0.0.1)
  --port PORT           Requested port; 0 lets the OS choose (default 0)
  --transport NAME      Wire codec: bencode or json (default bencode)
  --greeting NAME       Greeting shown to attaching clients
  --middleware NAME     Declare a middleware (repeatable)
  --timeout DURATION    Handshake timeout (default 60s)
  --init-script PATH    Lua file evaluated in every new session
  --project-dir DIR     Project root for config and port record (default .)
  --headless            Run the server in the foreground, no client
  --trampoline          Run server and client in this process, no handshake
  -v, --verbose         Explain where each setting was resolved from
`)
}
