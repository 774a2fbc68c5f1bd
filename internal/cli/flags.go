package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/replkit/replkit/internal/resolve"
)

type launchFlags struct {
	opts       resolve.Options
	projectDir string
	headless   bool
	trampoline bool
	verbose    bool
	help       bool
}

func parseLaunchFlags(args []string) (*launchFlags, error) {
	parsed := &launchFlags{projectDir: "."}

	for i := 0; i < len(args); i++ {
		flag, value, hasValue := splitFlag(args[i])

		needValue := func() (string, error) {
			if hasValue {
				return value, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("missing value for %s", flag)
			}
			i++
			return args[i], nil
		}

		switch flag {
		case "-h", "--help":
			parsed.help = true
		case "-v", "--verbose":
			parsed.verbose = true
		case "--headless":
			parsed.headless = true
		case "--trampoline":
			parsed.trampoline = true
		case "--host":
			v, err := needValue()
			if err != nil {
				return nil, err
			}
			parsed.opts.Host = v
		case "--port":
			v, err := needValue()
			if err != nil {
				return nil, err
			}
			port, err := strconv.Atoi(v)
			if err != nil || port < 0 || port > 65535 {
				return nil, fmt.Errorf("invalid port %q", v)
			}
			parsed.opts.Port = &port
		case "--transport":
			v, err := needValue()
			if err != nil {
				return nil, err
			}
			parsed.opts.Transport = v
		case "--greeting":
			v, err := needValue()
			if err != nil {
				return nil, err
			}
			parsed.opts.Greeting = v
		case "--middleware":
			v, err := needValue()
			if err != nil {
				return nil, err
			}
			parsed.opts.Middleware = append(parsed.opts.Middleware, v)
		case "--timeout":
			v, err := needValue()
			if err != nil {
				return nil, err
			}
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return nil, fmt.Errorf("invalid timeout %q", v)
			}
			parsed.opts.Timeout = d
		case "--init-script":
			v, err := needValue()
			if err != nil {
				return nil, err
			}
			parsed.opts.InitScript = v
		case "--project-dir":
			v, err := needValue()
			if err != nil {
				return nil, err
			}
			parsed.projectDir = v
		default:
			return nil, fmt.Errorf("unknown flag %s", args[i])
		}
	}

	if parsed.headless && parsed.trampoline {
		return nil, fmt.Errorf("--headless and --trampoline are mutually exclusive")
	}
	return parsed, nil
}

func splitFlag(arg string) (flag, value string, hasValue bool) {
	if !strings.HasPrefix(arg, "-") {
		return arg, "", false
	}
	if idx := strings.Index(arg, "="); idx >= 0 {
		return arg[:idx], arg[idx+1:], true
	}
	return arg, "", false
}
