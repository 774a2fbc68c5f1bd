// Package resolve merges launch options from their layered sources. Per key
// the first present value wins, in order: explicit call-site option,
// environment variable, project config file, global config file, built-in
// default. Resolution is pure aside from reading the environment.
package resolve

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/replkit/replkit/internal/config"
	"github.com/replkit/replkit/internal/server"
	"github.com/replkit/replkit/internal/transport"
)

// Source layers, in precedence order.
const (
	LayerOption      = "option"
	LayerEnvironment = "environment"
	LayerProject     = "project config"
	LayerGlobal      = "global config"
	LayerDefault     = "default"
)

// DefaultLaunchTimeout bounds the handshake wait when no layer overrides it.
const DefaultLaunchTimeout = 60 * time.Second

// Options is the explicit, per-call layer. Zero values mean absent.
type Options struct {
	Host       string
	Port       *int
	Transport  string
	Greeting   string
	Timeout    time.Duration
	Middleware []string
	InitScript string
}

// Settings is the fully resolved launch configuration.
type Settings struct {
	Host       string
	Port       int
	Transport  string
	Greeting   string
	Timeout    time.Duration
	Middleware []string
	InitScript string

	sources map[string]string
}

// Source reports which layer supplied a key ("host", "port", "transport",
// "greeting", "timeout", "middleware", "init-script").
func (s Settings) Source(key string) string {
	if layer, ok := s.sources[key]; ok {
		return layer
	}
	return LayerDefault
}

type envOptions struct {
	Host       string        `env:"REPLKIT_HOST"`
	Port       *int          `env:"REPLKIT_PORT"`
	Transport  string        `env:"REPLKIT_TRANSPORT"`
	Greeting   string        `env:"REPLKIT_GREETING"`
	Timeout    time.Duration `env:"REPLKIT_LAUNCH_TIMEOUT"`
	Middleware []string      `env:"REPLKIT_MIDDLEWARE" envSeparator:","`
}

// Resolve merges all layers for a project directory. An explicitly named
// transport or greeting that is not registered is a configuration error
// naming both the identifier and the layer it came from.
func Resolve(opts Options, projectDir string) (Settings, error) {
	var envOpts envOptions
	if err := env.Parse(&envOpts); err != nil {
		return Settings{}, fmt.Errorf("parsing environment options: %w", err)
	}

	project, err := config.LoadProject(projectDir)
	if err != nil {
		return Settings{}, err
	}
	global, err := config.Load()
	if err != nil {
		return Settings{}, err
	}
	for _, cfg := range []*config.Config{project, global} {
		if verr := config.Validate(cfg); verr != nil {
			return Settings{}, fmt.Errorf("invalid config: %w", verr)
		}
	}

	s := Settings{sources: make(map[string]string)}

	s.Host, s.sources["host"] = firstString("127.0.0.1",
		layered{LayerOption, opts.Host},
		layered{LayerEnvironment, envOpts.Host},
		layered{LayerProject, project.Host},
		layered{LayerGlobal, global.Host})

	s.Port, s.sources["port"] = firstPort(opts.Port, envOpts.Port, project.Port, global.Port)

	s.Transport, s.sources["transport"] = firstString(transport.Default,
		layered{LayerOption, opts.Transport},
		layered{LayerEnvironment, envOpts.Transport},
		layered{LayerProject, project.Transport},
		layered{LayerGlobal, global.Transport})

	s.Greeting, s.sources["greeting"] = firstString("",
		layered{LayerOption, opts.Greeting},
		layered{LayerEnvironment, envOpts.Greeting},
		layered{LayerProject, project.Greeting},
		layered{LayerGlobal, global.Greeting})

	s.Timeout, s.sources["timeout"], err = firstTimeout(opts.Timeout, envOpts.Timeout, project.LaunchTimeout, global.LaunchTimeout)
	if err != nil {
		return Settings{}, err
	}

	s.Middleware, s.sources["middleware"] = firstList(
		listLayered{LayerOption, opts.Middleware},
		listLayered{LayerEnvironment, envOpts.Middleware},
		listLayered{LayerProject, project.DefaultMiddleware},
		listLayered{LayerGlobal, global.DefaultMiddleware})

	s.InitScript, s.sources["init-script"] = firstString("",
		layered{LayerOption, opts.InitScript},
		layered{LayerProject, project.InitScript},
		layered{LayerGlobal, global.InitScript})

	if _, err := transport.Lookup(s.Transport); err != nil {
		return Settings{}, fmt.Errorf("transport %q (from %s) is not registered", s.Transport, s.Source("transport"))
	}
	if s.Greeting != "" {
		if _, err := server.LookupGreeting(s.Greeting); err != nil {
			return Settings{}, fmt.Errorf("greeting %q (from %s) is not registered", s.Greeting, s.Source("greeting"))
		}
	}

	return s, nil
}

type layered struct {
	layer string
	value string
}

func firstString(def string, candidates ...layered) (string, string) {
	for _, c := range candidates {
		if c.value != "" {
			return c.value, c.layer
		}
	}
	return def, LayerDefault
}

func firstPort(option, environment, project, global *int) (int, string) {
	for _, c := range []struct {
		layer string
		value *int
	}{
		{LayerOption, option},
		{LayerEnvironment, environment},
		{LayerProject, project},
		{LayerGlobal, global},
	} {
		if c.value != nil {
			return *c.value, c.layer
		}
	}
	return 0, LayerDefault
}

func firstTimeout(option, environment time.Duration, project, global string) (time.Duration, string, error) {
	if option > 0 {
		return option, LayerOption, nil
	}
	if environment > 0 {
		return environment, LayerEnvironment, nil
	}
	for _, c := range []struct {
		layer string
		value string
	}{
		{LayerProject, project},
		{LayerGlobal, global},
	} {
		if c.value == "" {
			continue
		}
		d, err := time.ParseDuration(c.value)
		if err != nil {
			return 0, "", fmt.Errorf("invalid launch_timeout %q (from %s): %w", c.value, c.layer, err)
		}
		return d, c.layer, nil
	}
	return DefaultLaunchTimeout, LayerDefault, nil
}

type listLayered struct {
	layer string
	value []string
}

func firstList(candidates ...listLayered) ([]string, string) {
	for _, c := range candidates {
		if len(c.value) > 0 {
			return c.value, c.layer
		}
	}
	return nil, LayerDefault
}
