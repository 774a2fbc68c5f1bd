package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/replkit/replkit/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the global config file and returns the parsed Config.
// If the file does not exist, it returns an empty Config (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadProject reads a project's .replkit.toml. A missing file is not an error.
func LoadProject(projectDir string) (*Config, error) {
	return LoadFrom(paths.ProjectConfigFile(projectDir))
}

// LoadFrom reads and parses a config file at the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	expandConfigEnvVars(&cfg)
	return &cfg, nil
}

func expandConfigEnvVars(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Host = expandEnvVars(cfg.Host)
	cfg.Transport = expandEnvVars(cfg.Transport)
	cfg.Greeting = expandEnvVars(cfg.Greeting)
	cfg.LaunchTimeout = expandEnvVars(cfg.LaunchTimeout)
	cfg.InitScript = expandEnvVars(cfg.InitScript)
	for i := range cfg.DefaultMiddleware {
		cfg.DefaultMiddleware[i] = expandEnvVars(cfg.DefaultMiddleware[i])
	}
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}
