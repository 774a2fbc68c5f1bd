package config

// Config holds the replkit launch options read from a TOML file. The same
// schema is used for the global config and for a project's .replkit.toml;
// zero values mean "not set here" so layers can be merged by precedence.
type Config struct {
	Host              string   `toml:"host"`
	Port              *int     `toml:"port"`
	Transport         string   `toml:"transport"`
	Greeting          string   `toml:"greeting"`
	LaunchTimeout     string   `toml:"launch_timeout"`
	DefaultMiddleware []string `toml:"default_middleware"`
	InitScript        string   `toml:"init_script"`
}

// IsZero reports whether no key is set.
func (c Config) IsZero() bool {
	return c.Host == "" && c.Port == nil && c.Transport == "" && c.Greeting == "" &&
		c.LaunchTimeout == "" && len(c.DefaultMiddleware) == 0 && c.InitScript == ""
}
