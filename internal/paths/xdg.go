package paths

import (
	"os"
	"path/filepath"
)

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

func xdgDir(envVar, fallbackSuffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, "replkit")
	}
	return filepath.Join(homeDir(), fallbackSuffix, "replkit")
}

// ConfigDir returns the replkit config directory ($XDG_CONFIG_HOME/replkit).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the replkit state directory ($XDG_STATE_HOME/replkit).
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// ConfigFile returns the path to the global config.toml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// HistoryFile returns the path to the client input history file.
func HistoryFile() string {
	return filepath.Join(StateDir(), "history")
}

// ProjectConfigFile returns the path to a project's .replkit.toml.
func ProjectConfigFile(projectDir string) string {
	return filepath.Join(projectDir, ".replkit.toml")
}

// PortFile returns the path to a project's port record.
func PortFile(projectDir string) string {
	return filepath.Join(projectDir, ".replkit-port")
}

// PortLockFile returns the path to the sidecar lock guarding the port record.
func PortLockFile(projectDir string) string {
	return filepath.Join(projectDir, ".replkit-port.lock")
}

// LegacyPortFile returns the backward-compatible port record location under
// the project's build output directory. It is only written when that
// directory already exists.
func LegacyPortFile(projectDir string) string {
	return filepath.Join(projectDir, "target", "repl-port")
}

// EnsureDir creates a directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
