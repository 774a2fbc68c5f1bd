package launch

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/replkit/replkit/internal/server"
)

// ServerSentinel is the argv[1] that routes a process into the server entry.
const ServerSentinel = "__server"

// EncodePayload serializes a server config for the subprocess argv. The
// config travels as plain data; the child never executes generated code.
func EncodePayload(cfg server.Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding server payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePayload is the inverse of EncodePayload.
func DecodePayload(payload string) (server.Config, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return server.Config{}, fmt.Errorf("decoding server payload: %w", err)
	}
	var cfg server.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return server.Config{}, fmt.Errorf("decoding server payload: %w", err)
	}
	return cfg, nil
}

// spawnServer starts the server subprocess detached from the terminal in its
// own process group. It returns a channel that delivers the process exit
// (the launcher's supervisory side channel) and a best-effort stop function
// that signals the whole group.
func spawnServer(cfg server.Config) (<-chan error, func(), error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, nil, fmt.Errorf("finding executable: %w", err)
	}

	payload, err := EncodePayload(cfg)
	if err != nil {
		return nil, nil, err
	}

	cmd := exec.Command(exe, ServerSentinel, payload)
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("spawning server: %w", err)
	}

	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	stop := func() {
		// Negative pid signals the process group, catching any children
		// the server itself started.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	return exitCh, stop, nil
}
