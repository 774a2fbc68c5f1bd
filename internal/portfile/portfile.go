// Package portfile persists the last known live port for a project root.
// The record is a plain text decimal port, overwritten on each successful
// server start and removed best-effort on normal exit.
package portfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/replkit/replkit/internal/paths"
	"golang.org/x/sys/unix"
)

// Write records the bound port for a project root. A lock file serializes
// writers so concurrent launches for the same project cannot interleave.
// The legacy location under the build output directory is also written when
// that directory already exists.
func Write(projectDir string, port int) error {
	unlock, err := lock(paths.PortLockFile(projectDir))
	if err != nil {
		return err
	}
	defer unlock() //nolint:errcheck

	data := []byte(strconv.Itoa(port) + "\n")
	if err := os.WriteFile(paths.PortFile(projectDir), data, 0600); err != nil {
		return fmt.Errorf("writing port record: %w", err)
	}

	legacy := paths.LegacyPortFile(projectDir)
	if info, err := os.Stat(filepath.Dir(legacy)); err == nil && info.IsDir() {
		if err := os.WriteFile(legacy, data, 0600); err != nil {
			return fmt.Errorf("writing legacy port record: %w", err)
		}
	}
	return nil
}

// Read returns the recorded port for a project root.
func Read(projectDir string) (int, error) {
	data, err := os.ReadFile(paths.PortFile(projectDir))
	if err != nil {
		return 0, fmt.Errorf("reading port record: %w", err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed port record: %w", err)
	}
	return port, nil
}

// Remove deletes the port record best-effort; failures are ignored because
// removal runs during shutdown.
func Remove(projectDir string) {
	os.Remove(paths.PortFile(projectDir))
	os.Remove(paths.LegacyPortFile(projectDir))
	os.Remove(paths.PortLockFile(projectDir))
}

func lock(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening port lock: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return func() error {
		unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
		closeErr := f.Close()
		if unlockErr != nil {
			return unlockErr
		}
		return closeErr
	}, nil
}
