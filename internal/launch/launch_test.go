package launch

import (
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/replkit/replkit/internal/ack"
	"github.com/replkit/replkit/internal/portfile"
	"github.com/replkit/replkit/internal/resolve"
	"github.com/replkit/replkit/internal/server"
	"github.com/replkit/replkit/internal/transport"
)

func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return t.TempDir()
}

func saveSeams() func() {
	oldSpawn := spawnServerFn
	oldNew := newCoordinatorFn
	oldBegin := beginHandshakeFn
	oldAwait := awaitHandshakeFn
	return func() {
		spawnServerFn = oldSpawn
		newCoordinatorFn = oldNew
		beginHandshakeFn = oldBegin
		awaitHandshakeFn = oldAwait
	}
}

func TestLaunchReturnsReportedPortNotRequested(t *testing.T) {
	projectDir := isolate(t)
	restore := saveSeams()
	defer restore()

	var acked *server.Server
	spawnServerFn = func(cfg server.Config) (<-chan error, func(), error) {
		if cfg.AckAddr == "" {
			t.Fatal("spawn config missing ack address")
		}
		srv, err := server.Serve(cfg)
		if err != nil {
			return nil, nil, err
		}
		acked = srv
		t.Cleanup(srv.Close)
		return make(chan error), srv.Close, nil
	}

	res, err := Launch(Options{ProjectDir: projectDir})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	if res.Port == 0 {
		t.Fatal("Launch() port = 0, want acked OS-assigned port")
	}
	if res.Port != acked.Port() {
		t.Fatalf("Launch() port = %d, want %d", res.Port, acked.Port())
	}

	conn, err := net.Dial("tcp", res.Addr())
	if err != nil {
		t.Fatalf("dialing launched server: %v", err)
	}
	conn.Close()
}

func TestLaunchTimesOutWhenServerNeverAcks(t *testing.T) {
	projectDir := isolate(t)
	restore := saveSeams()
	defer restore()

	stopped := false
	spawnServerFn = func(cfg server.Config) (<-chan error, func(), error) {
		return make(chan error), func() { stopped = true }, nil
	}

	const timeout = 200 * time.Millisecond
	start := time.Now()
	_, err := Launch(Options{
		ProjectDir: projectDir,
		Resolve:    resolve.Options{Timeout: timeout},
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ack.ErrHandshakeTimeout) {
		t.Fatalf("Launch() error = %v, want ErrHandshakeTimeout", err)
	}
	if elapsed < timeout*9/10 {
		t.Fatalf("Launch() returned after %v, want at least 90%% of %v", elapsed, timeout)
	}
	if !stopped {
		t.Fatal("timed-out launch did not stop the spawned server")
	}
}

func TestLaunchObservesEarlySubprocessExit(t *testing.T) {
	projectDir := isolate(t)
	restore := saveSeams()
	defer restore()

	spawnServerFn = func(cfg server.Config) (<-chan error, func(), error) {
		exitCh := make(chan error, 1)
		exitCh <- errors.New("exit status 1")
		return exitCh, func() {}, nil
	}

	start := time.Now()
	_, err := Launch(Options{ProjectDir: projectDir})
	if err == nil {
		t.Fatal("Launch() = nil, want error")
	}
	if !strings.Contains(err.Error(), "exited before handshake") {
		t.Fatalf("Launch() error = %v, want early-exit error", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("Launch() took %v, want early return well inside the timeout", time.Since(start))
	}
}

func TestFailedLaunchDoesNotOverwritePortRecord(t *testing.T) {
	projectDir := isolate(t)
	restore := saveSeams()
	defer restore()

	if err := portfile.Write(projectDir, 1234); err != nil {
		t.Fatalf("seeding port record: %v", err)
	}

	spawnServerFn = func(cfg server.Config) (<-chan error, func(), error) {
		return make(chan error), func() {}, nil
	}

	_, err := Launch(Options{
		ProjectDir: projectDir,
		Resolve:    resolve.Options{Timeout: 50 * time.Millisecond},
	})
	if !errors.Is(err, ack.ErrHandshakeTimeout) {
		t.Fatalf("Launch() error = %v, want ErrHandshakeTimeout", err)
	}

	port, err := portfile.Read(projectDir)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if port != 1234 {
		t.Fatalf("port record = %d, want untouched 1234", port)
	}
}

func TestTrampolineNeverTouchesAckCoordinator(t *testing.T) {
	projectDir := isolate(t)
	restore := saveSeams()
	defer restore()

	newCoordinatorFn = func(factory transport.Factory) *ack.Coordinator {
		t.Fatal("trampoline path created an ack coordinator")
		return nil
	}

	res, err := Trampoline(Options{ProjectDir: projectDir})
	if err != nil {
		t.Fatalf("Trampoline() error = %v", err)
	}
	defer res.Stop()

	if res.Port == 0 {
		t.Fatal("Trampoline() port = 0, want bound port")
	}
	conn, err := net.Dial("tcp", res.Addr())
	if err != nil {
		t.Fatalf("dialing trampoline server: %v", err)
	}
	conn.Close()
}

func TestPayloadRoundTrip(t *testing.T) {
	cfg := server.Config{
		Host:       "127.0.0.1",
		Port:       0,
		Transport:  "bencode",
		Middleware: []string{"eval"},
		AckAddr:    "127.0.0.1:40000",
		ProjectDir: "/proj",
	}

	payload, err := EncodePayload(cfg)
	if err != nil {
		t.Fatalf("EncodePayload() error = %v", err)
	}
	got, err := DecodePayload(payload)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}

	if got.Host != cfg.Host || got.Transport != cfg.Transport || got.AckAddr != cfg.AckAddr || got.ProjectDir != cfg.ProjectDir {
		t.Fatalf("DecodePayload() = %+v, want %+v", got, cfg)
	}
	if len(got.Middleware) != 1 || got.Middleware[0] != "eval" {
		t.Fatalf("Middleware = %v, want [eval]", got.Middleware)
	}
}
