package app

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/paths"
	"github.com/clawdesk/clawdesk/internal/security"
)

func TestLiterals(t *testing.T) {
	t.Parallel()
	cfg := config.Default(t.TempDir())
	cfg.Profiles["remote"] = config.Profile{Name: "remote", Bind: "10.0.0.2", Port: 18789, Auth: config.ProfileAuth{Token: "inline-token"}}

	got := Literals("server-secret", cfg)
	if !slices.Contains(got, "server-secret") || !slices.Contains(got, "inline-token") {
		t.Errorf("Literals = %v", got)
	}
}

func TestPIDFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "run", "clawdesk.pid")

	if err := WritePIDFile(path); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	pid, err := ReadPIDFile(path)
	if err != nil || pid != os.Getpid() {
		t.Fatalf("ReadPIDFile = %d, %v", pid, err)
	}
	// Rewriting our own pid is allowed.
	if err := WritePIDFile(path); err != nil {
		t.Fatalf("second WritePIDFile: %v", err)
	}
	if err := RemovePIDFile(path); err != nil {
		t.Fatalf("RemovePIDFile: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("pid file still present: %v", err)
	}
	if err := RemovePIDFile(path); err != nil {
		t.Errorf("RemovePIDFile on missing file: %v", err)
	}
}

func TestPIDFile_ForeignFileKept(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clawdesk.pid")
	if err := os.WriteFile(path, []byte("999999999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := RemovePIDFile(path); err != nil {
		t.Fatalf("RemovePIDFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("foreign pid file removed: %v", err)
	}
}

func TestReadPIDFile_Malformed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clawdesk.pid")
	if err := os.WriteFile(path, []byte("nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPIDFile(path); err == nil {
		t.Error("expected error for malformed pid file")
	}
}

func TestNewLogger_RedactsConsoleAndFile(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "logs", "clawdesk.log")
	redactor := security.NewRedactor()
	redactor.AddLiteral("hunter2-secret")

	var console bytes.Buffer
	logger, closer := NewLogger(&console, logPath, slog.LevelInfo, redactor)
	logger.Info("gateway replied hunter2-secret", "detail", "token=abc123")
	logger.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	for name, out := range map[string]string{"console": console.String(), "file": string(data)} {
		if strings.Contains(out, "hunter2-secret") || strings.Contains(out, "abc123") {
			t.Errorf("%s leaked a secret: %q", name, out)
		}
		if !strings.Contains(out, security.RedactPlaceholder) {
			t.Errorf("%s missing placeholder: %q", name, out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("%s logged below level: %q", name, out)
		}
	}
}

func TestNewLogger_NoFile(t *testing.T) {
	t.Parallel()
	var console bytes.Buffer
	logger, closer := NewLogger(&console, "", slog.LevelInfo, security.NewRedactor())
	logger.Info("hello")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(console.String(), "hello") {
		t.Errorf("console = %q", console.String())
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRun_ServesUntilCanceled(t *testing.T) {
	dir := t.TempDir()
	p := paths.InDir(dir)
	port := freePort(t)

	store := config.NewStore(p.ConfigPath, "")
	if _, err := store.Load(); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Update(func(c *config.Config) error {
		c.App.Port = port
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var status int
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, RunParams{
			Paths:   p,
			Version: "test",
			Stderr:  &bytes.Buffer{},
			Ready: func(addr string) {
				if resp, err := http.Get("http://" + addr + "/"); err == nil {
					status = resp.StatusCode
					resp.Body.Close()
				}
				cancel()
			},
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
	if status != http.StatusOK {
		t.Errorf("index status = %d, want 200", status)
	}
	if _, err := os.Stat(p.PIDPath); !os.IsNotExist(err) {
		t.Errorf("pid file left behind: %v", err)
	}
	if _, err := os.Stat(p.SecretPath); err != nil {
		t.Errorf("secret not created: %v", err)
	}
	data, err := os.ReadFile(p.LogPath)
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if strings.Contains(string(data), "startup failed") {
		t.Errorf("clean shutdown logged a startup failure: %q", data)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	p := paths.InDir(dir)
	if err := os.WriteFile(p.ConfigPath, []byte(`{"app":{"host":"127.0.0.1","port":80}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	err := Run(context.Background(), RunParams{Paths: p, Stderr: &bytes.Buffer{}})
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	data, readErr := os.ReadFile(p.LogPath)
	if readErr != nil {
		t.Fatalf("log file: %v", readErr)
	}
	if !strings.Contains(string(data), "clawdesk startup failed") {
		t.Errorf("log file = %q", data)
	}
}
