package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/conduit-lang/stereotype/internal/annotation"
	"github.com/conduit-lang/stereotype/internal/catalog"
	"github.com/conduit-lang/stereotype/internal/stereotype"
)

// run executes the root command with args against the config in dir
func run(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("STEREOTYPE_LOG_LEVEL", "error")
	t.Cleanup(annotation.ResetDefault)

	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", dir, "--no-color"}, args...))

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "stereotype" {
		t.Errorf("expected Use to be 'stereotype', got %s", cmd.Use)
	}
	if cmd.Short == "" || cmd.Long == "" {
		t.Error("expected descriptions to be set")
	}

	for _, expected := range []string{"version", "catalog", "demo", "serve"} {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected command %s to be registered", expected)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	defer func() { Version = "dev" }()

	out, _, err := run(t, t.TempDir(), "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Stereotype version: 1.0.0-test") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "Go version:") {
		t.Errorf("expected Go version line:\n%s", out)
	}
}

func TestCatalogCommand(t *testing.T) {
	out, _, err := run(t, t.TempDir(), "catalog")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"Components: 5",
		"Policy:     overwrite",
		"demo.AuthService",
		"demo.UserRepository",
		"demo.Authenticate",
		`{"Prefix":"/users"}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q:\n%s", want, out)
		}
	}
}

func TestCatalogCommand_JSONKind(t *testing.T) {
	out, _, err := run(t, t.TempDir(), "catalog", "--json", "--kind", stereotype.KindUseCase)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var snap catalog.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("output is not a snapshot: %v\n%s", err, out)
	}
	if len(snap.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snap.Entries))
	}
	if !snap.Entries[0].Func || snap.Entries[0].Kind != stereotype.KindUseCase {
		t.Errorf("unexpected entry %+v", snap.Entries[0])
	}
}

func TestCatalogCommand_UnknownKind(t *testing.T) {
	_, stderr, err := run(t, t.TempDir(), "catalog", "--kind", "Servce")
	if err == nil {
		t.Fatal("expected an error for an unknown kind")
	}
	if !strings.Contains(stderr, "Did you mean: Service?") {
		t.Errorf("expected a suggestion:\n%s", stderr)
	}
}

func TestCatalogCommand_PublishMemory(t *testing.T) {
	out, _, err := run(t, t.TempDir(), "catalog", "--publish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "✓ Published") || !strings.Contains(out, "stereotype:catalog") {
		t.Errorf("expected publish confirmation:\n%s", out)
	}
}

func TestCatalogCommand_PublishRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	t.Setenv("STEREOTYPE_REDIS_ADDR", mr.Addr())
	t.Setenv("STEREOTYPE_CATALOG_PREFIX", "test:")

	if _, _, err := run(t, t.TempDir(), "catalog", "--publish", "--ttl", "1h"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists("test:catalog") {
		t.Fatal("expected the latest catalog to be stored")
	}

	data, err := mr.Get("test:catalog")
	if err != nil {
		t.Fatalf("failed to read catalog: %v", err)
	}
	var snap catalog.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		t.Fatalf("stored catalog is not a snapshot: %v", err)
	}
	if ttl := mr.TTL("test:catalog:" + snap.ID.String()); ttl != time.Hour {
		t.Errorf("expected snapshot ttl of 1h, got %v", ttl)
	}
}

func TestCatalogCommand_PublishRedisWithoutAddr(t *testing.T) {
	_, stderr, err := run(t, t.TempDir(), "catalog", "--publish", "--backend", "redis")
	if err == nil {
		t.Fatal("expected an error without redis.addr")
	}
	if !strings.Contains(stderr, "PUBLISH FAILED") {
		t.Errorf("expected publish error:\n%s", stderr)
	}
}

func TestConfigError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stereotype.yaml"), []byte("annotation:\n  policy: sometimes\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := run(t, dir, "catalog")
	if err == nil {
		t.Fatal("expected a configuration error")
	}
	if !strings.Contains(stderr, "CONFIGURATION ERROR") {
		t.Errorf("expected configuration error output:\n%s", stderr)
	}
}

func TestDemoCommand_Commit(t *testing.T) {
	out, _, err := run(t, t.TempDir(), "demo", "--user", "John", "--password", "1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	begin := strings.Index(out, "BEGIN TRANSACTION")
	commit := strings.Index(out, "COMMIT")
	if begin < 0 || commit < begin {
		t.Errorf("expected BEGIN TRANSACTION then COMMIT:\n%s", out)
	}
	if strings.Contains(out, "ROLLBACK") {
		t.Errorf("unexpected rollback:\n%s", out)
	}
	if !strings.Contains(out, "✓ John authenticated") {
		t.Errorf("expected success:\n%s", out)
	}
	if !strings.Contains(out, "Recorded attempts: 1") {
		t.Errorf("expected one recorded attempt:\n%s", out)
	}
}

func TestDemoCommand_WrongPassword(t *testing.T) {
	out, _, err := run(t, t.TempDir(), "demo", "--password", "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "John was not authenticated") {
		t.Errorf("expected failed authentication:\n%s", out)
	}
}

func TestDemoCommand_Rollback(t *testing.T) {
	out, _, err := run(t, t.TempDir(), "demo", "--user", "Mike?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	begin := strings.Index(out, "BEGIN TRANSACTION")
	rollback := strings.Index(out, "ROLLBACK")
	if begin < 0 || rollback < begin {
		t.Errorf("expected BEGIN TRANSACTION then ROLLBACK:\n%s", out)
	}
	if strings.Contains(out, "COMMIT") {
		t.Errorf("unexpected commit:\n%s", out)
	}
	if !strings.Contains(out, "rolled back") {
		t.Errorf("expected rollback warning:\n%s", out)
	}
}

func TestServe_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, srv, zap.NewNop())
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_ListenError(t *testing.T) {
	srv := &http.Server{Addr: "invalid-address", Handler: http.NotFoundHandler()}
	if err := serve(context.Background(), srv, zap.NewNop()); err == nil {
		t.Error("expected a listen error")
	}
}
