package toolrunner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"glbopt/internal/pathguard"
	"glbopt/internal/services"
)

func newValidator(t *testing.T) (*pathguard.Validator, string) {
	t.Helper()
	base := t.TempDir()
	upload := filepath.Join(base, "uploads")
	output := filepath.Join(base, "output")
	staging := filepath.Join(base, "staging")
	for _, dir := range []string{upload, output, staging} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	v, err := pathguard.New(upload, output, staging, pathguard.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return v, staging
}

func fakeBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "faketool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func stubProcess(t *testing.T, fn func(ctx context.Context, cmd *exec.Cmd) error) {
	t.Helper()
	prev := startProcess
	startProcess = fn
	t.Cleanup(func() { startProcess = prev })
}

func TestRunMissingToolClassified(t *testing.T) {
	v, _ := newValidator(t)
	runner := New(v, nil, Options{})

	_, err := runner.Run(context.Background(), []string{"glbopt-no-such-tool"}, "prune", time.Second)
	if !errors.Is(err, services.ErrToolMissing) {
		t.Fatalf("expected ErrToolMissing, got %v", err)
	}
}

func TestRunValidatesPathArguments(t *testing.T) {
	v, _ := newValidator(t)
	runner := New(v, nil, Options{})
	bin := fakeBinary(t)
	stubProcess(t, func(ctx context.Context, cmd *exec.Cmd) error { return nil })

	_, err := runner.Run(context.Background(), []string{bin, "/etc/passwd"}, "prune", time.Second)
	if !errors.Is(err, services.ErrSecurity) {
		t.Fatalf("expected ErrSecurity for escaping path arg, got %v", err)
	}
}

func TestRunPassesFlagsUnchanged(t *testing.T) {
	v, staging := newValidator(t)
	runner := New(v, nil, Options{})
	bin := fakeBinary(t)
	input := filepath.Join(staging, "model.glb")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotArgs []string
	stubProcess(t, func(ctx context.Context, cmd *exec.Cmd) error {
		gotArgs = cmd.Args
		return nil
	})

	if _, err := runner.Run(context.Background(), []string{bin, "-i", input, "--level", "7"}, "finalpack", time.Second); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(gotArgs) != 5 {
		t.Fatalf("unexpected argv: %v", gotArgs)
	}
	if gotArgs[1] != "-i" || gotArgs[3] != "--level" || gotArgs[4] != "7" {
		t.Fatalf("flags must pass through unchanged: %v", gotArgs)
	}
}

func TestRunTimeoutClassified(t *testing.T) {
	v, _ := newValidator(t)
	runner := New(v, nil, Options{})
	bin := fakeBinary(t)

	stubProcess(t, func(ctx context.Context, cmd *exec.Cmd) error {
		<-ctx.Done()
		return ctx.Err()
	})

	_, err := runner.Run(context.Background(), []string{bin}, "geometry", 5*time.Millisecond)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestRunClassifiesToolFailure(t *testing.T) {
	v, _ := newValidator(t)
	runner := New(v, nil, Options{})
	bin := fakeBinary(t)

	stubProcess(t, func(ctx context.Context, cmd *exec.Cmd) error {
		if w, ok := cmd.Stderr.(interface{ WriteString(string) (int, error) }); ok {
			_, _ = w.WriteString("fatal: cannot allocate memory\n")
		}
		return errors.New("exit status 137")
	})

	_, err := runner.Run(context.Background(), []string{bin}, "geometry", time.Second)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("expected classified message in %v", err)
	}
}

func TestClassifySignatures(t *testing.T) {
	tests := []struct {
		output string
		kind   FailureKind
	}{
		{"Killed: out of memory", KindOutOfMemory},
		{"error: unsupported format in chunk 2", KindUnsupportedFormat},
		{"basisu encoder failed", KindTextureFailure},
		{"draco encoder error at mesh 3", KindMeshFailure},
		{"open output.glb: permission denied", KindPermission},
		{"sh: gltfpack: command not found", KindToolMissing},
		{"something exploded", KindGeneric},
	}
	for _, tc := range tests {
		if got := Classify(tc.output); got.Kind != tc.kind {
			t.Fatalf("Classify(%q) = %s, want %s", tc.output, got.Kind, tc.kind)
		}
	}
}

func TestChildEnvIsAllowListed(t *testing.T) {
	t.Setenv("LD_PRELOAD", "/tmp/evil.so")
	t.Setenv("PYTHONPATH", "/tmp/evil")
	t.Setenv("HOME", "/home/worker")
	t.Setenv("NPM_CONFIG_CACHE", "/var/cache/npm")

	v, _ := newValidator(t)
	runner := New(v, nil, Options{
		ToolDirs:       []string{"/opt/gltf/bin"},
		EnvPassthrough: []string{"NPM_CONFIG_CACHE", "LD_PRELOAD"},
	})

	env := runner.childEnv()
	joined := strings.Join(env, "\n")
	if strings.Contains(joined, "LD_PRELOAD") || strings.Contains(joined, "PYTHONPATH") {
		t.Fatalf("dangerous variables leaked into child env: %v", env)
	}
	if !strings.Contains(joined, "HOME=/home/worker") {
		t.Fatalf("expected HOME passthrough: %v", env)
	}
	if !strings.Contains(joined, "NPM_CONFIG_CACHE=/var/cache/npm") {
		t.Fatalf("expected configured passthrough: %v", env)
	}
	if !strings.HasPrefix(env[0], "PATH=/opt/gltf/bin") {
		t.Fatalf("expected tool dir first in PATH: %v", env[0])
	}
}

func TestLooksLikeManagedPath(t *testing.T) {
	cases := map[string]bool{
		"--flag":            false,
		"7":                 false,
		"model.glb":         true,
		"texture.ktx2":      true,
		"/abs/dir/file":     true,
		"out.glb.tmp.12345": true,
		"draco":             false,
	}
	for arg, want := range cases {
		if got := looksLikeManagedPath(arg); got != want {
			t.Fatalf("looksLikeManagedPath(%q) = %t, want %t", arg, got, want)
		}
	}
}
