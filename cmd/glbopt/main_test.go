package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"glbopt/internal/gltf"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	uploadDir  string
	outputDir  string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		uploadDir:  filepath.Join(base, "uploads"),
		outputDir:  filepath.Join(base, "output"),
	}

	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	// Stub tools exit cleanly without writing output, so every stage
	// degrades and the pipeline publishes the input unchanged.
	script := []byte("#!/bin/sh\nexit 0\n")
	for _, name := range []string{"gltfpack", "gltf-transform", "toktx"} {
		if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}

	content := fmt.Sprintf(`[paths]
upload_dir = %q
output_dir = %q
staging_dir = %q
log_dir = %q

[tools]
gltfpack = %q
gltf_transform = %q
toktx = %q
tool_timeout = 30
race_timeout = 60

[logging]
format = "json"
level = "error"

[history]
enabled = true
keep_runs = 10
`,
		env.uploadDir, env.outputDir,
		filepath.Join(base, "staging"), filepath.Join(base, "logs"),
		filepath.Join(binDir, "gltfpack"),
		filepath.Join(binDir, "gltf-transform"),
		filepath.Join(binDir, "toktx"))
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (env *cliTestEnv) writeInput(t *testing.T, name string) string {
	t.Helper()
	if err := os.MkdirAll(env.uploadDir, 0o755); err != nil {
		t.Fatalf("mkdir uploads: %v", err)
	}
	path := filepath.Join(env.uploadDir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create input: %v", err)
	}
	defer f.Close()
	if err := gltf.WriteMinimal(f, []byte(`{"asset":{"version":"2.0"}}`)); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, needle string) {
	t.Helper()
	if !strings.Contains(output, needle) {
		t.Fatalf("output missing %q:\n%s", needle, output)
	}
}

func TestConfigInitValidateShow(t *testing.T) {
	env := setupCLITestEnv(t)

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("config init overwrote an existing file without --overwrite")
	}

	out, _, err = runCLI(t, []string{"config", "validate", "--path", env.configPath}, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "is valid")

	out, _, err = runCLI(t, []string{"config", "show", "--path", env.configPath}, "")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "upload_dir")
	requireContains(t, out, env.uploadDir)
}

func TestToolsCommandReportsStubs(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"tools"}, env.configPath)
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	requireContains(t, out, "gltfpack")
	requireContains(t, out, "gltf-transform")
	requireContains(t, out, "ok")
}

func TestOptimizeDegradedEndToEnd(t *testing.T) {
	env := setupCLITestEnv(t)
	input := env.writeInput(t, "model.glb")

	out, _, err := runCLI(t, []string{"optimize", input, "--no-progress"}, env.configPath)
	if err != nil {
		t.Fatalf("optimize: %v\n%s", err, out)
	}
	requireContains(t, out, "Published")
	requireContains(t, out, "Degraded")

	published := filepath.Join(env.outputDir, "model.glb")
	if err := gltf.ValidateFile(published); err != nil {
		t.Fatalf("published asset invalid: %v", err)
	}
	original, err := os.Stat(input)
	if err != nil {
		t.Fatalf("stat input: %v", err)
	}
	got, err := os.Stat(published)
	if err != nil {
		t.Fatalf("stat published: %v", err)
	}
	if got.Size() != original.Size() {
		t.Fatalf("passthrough size = %d, want %d", got.Size(), original.Size())
	}

	// History records the run.
	histOut, _, err := runCLI(t, []string{"history", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	requireContains(t, histOut, "balanced")
}

func TestHistoryListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	requireContains(t, out, "No runs recorded.")
}

func TestOptimizeRejectsInputOutsideUploadRoot(t *testing.T) {
	env := setupCLITestEnv(t)

	rogue := filepath.Join(t.TempDir(), "rogue.glb")
	f, err := os.Create(rogue)
	if err != nil {
		t.Fatalf("create rogue: %v", err)
	}
	if err := gltf.WriteMinimal(f, []byte(`{"asset":{"version":"2.0"}}`)); err != nil {
		t.Fatalf("write rogue: %v", err)
	}
	f.Close()

	out, _, err := runCLI(t, []string{"optimize", rogue, "--no-progress"}, env.configPath)
	if err == nil {
		t.Fatal("optimize accepted an input outside the upload root")
	}
	if strings.Contains(out, rogue) {
		t.Fatalf("output leaks the rejected path:\n%s", out)
	}
}

func TestCleanCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"clean"}, env.configPath)
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	requireContains(t, out, "Removed 0 stale staging directories.")
}
