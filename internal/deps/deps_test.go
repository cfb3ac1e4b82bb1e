package deps

import (
	"os"
	"path/filepath"
	"testing"

	"glbopt/internal/config"
)

func TestRequirementsUseConfiguredCommands(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.Gltfpack = "/opt/tools/gltfpack"
	cfg.Tools.Toktx = ""

	reqs := Requirements(&cfg)
	if len(reqs) != 3 {
		t.Fatalf("Requirements() returned %d entries, want 3", len(reqs))
	}
	if reqs[0].Command != "/opt/tools/gltfpack" {
		t.Fatalf("gltfpack command = %q, want configured override", reqs[0].Command)
	}
	if reqs[2].Command != "toktx" {
		t.Fatalf("toktx command = %q, want default fallback", reqs[2].Command)
	}
	if !reqs[2].Optional {
		t.Fatal("toktx should be optional")
	}
}

func TestCheckBinariesReportsMissing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present-tool")
	if err := os.WriteFile(present, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write stub tool: %v", err)
	}

	statuses := CheckBinaries([]Requirement{
		{Name: "present", Command: present},
		{Name: "absent", Command: filepath.Join(dir, "no-such-tool")},
		{Name: "blank", Command: "   "},
	})
	if len(statuses) != 3 {
		t.Fatalf("CheckBinaries() returned %d statuses, want 3", len(statuses))
	}
	if !statuses[0].Available {
		t.Fatalf("present tool reported unavailable: %s", statuses[0].Detail)
	}
	if statuses[1].Available {
		t.Fatal("absent tool reported available")
	}
	if statuses[2].Available || statuses[2].Detail != "command not configured" {
		t.Fatalf("blank command status = %+v", statuses[2])
	}
}
