package services_test

import (
	"errors"
	"os"
	"strings"
	"testing"

	"glbopt/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "geometry", "gltfpack", "compression failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"geometry", "gltfpack", "compression failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestCategoryMapping(t *testing.T) {
	tests := []struct {
		marker error
		want   string
	}{
		{services.ErrSecurity, "security"},
		{services.ErrValidation, "validation"},
		{services.ErrTimeout, "timeout"},
		{services.ErrToolMissing, "tool_missing"},
		{services.ErrIO, "io"},
		{services.ErrConfiguration, "configuration"},
		{services.ErrExternalTool, "tool"},
	}
	for _, tc := range tests {
		err := services.Wrap(tc.marker, "stage", "op", "msg", nil)
		if got := services.Category(err); got != tc.want {
			t.Fatalf("Category(%v) = %q, want %q", tc.marker, got, tc.want)
		}
	}
	if got := services.Category(errors.New("plain")); got != "unknown" {
		t.Fatalf("expected unknown category, got %q", got)
	}
	if got := services.Category(nil); got != "" {
		t.Fatalf("expected empty category for nil, got %q", got)
	}
}

func TestOnlySecurityIsFatal(t *testing.T) {
	if !services.Fatal(services.Wrap(services.ErrSecurity, "paths", "validate", "escape", nil)) {
		t.Fatal("security errors must be fatal")
	}
	for _, marker := range []error{services.ErrValidation, services.ErrExternalTool, services.ErrTimeout, services.ErrIO} {
		if services.Fatal(services.Wrap(marker, "stage", "op", "msg", nil)) {
			t.Fatalf("%v must not be fatal", marker)
		}
	}
}

func TestSafeMessageHidesSecurityDetail(t *testing.T) {
	err := services.Wrap(services.ErrSecurity, "paths", "validate", "/etc/passwd escapes roots", nil)
	msg := services.SafeMessage(err)
	if strings.Contains(msg, "/etc/passwd") {
		t.Fatalf("security message leaked path: %q", msg)
	}
	if msg == "" {
		t.Fatal("expected non-empty message")
	}

	toolErr := services.Wrap(services.ErrExternalTool, "weld", "gltf-transform", "exit status 1", nil)
	if !strings.Contains(services.SafeMessage(toolErr), "weld") {
		t.Fatalf("expected stage context in tool message, got %q", services.SafeMessage(toolErr))
	}
}

func TestSafeMessageStripsWrappedCauses(t *testing.T) {
	cause := &os.PathError{Op: "stat", Path: "/srv/uploads/secret-model.glb", Err: os.ErrNotExist}
	err := services.Wrap(services.ErrValidation, "validate", "stat", "input file is not readable", cause)

	msg := services.SafeMessage(err)
	if strings.Contains(msg, "/srv/uploads") || strings.Contains(msg, "secret-model") {
		t.Fatalf("safe message leaked path: %q", msg)
	}
	if !strings.Contains(msg, "input file is not readable") {
		t.Fatalf("expected stage detail in message, got %q", msg)
	}
	// The full chain stays available for diagnostics and logs.
	if !strings.Contains(err.Error(), "/srv/uploads/secret-model.glb") {
		t.Fatalf("expected full chain to keep the cause, got %q", err.Error())
	}

	// Errors that never passed through Wrap collapse to generic text.
	if got := services.SafeMessage(cause); strings.Contains(got, "/srv/uploads") {
		t.Fatalf("raw error leaked path: %q", got)
	}
}
