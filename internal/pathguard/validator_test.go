package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"glbopt/internal/services"
)

type fixture struct {
	validator *Validator
	upload    string
	output    string
	staging   string
}

func newFixture(t *testing.T, opts Options) fixture {
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
	v, err := New(upload, output, staging, opts)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	return fixture{validator: v, upload: upload, output: output, staging: staging}
}

func mustWrite(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func assertSecurity(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected security error")
	}
	if !errors.Is(err, services.ErrSecurity) {
		t.Fatalf("expected ErrSecurity, got %v", err)
	}
}

func TestValidateAcceptsAssetInsideUploadRoot(t *testing.T) {
	fx := newFixture(t, Options{})
	path := filepath.Join(fx.upload, "model.glb")
	mustWrite(t, path, []byte("x"))

	validated, err := fx.validator.Validate(path, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validated.IsZero() {
		t.Fatal("expected non-zero validated path")
	}
	if validated.String() == "" {
		t.Fatal("expected resolved path")
	}
}

func TestValidateAcceptsNonexistentOutputPath(t *testing.T) {
	fx := newFixture(t, Options{})
	path := filepath.Join(fx.output, "optimized.glb")
	if _, err := fx.validator.Validate(path, false); err != nil {
		t.Fatalf("validate nonexistent output: %v", err)
	}
}

func TestValidateRejectsTraversal(t *testing.T) {
	fx := newFixture(t, Options{})
	_, err := fx.validator.Validate("../../etc/passwd", false)
	assertSecurity(t, err)

	_, err = fx.validator.Validate(filepath.Join(fx.upload, "..", "..", "etc", "passwd"), false)
	assertSecurity(t, err)
}

func TestValidateRejectsShellMetacharacters(t *testing.T) {
	fx := newFixture(t, Options{})
	for _, bad := range []string{
		"a.glb; rm -rf /",
		"a.glb|cat",
		"a.glb$(id)",
		"a.glb`id`",
		"a.glb>out",
		"a.glb\nb.glb",
	} {
		_, err := fx.validator.Validate(filepath.Join(fx.upload, bad), false)
		assertSecurity(t, err)
	}
}

func TestValidateRejectsRootItself(t *testing.T) {
	fx := newFixture(t, Options{})
	_, err := fx.validator.Validate(fx.upload, false)
	assertSecurity(t, err)
}

func TestValidateRejectsSymlinkEscapingRoots(t *testing.T) {
	fx := newFixture(t, Options{})
	outside := filepath.Join(t.TempDir(), "secret.glb")
	mustWrite(t, outside, []byte("x"))

	link := filepath.Join(fx.upload, "model.glb")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	// The pre-resolution string lies inside the upload root, but the
	// resolved target escapes it.
	_, err := fx.validator.Validate(link, false)
	assertSecurity(t, err)
}

func TestRecheckRejectsPostValidationSwap(t *testing.T) {
	fx := newFixture(t, Options{})
	path := filepath.Join(fx.upload, "model.glb")
	mustWrite(t, path, []byte("x"))

	validated, err := fx.validator.Validate(path, false)
	if err != nil {
		t.Fatalf("initial validate: %v", err)
	}

	outside := filepath.Join(t.TempDir(), "evil.glb")
	mustWrite(t, outside, []byte("y"))
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, path); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	assertSecurity(t, fx.validator.Recheck(validated, false))
}

func TestRecheckBypassesCache(t *testing.T) {
	fx := newFixture(t, Options{})
	path := filepath.Join(fx.upload, "model.glb")
	mustWrite(t, path, []byte("x"))

	validated, err := fx.validator.Validate(path, false)
	if err != nil {
		t.Fatal(err)
	}
	// Second Validate is served from cache; Recheck must still pass for the
	// untouched file.
	if _, err := fx.validator.Validate(path, false); err != nil {
		t.Fatal(err)
	}
	if err := fx.validator.Recheck(validated, false); err != nil {
		t.Fatalf("recheck clean file: %v", err)
	}
}

func TestExtensionPolicy(t *testing.T) {
	fx := newFixture(t, Options{})

	texture := filepath.Join(fx.staging, "albedo.ktx2")
	mustWrite(t, texture, []byte("x"))
	if _, err := fx.validator.Validate(texture, true); err != nil {
		t.Fatalf("ktx2 with allowTemp: %v", err)
	}
	_, err := fx.validator.Validate(texture, false)
	assertSecurity(t, err)

	tmpName := filepath.Join(fx.staging, "candidate.glb.tmp."+strconv.Itoa(os.Getpid()))
	mustWrite(t, tmpName, []byte("x"))
	if _, err := fx.validator.Validate(tmpName, true); err != nil {
		t.Fatalf("tmp.<pid> with allowTemp: %v", err)
	}

	evil := filepath.Join(fx.staging, "payload.sh")
	mustWrite(t, evil, []byte("x"))
	_, err = fx.validator.Validate(evil, true)
	assertSecurity(t, err)
}

func TestSystemTempRequiresBothPermissions(t *testing.T) {
	fx := newFixture(t, Options{})
	inTemp := filepath.Join(os.TempDir(), "glbopt-test-asset.glb")
	mustWrite(t, inTemp, []byte("x"))
	defer os.Remove(inTemp)

	// Validator built without AllowSystemTemp rejects even with allowTemp.
	_, err := fx.validator.Validate(inTemp, true)
	assertSecurity(t, err)

	permissive := newFixture(t, Options{AllowSystemTemp: true})
	if _, err := permissive.validator.Validate(inTemp, true); err != nil {
		t.Fatalf("system temp with both permissions: %v", err)
	}
	_, err = permissive.validator.Validate(inTemp, false)
	assertSecurity(t, err)
}

func TestLockPathSerializes(t *testing.T) {
	fx := newFixture(t, Options{})
	path := filepath.Join(fx.upload, "model.glb")
	mustWrite(t, path, []byte("x"))
	validated, err := fx.validator.Validate(path, false)
	if err != nil {
		t.Fatal(err)
	}

	release := fx.validator.LockPath(validated)
	done := make(chan struct{})
	go func() {
		inner := fx.validator.LockPath(validated)
		inner()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second lock acquired while first held")
	default:
	}
	release()
	<-done
}
