package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"glbopt/internal/gltf"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// WriteGLB writes a minimal valid binary glTF asset at the given path.
func WriteGLB(t testing.TB, path string) {
	t.Helper()

	WriteGLBWithJSON(t, path, []byte(`{"asset":{"version":"2.0"}}`))
}

// WriteGLBWithJSON writes a binary glTF container holding the provided JSON
// chunk payload.
func WriteGLBWithJSON(t testing.TB, path string, payload []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := gltf.WriteMinimal(f, payload); err != nil {
		t.Fatalf("write glb %s: %v", path, err)
	}
}
