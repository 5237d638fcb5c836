//go:build !windows

package ipc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestListen_ReplacesStaleSocket(t *testing.T) {
	// Unix socket paths are limited to ~100 bytes; t.TempDir can exceed that on macOS.
	dir, err := os.MkdirTemp("", "stp")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "ctl.sock")

	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}
	ln, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		t.Errorf("%s is not a socket", path)
	}
	if perm := fi.Mode().Perm(); perm != 0o666 {
		t.Errorf("mode = %o, want 666", perm)
	}

	conn, err := dialAddress(path, defaultDialTimeout)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}
