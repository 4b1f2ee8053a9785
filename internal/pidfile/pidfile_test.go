package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestWriteThenRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pv.pid")
	if err := Write(path); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	got := strings.TrimSpace(string(data))
	want := strconv.Itoa(os.Getpid())
	if got != want {
		t.Fatalf("pidfile contents = %q, want %q", got, want)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Fatalf("pidfile missing trailing newline: %q", data)
	}

	if err := Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("pidfile still exists after Remove()")
	}
}

func TestRemoveMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pid")
	if err := Remove(path); err != nil {
		t.Fatalf("Remove() of a missing pidfile = %v, want nil", err)
	}
}

func TestEmptyPathIsANoOp(t *testing.T) {
	if err := Write(""); err != nil {
		t.Fatalf("Write(\"\") error = %v", err)
	}
	if err := Remove(""); err != nil {
		t.Fatalf("Remove(\"\") error = %v", err)
	}
}
