package fileutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "EPUB", "css", "base.css")

	if err := (OS{}).WriteFile(path, []byte("p {}")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "p {}" {
		t.Errorf("content = %q", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mimetype")
	fs := OS{}

	if err := fs.WriteFile(path, []byte("old content that is longer")); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile(path, []byte("new")); err != nil {
		t.Fatal(err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "new" {
		t.Errorf("content = %q, want %q", got, "new")
	}
}

func TestWriteFileNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	if err := (OS{}).WriteFile(filepath.Join(dir, "a"), []byte("x")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "a" {
		t.Errorf("directory holds %v", entries)
	}
}

func TestWriteFileErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func() func()
		op    string
	}{
		{
			name: "write",
			setup: func() func() {
				orig := tempFileWrite
				tempFileWrite = func(*os.File, []byte) (int, error) { return 0, errors.New("disk full") }
				return func() { tempFileWrite = orig }
			},
			op: "write",
		},
		{
			name: "close",
			setup: func() func() {
				orig := tempFileClose
				tempFileClose = func(c io.Closer) error {
					c.Close()
					return errors.New("close failed")
				}
				return func() { tempFileClose = orig }
			},
			op: "close",
		},
		{
			name: "rename",
			setup: func() func() {
				orig := osRename
				osRename = func(string, string) error { return errors.New("rename failed") }
				return func() { osRename = orig }
			},
			op: "rename",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restore := tt.setup()
			defer restore()

			dir := t.TempDir()
			err := (OS{}).WriteFile(filepath.Join(dir, "f"), []byte("x"))

			var ioErr *apperrors.IOError
			if !errors.As(err, &ioErr) {
				t.Fatalf("expected IOError, got %v", err)
			}
			if ioErr.Operation != tt.op {
				t.Errorf("Operation = %q, want %q", ioErr.Operation, tt.op)
			}

			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("leftover files: %v", entries)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := (OS{}).EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}

	blocker := filepath.Join(t.TempDir(), "file")
	os.WriteFile(blocker, nil, 0644)
	if err := (OS{}).EnsureDir(filepath.Join(blocker, "sub")); err == nil {
		t.Error("expected error when a parent is a file")
	}
}
