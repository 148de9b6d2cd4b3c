package scaffold

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// chdirTemp moves the test into a fresh temp directory and restores the
// original working directory on cleanup.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	original, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(original) })
	return dir
}

func TestCheckExisting_EmptyDirectory(t *testing.T) {
	chdirTemp(t)

	if err := CheckExisting(); err != nil {
		t.Errorf("CheckExisting() in empty directory = %v, want nil", err)
	}
}

func TestCheckExisting_ConfigPresent(t *testing.T) {
	dir := chdirTemp(t)
	if err := os.WriteFile(filepath.Join(dir, "mugen.yml"), []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	err := CheckExisting()
	if err == nil {
		t.Fatal("CheckExisting() = nil, want error for existing mugen.yml")
	}
	if !strings.Contains(err.Error(), "mugen.yml") {
		t.Errorf("CheckExisting() error = %v, should name mugen.yml", err)
	}
	if !strings.Contains(err.Error(), "project already initialized") {
		t.Errorf("CheckExisting() error = %v, should mention prior initialization", err)
	}
}
