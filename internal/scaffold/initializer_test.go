package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mugen-ai/mugen/internal/config"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		setupFunc func(string)
		wantErr   bool
	}{
		{
			name:  "fresh initialization",
			force: false,
			setupFunc: func(dir string) {
				// No setup needed - clean directory
			},
			wantErr: false,
		},
		{
			name:  "force initialization removes existing file",
			force: true,
			setupFunc: func(dir string) {
				os.WriteFile(filepath.Join(dir, "mugen.yml"), []byte("old content"), 0644)
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir, err := os.MkdirTemp("", "init-test-*")
			if err != nil {
				t.Fatal(err)
			}
			defer os.RemoveAll(tmpDir)

			// Change to test directory
			originalDir, err := os.Getwd()
			if err != nil {
				t.Fatal(err)
			}
			defer os.Chdir(originalDir)

			if err := os.Chdir(tmpDir); err != nil {
				t.Fatal(err)
			}

			// Run setup
			tt.setupFunc(tmpDir)

			// Run initialization
			err = Initialize(tt.force)

			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				// Verify mugen.yml was created
				if _, err := os.Stat(filepath.Join(tmpDir, "mugen.yml")); err != nil {
					t.Errorf("Expected mugen.yml to exist, but got error: %v", err)
				}

				// Verify mugen.yml loads through the config package
				cfg, err := config.Load(filepath.Join(tmpDir, "mugen.yml"))
				if err != nil {
					t.Errorf("Created mugen.yml does not load: %v", err)
				} else if cfg.Version != 1 {
					t.Errorf("Created mugen.yml has version %d, want 1", cfg.Version)
				}

				// If force was true, verify old content was replaced
				if tt.force {
					content, err := os.ReadFile(filepath.Join(tmpDir, "mugen.yml"))
					if err != nil {
						t.Fatal(err)
					}
					if string(content) == "old content" {
						t.Errorf("Expected mugen.yml to be replaced, but old content remains")
					}
				}
			}
		})
	}
}

func TestHandleForce(t *testing.T) {
	tests := []struct {
		name      string
		setupFunc func(string)
		wantErr   bool
	}{
		{
			name: "removes existing mugen.yml",
			setupFunc: func(dir string) {
				os.WriteFile(filepath.Join(dir, "mugen.yml"), []byte("content"), 0644)
			},
			wantErr: false,
		},
		{
			name: "handles when file doesn't exist",
			setupFunc: func(dir string) {
				// No files to remove
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir, err := os.MkdirTemp("", "force-test-*")
			if err != nil {
				t.Fatal(err)
			}
			defer os.RemoveAll(tmpDir)

			originalDir, err := os.Getwd()
			if err != nil {
				t.Fatal(err)
			}
			defer os.Chdir(originalDir)

			if err := os.Chdir(tmpDir); err != nil {
				t.Fatal(err)
			}

			tt.setupFunc(tmpDir)

			err = handleForce()

			if (err != nil) != tt.wantErr {
				t.Errorf("handleForce() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			// Verify file was removed
			if _, err := os.Stat(filepath.Join(tmpDir, "mugen.yml")); err == nil {
				t.Errorf("mugen.yml should have been removed")
			}
		})
	}
}

func TestGetTemplateFiles(t *testing.T) {
	files, err := getTemplateFiles()
	if err != nil {
		t.Fatalf("getTemplateFiles() error = %v", err)
	}

	if len(files) != 1 {
		t.Fatalf("getTemplateFiles() returned %d files, want 1", len(files))
	}

	file := files[0]
	if file.Path != "mugen.yml" {
		t.Errorf("Unexpected file in template: %s", file.Path)
	}
	if file.Permissions != 0644 {
		t.Errorf("File %s has permissions %v, want %v", file.Path, file.Permissions, os.FileMode(0644))
	}
	if len(file.Content) == 0 {
		t.Errorf("File %s has empty content", file.Path)
	}
}

func TestWriteFiles(t *testing.T) {
	tests := []struct {
		name      string
		setupFunc func() (string, func())
		files     []FileInfo
		wantErr   bool
	}{
		{
			name: "successful write",
			setupFunc: func() (string, func()) {
				tmpDir, err := os.MkdirTemp("", "write-files-test-*")
				if err != nil {
					t.Fatal(err)
				}
				return tmpDir, func() { os.RemoveAll(tmpDir) }
			},
			files: []FileInfo{
				{
					Path:        "test.txt",
					Content:     []byte("test content"),
					Permissions: 0644,
				},
				{
					Path:        "script.sh",
					Content:     []byte("#!/bin/bash\necho test"),
					Permissions: 0755,
				},
			},
			wantErr: false,
		},
		{
			name: "fails when directory doesn't exist",
			setupFunc: func() (string, func()) {
				tmpDir, err := os.MkdirTemp("", "write-files-fail-test-*")
				if err != nil {
					t.Fatal(err)
				}
				return tmpDir, func() { os.RemoveAll(tmpDir) }
			},
			files: []FileInfo{
				{
					Path:        "nonexistent/dir/file.txt",
					Content:     []byte("test"),
					Permissions: 0644,
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, cleanup := tt.setupFunc()
			defer cleanup()

			originalDir, err := os.Getwd()
			if err != nil {
				t.Fatal(err)
			}
			defer os.Chdir(originalDir)

			if err := os.Chdir(dir); err != nil {
				t.Fatal(err)
			}

			err = writeFiles(tt.files)

			if (err != nil) != tt.wantErr {
				t.Errorf("writeFiles() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				for _, file := range tt.files {
					fullPath := filepath.Join(dir, file.Path)

					// Check file exists
					info, err := os.Stat(fullPath)
					if err != nil {
						t.Errorf("Expected file %s to exist, but got error: %v", file.Path, err)
						continue
					}

					// Check permissions
					if info.Mode().Perm() != file.Permissions {
						t.Errorf("File %s has permissions %v, want %v", file.Path, info.Mode().Perm(), file.Permissions)
					}

					// Check content
					content, err := os.ReadFile(fullPath)
					if err != nil {
						t.Errorf("Failed to read file %s: %v", file.Path, err)
						continue
					}

					if string(content) != string(file.Content) {
						t.Errorf("File %s has content %q, want %q", file.Path, content, file.Content)
					}
				}
			}
		})
	}
}

func TestValidateCreatedFiles(t *testing.T) {
	tests := []struct {
		name      string
		setupFunc func(string)
		wantErr   bool
	}{
		{
			name: "valid config",
			setupFunc: func(dir string) {
				validYaml := `version: 1
agents:
  max_concurrent: 3
`
				os.WriteFile(filepath.Join(dir, "mugen.yml"), []byte(validYaml), 0644)
			},
			wantErr: false,
		},
		{
			name: "unknown field rejected",
			setupFunc: func(dir string) {
				invalidYaml := `version: 1
agnets:
  max_concurrent: 3
`
				os.WriteFile(filepath.Join(dir, "mugen.yml"), []byte(invalidYaml), 0644)
			},
			wantErr: true,
		},
		{
			name: "missing file",
			setupFunc: func(dir string) {
				// Don't create mugen.yml
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir, err := os.MkdirTemp("", "validate-test-*")
			if err != nil {
				t.Fatal(err)
			}
			defer os.RemoveAll(tmpDir)

			originalDir, err := os.Getwd()
			if err != nil {
				t.Fatal(err)
			}
			defer os.Chdir(originalDir)

			if err := os.Chdir(tmpDir); err != nil {
				t.Fatal(err)
			}

			tt.setupFunc(tmpDir)

			err = validateCreatedFiles()

			if (err != nil) != tt.wantErr {
				t.Errorf("validateCreatedFiles() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
