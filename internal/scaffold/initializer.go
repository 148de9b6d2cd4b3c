package scaffold

import (
	"embed"
	"fmt"
	"os"

	"github.com/mugen-ai/mugen/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the mugen project structure
// If force is true, it will remove an existing mugen.yml first
func Initialize(force bool) error {
	// Handle --force flag
	if force {
		if err := handleForce(); err != nil {
			return err
		}
	}

	// Get template files
	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	// Write files
	if err := writeFiles(files); err != nil {
		return err
	}

	// Validate created files
	if err := validateCreatedFiles(); err != nil {
		return err
	}

	return nil
}

// handleForce removes existing files if --force was specified
func handleForce() error {
	// Remove mugen.yml if it exists
	if _, err := os.Stat(config.DefaultFileName); err == nil {
		fmt.Printf("⚠️  Removing existing %s...\n", config.DefaultFileName)
		if err := os.Remove(config.DefaultFileName); err != nil {
			return fmt.Errorf("failed to remove %s: %w", config.DefaultFileName, err)
		}
	}

	return nil
}

// getTemplateFiles reads and processes all template files
func getTemplateFiles() ([]FileInfo, error) {
	files := []FileInfo{}

	// mugen.yml
	mugenYml, err := templatesFS.ReadFile("templates/mugen.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read mugen.yml template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        config.DefaultFileName,
		Content:     mugenYml,
		Permissions: 0644,
	})

	return files, nil
}

// writeFiles writes all template files to disk
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// validateCreatedFiles checks the created config loads cleanly, so a broken
// template fails init rather than the first `mugen up`.
func validateCreatedFiles() error {
	if _, err := config.Load(config.DefaultFileName); err != nil {
		return fmt.Errorf("created %s does not load: %w", config.DefaultFileName, err)
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized mugen project!")
	fmt.Println("\nCreated:")
	fmt.Printf("  ✓ %s\n", config.DefaultFileName)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Customize %s to tune agent limits or add custom roles\n", config.DefaultFileName)
	fmt.Println("  2. Run 'mugen up' to start the coordination instance")
	fmt.Println("  3. Run 'mugen solve \"<problem>\"' to put agents to work")
}
