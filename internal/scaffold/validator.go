package scaffold

import (
	"fmt"
	"os"

	"github.com/mugen-ai/mugen/internal/config"
)

// CheckExisting checks if mugen.yml already exists
// Returns an error if it does, nil otherwise
func CheckExisting() error {
	if _, err := os.Stat(config.DefaultFileName); err == nil {
		return fmt.Errorf("project already initialized\n\nFound existing: %s\n\nUse 'mugen init --force' to reinitialize (this will overwrite existing configuration)", config.DefaultFileName)
	}

	return nil
}
