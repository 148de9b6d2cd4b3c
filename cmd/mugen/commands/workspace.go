package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/mugen-ai/mugen/internal/config"
)

// loadWorkspaceConfig reads mugen.yml from dir, falling back to defaults
// when the file does not exist. An invalid file is an error; agents must
// not run with half-applied configuration.
func loadWorkspaceConfig(dir string) (*config.Config, error) {
	path := filepath.Join(dir, config.DefaultFileName)
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("invalid %s: %w", config.DefaultFileName, err)
	}
	return cfg, nil
}
