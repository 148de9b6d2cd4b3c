package instance

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves the test into dir and restores the working directory on
// cleanup. GetCanonicalWorkspacePath shells out to git, which only
// looks at the process working directory.
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestGetCanonicalWorkspacePath(t *testing.T) {
	tmpDir := t.TempDir()

	gitInit := exec.Command("git", "init")
	gitInit.Dir = tmpDir
	require.NoError(t, gitInit.Run())

	chdir(t, tmpDir)

	path, err := GetCanonicalWorkspacePath()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))

	// t.TempDir may itself sit behind a symlink (e.g. /tmp on macOS),
	// so compare against the resolved form.
	realTmp, err := filepath.EvalSymlinks(tmpDir)
	require.NoError(t, err)
	absTmp, err := filepath.Abs(realTmp)
	require.NoError(t, err)
	assert.Equal(t, absTmp, path)
}

func TestGetCanonicalWorkspacePath_NotGitRepo(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := GetCanonicalWorkspacePath()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get git root")
}

func TestHostifyPath_OutsideMount(t *testing.T) {
	// Paths not under /app never get translated, containerized or not.
	assert.Equal(t, "/home/dev/project", hostifyPath("/home/dev/project"))
}
