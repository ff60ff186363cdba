package toolchain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/codebot/internal/domain"
)

func TestNewWorkspaceSeedsTemplates(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ws, err := NewWorkspace(WorkspaceConfig{Root: root})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(ws.Dir), workspacePrefix))
	assert.Equal(t, root, filepath.Dir(ws.Dir))

	tsconfig, err := os.ReadFile(filepath.Join(ws.Dir, "tsconfig.json"))
	require.NoError(t, err)
	assert.Contains(t, string(tsconfig), `"include": ["*.tsx", "*.ts", "*.js"]`)

	for _, name := range []string{".eslintrc.cjs", ".prettierrc"} {
		_, err := os.Stat(filepath.Join(ws.Dir, name))
		assert.NoError(t, err, name)
	}

	require.NoError(t, ws.Remove())
	_, err = os.Stat(ws.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestNewWorkspaceLinksNodeModules(t *testing.T) {
	t.Parallel()

	modules := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modules, "marker"), []byte("x"), 0o644))

	ws, err := NewWorkspace(WorkspaceConfig{Root: t.TempDir(), NodeModulesDir: modules})
	require.NoError(t, err)

	target, err := os.Readlink(filepath.Join(ws.Dir, "node_modules"))
	require.NoError(t, err)
	assert.Equal(t, modules, target)

	require.NoError(t, ws.Remove())
	_, err = os.Stat(filepath.Join(modules, "marker"))
	assert.NoError(t, err, "removing the workspace must not follow the symlink")
}

func TestNewWorkspaceResolvesRelativeRoot(t *testing.T) {
	base := t.TempDir()
	t.Chdir(base)

	ws, err := NewWorkspace(WorkspaceConfig{Root: "./data/workspaces"})
	require.NoError(t, err)
	defer func() { _ = ws.Remove() }()

	assert.True(t, filepath.IsAbs(ws.Dir), "workspace dir %q is relative", ws.Dir)
	resolved, err := filepath.EvalSymlinks(filepath.Dir(ws.Dir))
	require.NoError(t, err)
	wantRoot, err := filepath.EvalSymlinks(filepath.Join(base, "data", "workspaces"))
	require.NoError(t, err)
	assert.Equal(t, wantRoot, resolved)
}

func TestNewWorkspaceRequiresRoot(t *testing.T) {
	t.Parallel()

	_, err := NewWorkspace(WorkspaceConfig{})
	assert.Error(t, err)
}

func TestWorkspaceWriteFiles(t *testing.T) {
	t.Parallel()

	ws, err := NewWorkspace(WorkspaceConfig{Root: t.TempDir()})
	require.NoError(t, err)

	written, err := ws.WriteFiles([]domain.ExtractedFile{
		{Filename: "App.tsx", Content: "export default 1"},
		{Filename: "../../etc/passwd.ts", Content: "nope"},
		{Filename: "nested/dir.ts", Content: "nope"},
		{Filename: "util.ts", Content: "export const u = 2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"App.tsx", "util.ts"}, written)

	data, err := os.ReadFile(filepath.Join(ws.Dir, "util.ts"))
	require.NoError(t, err)
	assert.Equal(t, "export const u = 2", string(data))
}

func TestSweepWorkspaces(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	now := time.Now()

	old := filepath.Join(root, workspacePrefix+"old")
	fresh := filepath.Join(root, workspacePrefix+"fresh")
	foreign := filepath.Join(root, "keep-me")
	for _, dir := range []string{old, fresh, foreign} {
		require.NoError(t, os.Mkdir(dir, 0o755))
	}
	stale := now.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))
	require.NoError(t, os.Chtimes(foreign, stale, stale))

	removed := sweepWorkspaces(root, time.Hour, now)
	assert.Equal(t, 1, removed)

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
	_, err = os.Stat(foreign)
	assert.NoError(t, err)
}

func TestSweepWorkspacesMissingRoot(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, sweepWorkspaces(filepath.Join(t.TempDir(), "missing"), time.Hour, time.Now()))
}
