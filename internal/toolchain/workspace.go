package toolchain

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ashureev/codebot/internal/domain"
	"github.com/ashureev/codebot/internal/extract"
)

// workspacePrefix marks directories owned by the runner. The janitor only
// ever touches entries with this prefix.
const workspacePrefix = "run-"

//go:embed all:templates
var templateFS embed.FS

// ErrInvalidFilename is returned when a file name would escape the workspace.
var ErrInvalidFilename = errors.New("invalid filename")

// WorkspaceConfig controls where run directories live and what they contain.
type WorkspaceConfig struct {
	// Root is the parent directory for all run directories.
	Root string
	// NodeModulesDir, when set, is symlinked into every run directory so the
	// tools resolve their own plugins without a per-run install.
	NodeModulesDir string
	// Keep disables removal after a run, for debugging.
	Keep bool
}

// Workspace is a single run's scratch directory.
type Workspace struct {
	Dir string
}

// NewWorkspace creates a fresh run directory under cfg.Root, seeded with the
// tool configuration templates.
func NewWorkspace(cfg WorkspaceConfig) (*Workspace, error) {
	if cfg.Root == "" {
		return nil, errors.New("workspace root is not configured")
	}
	// Bind mounts reject relative sources.
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	dir := filepath.Join(root, workspacePrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	ws := &Workspace{Dir: dir}

	if err := ws.seedTemplates(); err != nil {
		_ = ws.Remove()
		return nil, err
	}
	if cfg.NodeModulesDir != "" {
		if err := os.Symlink(cfg.NodeModulesDir, filepath.Join(dir, "node_modules")); err != nil {
			_ = ws.Remove()
			return nil, fmt.Errorf("link node_modules: %w", err)
		}
	}
	return ws, nil
}

func (w *Workspace) seedTemplates() error {
	return fs.WalkDir(templateFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := templateFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read template %s: %w", path, err)
		}
		target := filepath.Join(w.Dir, strings.TrimPrefix(path, "templates/"))
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("seed template %s: %w", d.Name(), err)
		}
		return nil
	})
}

// WriteFiles writes every file into the workspace and returns the names
// written. Files whose names fail validation are skipped and logged.
func (w *Workspace) WriteFiles(files []domain.ExtractedFile) ([]string, error) {
	written := make([]string, 0, len(files))
	for _, f := range files {
		path, err := w.path(f.Filename)
		if err != nil {
			slog.Warn("Skipping extracted file", "filename", f.Filename, "error", err)
			continue
		}
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", f.Filename, err)
		}
		written = append(written, f.Filename)
	}
	return written, nil
}

// path resolves name inside the workspace, rejecting anything that is not a
// single allow-listed path segment.
func (w *Workspace) path(name string) (string, error) {
	if !extract.ValidFilename(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	path := filepath.Join(w.Dir, name)
	if filepath.Dir(path) != filepath.Clean(w.Dir) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return path, nil
}

// Remove deletes the run directory. The node_modules symlink is removed, not followed.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.Dir, err)
	}
	return nil
}
