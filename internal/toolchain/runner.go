package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/codebot/internal/diagfilter"
	"github.com/ashureev/codebot/internal/domain"
)

// eslintLegacyConfigEnv keeps ESLint 8.x/9.x reading the seeded .eslintrc.cjs.
const eslintLegacyConfigEnv = "ESLINT_USE_FLAT_CONFIG=false"

// Commands holds the argv for each tool. An empty argv skips that tool.
type Commands struct {
	Prettier   []string
	TypeScript []string
	ESLint     []string
}

// DefaultCommands returns the npx invocations used when nothing is configured.
func DefaultCommands() Commands {
	return Commands{
		Prettier:   []string{"npx", "prettier", "--write", "."},
		TypeScript: []string{"npx", "tsc", "--noEmit", "-p", "."},
		ESLint:     []string{"npx", "eslint", "--ext", ".ts,.tsx", "."},
	}
}

// ParseCommand splits a configured command line on whitespace.
func ParseCommand(line string) []string {
	return strings.Fields(line)
}

// ProgressFunc receives human-readable progress text before each step.
type ProgressFunc func(message string)

// Runner verifies extracted files by running the toolchain in a fresh workspace.
type Runner struct {
	exec     Executor
	ws       WorkspaceConfig
	commands Commands
}

// NewRunner creates a runner.
func NewRunner(exec Executor, ws WorkspaceConfig, commands Commands) *Runner {
	return &Runner{exec: exec, ws: ws, commands: commands}
}

// Run writes files into a new workspace and runs Prettier, tsc and ESLint in
// that order. Each tool contributes at most one diagnostic. Tools that fail to
// execute produce a diagnostic with SystemError set; the pipeline continues.
// The returned error is reserved for workspace failures.
func (r *Runner) Run(ctx context.Context, files []domain.ExtractedFile, progress ProgressFunc) ([]domain.Diagnostic, error) {
	if progress == nil {
		progress = func(string) {}
	}

	ws, err := NewWorkspace(r.ws)
	if err != nil {
		return nil, fmt.Errorf("prepare workspace: %w", err)
	}
	if !r.ws.Keep {
		defer func() {
			if err := ws.Remove(); err != nil {
				slog.Warn("Failed to remove workspace", "dir", ws.Dir, "error", err)
			}
		}()
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Filename)
	}
	progress(fmt.Sprintf("Writing %s to %s", strings.Join(names, ", "), ws.Dir))
	written, err := ws.WriteFiles(files)
	if err != nil {
		return nil, fmt.Errorf("write workspace: %w", err)
	}
	if len(written) == 0 {
		progress("No files to compile")
		return nil, nil
	}

	var diagnostics []domain.Diagnostic

	progress("Running Prettier on all files in " + ws.Dir)
	if d, ok := r.step(ctx, domain.SourcePrettier, r.commands.Prettier, ws.Dir, nil, nil); ok {
		diagnostics = append(diagnostics, d)
	}

	progress("Compiling TypeScript files in " + ws.Dir)
	if d, ok := r.step(ctx, domain.SourceTypeScript, r.commands.TypeScript, ws.Dir, nil, diagfilter.Filter); ok {
		diagnostics = append(diagnostics, d)
	}

	progress("Checking for ESLint errors in " + ws.Dir)
	if d, ok := r.step(ctx, domain.SourceESLint, r.commands.ESLint, ws.Dir, []string{eslintLegacyConfigEnv}, nil); ok {
		diagnostics = append(diagnostics, d)
	}

	slog.Debug("Toolchain run finished", "dir", ws.Dir, "files", len(written), "diagnostics", len(diagnostics))
	return diagnostics, nil
}

// step runs a single tool and converts its outcome into at most one diagnostic.
func (r *Runner) step(
	ctx context.Context,
	source domain.Source,
	argv []string,
	dir string,
	env []string,
	filter func(string) string,
) (domain.Diagnostic, bool) {
	if len(argv) == 0 {
		return domain.Diagnostic{}, false
	}
	cmd := Command{Tool: source, Name: argv[0], Args: argv[1:], Dir: dir, Env: env}

	res, err := r.exec.Run(ctx, cmd)
	if err != nil {
		slog.Warn("Tool failed to run", "tool", source, "command", cmd.String(), "error", err)
		text := strings.TrimSpace(res.Stderr)
		if text == "" {
			text = err.Error()
		}
		return domain.Diagnostic{Source: source, SystemError: text}, true
	}
	if res.ExitCode == 0 {
		return domain.Diagnostic{}, false
	}

	raw := res.Stdout
	if strings.TrimSpace(raw) == "" {
		raw = res.Stderr
	}
	if strings.TrimSpace(raw) == "" {
		return domain.Diagnostic{
			Source:  source,
			Message: fmt.Sprintf("%s exited with code %d", cmd.Name, res.ExitCode),
		}, true
	}

	msg := raw
	if filter != nil {
		msg = filter(raw)
		if strings.TrimSpace(msg) == "" {
			return domain.Diagnostic{}, false
		}
	}
	return domain.Diagnostic{Source: source, Message: strings.TrimRight(msg, "\n")}, true
}
