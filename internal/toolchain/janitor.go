package toolchain

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const janitorInterval = 5 * time.Minute

// StartJanitor runs a background goroutine that periodically removes run
// directories older than ttl. These are left behind by crashes or by Keep.
func StartJanitor(ctx context.Context, root string, ttl time.Duration) {
	if ttl <= 0 || root == "" {
		return
	}
	ticker := time.NewTicker(janitorInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Workspace janitor started", "interval", janitorInterval, "ttl", ttl, "root", root)

		for {
			select {
			case now := <-ticker.C:
				sweepWorkspaces(root, ttl, now)
			case <-ctx.Done():
				slog.Info("Workspace janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// sweepWorkspaces removes expired run directories and returns how many were removed.
func sweepWorkspaces(root string, ttl time.Duration, now time.Time) int {
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("Workspace janitor failed to list root", "root", root, "error", err)
		}
		return 0
	}

	cutoff := now.Add(-ttl)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Workspace janitor failed to remove run directory", "dir", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		slog.Info("Workspace janitor cleanup completed", "removed", removed)
	}
	return removed
}
