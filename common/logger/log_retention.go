package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
)

const retentionSweepInterval = 24 * time.Hour

// StartLogRetentionCleaner removes *.log files in logDir older than
// retentionDays, once immediately and then daily until ctx is done.
func StartLogRetentionCleaner(ctx context.Context, retentionDays int, logDir string) {
	if retentionDays <= 0 || strings.TrimSpace(logDir) == "" {
		return
	}
	maxAge := time.Duration(retentionDays) * 24 * time.Hour
	lg := Logger.Named("log_retention").With(zap.String("log_dir", logDir))

	sweep := func() {
		removed, err := removeLogsBefore(logDir, time.Now().Add(-maxAge))
		if err != nil {
			lg.Warn("log retention sweep failed", zap.Error(err))
			return
		}
		if len(removed) > 0 {
			lg.Info("expired log files removed", zap.Strings("files", removed))
		}
	}
	sweep()

	go func() {
		ticker := time.NewTicker(retentionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()
}

// removeLogsBefore deletes log files last modified before cutoff and returns
// their names. Files that cannot be inspected or removed are skipped.
func removeLogsBefore(dir string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read log dir %s", dir)
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err = os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			Logger.Warn("remove expired log file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		removed = append(removed, entry.Name())
	}
	return removed, nil
}
