package model

import (
	"context"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/qaforge/convotest/common"
	"github.com/qaforge/convotest/common/logger"
)

const (
	busyRetryAttempts  = 5
	busyRetryBaseDelay = 20 * time.Millisecond
)

// withBusyRetry runs fn and, on SQLite only, retries with linear backoff
// while the driver reports a locked database. Run snapshots from parallel
// requests are the usual source of contention.
func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	if !common.UsingSQLite.Load() {
		return fn()
	}

	var lastErr error
	for attempt := 0; attempt <= busyRetryAttempts; attempt++ {
		if attempt > 0 {
			logger.FromContext(ctx).Debug("sqlite busy, retrying",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(lastErr))
			timer := time.NewTimer(time.Duration(attempt) * busyRetryBaseDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Wrapf(lastErr, "%s: context canceled while waiting for SQLite lock", op)
			case <-timer.C:
			}
		}

		if lastErr = fn(); lastErr == nil || !isSQLiteBusy(lastErr) {
			return lastErr
		}
	}
	return errors.Wrapf(lastErr, "%s: SQLite remained busy after retries", op)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "database is busy")
}
