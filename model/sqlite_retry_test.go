package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qaforge/convotest/common"
)

func useSQLiteFlag(t *testing.T, on bool) {
	t.Helper()
	prev := common.UsingSQLite.Load()
	common.UsingSQLite.Store(on)
	t.Cleanup(func() { common.UsingSQLite.Store(prev) })
}

func TestWithBusyRetry(t *testing.T) {
	t.Run("eventual success", func(t *testing.T) {
		useSQLiteFlag(t, true)
		attempts := 0
		err := withBusyRetry(context.Background(), "update run", func() error {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})

	t.Run("gives up", func(t *testing.T) {
		useSQLiteFlag(t, true)
		attempts := 0
		err := withBusyRetry(context.Background(), "update run", func() error {
			attempts++
			return errors.New("database is busy")
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "remained busy")
		require.Equal(t, busyRetryAttempts+1, attempts)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		useSQLiteFlag(t, true)
		attempts := 0
		err := withBusyRetry(context.Background(), "update run", func() error {
			attempts++
			return errors.New("constraint failed")
		})
		require.Error(t, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("context canceled", func(t *testing.T) {
		useSQLiteFlag(t, true)
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(busyRetryBaseDelay/2, cancel)
		err := withBusyRetry(ctx, "update run", func() error {
			return errors.New("database is locked")
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "context canceled")
	})

	t.Run("not sqlite", func(t *testing.T) {
		useSQLiteFlag(t, false)
		attempts := 0
		err := withBusyRetry(context.Background(), "update run", func() error {
			attempts++
			return errors.New("database is locked")
		})
		require.Error(t, err)
		require.Equal(t, 1, attempts)
	})
}
