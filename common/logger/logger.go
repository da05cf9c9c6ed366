package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/config"
)

var (
	Logger       glog.Logger
	LogDir       string
	setupLogOnce sync.Once
	initLogOnce  sync.Once
)

func init() {
	initLogger()
}

func initLogger() {
	initLogOnce.Do(func() {
		var err error
		level := glog.LevelInfo
		if config.DebugEnabled {
			level = glog.LevelDebug
		}

		Logger, err = glog.NewConsoleWithName("convotest", level)
		if err != nil {
			panic(fmt.Sprintf("failed to create logger: %+v", err))
		}
	})
}

// logFilePath returns the file the process should append to inside dir.
func logFilePath(dir string, now time.Time) string {
	if config.OnlyOneLogFile {
		return filepath.Join(dir, "convotest.log")
	}
	return filepath.Join(dir, fmt.Sprintf("convotest-%s.log", now.Format("20060102")))
}

// SetupLogger mirrors gin's writers into LogDir when it is set.
func SetupLogger() {
	setupLogOnce.Do(func() {
		if LogDir == "" {
			return
		}
		fd, err := os.OpenFile(logFilePath(LogDir, time.Now()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatal("failed to open log file")
		}
		gin.DefaultWriter = io.MultiWriter(os.Stdout, fd)
		gin.DefaultErrorWriter = io.MultiWriter(os.Stderr, fd)
	})
}

// SetupHostLogger attaches the hostname to every record and applies the configured level.
func SetupHostLogger() {
	hostname, err := os.Hostname()
	if err != nil {
		Logger.Panic("get hostname", zap.Error(err))
	}

	Logger = Logger.With(zap.String("host", hostname))

	if config.DebugEnabled {
		_ = Logger.ChangeLevel("debug")
		Logger.Info("running in debug mode")
	} else {
		_ = Logger.ChangeLevel("info")
	}
}

// FromContext returns the request-scoped logger set by the gin logger
// middleware or gmw.SetLogger, falling back to the process logger.
func FromContext(ctx context.Context) glog.Logger {
	if ctx != nil {
		if lg := gmw.GetLogger(ctx); lg != nil {
			return lg
		}
	}
	return Logger
}
