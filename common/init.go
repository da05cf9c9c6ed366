package common

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/qaforge/convotest/common/config"
	"github.com/qaforge/convotest/common/logger"
)

var (
	Port   = flag.Int("port", 3000, "HTTP listen port, overridden by PORT")
	LogDir = flag.String("log-dir", "./logs", "directory for log files, empty to log to stdout only")
)

// Init parses flags and prepares the log directory. It must run before
// logger.SetupLogger.
func Init() {
	flag.Parse()

	if config.JWTSecret == "" {
		logger.Logger.Warn("JWT_SECRET is empty, every authenticated route will reject requests")
	}
	SQLitePath = config.SQLitePath

	if *LogDir == "" {
		return
	}
	dir, err := resolveLogDir(*LogDir)
	if err != nil {
		logger.Logger.Fatal("prepare log dir", zap.String("log_dir", *LogDir), zap.Error(err))
	}
	logger.Logger.Info("set log dir", zap.String("log_dir", dir))
	logger.LogDir = dir
	*LogDir = dir
}

// resolveLogDir expands placeholders, makes the path absolute and creates it.
func resolveLogDir(raw string) (string, error) {
	dir, err := filepath.Abs(expandLogDirPath(raw))
	if err != nil {
		return "", errors.Wrap(err, "absolute log dir")
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create log dir")
	}
	return dir, nil
}
