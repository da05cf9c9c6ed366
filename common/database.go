package common

import (
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Laisky/errors/v2"
	gosqlmysql "github.com/go-sql-driver/mysql"

	"github.com/qaforge/convotest/common/config"
)

var (
	UsingSQLite     atomic.Bool
	UsingPostgreSQL atomic.Bool
	UsingMySQL      atomic.Bool
)

var SQLitePath = config.SQLitePath
var SQLiteBusyTimeout = config.SQLiteBusyTimeout

// NormalizeMySQLDSN accepts both go-sql-driver DSNs and mysql:// URLs and
// returns a driver DSN with parseTime=true. Timestamps are read in UTC unless
// the caller already chose a loc.
func NormalizeMySQLDSN(dsn string) (string, error) {
	normalized, err := mysqlURLToDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "convert MySQL DSN")
	}

	cfg, err := gosqlmysql.ParseDSN(normalized)
	if err != nil {
		return "", errors.Wrap(err, "parse MySQL DSN")
	}
	cfg.ParseTime = true

	if !hasQueryOption(normalized, "loc") {
		cfg.Loc = time.UTC
	}

	return cfg.FormatDSN(), nil
}

func mysqlURLToDSN(dsn string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(dsn), "mysql://") {
		return dsn, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", errors.Wrap(err, "parse mysql:// DSN")
	}
	if parsed.Host == "" {
		return "", errors.New("mysql DSN missing host")
	}

	cfg := gosqlmysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = parsed.Host
	cfg.DBName = strings.TrimPrefix(parsed.Path, "/")
	if parsed.User != nil {
		cfg.User = parsed.User.Username()
		cfg.Passwd, _ = parsed.User.Password()
	}

	out := cfg.FormatDSN()
	if parsed.RawQuery != "" {
		sep := "?"
		if strings.Contains(out, "?") {
			sep = "&"
		}
		out += sep + parsed.RawQuery
	}
	return out, nil
}

func hasQueryOption(dsn, key string) bool {
	idx := strings.Index(dsn, "?")
	if idx == -1 {
		return false
	}
	values, err := url.ParseQuery(dsn[idx+1:])
	if err != nil {
		return false
	}
	_, ok := values[key]
	return ok
}
