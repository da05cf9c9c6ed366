// Package dbmigrate copies convotest data between SQLite, MySQL and PostgreSQL.
package dbmigrate

import (
	"fmt"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/qaforge/convotest/common"
	"github.com/qaforge/convotest/common/logger"
)

// Connection is an open database with its detected type.
type Connection struct {
	DB   *gorm.DB
	Type string
	DSN  string
}

// DatabaseType infers the driver from the DSN scheme. A DSN without a
// scheme is treated as a SQLite file path.
func DatabaseType(dsn string) (string, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", nil
	case strings.HasPrefix(dsn, "mysql://"), strings.Contains(dsn, "@tcp("):
		return "mysql", nil
	case strings.HasPrefix(dsn, "sqlite://"), !strings.Contains(dsn, "://"):
		return "sqlite", nil
	default:
		return "", errors.Errorf("unsupported database dsn %q", dsn)
	}
}

// Connect opens and pings the database named by dsn.
func Connect(dsn string) (*Connection, error) {
	dbType, err := DatabaseType(dsn)
	if err != nil {
		return nil, err
	}

	cfg := &gorm.Config{
		PrepareStmt: true,
		Logger:      gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var db *gorm.DB
	switch dbType {
	case "sqlite":
		path := strings.TrimPrefix(dsn, "sqlite://")
		if !strings.Contains(path, "_busy_timeout") {
			sep := "?"
			if strings.Contains(path, "?") {
				sep = "&"
			}
			path += fmt.Sprintf("%s_busy_timeout=%d", sep, common.SQLiteBusyTimeout)
		}
		db, err = gorm.Open(sqlite.Open(path), cfg)
	case "mysql":
		normalized, normErr := common.NormalizeMySQLDSN(dsn)
		if normErr != nil {
			return nil, errors.Wrap(normErr, "normalize MySQL DSN")
		}
		db, err = gorm.Open(mysql.Open(normalized), cfg)
	case "postgres":
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), cfg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s database", dbType)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get underlying sql.DB")
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, errors.Wrapf(err, "ping %s database", dbType)
	}

	logger.Logger.Info("connected to database", zap.String("type", dbType))
	return &Connection{DB: db, Type: dbType, DSN: dsn}, nil
}

func (c *Connection) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return errors.Wrap(err, "get underlying sql.DB")
	}
	return errors.Wrapf(sqlDB.Close(), "close %s database", c.Type)
}

// TableExists reports whether table was created on this database.
func (c *Connection) TableExists(table string) bool {
	return c.DB.Migrator().HasTable(table)
}

func (c *Connection) RowCount(table string) (int64, error) {
	var count int64
	if err := c.DB.Table(table).Count(&count).Error; err != nil {
		return 0, errors.Wrapf(err, "count rows in %s", table)
	}
	return count, nil
}
