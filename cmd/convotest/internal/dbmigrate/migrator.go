package dbmigrate

import (
	"context"
	"reflect"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/model"
)

const defaultBatchSize = 500

// Migrator copies every convotest table from Source to Target. Rows that
// already exist in the target are left untouched, so a migration can be
// resumed after a failure.
type Migrator struct {
	SourceDSN string
	TargetDSN string
	DryRun    bool
	BatchSize int

	source *Connection
	target *Connection
}

// TablePlan is the row count of one table in the source.
type TablePlan struct {
	Name    string `json:"name"`
	Records int64  `json:"records"`
}

// Stats summarises a finished migration.
type Stats struct {
	Tables   []TablePlan `json:"tables"`
	Copied   int64       `json:"copied"`
	Duration time.Duration
}

type table struct {
	name  string
	model any
}

// tables resolves the table name of every model in foreign key order.
func tables(db *gorm.DB) ([]table, error) {
	var out []table
	for _, m := range model.Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, errors.Wrapf(err, "parse model %T", m)
		}
		out = append(out, table{name: stmt.Schema.Table, model: m})
	}
	return out, nil
}

// Migrate connects to both databases, prepares the target schema and
// copies the data table by table. With DryRun only the plan is computed.
func (m *Migrator) Migrate(ctx context.Context) (*Stats, error) {
	start := time.Now()
	if m.BatchSize <= 0 {
		m.BatchSize = defaultBatchSize
	}
	if m.SourceDSN == m.TargetDSN {
		return nil, errors.New("source and target databases cannot be the same")
	}

	var err error
	if m.source, err = Connect(m.SourceDSN); err != nil {
		return nil, errors.Wrap(err, "source")
	}
	defer m.close(m.source, "source")
	if m.target, err = Connect(m.TargetDSN); err != nil {
		return nil, errors.Wrap(err, "target")
	}
	defer m.close(m.target, "target")

	tbls, err := tables(m.source.DB)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, t := range tbls {
		var count int64
		if m.source.TableExists(t.name) {
			if count, err = m.source.RowCount(t.name); err != nil {
				return nil, err
			}
		}
		stats.Tables = append(stats.Tables, TablePlan{Name: t.name, Records: count})
	}

	if m.DryRun {
		logger.Logger.Info("dry run, nothing copied")
		stats.Duration = time.Since(start)
		return stats, nil
	}

	if err = model.MigrateDB(m.target.DB); err != nil {
		return nil, errors.Wrap(err, "prepare target schema")
	}

	for i, t := range tbls {
		if stats.Tables[i].Records == 0 {
			continue
		}
		copied, err := m.copyTable(ctx, t)
		stats.Copied += copied
		if err != nil {
			return stats, errors.Wrapf(err, "copy table %s", t.name)
		}
		logger.Logger.Info("table migrated",
			zap.String("table", t.name),
			zap.Int64("records", copied))
	}

	stats.Duration = time.Since(start)
	logger.Logger.Info("migration completed",
		zap.Int64("records", stats.Copied),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// copyTable reads the source in primary key order and inserts each batch
// into the target, skipping rows whose key already exists.
func (m *Migrator) copyTable(ctx context.Context, t table) (int64, error) {
	sliceType := reflect.SliceOf(reflect.TypeOf(t.model))
	var copied int64

	for offset := 0; ; offset += m.BatchSize {
		if err := ctx.Err(); err != nil {
			return copied, errors.WithStack(err)
		}

		batch := reflect.New(sliceType)
		err := m.source.DB.WithContext(ctx).
			Model(t.model).
			Order(clause.OrderByColumn{Column: clause.Column{Table: clause.CurrentTable, Name: clause.PrimaryKey}}).
			Offset(offset).
			Limit(m.BatchSize).
			Find(batch.Interface()).Error
		if err != nil {
			return copied, errors.Wrapf(err, "read batch at offset %d", offset)
		}

		n := batch.Elem().Len()
		if n == 0 {
			return copied, nil
		}
		err = m.target.DB.WithContext(ctx).
			Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(batch.Interface()).Error
		if err != nil {
			return copied, errors.Wrapf(err, "write batch at offset %d", offset)
		}
		copied += int64(n)
		if n < m.BatchSize {
			return copied, nil
		}
	}
}

func (m *Migrator) close(c *Connection, role string) {
	if err := c.Close(); err != nil {
		logger.Logger.Error("close database", zap.String("role", role), zap.Error(err))
	}
}
