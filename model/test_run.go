package model

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"

	qamodel "github.com/qaforge/convotest/qa/model"
)

// TestRun is the persisted form of qamodel.TestRun. Chats and results are
// stored as JSON documents; the run is written once at creation and once
// when it finishes.
type TestRun struct {
	Id        string                   `json:"id" gorm:"type:varchar(64);primaryKey"`
	Name      string                   `json:"name" gorm:"type:varchar(191)"`
	AgentId   string                   `json:"agent_id" gorm:"type:varchar(64);index"`
	CreatedBy string                   `json:"created_by" gorm:"type:varchar(64);index"`
	Status    string                   `json:"status" gorm:"type:varchar(16);index"`
	Metrics   qamodel.RunMetrics       `json:"metrics" gorm:"type:text;serializer:json"`
	Chats     []qamodel.Conversation   `json:"chats" gorm:"type:text;serializer:json"`
	Results   []qamodel.ScenarioResult `json:"results" gorm:"type:text;serializer:json"`
	Timestamp int64                    `json:"timestamp" gorm:"bigint;index"`
	CreatedAt int64                    `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt int64                    `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

func testRunFrom(run *qamodel.TestRun) *TestRun {
	return &TestRun{
		Id:        run.ID,
		Name:      run.Name,
		AgentId:   run.AgentID,
		CreatedBy: run.CreatedBy,
		Status:    string(run.Status),
		Metrics:   run.Metrics,
		Chats:     run.Chats,
		Results:   run.Results,
		Timestamp: run.Timestamp.UnixMilli(),
	}
}

// Domain converts the row back into the engine type.
func (r *TestRun) Domain() *qamodel.TestRun {
	run := &qamodel.TestRun{
		ID:        r.Id,
		Name:      r.Name,
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		Status:    qamodel.RunStatus(r.Status),
		Metrics:   r.Metrics,
		Chats:     r.Chats,
		Results:   r.Results,
		AgentID:   r.AgentId,
		CreatedBy: r.CreatedBy,
	}
	if run.Chats == nil {
		run.Chats = []qamodel.Conversation{}
	}
	if run.Results == nil {
		run.Results = []qamodel.ScenarioResult{}
	}
	return run
}

func CreateTestRun(ctx context.Context, run *qamodel.TestRun) error {
	return withBusyRetry(ctx, "create test run", func() error {
		return errors.Wrap(DB.WithContext(ctx).Create(testRunFrom(run)).Error, "create test run")
	})
}

// UpdateTestRun overwrites the stored snapshot.
func UpdateTestRun(ctx context.Context, run *qamodel.TestRun) error {
	row := testRunFrom(run)
	return withBusyRetry(ctx, "update test run", func() error {
		res := DB.WithContext(ctx).Model(&TestRun{Id: row.Id}).
			Select("name", "status", "metrics", "chats", "results", "updated_at").
			Updates(row)
		if res.Error != nil {
			return errors.Wrap(res.Error, "update test run")
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(qamodel.ErrConfigNotFound, "test run %s", row.Id)
		}
		return nil
	})
}

func GetTestRunById(ctx context.Context, id string) (*TestRun, error) {
	var r TestRun
	if err := DB.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, notFound(err, "test run", id)
	}
	return &r, nil
}

// GetTestRuns lists the runs created by profileId, newest first, without
// their chats.
func GetTestRuns(ctx context.Context, profileId string, offset, limit int) ([]*TestRun, error) {
	var runs []*TestRun
	err := DB.WithContext(ctx).
		Omit("chats").
		Where("created_by = ?", profileId).
		Order("timestamp desc").
		Offset(offset).
		Limit(limit).
		Find(&runs).Error
	return runs, errors.Wrap(err, "list test runs")
}
