package entity

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// CrawlRunStatus is the lifecycle state of a pipeline run.
type CrawlRunStatus string

const (
	CrawlRunStatusRunning   CrawlRunStatus = "running"
	CrawlRunStatusCompleted CrawlRunStatus = "completed"
	CrawlRunStatusFailed    CrawlRunStatus = "failed"
)

// CrawlRun records one execution of the pipeline.
type CrawlRun struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	Trigger      string         `gorm:"not null" json:"trigger"`
	Status       CrawlRunStatus `gorm:"type:varchar(20);not null" json:"status"`
	StartedAt    time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt  sql.NullTime   `json:"completed_at"`
	Summary      datatypes.JSON `gorm:"type:jsonb" json:"summary"`
	ErrorMessage sql.NullString `json:"error_message"`
}

func (CrawlRun) TableName() string {
	return "crawl_runs"
}
