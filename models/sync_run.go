package models

import (
	"log"
	"time"

	"gorm.io/gorm"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
	SyncTriggeredSystem = "system"
)

type SyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	StatsJSON     []byte     `gorm:"type:json" json:"stats"`
	RecordsSynced int        `json:"records_synced"`
	ErrorCount    int        `json:"error_count"`
	ParentRunId   *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncError struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	SyncRunId uint      `gorm:"index;not null" json:"sync_run_id"`
	SKU       string    `gorm:"size:128" json:"sku"`
	ItemName  string    `gorm:"size:255" json:"item_name"`
	ErrorCode string    `gorm:"size:64" json:"error_code"`
	Message   string    `gorm:"type:text" json:"message"`
	Retryable bool      `gorm:"default:false" json:"retryable"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func MigrateTable(db *gorm.DB) {
	if db == nil {
		return
	}
	if err := db.AutoMigrate(&SyncRun{}, &SyncError{}); err != nil {
		log.Printf("auto migrate failed: %v", err)
	}
}
