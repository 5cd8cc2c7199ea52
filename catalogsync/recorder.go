package catalogsync

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/tiendamascotas/catalog_sync/config"
	"github.com/tiendamascotas/catalog_sync/models"
)

// Error codes stored on SyncError rows. Item-scoped failures are worth a
// retry; a fatal setup failure is not, it needs operator attention first.
const (
	errCodeUnpublish  = "unpublish_failed"
	errCodeUpsert     = "upsert_failed"
	errCodeFatalSetup = "fatal_setup"
)

func retryableErrorCode(code string) bool {
	return code != errCodeFatalSetup
}

// Recorder persists run history and per-item errors. Every method
// nil-guards the DB handle so the one-shot binary can run without MySQL;
// persistence is observability, not correctness.
type Recorder struct {
	db    *gorm.DB
	runID uint
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// AttachRun binds the recorder to an already-created queued run (service
// mode). In one-shot mode StartRun creates the row instead.
func (r *Recorder) AttachRun(runID uint) {
	r.runID = runID
}

func (r *Recorder) RunID() uint {
	return r.runID
}

// StartRun marks the run as running, creating the row when none was
// attached.
func (r *Recorder) StartRun(ctx context.Context, triggeredBy string, startedAt time.Time) error {
	if r.db == nil {
		return nil
	}
	if r.runID == 0 {
		run := models.SyncRun{
			Status:      models.SyncRunStatusRunning,
			TriggeredBy: triggeredBy,
			StartedAt:   &startedAt,
		}
		if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
			return err
		}
		r.runID = run.ID
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ?", r.runID).
		Updates(map[string]interface{}{
			"status":     models.SyncRunStatusRunning,
			"started_at": startedAt,
		}).Error
}

// FinishRun records the final status and tally. A run with errors but some
// progress is partial; all-errors-no-progress is failed.
func (r *Recorder) FinishRun(ctx context.Context, summary Summary, startedAt time.Time) error {
	if r.db == nil || r.runID == 0 {
		return nil
	}

	finishedAt := time.Now()
	status := models.SyncRunStatusSuccess
	synced := summary.Upserted + summary.Unpublished
	if summary.Errors > 0 && synced == 0 {
		status = models.SyncRunStatusFailed
	} else if summary.Errors > 0 {
		status = models.SyncRunStatusPartial
	}

	statsJSON, _ := json.Marshal(summary)
	return r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ?", r.runID).
		Updates(map[string]interface{}{
			"status":         status,
			"finished_at":    finishedAt,
			"duration_ms":    finishedAt.Sub(startedAt).Milliseconds(),
			"records_synced": synced,
			"error_count":    summary.Errors,
			"stats_json":     statsJSON,
		}).Error
}

// MarkFailed records a run that aborted before reaching the plan.
func (r *Recorder) MarkFailed(ctx context.Context, startedAt time.Time, cause error) {
	if r.db == nil || r.runID == 0 {
		return
	}
	finishedAt := time.Now()
	_ = r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ?", r.runID).
		Updates(map[string]interface{}{
			"status":      models.SyncRunStatusFailed,
			"finished_at": finishedAt,
			"duration_ms": finishedAt.Sub(startedAt).Milliseconds(),
			"error_count": 1,
		}).Error
	r.RecordError(ctx, "", "", errCodeFatalSetup, cause)
}

// RecordError stores one per-item (or setup) error row.
func (r *Recorder) RecordError(ctx context.Context, sku, name, code string, cause error) {
	if r.db == nil || r.runID == 0 {
		return
	}
	err := r.db.WithContext(ctx).Create(&models.SyncError{
		SyncRunId: r.runID,
		SKU:       sku,
		ItemName:  name,
		ErrorCode: code,
		Message:   cause.Error(),
		Retryable: retryableErrorCode(code),
	}).Error
	if err != nil {
		config.LogError(config.GetLogger(), "catalogsync", "RecordError", "persist sync error row", map[string]any{"run_id": r.runID, "sku": sku}, err)
	}
}
