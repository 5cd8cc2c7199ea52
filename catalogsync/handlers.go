package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/tiendamascotas/catalog_sync/config"
	"github.com/tiendamascotas/catalog_sync/models"
	"github.com/tiendamascotas/catalog_sync/utils"
)

// Service exposes the sync engine over HTTP: trigger, status, run history,
// and the Pub/Sub push endpoint that executes queued runs.
type Service struct {
	Runner *Runner
	DB     *gorm.DB // nil disables history endpoints' persistence
	Log    *logrus.Logger
}

// database returns the injected handle when set (tests) and the shared
// config handle otherwise. The config handle is connected after the server
// starts listening, so handlers read it per request instead of caching it
// at wiring time. Nil means run history is disabled.
func (s *Service) database() *gorm.DB {
	if s.DB != nil {
		return s.DB
	}
	return config.GetDB()
}

func (s *Service) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := s.database()
		if db == nil {
			c.JSON(http.StatusOK, StatusResponse{HistoryEnabled: false})
			return
		}

		var last models.SyncRun
		err := db.WithContext(c.Request.Context()).Order("id desc").Take(&last).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := StatusResponse{HistoryEnabled: true}
		if err == nil {
			run := mapRunToResponse(last)
			resp.LastRun = &run
		}

		var lastSuccess models.SyncRun
		if err := db.WithContext(c.Request.Context()).
			Where("status = ?", models.SyncRunStatusSuccess).
			Order("id desc").
			Take(&lastSuccess).Error; err == nil {
			resp.LastSuccessSyncAt = formatTime(lastSuccess.FinishedAt)
		}

		c.JSON(http.StatusOK, resp)
	}
}

// lockHeld reports whether another process currently holds the run lock.
// Best effort: without Redis the answer is always false and contention is
// resolved by the runner itself.
func (s *Service) lockHeld(c *gin.Context) bool {
	rdb := config.GetRedisDB()
	if rdb == nil {
		return false
	}
	n, err := rdb.Exists(c.Request.Context(), runLockKey).Result()
	return err == nil && n > 0
}

func (s *Service) TriggerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.lockHeld(c) {
			c.JSON(http.StatusConflict, gin.H{"error": "a sync run is already in progress"})
			return
		}
		runId := s.queueRun(c, models.SyncTriggeredManual, nil)
		if runId == 0 && s.database() != nil {
			return // queueRun already responded with the error
		}
		s.dispatch(c, runId, models.SyncTriggeredManual)
	}
}

func (s *Service) RetryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := s.database()
		if db == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "run history is not enabled"})
			return
		}
		if s.lockHeld(c) {
			c.JSON(http.StatusConflict, gin.H{"error": "a sync run is already in progress"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		var parent models.SyncRun
		if err := db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&parent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		runId := s.queueRun(c, models.SyncTriggeredRetry, &parent.ID)
		if runId == 0 {
			return
		}
		s.dispatch(c, runId, models.SyncTriggeredRetry)
	}
}

// queueRun creates a queued run row when history is enabled. Returns 0 on
// persistence failure (response already written) or when history is off.
func (s *Service) queueRun(c *gin.Context, triggeredBy string, parentId *uint) uint {
	db := s.database()
	if db == nil {
		return 0
	}
	run := models.SyncRun{
		Status:      models.SyncRunStatusQueued,
		TriggeredBy: triggeredBy,
		ParentRunId: parentId,
	}
	if err := db.WithContext(c.Request.Context()).Create(&run).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return 0
	}
	return run.ID
}

// dispatch hands the run to Pub/Sub, falling back to inline execution in a
// background goroutine when publishing is unavailable. Without run history
// there is no run row for a worker to pick up, so execution is always
// inline in that case.
func (s *Service) dispatch(c *gin.Context, runId uint, triggeredBy string) {
	publishErr := errors.New("run history disabled; executing inline")
	if s.database() != nil {
		publishErr = PublishSyncRun(c.Request.Context(), runId, triggeredBy)
	}
	if publishErr != nil {
		s.Log.WithFields(logrus.Fields{
			"module": "catalogsync",
			"run_id": runId,
		}).Warn("executing inline: " + publishErr.Error())

		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		go func() {
			ctx := utils.SetCorrelationIdInContext(context.Background(), cid)
			if err := s.executeRun(ctx, runId, triggeredBy); err != nil {
				s.Log.WithFields(logrus.Fields{
					"module": "catalogsync",
					"run_id": runId,
				}).Error("inline run failed: " + err.Error())
			}
		}()
	}
	c.JSON(http.StatusOK, gin.H{"id": runId})
}

func (s *Service) RunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := s.database()
		if db == nil {
			c.JSON(http.StatusOK, SyncHistoryResponse{Items: []SyncRunResponse{}})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		var runs []models.SyncRun
		if err := db.WithContext(c.Request.Context()).
			Order("id desc").
			Limit(limit).
			Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func (s *Service) RunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := s.database()
		if db == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "run history is not enabled"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		var run models.SyncRun
		if err := db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var errs []models.SyncError
		if err := db.WithContext(c.Request.Context()).
			Where("sync_run_id = ?", run.ID).
			Order("id desc").
			Find(&errs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(run),
			Errors:          mapErrors(errs),
		})
	}
}

func (s *Service) PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.BoolFromEnv("ENABLE_CATALOG_SYNC_PUSH_ENDPOINT", true) {
			c.Status(http.StatusNoContent)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		if payload.RunId == 0 {
			c.Status(http.StatusNoContent)
			return
		}

		if err := s.executeRun(c.Request.Context(), payload.RunId, payload.TriggeredBy); err != nil {
			s.Log.WithFields(logrus.Fields{
				"module": "catalogsync",
				"run_id": payload.RunId,
			}).Error("queued run failed: " + err.Error())
		}
		c.Status(http.StatusNoContent)
	}
}

// executeRun binds a fresh recorder to the queued run and executes it.
// Already-finished runs are skipped so Pub/Sub redelivery stays idempotent.
func (s *Service) executeRun(ctx context.Context, runId uint, triggeredBy string) error {
	db := s.database()
	if db != nil && runId != 0 {
		var run models.SyncRun
		if err := db.WithContext(ctx).Where("id = ?", runId).Take(&run).Error; err != nil {
			return err
		}
		switch run.Status {
		case models.SyncRunStatusSuccess, models.SyncRunStatusFailed, models.SyncRunStatusPartial:
			return nil
		}
	}
	if triggeredBy == "" {
		triggeredBy = models.SyncTriggeredSystem
	}
	ctx = utils.SetRunIdInContext(ctx, runId)
	ctx = utils.SetTriggeredByInContext(ctx, triggeredBy)

	runner := *s.Runner
	recorder := NewRecorder(db)
	recorder.AttachRun(runId)
	runner.Recorder = recorder

	_, err := runner.Run(ctx, triggeredBy)
	if errors.Is(err, ErrRunInProgress) {
		s.Log.WithFields(logrus.Fields{"module": "catalogsync", "run_id": runId}).
			Warn("run skipped: another sync is in progress")
		return nil
	}
	return err
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID,
		Status:        run.Status,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		RecordsSynced: run.RecordsSynced,
		ErrorCount:    run.ErrorCount,
		TriggeredBy:   run.TriggeredBy,
	}
}

func mapErrors(errorsList []models.SyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, SyncErrorResponse{
			ID:        errItem.ID,
			SKU:       errItem.SKU,
			ItemName:  errItem.ItemName,
			ErrorCode: errItem.ErrorCode,
			Message:   errItem.Message,
			Retryable: errItem.Retryable,
		})
	}
	return out
}
