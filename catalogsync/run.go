package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"github.com/tiendamascotas/catalog_sync/alegra"
	"github.com/tiendamascotas/catalog_sync/config"
	"github.com/tiendamascotas/catalog_sync/shopify"
	"github.com/tiendamascotas/catalog_sync/utils"
)

const runLockKey = "catalog-sync:run"

// ErrRunInProgress reports that another process holds the run lock.
var ErrRunInProgress = errors.New("a sync run is already in progress")

// SetupError aborts the whole run: missing credentials, missing fulfillment
// location. Everything else is isolated at item or fetch scope.
type SetupError struct {
	Reason string
	Err    error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal setup error: %s: %v", e.Reason, e.Err)
	}
	return "fatal setup error: " + e.Reason
}

func (e *SetupError) Unwrap() error { return e.Err }

// SourceReader reads the eligible catalog from the system of record.
// *alegra.Client implements it.
type SourceReader interface {
	FetchEligibleItems(ctx context.Context) ([]alegra.Item, bool)
}

// TargetReader reads the storefront's current state. *shopify.Client
// implements it (and TargetWriter).
type TargetReader interface {
	FetchSKUIndex(ctx context.Context) (map[string]shopify.IndexEntry, bool)
	FetchCollectionIndex(ctx context.Context) (map[string]int64, bool)
	PrimaryLocationID(ctx context.Context) (int64, error)
}

// Runner owns one reconciliation flow end to end.
type Runner struct {
	Source SourceReader
	Reader TargetReader
	Writer TargetWriter

	Images   ImageEncoder
	Describe Describer

	// Maps IVA rates to collections when set (see Transformer).
	TaxCollections bool

	// Optional single-flight lock across processes. Nil falls back to the
	// shared config client; without Redis, locking is disabled.
	Locker *redislock.Client

	Recorder *Recorder
	Log      *logrus.Logger
}

// Run executes one full reconciliation. Only a *SetupError (or
// ErrRunInProgress) is returned; per-item failures are absorbed into the
// summary. The run always reaches its completion log line otherwise.
func (r *Runner) Run(ctx context.Context, triggeredBy string) (Summary, error) {
	startedAt := time.Now()
	startFields := logrus.Fields{"module": "catalogsync", "triggered_by": triggeredBy}
	if runId, ok := utils.GetRunIdFromContext(ctx); ok {
		startFields["run_id"] = runId
	}
	r.Log.WithFields(startFields).Info("=== catalog sync started ===")

	// The lock client connects after the HTTP server starts listening, so
	// it is resolved per run rather than cached at wiring time.
	locker := r.Locker
	if locker == nil {
		locker = config.GetRedisLock()
	}
	if locker != nil {
		lock, err := locker.Obtain(ctx, runLockKey, 10*time.Minute, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				return Summary{}, ErrRunInProgress
			}
			return Summary{}, &SetupError{Reason: "run lock", Err: err}
		}
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}

	if err := r.Recorder.StartRun(ctx, triggeredBy, startedAt); err != nil {
		r.Log.WithFields(logrus.Fields{"module": "catalogsync"}).
			Error("run history unavailable: " + err.Error())
	}

	locationID, err := r.Reader.PrimaryLocationID(ctx)
	if err != nil {
		setupErr := &SetupError{Reason: "no fulfillment location", Err: err}
		r.Recorder.MarkFailed(ctx, startedAt, setupErr)
		return Summary{}, setupErr
	}
	r.Log.WithFields(logrus.Fields{"module": "catalogsync", "location_id": locationID}).
		Info("fulfillment location resolved")

	collections, collectionsTruncated := r.Reader.FetchCollectionIndex(ctx)
	if collectionsTruncated {
		r.Log.WithFields(logrus.Fields{"module": "catalogsync"}).
			Error("collection index fetch truncated; collection memberships left untouched this run")
	}

	// The SKU index and the Source catalog touch disjoint state, so the
	// two reads run concurrently. Each holds its own pager.
	var (
		wg              sync.WaitGroup
		skuIndex        map[string]shopify.IndexEntry
		indexTruncated  bool
		items           []alegra.Item
		sourceTruncated bool
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		skuIndex, indexTruncated = r.Reader.FetchSKUIndex(ctx)
	}()
	go func() {
		defer wg.Done()
		items, sourceTruncated = r.Source.FetchEligibleItems(ctx)
	}()
	wg.Wait()

	if sourceTruncated {
		r.Log.WithFields(logrus.Fields{"module": "catalogsync"}).
			Error("source catalog fetch truncated; unpublish phase suppressed for this run")
	}
	if indexTruncated {
		r.Log.WithFields(logrus.Fields{"module": "catalogsync"}).
			Error("storefront sku index fetch truncated; upserts restricted to indexed SKUs this run")
	}

	plan := BuildPlan(items, skuIndex, sourceTruncated, indexTruncated)

	executor := &Executor{
		Target: r.Writer,
		Transformer: &Transformer{
			Collections:    collections,
			TaxCollections: r.TaxCollections,
			Images:         r.Images,
			Describe:       r.Describe,
			Log:            r.Log,
		},
		LocationID:      locationID,
		SkipCollections: collectionsTruncated,
		Recorder:        r.Recorder,
		Log:             r.Log,
	}
	summary := executor.Apply(ctx, plan)

	if err := r.Recorder.FinishRun(context.WithoutCancel(ctx), summary, startedAt); err != nil {
		r.Log.WithFields(logrus.Fields{"module": "catalogsync"}).
			Error("failed to persist run summary: " + err.Error())
	}

	r.Log.WithFields(logrus.Fields{
		"module":      "catalogsync",
		"upserted":    summary.Upserted,
		"unpublished": summary.Unpublished,
		"errors":      summary.Errors,
		"duration":    time.Since(startedAt).String(),
	}).Info("=== catalog sync finished ===")

	return summary, nil
}
