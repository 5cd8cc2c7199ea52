package catalogsync

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tiendamascotas/catalog_sync/shopify"
)

// TargetWriter is the storefront write surface the executor needs.
// *shopify.Client implements it.
type TargetWriter interface {
	CreateOrUpdateProduct(ctx context.Context, payload shopify.ProductPayload, productID int64) (shopify.ProductResult, error)
	SetInventoryLevel(ctx context.Context, locationID, inventoryItemID int64, available int) error
	SetPublished(ctx context.Context, productID int64, published bool) error
	ListCollects(ctx context.Context, productID int64) ([]shopify.Collect, error)
	AddCollect(ctx context.Context, productID, collectionID int64) error
	DeleteCollect(ctx context.Context, collectID int64) error
}

// Summary is the per-run outcome tally.
type Summary struct {
	Upserted    int `json:"upserted"`
	Unpublished int `json:"unpublished"`
	Errors      int `json:"errors"`
}

// Executor applies a reconciliation plan entry by entry. A single entry's
// failure is logged and recorded but never aborts the run.
type Executor struct {
	Target      TargetWriter
	Transformer *Transformer
	LocationID  int64

	// Set when the collection index read was truncated: a partial name -> id
	// index would make replaceCollections delete memberships that are
	// actually current, so the whole membership phase sits out the run.
	SkipCollections bool

	Recorder *Recorder
	Log      *logrus.Logger
}

// Apply walks the plan in order (unpublish entries precede upserts by
// construction) and returns the outcome tally.
func (e *Executor) Apply(ctx context.Context, plan []PlanEntry) Summary {
	var summary Summary

	for i := range plan {
		entry := &plan[i]
		if ctx.Err() != nil {
			e.Log.WithFields(logrus.Fields{"module": "catalogsync"}).Error("run cancelled; stopping plan execution")
			break
		}

		switch entry.Action {
		case ActionUnpublish:
			if err := e.unpublish(ctx, entry); err != nil {
				summary.Errors++
				e.recordFailure(ctx, entry, errCodeUnpublish, err)
				continue
			}
			summary.Unpublished++
		case ActionUpsert:
			if err := e.upsert(ctx, entry); err != nil {
				summary.Errors++
				e.recordFailure(ctx, entry, errCodeUpsert, err)
				continue
			}
			summary.Upserted++
		}
	}

	return summary
}

func (e *Executor) unpublish(ctx context.Context, entry *PlanEntry) error {
	if err := e.Target.SetPublished(ctx, entry.Target.ProductID, false); err != nil {
		return fmt.Errorf("unpublish product %d: %w", entry.Target.ProductID, err)
	}
	e.Log.WithFields(logrus.Fields{
		"module": "catalogsync",
		"sku":    entry.SKU,
	}).Info("unpublished stale product")
	return nil
}

func (e *Executor) upsert(ctx context.Context, entry *PlanEntry) error {
	payload, collectionIDs := e.Transformer.Payload(ctx, entry.Item, entry.Target)

	existingID := int64(0)
	if entry.Target != nil {
		existingID = entry.Target.ProductID
	}

	result, err := e.Target.CreateOrUpdateProduct(ctx, payload, existingID)
	if err != nil {
		return fmt.Errorf("create or update: %w", err)
	}

	// A product unpublished by a prior run stays unpublished through a PUT,
	// so pre-existing products get an explicit republish.
	if existingID != 0 {
		if err := e.Target.SetPublished(ctx, result.ProductID, true); err != nil {
			return fmt.Errorf("republish: %w", err)
		}
	}

	if result.InventoryItemID != 0 {
		if err := e.Target.SetInventoryLevel(ctx, e.LocationID, result.InventoryItemID, entry.Item.AvailableQuantity()); err != nil {
			return fmt.Errorf("set inventory: %w", err)
		}
	}

	if len(collectionIDs) > 0 && !e.SkipCollections {
		if err := e.replaceCollections(ctx, result.ProductID, collectionIDs); err != nil {
			return fmt.Errorf("assign collections: %w", err)
		}
	}

	e.Log.WithFields(logrus.Fields{
		"module":    "catalogsync",
		"sku":       entry.SKU,
		"name":      entry.Item.Title(),
		"price":     payload.Product.Variants[0].Price,
		"inventory": entry.Item.AvailableQuantity(),
	}).Info("synchronized product")
	return nil
}

// replaceCollections reconciles the product's memberships against the
// desired set: only collects outside the set are deleted and only missing
// ones are created, so memberships shared between runs are left untouched.
func (e *Executor) replaceCollections(ctx context.Context, productID int64, collectionIDs []int64) error {
	current, err := e.Target.ListCollects(ctx, productID)
	if err != nil {
		return err
	}

	want := make(map[int64]bool, len(collectionIDs))
	for _, id := range collectionIDs {
		want[id] = true
	}

	have := make(map[int64]bool, len(current))
	for _, collect := range current {
		if !want[collect.CollectionID] {
			if err := e.Target.DeleteCollect(ctx, collect.ID); err != nil {
				return err
			}
			continue
		}
		have[collect.CollectionID] = true
	}

	for _, id := range collectionIDs {
		if have[id] {
			continue
		}
		if err := e.Target.AddCollect(ctx, productID, id); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) recordFailure(ctx context.Context, entry *PlanEntry, code string, err error) {
	name := ""
	if entry.Item != nil {
		name = entry.Item.Title()
	}
	e.Log.WithFields(logrus.Fields{
		"module": "catalogsync",
		"sku":    entry.SKU,
		"name":   name,
	}).Error("item sync failed: " + err.Error())
	e.Recorder.RecordError(ctx, entry.SKU, name, code, err)
}
