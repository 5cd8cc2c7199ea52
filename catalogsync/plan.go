// Package catalogsync reconciles the Alegra product catalog against the
// Shopify storefront: it diffs the two systems by SKU, shapes each eligible
// item into a storefront upsert payload, and applies the resulting plan with
// per-item failure isolation.
package catalogsync

import (
	"sort"

	"github.com/tiendamascotas/catalog_sync/alegra"
	"github.com/tiendamascotas/catalog_sync/shopify"
)

type Action string

const (
	ActionUpsert    Action = "upsert"
	ActionUnpublish Action = "unpublish"
)

// PlanEntry is one reconciliation step. Item is set iff Action is upsert;
// Target is set when the SKU already exists on the storefront.
type PlanEntry struct {
	SKU    string
	Action Action
	Item   *alegra.Item
	Target *shopify.IndexEntry
}

// BuildPlan diffs the eligible Source items against the storefront SKU
// index. Unpublish entries come first: applying them before upserts closes
// the window where a freshly republished item could be knocked back down by
// a stale pass. Upsert entries keep Source iteration order; unpublish
// entries are sorted by SKU since the index is an unordered map.
//
// Truncated reads restrict the plan. When the Source fetch was truncated,
// the unpublish phase is suppressed: a partial catalog read must not
// unpublish items that merely sat on an unfetched page. When the Target
// index fetch was truncated, upserts are restricted to SKUs present in the
// partial index: a SKU missing from it may still live on an unfetched page,
// and taking the create path would duplicate the product.
func BuildPlan(items []alegra.Item, index map[string]shopify.IndexEntry, sourceTruncated, targetTruncated bool) []PlanEntry {
	eligible := make(map[string]bool, len(items))
	for _, item := range items {
		eligible[item.SKU()] = true
	}

	var plan []PlanEntry

	if !sourceTruncated {
		var stale []string
		for sku := range index {
			if !eligible[sku] {
				stale = append(stale, sku)
			}
		}
		sort.Strings(stale)
		for _, sku := range stale {
			entry := index[sku]
			plan = append(plan, PlanEntry{SKU: sku, Action: ActionUnpublish, Target: &entry})
		}
	}

	for i := range items {
		item := &items[i]
		entry := PlanEntry{SKU: item.SKU(), Action: ActionUpsert, Item: item}
		if target, ok := index[entry.SKU]; ok {
			t := target
			entry.Target = &t
		} else if targetTruncated {
			continue
		}
		plan = append(plan, entry)
	}

	return plan
}
