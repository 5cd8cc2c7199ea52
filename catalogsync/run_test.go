package catalogsync

import (
	"context"
	"errors"
	"testing"

	"github.com/tiendamascotas/catalog_sync/alegra"
	"github.com/tiendamascotas/catalog_sync/shopify"
)

type fakeSource struct {
	items     []alegra.Item
	truncated bool
}

func (f *fakeSource) FetchEligibleItems(ctx context.Context) ([]alegra.Item, bool) {
	return f.items, f.truncated
}

type fakeReader struct {
	index                map[string]shopify.IndexEntry
	indexTruncated       bool
	collections          map[string]int64
	collectionsTruncated bool
	locationID           int64
	locationErr          error
}

func (f *fakeReader) FetchSKUIndex(ctx context.Context) (map[string]shopify.IndexEntry, bool) {
	return f.index, f.indexTruncated
}

func (f *fakeReader) FetchCollectionIndex(ctx context.Context) (map[string]int64, bool) {
	return f.collections, f.collectionsTruncated
}

func (f *fakeReader) PrimaryLocationID(ctx context.Context) (int64, error) {
	return f.locationID, f.locationErr
}

func TestRunEndToEnd(t *testing.T) {
	target := newFakeTarget()
	target.published[9] = true

	runner := &Runner{
		Source: &fakeSource{items: []alegra.Item{payloadItem()}},
		Reader: &fakeReader{
			index:       map[string]shopify.IndexEntry{"CAT-9": {ProductID: 9}},
			collections: map[string]int64{},
			locationID:  77,
		},
		Writer:   target,
		Recorder: NewRecorder(nil),
		Log:      quietLogger(),
	}

	summary, err := runner.Run(context.Background(), "manual")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Upserted != 1 || summary.Unpublished != 1 || summary.Errors != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if target.published[9] {
		t.Fatalf("stale product must be unpublished")
	}
}

func TestRunFatalWithoutLocation(t *testing.T) {
	runner := &Runner{
		Source:   &fakeSource{},
		Reader:   &fakeReader{locationErr: shopify.ErrNoLocation},
		Writer:   newFakeTarget(),
		Recorder: NewRecorder(nil),
		Log:      quietLogger(),
	}

	_, err := runner.Run(context.Background(), "manual")
	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("expected a SetupError, got %v", err)
	}
	if setupErr.Reason != "no fulfillment location" {
		t.Fatalf("reason = %q", setupErr.Reason)
	}
}

func TestRunSuppressesUnpublishOnTruncatedSource(t *testing.T) {
	target := newFakeTarget()
	target.published[9] = true

	runner := &Runner{
		Source: &fakeSource{truncated: true},
		Reader: &fakeReader{
			index:       map[string]shopify.IndexEntry{"CAT-9": {ProductID: 9}},
			collections: map[string]int64{},
			locationID:  77,
		},
		Writer:   target,
		Recorder: NewRecorder(nil),
		Log:      quietLogger(),
	}

	summary, err := runner.Run(context.Background(), "system")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Unpublished != 0 {
		t.Fatalf("truncated source must not unpublish, summary = %+v", summary)
	}
	if !target.published[9] {
		t.Fatalf("product 9 must stay published")
	}
}

func TestRunRestrictsUpsertsOnTruncatedIndex(t *testing.T) {
	// DOG-1 is already live on the storefront but missing from the partial
	// index. Creating it again would duplicate the live product, so the run
	// must leave it alone.
	target := newFakeTarget()

	runner := &Runner{
		Source: &fakeSource{items: []alegra.Item{payloadItem()}},
		Reader: &fakeReader{
			index:          map[string]shopify.IndexEntry{},
			indexTruncated: true,
			collections:    map[string]int64{},
			locationID:     77,
		},
		Writer:   target,
		Recorder: NewRecorder(nil),
		Log:      quietLogger(),
	}

	summary, err := runner.Run(context.Background(), "manual")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Upserted != 0 {
		t.Fatalf("no upsert may run against a truncated index, summary = %+v", summary)
	}
	if len(target.upserts) != 0 {
		t.Fatalf("expected no writes, got %+v", target.upserts)
	}
}

func TestRunLeavesCollectionsOnTruncatedCollectionIndex(t *testing.T) {
	target := newFakeTarget()
	target.published[42] = true
	target.collects[42] = []shopify.Collect{
		{ID: 502, ProductID: 42, CollectionID: 2},
	}

	item := payloadItem()
	item.CustomFields = append(item.CustomFields, alegra.CustomField{
		Name:  alegra.FieldBrand,
		Value: "Acme",
	})

	runner := &Runner{
		Source: &fakeSource{items: []alegra.Item{item}},
		Reader: &fakeReader{
			index:                map[string]shopify.IndexEntry{"DOG-1": targetEntry},
			collections:          map[string]int64{"Acme": 3},
			collectionsTruncated: true,
			locationID:           77,
		},
		Writer:   target,
		Recorder: NewRecorder(nil),
		Log:      quietLogger(),
	}

	summary, err := runner.Run(context.Background(), "manual")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Upserted != 1 {
		t.Fatalf("the upsert itself still applies, summary = %+v", summary)
	}
	if len(target.deleted) != 0 {
		t.Fatalf("no membership may be removed on a partial collection index, deleted = %v", target.deleted)
	}
	if len(target.collects[42]) != 1 || target.collects[42][0].ID != 502 {
		t.Fatalf("memberships must be untouched, got %+v", target.collects[42])
	}
}
