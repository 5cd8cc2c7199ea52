package catalogsync

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tiendamascotas/catalog_sync/alegra"
	"github.com/tiendamascotas/catalog_sync/shopify"
)

// ImageEncoder is the image capability: fetch a URL and return a base64
// attachment. A nil encoder or a failed encode both degrade to "no image".
type ImageEncoder interface {
	EncodeFromURL(ctx context.Context, url string) (string, error)
}

// Describer is the optional descriptive-text capability. May be nil.
type Describer interface {
	ProductDescription(ctx context.Context, name, category, brand, taxPercent string) (string, error)
}

// Transformer shapes Source items into storefront upsert payloads. The
// collection index is read-only for the life of one run.
type Transformer struct {
	Collections map[string]int64

	// When set, the computed IVA rate also maps to an "iva 0%" / "iva 5%"
	// collection. Only those two exact rates participate; other rates
	// contribute no tax-based collection.
	TaxCollections bool

	Images   ImageEncoder
	Describe Describer
	Log      *logrus.Logger
}

// FinalPrice applies IVA to the raw main price and rounds half away from
// zero to a whole currency unit. Always a non-negative integer amount.
func FinalPrice(rawPrice, ivaPercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(ivaPercent.Div(decimal.NewFromInt(100)))
	return rawPrice.Mul(factor).Round(0)
}

// CollectionIDs resolves the item's collection memberships: the categorias
// custom field, the marca custom field, the item category name, and (when
// enabled) the IVA rate label, each included only when it maps in the
// collection index. The result is deduplicated in first-discovery order.
func (t *Transformer) CollectionIDs(item *alegra.Item, ivaPercent decimal.Decimal) []int64 {
	var names []string
	if v := item.CustomFieldString(alegra.FieldCategory); v != "" {
		names = append(names, v)
	}
	if v := item.CustomFieldString(alegra.FieldBrand); v != "" {
		names = append(names, v)
	}
	if v := item.CategoryName(); v != "" {
		names = append(names, v)
	}
	if t.TaxCollections {
		if label := ivaCollectionLabel(ivaPercent); label != "" {
			names = append(names, label)
		}
	}

	var ids []int64
	seen := make(map[int64]bool, len(names))
	for _, name := range names {
		id, ok := t.Collections[name]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// ivaCollectionLabel maps exactly the 0.00 and 5.00 rates to their
// collection labels. Every other rate maps to nothing.
func ivaCollectionLabel(ivaPercent decimal.Decimal) string {
	switch {
	case ivaPercent.Equal(decimal.Zero):
		return "iva 0%"
	case ivaPercent.Equal(decimal.NewFromInt(5)):
		return "iva 5%"
	default:
		return ""
	}
}

// Payload builds the storefront upsert payload for one eligible item. The
// variant id is carried over when the SKU already exists so the update is
// in place. Image and description enrichment failures degrade silently to
// an un-enriched payload.
func (t *Transformer) Payload(ctx context.Context, item *alegra.Item, target *shopify.IndexEntry) (shopify.ProductPayload, []int64) {
	ivaPercent := item.IVAPercent()
	price := FinalPrice(item.MainPrice(), ivaPercent)

	variant := shopify.VariantData{
		SKU:                 item.SKU(),
		Price:               price.String(),
		InventoryManagement: "shopify",
		InventoryPolicy:     "deny",
	}
	if target != nil {
		variant.ID = target.VariantID
	}

	payload := shopify.ProductPayload{
		Product: shopify.ProductData{
			Title:          item.Title(),
			Variants:       []shopify.VariantData{variant},
			Published:      true,
			PublishedScope: "web",
		},
	}

	if url := item.FirstImageURL(); url != "" && t.Images != nil {
		encoded, err := t.Images.EncodeFromURL(ctx, url)
		if err != nil {
			t.Log.WithFields(logrus.Fields{
				"module": "catalogsync",
				"sku":    item.SKU(),
				"url":    url,
			}).Warn("image download failed; syncing without image: " + err.Error())
		} else {
			payload.Product.Images = []shopify.ImageAttachment{{Attachment: encoded}}
		}
	}

	if t.Describe != nil {
		desc, err := t.Describe.ProductDescription(ctx, item.Title(), item.CategoryName(),
			item.CustomFieldString(alegra.FieldBrand), ivaPercent.StringFixed(2))
		if err != nil {
			t.Log.WithFields(logrus.Fields{
				"module": "catalogsync",
				"sku":    item.SKU(),
			}).Warn("description enrichment failed; syncing without description: " + err.Error())
		} else if desc != "" {
			payload.Product.BodyHTML = desc
		}
	}

	return payload, t.CollectionIDs(item, ivaPercent)
}
