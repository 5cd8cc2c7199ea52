package alegra

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Custom field names used by the storefront sync business rules.
const (
	FieldStorefrontEnabled = "tienda_online"
	FieldCategory          = "categorias"
	FieldBrand             = "marca"
)

// Item is one inventory item as returned by the Alegra items endpoint
// (mode=advanced). Upstream JSON is loosely shaped; every optional field is
// nullable here and resolved through the accessor methods below, so default
// handling lives in one place instead of at each use site.
type Item struct {
	ID           json.Number   `json:"id"`
	Name         string        `json:"name"`
	Status       string        `json:"status"`
	Reference    *string       `json:"reference"`
	Price        []PriceEntry  `json:"price"`
	Tax          []TaxEntry    `json:"tax"`
	Inventory    *Inventory    `json:"inventory"`
	Images       []Image       `json:"images"`
	ItemCategory *ItemCategory `json:"itemCategory"`
	CustomFields []CustomField `json:"customFields"`
}

type PriceEntry struct {
	Price json.Number `json:"price"`
	Main  bool        `json:"main"`
}

type TaxEntry struct {
	Type       string      `json:"type"`
	Status     string      `json:"status"`
	Percentage json.Number `json:"percentage"`
}

type Inventory struct {
	AvailableQuantity json.Number `json:"availableQuantity"`
}

type Image struct {
	URL string `json:"url"`
}

type ItemCategory struct {
	Name string `json:"name"`
}

// CustomField values are heterogeneous upstream: tienda_online is a JSON
// boolean, categorias and marca are strings.
type CustomField struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// SKU is the trimmed reference, or "" when absent.
func (i Item) SKU() string {
	if i.Reference == nil {
		return ""
	}
	return strings.TrimSpace(*i.Reference)
}

// Eligible reports whether the item passes the storefront sync filter:
// active status, tienda_online strictly true, and a non-empty SKU.
// Checks short-circuit in that order. Failing one is normal business
// filtering, not an error.
func (i Item) Eligible() bool {
	if i.Status != "active" {
		return false
	}
	if !i.CustomFieldBool(FieldStorefrontEnabled) {
		return false
	}
	return i.SKU() != ""
}

func (i Item) customFieldValue(name string) (any, bool) {
	for _, f := range i.CustomFields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// CustomFieldBool is strict: only a JSON boolean true matches. Truthy
// strings like "true" do not.
func (i Item) CustomFieldBool(name string) bool {
	v, ok := i.customFieldValue(name)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (i Item) CustomFieldString(name string) string {
	v, ok := i.customFieldValue(name)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// MainPrice returns the price entry flagged as main, or zero when the price
// list is absent or malformed.
func (i Item) MainPrice() decimal.Decimal {
	for _, p := range i.Price {
		if p.Main {
			if d, err := decimal.NewFromString(p.Price.String()); err == nil {
				return d
			}
			return decimal.Zero
		}
	}
	return decimal.Zero
}

// IVAPercent returns the percentage of the active IVA tax entry, or zero
// when none applies.
func (i Item) IVAPercent() decimal.Decimal {
	for _, t := range i.Tax {
		if t.Type == "IVA" && t.Status == "active" {
			if d, err := decimal.NewFromString(t.Percentage.String()); err == nil {
				return d
			}
			return decimal.Zero
		}
	}
	return decimal.Zero
}

// AvailableQuantity returns the on-hand quantity as a non-negative integer,
// defaulting to zero for absent or malformed values.
func (i Item) AvailableQuantity() int {
	if i.Inventory == nil {
		return 0
	}
	n, err := i.Inventory.AvailableQuantity.Int64()
	if err != nil {
		// Some responses deliver the quantity as a decimal string.
		if d, derr := decimal.NewFromString(i.Inventory.AvailableQuantity.String()); derr == nil {
			n = d.IntPart()
		} else {
			return 0
		}
	}
	if n < 0 {
		return 0
	}
	return int(n)
}

// FirstImageURL returns the first image URL, or "" when the item has none.
func (i Item) FirstImageURL() string {
	if len(i.Images) == 0 {
		return ""
	}
	return strings.TrimSpace(i.Images[0].URL)
}

// CategoryName returns the trimmed item category name, or "".
func (i Item) CategoryName() string {
	if i.ItemCategory == nil {
		return ""
	}
	return strings.TrimSpace(i.ItemCategory.Name)
}

// Title returns the product title for the storefront, with the same
// fallback the storefront uses for unnamed items.
func (i Item) Title() string {
	name := strings.TrimSpace(i.Name)
	if name == "" {
		return "Producto sin nombre"
	}
	return name
}
