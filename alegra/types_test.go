package alegra

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func strPtr(s string) *string { return &s }

func TestEligible(t *testing.T) {
	cases := []struct {
		name string
		item Item
		want bool
	}{
		{
			name: "active with storefront flag and sku",
			item: Item{
				Status:       "active",
				Reference:    strPtr("DOG-1"),
				CustomFields: []CustomField{{Name: FieldStorefrontEnabled, Value: true}},
			},
			want: true,
		},
		{
			name: "inactive status",
			item: Item{
				Status:       "inactive",
				Reference:    strPtr("DOG-1"),
				CustomFields: []CustomField{{Name: FieldStorefrontEnabled, Value: true}},
			},
			want: false,
		},
		{
			name: "storefront flag absent",
			item: Item{Status: "active", Reference: strPtr("DOG-1")},
			want: false,
		},
		{
			name: "storefront flag false",
			item: Item{
				Status:       "active",
				Reference:    strPtr("DOG-1"),
				CustomFields: []CustomField{{Name: FieldStorefrontEnabled, Value: false}},
			},
			want: false,
		},
		{
			name: "storefront flag truthy string rejected",
			item: Item{
				Status:       "active",
				Reference:    strPtr("DOG-1"),
				CustomFields: []CustomField{{Name: FieldStorefrontEnabled, Value: "true"}},
			},
			want: false,
		},
		{
			name: "nil reference",
			item: Item{
				Status:       "active",
				CustomFields: []CustomField{{Name: FieldStorefrontEnabled, Value: true}},
			},
			want: false,
		},
		{
			name: "whitespace reference",
			item: Item{
				Status:       "active",
				Reference:    strPtr("   "),
				CustomFields: []CustomField{{Name: FieldStorefrontEnabled, Value: true}},
			},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.item.Eligible(); got != tc.want {
				t.Fatalf("Eligible() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMainPrice(t *testing.T) {
	item := Item{Price: []PriceEntry{
		{Price: json.Number("9000")},
		{Price: json.Number("10000"), Main: true},
	}}
	if got := item.MainPrice(); !got.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("MainPrice() = %s, want 10000", got)
	}

	if got := (Item{}).MainPrice(); !got.IsZero() {
		t.Fatalf("MainPrice() without price list = %s, want 0", got)
	}

	malformed := Item{Price: []PriceEntry{{Price: json.Number("n/a"), Main: true}}}
	if got := malformed.MainPrice(); !got.IsZero() {
		t.Fatalf("MainPrice() with malformed entry = %s, want 0", got)
	}
}

func TestIVAPercent(t *testing.T) {
	item := Item{Tax: []TaxEntry{
		{Type: "ICO", Status: "active", Percentage: json.Number("8")},
		{Type: "IVA", Status: "inactive", Percentage: json.Number("5")},
		{Type: "IVA", Status: "active", Percentage: json.Number("19")},
	}}
	if got := item.IVAPercent(); !got.Equal(decimal.NewFromInt(19)) {
		t.Fatalf("IVAPercent() = %s, want 19", got)
	}

	if got := (Item{}).IVAPercent(); !got.IsZero() {
		t.Fatalf("IVAPercent() without taxes = %s, want 0", got)
	}
}

func TestAvailableQuantity(t *testing.T) {
	cases := []struct {
		name string
		item Item
		want int
	}{
		{"nil inventory", Item{}, 0},
		{"integer", Item{Inventory: &Inventory{AvailableQuantity: json.Number("3")}}, 3},
		{"decimal string", Item{Inventory: &Inventory{AvailableQuantity: json.Number("4.00")}}, 4},
		{"negative clamped", Item{Inventory: &Inventory{AvailableQuantity: json.Number("-2")}}, 0},
		{"malformed", Item{Inventory: &Inventory{AvailableQuantity: json.Number("many")}}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.item.AvailableQuantity(); got != tc.want {
				t.Fatalf("AvailableQuantity() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestTitleFallback(t *testing.T) {
	if got := (Item{Name: "  Croquetas  "}).Title(); got != "Croquetas" {
		t.Fatalf("Title() = %q", got)
	}
	if got := (Item{Name: "   "}).Title(); got != "Producto sin nombre" {
		t.Fatalf("Title() fallback = %q", got)
	}
}

func TestCustomFieldString(t *testing.T) {
	item := Item{CustomFields: []CustomField{
		{Name: FieldCategory, Value: " Perros "},
		{Name: FieldBrand, Value: 42},
	}}
	if got := item.CustomFieldString(FieldCategory); got != "Perros" {
		t.Fatalf("CustomFieldString(categorias) = %q", got)
	}
	if got := item.CustomFieldString(FieldBrand); got != "" {
		t.Fatalf("CustomFieldString(marca) with non-string value = %q, want empty", got)
	}
}
