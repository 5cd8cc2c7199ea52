package shopify

// IndexEntry is the stored identity of one known storefront SKU. The
// sku -> IndexEntry map is rebuilt fully on every run; it is read-only
// after construction.
type IndexEntry struct {
	ProductID       int64
	VariantID       int64
	InventoryItemID int64
}

// ProductPayload is the create-or-update request body for a product.
type ProductPayload struct {
	Product ProductData `json:"product"`
}

type ProductData struct {
	ID             int64             `json:"id,omitempty"`
	Title          string            `json:"title"`
	BodyHTML       string            `json:"body_html,omitempty"`
	Variants       []VariantData     `json:"variants"`
	Images         []ImageAttachment `json:"images,omitempty"`
	Published      bool              `json:"published"`
	PublishedScope string            `json:"published_scope,omitempty"`
}

type VariantData struct {
	ID                  int64  `json:"id,omitempty"`
	SKU                 string `json:"sku"`
	Price               string `json:"price"`
	InventoryManagement string `json:"inventory_management"`
	InventoryPolicy     string `json:"inventory_policy"`
}

type ImageAttachment struct {
	Attachment string `json:"attachment"`
}

// ProductResult is the subset of the product response the executor needs:
// the product id and the first variant's inventory item id.
type ProductResult struct {
	ProductID       int64
	InventoryItemID int64
}

// Collect is one product <-> collection membership.
type Collect struct {
	ID           int64 `json:"id"`
	ProductID    int64 `json:"product_id"`
	CollectionID int64 `json:"collection_id"`
}

type product struct {
	ID       int64     `json:"id"`
	Variants []variant `json:"variants"`
}

type variant struct {
	ID              int64  `json:"id"`
	SKU             string `json:"sku"`
	InventoryItemID int64  `json:"inventory_item_id"`
}

type collection struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}
