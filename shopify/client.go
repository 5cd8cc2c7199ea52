// Package shopify talks to the storefront platform's Admin REST API: it
// builds the SKU and collection indexes the reconciliation needs and applies
// product, inventory, collect, and publish-state writes.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tiendamascotas/catalog_sync/config"
	"github.com/tiendamascotas/catalog_sync/pager"
)

// ErrNoLocation is returned when the shop has no fulfillment location.
// Inventory writes need a location id, so this is fatal to a sync run.
var ErrNoLocation = errors.New("shopify: no fulfillment location available")

var nextLinkRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logrus.Logger
}

func NewClient(cfg config.ShopifyConfig, log *logrus.Logger) *Client {
	return &Client{
		baseURL: fmt.Sprintf("https://%s/admin/api/%s", cfg.ShopName, cfg.APIVersion),
		token:   cfg.AccessToken,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

func (c *Client) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return pager.ErrRateLimited
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("shopify api error %d: %s %s", resp.StatusCode, method, url)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("shopify response decode: %w", err)
		}
	}
	return nil
}

// get performs a GET and returns the response headers so link pagination
// can follow rel="next".
func (c *Client) get(ctx context.Context, url string, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, pager.ErrRateLimited
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("shopify api error %d: GET %s", resp.StatusCode, url)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("shopify response decode: %w", err)
	}
	return resp.Header, nil
}

func nextLink(h http.Header) string {
	m := nextLinkRe.FindStringSubmatch(h.Get("Link"))
	if m == nil {
		return ""
	}
	return m[1]
}

// FetchSKUIndex pages through the product catalog and builds the
// sku -> identity index for every variant with a SKU. Last write wins when
// the same SKU appears on more than one variant. Truncated reports a fetch
// failure mid-pagination.
func (c *Client) FetchSKUIndex(ctx context.Context) (map[string]IndexEntry, bool) {
	type skuRow struct {
		sku   string
		entry IndexEntry
	}

	p := pager.New[skuRow](c.log)
	result := p.All(ctx, func(ctx context.Context, cursor string) (pager.Page[skuRow], error) {
		url := cursor
		if url == "" {
			url = c.baseURL + "/products.json?limit=250&fields=id,variants"
		}
		var payload struct {
			Products []product `json:"products"`
		}
		header, err := c.get(ctx, url, &payload)
		if err != nil {
			return pager.Page[skuRow]{}, err
		}

		var rows []skuRow
		for _, prod := range payload.Products {
			for _, v := range prod.Variants {
				if v.SKU == "" {
					continue
				}
				rows = append(rows, skuRow{sku: v.SKU, entry: IndexEntry{
					ProductID:       prod.ID,
					VariantID:       v.ID,
					InventoryItemID: v.InventoryItemID,
				}})
			}
		}
		return pager.Page[skuRow]{Items: rows, Next: nextLink(header)}, nil
	})

	index := make(map[string]IndexEntry, len(result.Items))
	for _, row := range result.Items {
		index[row.sku] = row.entry
	}

	c.log.WithFields(logrus.Fields{
		"module":    "shopify",
		"skus":      len(index),
		"truncated": result.Truncated,
	}).Info("shopify sku index built")

	return index, result.Truncated
}

// FetchCollectionIndex merges the smart (automatic) and custom (manual)
// collection listings into one title -> id map. Custom collections are read
// second, so a custom collection sharing a title with a smart one wins; this
// collision behavior is intentional and relied upon.
func (c *Client) FetchCollectionIndex(ctx context.Context) (map[string]int64, bool) {
	index := make(map[string]int64)
	truncated := false

	for _, resource := range []string{"smart_collections", "custom_collections"} {
		resource := resource
		p := pager.New[collection](c.log)
		result := p.All(ctx, func(ctx context.Context, cursor string) (pager.Page[collection], error) {
			url := cursor
			if url == "" {
				url = c.baseURL + "/" + resource + ".json?limit=250"
			}
			payload := map[string][]collection{}
			header, err := c.get(ctx, url, &payload)
			if err != nil {
				return pager.Page[collection]{}, err
			}
			return pager.Page[collection]{Items: payload[resource], Next: nextLink(header)}, nil
		})

		for _, col := range result.Items {
			index[col.Title] = col.ID
		}
		truncated = truncated || result.Truncated
	}

	c.log.WithFields(logrus.Fields{
		"module":      "shopify",
		"collections": len(index),
		"truncated":   truncated,
	}).Info("shopify collection index built")

	return index, truncated
}

// PrimaryLocationID returns the first fulfillment location id.
func (c *Client) PrimaryLocationID(ctx context.Context) (int64, error) {
	var payload struct {
		Locations []struct {
			ID int64 `json:"id"`
		} `json:"locations"`
	}
	if _, err := c.get(ctx, c.baseURL+"/locations.json", &payload); err != nil {
		return 0, err
	}
	if len(payload.Locations) == 0 {
		return 0, ErrNoLocation
	}
	return payload.Locations[0].ID, nil
}

// CreateOrUpdateProduct creates the product when productID is zero and
// updates it in place otherwise. The upsert is idempotent by SKU: updates
// reuse the stored product/variant identifiers.
func (c *Client) CreateOrUpdateProduct(ctx context.Context, payload ProductPayload, productID int64) (ProductResult, error) {
	var resp struct {
		Product product `json:"product"`
	}
	var err error
	if productID != 0 {
		payload.Product.ID = productID
		err = c.do(ctx, http.MethodPut, c.baseURL+"/products/"+strconv.FormatInt(productID, 10)+".json", payload, &resp)
	} else {
		err = c.do(ctx, http.MethodPost, c.baseURL+"/products.json", payload, &resp)
	}
	if err != nil {
		return ProductResult{}, err
	}

	result := ProductResult{ProductID: resp.Product.ID}
	if len(resp.Product.Variants) > 0 {
		result.InventoryItemID = resp.Product.Variants[0].InventoryItemID
	}
	return result, nil
}

// SetInventoryLevel sets the absolute available quantity at a location.
func (c *Client) SetInventoryLevel(ctx context.Context, locationID, inventoryItemID int64, available int) error {
	body := map[string]any{
		"location_id":       locationID,
		"inventory_item_id": inventoryItemID,
		"available":         available,
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/inventory_levels/set.json", body, nil)
}

// ListCollects returns the product's current collection memberships.
func (c *Client) ListCollects(ctx context.Context, productID int64) ([]Collect, error) {
	var payload struct {
		Collects []Collect `json:"collects"`
	}
	url := c.baseURL + "/collects.json?product_id=" + strconv.FormatInt(productID, 10)
	if _, err := c.get(ctx, url, &payload); err != nil {
		return nil, err
	}
	return payload.Collects, nil
}

// AddCollect adds the product to a collection.
func (c *Client) AddCollect(ctx context.Context, productID, collectionID int64) error {
	body := map[string]any{
		"collect": map[string]any{
			"product_id":    productID,
			"collection_id": collectionID,
		},
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/collects.json", body, nil)
}

// DeleteCollect removes one membership by collect id.
func (c *Client) DeleteCollect(ctx context.Context, collectID int64) error {
	return c.do(ctx, http.MethodDelete, c.baseURL+"/collects/"+strconv.FormatInt(collectID, 10)+".json", nil, nil)
}

// SetPublished flips the product's publish state.
func (c *Client) SetPublished(ctx context.Context, productID int64, published bool) error {
	body := map[string]any{
		"product": map[string]any{
			"id":        productID,
			"published": published,
		},
	}
	return c.do(ctx, http.MethodPut, c.baseURL+"/products/"+strconv.FormatInt(productID, 10)+".json", body, nil)
}
