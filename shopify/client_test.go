package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testClient(serverURL string) *Client {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Client{
		baseURL: serverURL,
		token:   "test-token",
		http:    &http.Client{Timeout: 5 * time.Second},
		log:     log,
	}
}

func TestNextLink(t *testing.T) {
	cases := []struct {
		name string
		link string
		want string
	}{
		{"empty", "", ""},
		{"previous only", `<https://shop/admin/products.json?page_info=aaa>; rel="previous"`, ""},
		{"next only", `<https://shop/admin/products.json?page_info=bbb>; rel="next"`, "https://shop/admin/products.json?page_info=bbb"},
		{
			"previous and next",
			`<https://shop/a?page_info=aaa>; rel="previous", <https://shop/a?page_info=bbb>; rel="next"`,
			"https://shop/a?page_info=bbb",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			if tc.link != "" {
				h.Set("Link", tc.link)
			}
			if got := nextLink(h); got != tc.want {
				t.Fatalf("nextLink = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFetchSKUIndex(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") != "test-token" {
			t.Errorf("missing access token header")
		}
		if r.URL.Query().Get("page_info") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<%s/products.json?page_info=next>; rel="next"`, srv.URL))
			json.NewEncoder(w).Encode(map[string]any{
				"products": []map[string]any{
					{"id": 100, "variants": []map[string]any{
						{"id": 1000, "sku": "DOG-1", "inventory_item_id": 5000},
						{"id": 1001, "sku": "", "inventory_item_id": 5001},
					}},
				},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"products": []map[string]any{
				{"id": 200, "variants": []map[string]any{
					{"id": 2000, "sku": "CAT-9", "inventory_item_id": 6000},
					{"id": 2001, "sku": "DOG-1", "inventory_item_id": 6001},
				}},
			},
		})
	}))
	defer srv.Close()

	index, truncated := testClient(srv.URL).FetchSKUIndex(context.Background())
	if truncated {
		t.Fatalf("expected exhaustive index")
	}
	if len(index) != 2 {
		t.Fatalf("expected 2 skus (blank sku skipped), got %d", len(index))
	}
	if got := index["CAT-9"]; got.ProductID != 200 || got.VariantID != 2000 || got.InventoryItemID != 6000 {
		t.Fatalf("CAT-9 entry = %+v", got)
	}
	// DOG-1 appears on both pages; the later row wins.
	if got := index["DOG-1"]; got.ProductID != 200 || got.VariantID != 2001 || got.InventoryItemID != 6001 {
		t.Fatalf("DOG-1 entry = %+v, want the last occurrence", got)
	}
}

func TestFetchCollectionIndexCustomWinsOnTitleCollision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/smart_collections.json":
			json.NewEncoder(w).Encode(map[string]any{
				"smart_collections": []map[string]any{
					{"id": 1, "title": "Perros"},
					{"id": 2, "title": "iva 0%"},
				},
			})
		case "/custom_collections.json":
			json.NewEncoder(w).Encode(map[string]any{
				"custom_collections": []map[string]any{
					{"id": 3, "title": "Perros"},
					{"id": 4, "title": "Royal Canin"},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	index, truncated := testClient(srv.URL).FetchCollectionIndex(context.Background())
	if truncated {
		t.Fatalf("expected exhaustive index")
	}
	if len(index) != 3 {
		t.Fatalf("expected 3 titles, got %d", len(index))
	}
	if index["Perros"] != 3 {
		t.Fatalf("expected the custom collection to win the title collision, got id %d", index["Perros"])
	}
	if index["iva 0%"] != 2 || index["Royal Canin"] != 4 {
		t.Fatalf("unexpected index %v", index)
	}
}

func TestPrimaryLocationID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"locations": []map[string]any{{"id": 77}, {"id": 88}},
		})
	}))
	defer srv.Close()

	id, err := testClient(srv.URL).PrimaryLocationID(context.Background())
	if err != nil {
		t.Fatalf("PrimaryLocationID: %v", err)
	}
	if id != 77 {
		t.Fatalf("expected the first location, got %d", id)
	}
}

func TestPrimaryLocationIDNoLocations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"locations": []map[string]any{}})
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).PrimaryLocationID(context.Background()); err != ErrNoLocation {
		t.Fatalf("expected ErrNoLocation, got %v", err)
	}
}

func TestCreateOrUpdateProduct(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{
			"product": map[string]any{
				"id": 42,
				"variants": []map[string]any{
					{"id": 420, "sku": "DOG-1", "inventory_item_id": 4200},
				},
			},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	payload := ProductPayload{Product: ProductData{Title: "Croquetas"}}

	res, err := c.CreateOrUpdateProduct(context.Background(), payload, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/products.json" {
		t.Fatalf("create used %s %s", gotMethod, gotPath)
	}
	if res.ProductID != 42 || res.InventoryItemID != 4200 {
		t.Fatalf("create result %+v", res)
	}

	if _, err := c.CreateOrUpdateProduct(context.Background(), payload, 42); err != nil {
		t.Fatalf("update: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/products/42.json" {
		t.Fatalf("update used %s %s", gotMethod, gotPath)
	}
}

func TestSetInventoryLevel(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inventory_levels/set.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	if err := testClient(srv.URL).SetInventoryLevel(context.Background(), 77, 4200, 3); err != nil {
		t.Fatalf("SetInventoryLevel: %v", err)
	}
	if body["location_id"].(float64) != 77 || body["inventory_item_id"].(float64) != 4200 || body["available"].(float64) != 3 {
		t.Fatalf("unexpected body %v", body)
	}
}
