// Package alegra reads the authoritative product catalog from the Alegra
// accounting platform. Fetches are paginated and throttled against the rate
// budget Alegra reports in its response headers.
package alegra

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tiendamascotas/catalog_sync/config"
	"github.com/tiendamascotas/catalog_sync/pager"
)

const (
	pageLimit = 30

	headerRateRemaining = "X-Rate-Limit-Remaining"
	headerRateReset     = "X-Rate-Limit-Reset"
)

type Client struct {
	apiURL string
	auth   string
	http   *http.Client
	log    *logrus.Logger
}

func NewClient(cfg config.AlegraConfig, log *logrus.Logger) *Client {
	return &Client{
		apiURL: cfg.APIURL,
		auth:   base64.StdEncoding.EncodeToString([]byte(cfg.User + ":" + cfg.APIKey)),
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

// FetchEligibleItems pages through the full item collection ordered by id
// ascending and returns the items eligible for storefront sync. Truncated
// reports a fetch failure mid-pagination: the result is then a partial
// prefix of the catalog, and the caller must not treat missing items as
// removed.
func (c *Client) FetchEligibleItems(ctx context.Context) ([]Item, bool) {
	p := pager.New[Item](c.log)
	result := p.All(ctx, c.fetchPage)

	eligible := make([]Item, 0, len(result.Items))
	for _, item := range result.Items {
		if item.Eligible() {
			eligible = append(eligible, item)
		}
	}

	c.log.WithFields(logrus.Fields{
		"module":    "alegra",
		"active":    len(result.Items),
		"eligible":  len(eligible),
		"truncated": result.Truncated,
	}).Info("alegra catalog fetched")

	return eligible, result.Truncated
}

// fetchPage fetches one offset page. The cursor is the numeric start offset;
// "" means the first page. Active-status filtering happens here, at the
// fetch boundary; the finer eligibility rules apply in FetchEligibleItems.
func (c *Client) fetchPage(ctx context.Context, cursor string) (pager.Page[Item], error) {
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return pager.Page[Item]{}, fmt.Errorf("bad page cursor %q: %w", cursor, err)
		}
		start = n
	}

	params := url.Values{}
	params.Set("start", strconv.Itoa(start))
	params.Set("limit", strconv.Itoa(pageLimit))
	params.Set("order_field", "id")
	params.Set("order_direction", "ASC")
	params.Set("mode", "advanced")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return pager.Page[Item]{}, err
	}
	req.Header.Set("Authorization", "Basic "+c.auth)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pager.Page[Item]{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return pager.Page[Item]{}, pager.ErrRateLimited
	}

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pager.Page[Item]{}, fmt.Errorf("alegra api error %d", resp.StatusCode)
	}

	var items []Item
	if err := json.Unmarshal(body, &items); err != nil {
		return pager.Page[Item]{}, fmt.Errorf("alegra response is not an item array: %w", err)
	}

	active := make([]Item, 0, len(items))
	for _, item := range items {
		if item.Status == "active" {
			active = append(active, item)
		}
	}

	page := pager.Page[Item]{
		Items: active,
		Rate:  rateFromHeaders(resp.Header),
	}
	if len(items) == pageLimit {
		page.Next = strconv.Itoa(start + pageLimit)
	}
	return page, nil
}

func rateFromHeaders(h http.Header) *pager.RateState {
	remaining, err := strconv.Atoi(h.Get(headerRateRemaining))
	if err != nil {
		remaining = pager.DefaultRemaining
	}
	resetSeconds, err := strconv.Atoi(h.Get(headerRateReset))
	if err != nil {
		resetSeconds = int(pager.DefaultResetWindow / time.Second)
	}
	return &pager.RateState{
		Remaining: remaining,
		ResetAt:   time.Now().Add(time.Duration(resetSeconds) * time.Second),
	}
}
