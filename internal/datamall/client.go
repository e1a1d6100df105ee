// Package datamall implements the client for the transit authority's
// DataMall-style feed: paginated stop and route listings plus per-stop live
// arrival lookups.
package datamall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bustracker-data/internal/common/config"
	"github.com/bustracker-data/internal/common/logger"
	"github.com/bustracker-data/pkg/datamall/models"
)

const (
	HeaderAccountKey = "AccountKey"
	UserAgent        = "bustracker-data/1.0"
)

type Client struct {
	baseURL    string
	accountKey string
	pageSize   int
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(cfg config.DataMallConfig, log logger.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		accountKey: cfg.AccountKey,
		pageSize:   cfg.PageSize,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: log,
	}
}

// Stops walks the paginated BusStops listing. Pagination ends at the first
// short page.
func (c *Client) Stops(ctx context.Context) ([]models.BusStop, error) {
	var all []models.BusStop
	for skip := 0; ; skip += c.pageSize {
		var page models.BusStopsResponse
		if err := c.get(ctx, fmt.Sprintf("%s/BusStops?$skip=%d", c.baseURL, skip), &page); err != nil {
			return nil, fmt.Errorf("fetching stops page at skip %d: %w", skip, err)
		}
		all = append(all, page.Value...)
		if len(page.Value) < c.pageSize {
			break
		}
	}
	c.logger.Debug("Fetched stop listing", "stops", len(all))
	return all, nil
}

// Routes walks the paginated BusRoutes listing.
func (c *Client) Routes(ctx context.Context) ([]models.BusRoute, error) {
	var all []models.BusRoute
	for skip := 0; ; skip += c.pageSize {
		var page models.BusRoutesResponse
		if err := c.get(ctx, fmt.Sprintf("%s/BusRoutes?$skip=%d", c.baseURL, skip), &page); err != nil {
			return nil, fmt.Errorf("fetching routes page at skip %d: %w", skip, err)
		}
		all = append(all, page.Value...)
		if len(page.Value) < c.pageSize {
			break
		}
	}
	c.logger.Debug("Fetched route listing", "edges", len(all))
	return all, nil
}

// Arrivals looks up the live arrival slots for one stop.
func (c *Client) Arrivals(ctx context.Context, stopCode string) ([]models.ArrivalService, error) {
	var resp models.BusArrivalResponse
	u := fmt.Sprintf("%s/v3/BusArrival?BusStopCode=%s", c.baseURL, url.QueryEscape(stopCode))
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("fetching arrivals for stop %s: %w", stopCode, err)
	}
	return resp.Services, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set(HeaderAccountKey, c.accountKey)
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("feed returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
