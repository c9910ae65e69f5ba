// Package loyverse is a small client for the Loyverse v1.0 REST API. It
// walks cursor-paginated collections one page at a time.
package loyverse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"posdash/internal/domain"
)

const (
	DefaultBaseURL   = "https://api.loyverse.com/v1.0"
	DefaultPageLimit = 250
	maxPageLimit     = 250
)

// StatusError is returned when the API answers with anything but 200.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("loyverse: %s returned %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("loyverse: %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

type Config struct {
	BaseURL   string
	Token     string
	PageLimit int
	// RequestsPerSecond paces outgoing calls; zero disables pacing.
	RequestsPerSecond float64
	Timeout           time.Duration
}

type Client struct {
	baseURL    string
	token      string
	pageLimit  int
	limiter    *rate.Limiter
	httpClient *http.Client
}

func New(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := cfg.PageLimit
	if limit <= 0 || limit > maxPageLimit {
		limit = DefaultPageLimit
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		pageLimit:  limit,
		limiter:    limiter,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an access token is present.
func (c *Client) Configured() bool {
	return c.token != ""
}

// ReceiptQuery bounds a receipts fetch. Start and End are sent as UTC.
type ReceiptQuery struct {
	Start   time.Time
	End     time.Time
	StoreID string
}

// Progress counts what a paginated fetch handed to its page callback.
type Progress struct {
	Pages   int
	Records int
}

// Receipts fetches receipts created within q and hands each page to fn
// before requesting the next one. An error from the API or from fn stops
// the walk; pages already handed over stay handed over.
func (c *Client) Receipts(ctx context.Context, q ReceiptQuery, fn func(page []domain.Receipt) error) (Progress, error) {
	params := url.Values{}
	params.Set("created_at_min", q.Start.UTC().Format(domain.TimestampLayout))
	params.Set("created_at_max", q.End.UTC().Format(domain.TimestampLayout))
	if q.StoreID != "" {
		params.Set("store_id", q.StoreID)
	}
	return c.paginate(ctx, "/receipts", "receipts", params, func(raws []json.RawMessage) (int, error) {
		page := make([]domain.Receipt, 0, len(raws))
		for _, raw := range raws {
			r, err := decodeReceipt(raw)
			if err != nil {
				return 0, err
			}
			page = append(page, r)
		}
		if err := fn(page); err != nil {
			return 0, err
		}
		return len(page), nil
	})
}

func (c *Client) Customers(ctx context.Context) ([]domain.Customer, error) {
	var out []domain.Customer
	_, err := c.paginate(ctx, "/customers", "customers", url.Values{}, func(raws []json.RawMessage) (int, error) {
		for _, raw := range raws {
			cust, err := decodeCustomer(raw)
			if err != nil {
				return 0, err
			}
			out = append(out, cust)
		}
		return len(raws), nil
	})
	return out, err
}

func (c *Client) Items(ctx context.Context) ([]domain.CatalogItem, error) {
	var out []domain.CatalogItem
	_, err := c.paginate(ctx, "/items", "items", url.Values{}, func(raws []json.RawMessage) (int, error) {
		for _, raw := range raws {
			item, err := decodeItem(raw)
			if err != nil {
				return 0, err
			}
			out = append(out, item)
		}
		return len(raws), nil
	})
	return out, err
}

func (c *Client) PaymentTypes(ctx context.Context) ([]domain.PaymentType, error) {
	var page struct {
		PaymentTypes []domain.PaymentType `json:"payment_types"`
	}
	if err := c.getJSON(ctx, "/payment_types", url.Values{}, &page); err != nil {
		return nil, err
	}
	return page.PaymentTypes, nil
}

func (c *Client) Stores(ctx context.Context) ([]domain.Store, error) {
	var page struct {
		Stores []json.RawMessage `json:"stores"`
	}
	if err := c.getJSON(ctx, "/stores", url.Values{}, &page); err != nil {
		return nil, err
	}
	out := make([]domain.Store, 0, len(page.Stores))
	for _, raw := range page.Stores {
		s, err := decodeStore(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Client) Employees(ctx context.Context) ([]domain.Employee, error) {
	var page struct {
		Employees []json.RawMessage `json:"employees"`
	}
	if err := c.getJSON(ctx, "/employees", url.Values{}, &page); err != nil {
		return nil, err
	}
	out := make([]domain.Employee, 0, len(page.Employees))
	for _, raw := range page.Employees {
		e, err := decodeEmployee(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	var page struct {
		Categories []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Color string `json:"color"`
		} `json:"categories"`
	}
	if err := c.getJSON(ctx, "/categories", url.Values{}, &page); err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(page.Categories))
	for _, cat := range page.Categories {
		out = append(out, domain.Category{CategoryID: cat.ID, Name: cat.Name, Color: cat.Color})
	}
	return out, nil
}

// paginate requests path until the API stops returning a cursor. handle
// receives the raw objects stored under key and returns how many it kept.
func (c *Client) paginate(ctx context.Context, path string, key string, params url.Values, handle func([]json.RawMessage) (int, error)) (Progress, error) {
	var progress Progress
	params.Set("limit", strconv.Itoa(c.pageLimit))
	logger := log.With().Str("component", "loyverse").Str("path", path).Logger()

	for {
		if err := ctx.Err(); err != nil {
			return progress, err
		}

		var page map[string]json.RawMessage
		if err := c.getJSON(ctx, path, params, &page); err != nil {
			return progress, err
		}

		var raws []json.RawMessage
		if body, ok := page[key]; ok && len(body) > 0 && string(body) != "null" {
			if err := json.Unmarshal(body, &raws); err != nil {
				return progress, fmt.Errorf("loyverse: decode %s: %w", key, err)
			}
		}
		n, err := handle(raws)
		if err != nil {
			return progress, err
		}
		progress.Pages++
		progress.Records += n
		logger.Debug().Int("page", progress.Pages).Int("records", n).Msg("page fetched")

		var cursor string
		if body, ok := page["cursor"]; ok {
			_ = json.Unmarshal(body, &cursor)
		}
		if cursor == "" {
			return progress, nil
		}
		params.Set("cursor", cursor)
	}
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dst any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("loyverse: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("loyverse: %s unreachable: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("loyverse: decode %s: %w", path, err)
	}
	return nil
}
