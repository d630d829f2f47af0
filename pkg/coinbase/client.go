package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://api.coinbase.com"
	DefaultProductID = "GALA-USD"
	SourceName       = "coinbase"
)

// Client reads a single product ticker from the Advanced Trade API. Without a
// key it uses the public market endpoint.
type Client struct {
	baseURL    string
	productID  string
	path       string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

func NewClient(baseURL, productID string, key *CDPKey, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if productID == "" {
		productID = DefaultProductID
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	path := "/api/v3/brokerage/market/products/" + productID
	if key != nil {
		httpClient.Transport = &tokenTransport{key: key, base: http.DefaultTransport}
		path = "/api/v3/brokerage/products/" + productID
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		productID:  productID,
		path:       path,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		now:        time.Now,
	}
}

func (c *Client) Name() string { return SourceName }

type product struct {
	ProductID          string `json:"product_id"`
	Price              string `json:"price"`
	PricePercentChange string `json:"price_percentage_change_24h"`
	Volume24h          string `json:"volume_24h"`
}

// FetchPrice returns the product snapshot. Coinbase reports volume in base
// units, so it is converted to quote units at the current price.
func (c *Client) FetchPrice(ctx context.Context) (models.PriceSnapshot, error) {
	var p product
	if err := c.get(ctx, c.path, &p); err != nil {
		return models.PriceSnapshot{}, err
	}

	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return models.PriceSnapshot{}, fmt.Errorf("coinbase: invalid price %q: %w", p.Price, err)
	}

	volume := parseNullable(p.Volume24h)
	if volume.Valid {
		volume.Decimal = volume.Decimal.Mul(price)
	}

	snap, err := models.NewPriceSnapshot(c.productID, SourceName, price, parseNullable(p.PricePercentChange), volume, c.now().UTC())
	if err != nil {
		return models.PriceSnapshot{}, fmt.Errorf("coinbase: %w", err)
	}
	return snap, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("coinbase: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("coinbase: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coinbase: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("coinbase: %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("coinbase: decode %s: %w", path, err)
	}
	return nil
}

func parseNullable(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
