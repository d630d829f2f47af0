package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	DefaultCoinID  = "gala"
	SourceName     = "coingecko"
)

// Client reads spot, 24h change and 24h volume from /simple/price.
type Client struct {
	baseURL    string
	coinID     string
	vsCurrency string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient builds a feed for coinID priced in vsCurrency. requestsPerMinute
// keeps the client under the public tier quota.
func NewClient(baseURL, coinID, vsCurrency, apiKey string, timeout time.Duration, requestsPerMinute int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if coinID == "" {
		coinID = DefaultCoinID
	}
	if vsCurrency == "" {
		vsCurrency = "usd"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		coinID:     coinID,
		vsCurrency: strings.ToLower(vsCurrency),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		now:        time.Now,
	}
}

func (c *Client) Name() string { return SourceName }

func (c *Client) FetchPrice(ctx context.Context) (models.PriceSnapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return models.PriceSnapshot{}, fmt.Errorf("coingecko: %w", err)
	}

	q := url.Values{}
	q.Set("ids", c.coinID)
	q.Set("vs_currencies", c.vsCurrency)
	q.Set("include_24hr_change", "true")
	q.Set("include_24hr_vol", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return models.PriceSnapshot{}, fmt.Errorf("coingecko: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.PriceSnapshot{}, fmt.Errorf("coingecko: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return models.PriceSnapshot{}, fmt.Errorf("coingecko: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]map[string]decimal.NullDecimal
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.PriceSnapshot{}, fmt.Errorf("coingecko: decode: %w", err)
	}

	fields, ok := payload[c.coinID]
	if !ok {
		return models.PriceSnapshot{}, fmt.Errorf("coingecko: no data for %q", c.coinID)
	}
	spot := fields[c.vsCurrency]
	if !spot.Valid {
		return models.PriceSnapshot{}, fmt.Errorf("coingecko: no %s price for %q", c.vsCurrency, c.coinID)
	}

	snap, err := models.NewPriceSnapshot(
		strings.ToUpper(c.coinID),
		SourceName,
		spot.Decimal,
		fields[c.vsCurrency+"_24h_change"],
		fields[c.vsCurrency+"_24h_vol"],
		c.now().UTC(),
	)
	if err != nil {
		return models.PriceSnapshot{}, fmt.Errorf("coingecko: %w", err)
	}
	return snap, nil
}
