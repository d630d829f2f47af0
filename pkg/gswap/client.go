package gswap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultGatewayURL = "https://dex-backend-prod1.defi.gala.com"
	DefaultBundlerURL = "https://bundle-backend-prod1.defi.gala.com"
	DefaultEventsURL  = "wss://bundle-backend-prod1.defi.gala.com"

	assetsPageSize = 20
	maxAssetPages  = 10
	uniqueKeyScope = "galaswap - operation - "
)

var ErrNoSigner = errors.New("gswap: swap requires a signing key")

type Config struct {
	GatewayURL        string
	BundlerURL        string
	Timeout           time.Duration
	RequestsPerSecond float64
	// EventTimeout bounds the wait for a terminal swap status.
	EventTimeout time.Duration
}

// APIError is a non-2xx response or an error envelope from the DEX backend.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gswap: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Client talks to the GalaSwap gateway and bundler over REST.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	signer     *Signer
	events     *EventSocket
	logger     *logrus.Logger
	uniqueKey  func() string
}

// NewClient builds a client. signer and events may be nil for read-only use.
func NewClient(cfg Config, signer *Signer, events *EventSocket, logger *logrus.Logger) *Client {
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = DefaultGatewayURL
	}
	if cfg.BundlerURL == "" {
		cfg.BundlerURL = DefaultBundlerURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		signer:     signer,
		events:     events,
		logger:     logger,
		uniqueKey:  func() string { return uniqueKeyScope + uuid.NewString() },
	}
}

type envelope struct {
	Status  int             `json:"status"`
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type assetsPage struct {
	Token []struct {
		Symbol   string          `json:"symbol"`
		Quantity decimal.Decimal `json:"quantity"`
	} `json:"token"`
	Count int `json:"count"`
}

func (c *Client) GetUserAssets(ctx context.Context, wallet string) ([]models.Asset, error) {
	var assets []models.Asset
	for page := 1; page <= maxAssetPages; page++ {
		q := url.Values{}
		q.Set("address", NormalizeAddress(wallet))
		q.Set("page", strconv.Itoa(page))
		q.Set("limit", strconv.Itoa(assetsPageSize))

		var resp assetsPage
		if err := c.do(ctx, "assets", http.MethodGet, c.cfg.GatewayURL+"/user/assets?"+q.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		for _, t := range resp.Token {
			assets = append(assets, models.Asset{Symbol: t.Symbol, Quantity: t.Quantity})
		}
		if len(resp.Token) < assetsPageSize || (resp.Count > 0 && len(assets) >= resp.Count) {
			break
		}
	}
	return assets, nil
}

type quoteData struct {
	AmountIn  decimal.Decimal `json:"amountIn"`
	AmountOut decimal.Decimal `json:"amountOut"`
	Fee       int             `json:"fee"`
}

func (c *Client) QuoteExactInput(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) (models.Quote, error) {
	in, err := ParseTokenKey(tokenIn)
	if err != nil {
		return models.Quote{}, err
	}
	out, err := ParseTokenKey(tokenOut)
	if err != nil {
		return models.Quote{}, err
	}

	q := url.Values{}
	q.Set("tokenIn", in.String())
	q.Set("tokenOut", out.String())
	q.Set("amountIn", amountIn.String())

	var data quoteData
	if err := c.do(ctx, "quote", http.MethodGet, c.cfg.GatewayURL+"/v1/trade/quote?"+q.Encode(), nil, &data); err != nil {
		return models.Quote{}, err
	}

	// Pool deltas come back signed from the pool's side.
	return models.Quote{
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  data.AmountIn.Abs(),
		AmountOut: data.AmountOut.Abs(),
		FeeTier:   data.Fee,
	}, nil
}

type swapRequest struct {
	TokenIn          TokenKey `json:"tokenIn"`
	TokenOut         TokenKey `json:"tokenOut"`
	AmountIn         string   `json:"amountIn"`
	Fee              int      `json:"fee"`
	SqrtPriceLimit   string   `json:"sqrtPriceLimit"`
	AmountInMaximum  string   `json:"amountInMaximum"`
	AmountOutMinimum string   `json:"amountOutMinimum"`
}

type bundleRequest struct {
	Payload   map[string]any `json:"payload"`
	Type      string         `json:"type"`
	Signature string         `json:"signature"`
	User      string         `json:"user"`
}

// Swap builds the swap DTO on the gateway, signs it and submits it to the
// bundler. A dropped event socket is redialed first; with a connected socket
// Swap waits for the outcome, otherwise the receipt stays PENDING.
func (c *Client) Swap(ctx context.Context, tokenIn, tokenOut string, feeTier int, amounts models.SwapAmounts, wallet string) (models.SwapReceipt, error) {
	if c.signer == nil {
		return models.SwapReceipt{}, ErrNoSigner
	}
	in, err := ParseTokenKey(tokenIn)
	if err != nil {
		return models.SwapReceipt{}, err
	}
	out, err := ParseTokenKey(tokenOut)
	if err != nil {
		return models.SwapReceipt{}, err
	}

	req := swapRequest{
		TokenIn:          in,
		TokenOut:         out,
		AmountIn:         amounts.ExactIn.String(),
		Fee:              feeTier,
		SqrtPriceLimit:   "0",
		AmountInMaximum:  amounts.ExactIn.String(),
		AmountOutMinimum: amounts.AmountOutMinimum.Neg().String(),
	}

	// Subscribe before submitting so the outcome cannot arrive unobserved.
	if c.events != nil && !c.events.Connected() {
		if err := c.events.Connect(ctx); err != nil {
			c.logger.WithError(err).Warn("Bundler event socket unavailable, swap will be reported as pending")
		}
	}

	var payload map[string]any
	if err := c.do(ctx, "swap", http.MethodPost, c.cfg.GatewayURL+"/v1/trade/swap", req, &payload); err != nil {
		return models.SwapReceipt{}, err
	}
	payload["uniqueKey"] = c.uniqueKey()

	signature, err := c.signer.Sign(payload)
	if err != nil {
		return models.SwapReceipt{}, err
	}
	payload["signature"] = signature

	var txID string
	bundle := bundleRequest{Payload: payload, Type: "swap", Signature: signature, User: NormalizeAddress(wallet)}
	if err := c.do(ctx, "bundle", http.MethodPost, c.cfg.BundlerURL+"/bundle", bundle, &txID); err != nil {
		return models.SwapReceipt{}, err
	}

	receipt := models.SwapReceipt{TxID: txID, Status: models.SwapPending}
	log := c.logger.WithField("tx_id", txID)
	log.Info("Swap submitted to bundler")

	if c.events == nil || !c.events.Connected() {
		return receipt, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.EventTimeout)
	defer cancel()
	ev, err := c.events.Wait(waitCtx, txID)
	if err != nil {
		log.WithError(err).Warn("No terminal status for swap, leaving it pending")
		return receipt, nil
	}

	receipt.Status = ev.Status
	if ev.Status == models.SwapFailed {
		return receipt, &APIError{Op: "swap", StatusCode: http.StatusOK, Message: fmt.Sprintf("transaction %s failed: %v", txID, ev.Data)}
	}
	return receipt, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gswap: %s: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gswap: %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("gswap: %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gswap: %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gswap: %s: read response: %w", op, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("gswap: %s: decode response: %w", op, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || env.Error {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("gswap: %s: decode data: %w", op, err)
	}
	return nil
}
