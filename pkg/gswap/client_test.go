package gswap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nullLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": 200, "error": false, "data": data})
}

func newTestClient(srv *httptest.Server, signer *Signer, events *EventSocket) *Client {
	return NewClient(Config{
		GatewayURL:        srv.URL,
		BundlerURL:        srv.URL,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
		EventTimeout:      time.Second,
	}, signer, events, nullLogger())
}

func TestGetUserAssetsPages(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user/assets", r.URL.Path)
		assert.Equal(t, "eth|abc", r.URL.Query().Get("address"))
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		tokens := []map[string]any{}
		if page == "1" {
			for i := 0; i < assetsPageSize-1; i++ {
				tokens = append(tokens, map[string]any{"symbol": "JUNK", "quantity": "1"})
			}
			tokens = append(tokens, map[string]any{"symbol": "GALA", "quantity": "5.03"})
		} else {
			tokens = append(tokens, map[string]any{"symbol": "GUSDC", "quantity": "1.62"})
		}
		writeData(w, map[string]any{"token": tokens, "count": assetsPageSize + 1})
	}))
	defer srv.Close()

	assets, err := newTestClient(srv, nil, nil).GetUserAssets(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, pages)
	require.Len(t, assets, assetsPageSize+1)
	assert.Equal(t, "GALA", assets[assetsPageSize-1].Symbol)
	assert.True(t, decimal.RequireFromString("1.62").Equal(assets[assetsPageSize].Quantity))
}

func TestQuoteExactInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/trade/quote", r.URL.Path)
		assert.Equal(t, "GUSDC$Unit$none$none", r.URL.Query().Get("tokenIn"))
		assert.Equal(t, "GALA$Unit$none$none", r.URL.Query().Get("tokenOut"))
		assert.Equal(t, "1.5", r.URL.Query().Get("amountIn"))
		writeData(w, map[string]any{"amountIn": "1.5", "amountOut": "-90.25", "fee": 10000})
	}))
	defer srv.Close()

	q, err := newTestClient(srv, nil, nil).QuoteExactInput(context.Background(), "GUSDC|Unit|none|none", "GALA|Unit|none|none", decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("90.25").Equal(q.AmountOut))
	assert.Equal(t, 10000, q.FeeTier)
}

func TestQuoteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":400,"error":true,"message":"insufficient liquidity"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, nil, nil).QuoteExactInput(context.Background(), "GUSDC|Unit|none|none", "GALA|Unit|none|none", decimal.NewFromInt(1))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "quote", apiErr.Op)
	assert.Contains(t, err.Error(), "insufficient liquidity")
}

func TestSwapWithoutSigner(t *testing.T) {
	c := NewClient(Config{}, nil, nil, nullLogger())
	_, err := c.Swap(context.Background(), "GUSDC|Unit|none|none", "GALA|Unit|none|none", 10000, models.SwapAmounts{}, "eth|abc")
	assert.ErrorIs(t, err, ErrNoSigner)
}

func TestSwapSignsAndSubmits(t *testing.T) {
	signer := newTestSigner(t)
	var bundle bundleRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/trade/swap":
			var req swapRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "GUSDC", req.TokenIn.Collection)
			assert.Equal(t, "2", req.AmountIn)
			assert.Equal(t, "-100", req.AmountOutMinimum)
			assert.Equal(t, 3000, req.Fee)
			writeData(w, map[string]any{"tokenIn": req.TokenIn, "amountIn": req.AmountIn})
		case "/bundle":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&bundle))
			writeData(w, "tx-123")
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv, signer, nil)
	c.uniqueKey = func() string { return "galaswap - operation - fixed" }

	receipt, err := c.Swap(context.Background(), "GUSDC|Unit|none|none", "GALA|Unit|none|none", 3000, models.SwapAmounts{
		ExactIn:          decimal.NewFromInt(2),
		AmountOutMinimum: decimal.NewFromInt(100),
	}, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "tx-123", receipt.TxID)
	assert.Equal(t, models.SwapPending, receipt.Status)

	assert.Equal(t, "swap", bundle.Type)
	assert.Equal(t, "eth|abc", bundle.User)
	assert.Equal(t, "galaswap - operation - fixed", bundle.Payload["uniqueKey"])
	assert.Equal(t, bundle.Signature, bundle.Payload["signature"])

	unsigned := map[string]any{}
	for k, v := range bundle.Payload {
		if k != "signature" {
			unsigned[k] = v
		}
	}
	want, err := signer.Sign(unsigned)
	require.NoError(t, err)
	assert.Equal(t, want, bundle.Signature)
}

func TestSwapWaitsForTerminalEvent(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var wsConn *websocket.Conn
	var wsMu sync.Mutex
	connected := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/events":
			conn, err := upgrader.Upgrade(w, r, nil)
			require.NoError(t, err)
			wsMu.Lock()
			wsConn = conn
			wsMu.Unlock()
			close(connected)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		case "/v1/trade/swap":
			writeData(w, map[string]any{"amountIn": "1"})
		case "/bundle":
			writeData(w, "tx-9")
			wsMu.Lock()
			_ = wsConn.WriteJSON(TransactionEvent{TransactionID: "tx-9", Status: models.SwapPending})
			_ = wsConn.WriteJSON(TransactionEvent{TransactionID: "tx-9", Status: models.SwapFailed, Data: "slippage exceeded"})
			wsMu.Unlock()
		}
	}))
	defer srv.Close()

	events := NewEventSocket("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nullLogger())
	require.NoError(t, events.Connect(context.Background()))
	defer events.Close()
	<-connected

	c := newTestClient(srv, newTestSigner(t), events)
	receipt, err := c.Swap(context.Background(), "GALA|Unit|none|none", "GUSDC|Unit|none|none", 10000, models.SwapAmounts{
		ExactIn:          decimal.NewFromInt(1),
		AmountOutMinimum: decimal.Zero,
	}, "eth|abc")

	assert.Equal(t, models.SwapFailed, receipt.Status)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Message, "slippage exceeded")
}

func TestSwapRedialsDroppedEventSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var (
		wsMu   sync.Mutex
		wsConn *websocket.Conn
		dials  int
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/events":
			conn, err := upgrader.Upgrade(w, r, nil)
			require.NoError(t, err)
			wsMu.Lock()
			dials++
			first := dials == 1
			wsConn = conn
			wsMu.Unlock()
			if first {
				conn.Close()
				return
			}
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		case "/v1/trade/swap":
			writeData(w, map[string]any{"amountIn": "1"})
		case "/bundle":
			writeData(w, "tx-7")
			wsMu.Lock()
			_ = wsConn.WriteJSON(TransactionEvent{TransactionID: "tx-7", Status: models.SwapProcessed})
			wsMu.Unlock()
		}
	}))
	defer srv.Close()

	events := NewEventSocket("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nullLogger())
	require.NoError(t, events.Connect(context.Background()))
	defer events.Close()
	assert.Eventually(t, func() bool { return !events.Connected() }, time.Second, 10*time.Millisecond)

	c := newTestClient(srv, newTestSigner(t), events)
	receipt, err := c.Swap(context.Background(), "GALA|Unit|none|none", "GUSDC|Unit|none|none", 10000, models.SwapAmounts{
		ExactIn:          decimal.NewFromInt(1),
		AmountOutMinimum: decimal.Zero,
	}, "eth|abc")

	require.NoError(t, err)
	assert.Equal(t, models.SwapProcessed, receipt.Status)
	assert.True(t, events.Connected())
	wsMu.Lock()
	assert.Equal(t, 2, dials)
	wsMu.Unlock()
}

func TestSwapStaysPendingWhenRedialFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/trade/swap":
			writeData(w, map[string]any{"amountIn": "1"})
		case "/bundle":
			writeData(w, "tx-8")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	events := NewEventSocket("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nullLogger())
	c := newTestClient(srv, newTestSigner(t), events)
	receipt, err := c.Swap(context.Background(), "GALA|Unit|none|none", "GUSDC|Unit|none|none", 10000, models.SwapAmounts{
		ExactIn:          decimal.NewFromInt(1),
		AmountOutMinimum: decimal.Zero,
	}, "eth|abc")

	require.NoError(t, err)
	assert.Equal(t, "tx-8", receipt.TxID)
	assert.Equal(t, models.SwapPending, receipt.Status)
	assert.False(t, events.Connected())
}

func TestGetUserAssetsWithoutCountReadsFullPages(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		tokens := []map[string]any{}
		if page == "1" {
			for i := 0; i < assetsPageSize; i++ {
				tokens = append(tokens, map[string]any{"symbol": "JUNK", "quantity": "1"})
			}
		} else {
			tokens = append(tokens, map[string]any{"symbol": "GALA", "quantity": "7"})
		}
		writeData(w, map[string]any{"token": tokens})
	}))
	defer srv.Close()

	assets, err := newTestClient(srv, nil, nil).GetUserAssets(context.Background(), "eth|abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, pages)
	require.Len(t, assets, assetsPageSize+1)
	assert.Equal(t, "GALA", assets[assetsPageSize].Symbol)
}
