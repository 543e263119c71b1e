package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"cycletrader/internal/config"
	"cycletrader/internal/model"
)

const (
	bittrexTimeLayout = "2006-01-02T15:04:05.999999999"
	quantityPlaces    = 8
)

// BittrexClient implements the ExchangeClient interface for the Bittrex v1.1 REST API.
type BittrexClient struct {
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewBittrexClient creates a new BittrexClient.
func NewBittrexClient(logger *slog.Logger, cfg *config.ExchangeConfig) *BittrexClient {
	return &BittrexClient{
		logger:     logger,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		now:        time.Now,
	}
}

func (b *BittrexClient) GetName() string {
	return "bittrex"
}

type bittrexEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type bittrexSummary struct {
	MarketName string  `json:"MarketName"`
	Bid        float64 `json:"Bid"`
	Ask        float64 `json:"Ask"`
}

type bittrexMarket struct {
	MarketName   string  `json:"MarketName"`
	MinTradeSize float64 `json:"MinTradeSize"`
}

type bittrexBalance struct {
	Currency  string  `json:"Currency"`
	Available float64 `json:"Available"`
}

type bittrexLevel struct {
	Quantity float64 `json:"Quantity"`
	Rate     float64 `json:"Rate"`
}

type bittrexBook struct {
	Buy  []bittrexLevel `json:"buy"`
	Sell []bittrexLevel `json:"sell"`
}

type bittrexOpenOrder struct {
	OrderUUID string `json:"OrderUuid"`
	Exchange  string `json:"Exchange"`
	Opened    string `json:"Opened"`
}

type bittrexOrderResult struct {
	UUID string `json:"uuid"`
}

// MarketSummaries returns the best bid and ask of every market. Malformed
// entries are dropped.
func (b *BittrexClient) MarketSummaries(ctx context.Context) ([]model.Market, error) {
	var raw []bittrexSummary
	if err := b.public(ctx, "public/getmarketsummaries", nil, &raw); err != nil {
		return nil, err
	}
	markets := make([]model.Market, 0, len(raw))
	for _, s := range raw {
		m, err := model.NewMarket(s.MarketName, s.Bid, s.Ask)
		if err != nil {
			b.logger.Warn("BittrexClient: skipping market summary", "error", err)
			continue
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// MinTradeSizes returns the raw minimum trade size of every market, in
// market currency units.
func (b *BittrexClient) MinTradeSizes(ctx context.Context) (map[string]float64, error) {
	var raw []bittrexMarket
	if err := b.public(ctx, "public/getmarkets", nil, &raw); err != nil {
		return nil, err
	}
	sizes := make(map[string]float64, len(raw))
	for _, m := range raw {
		sizes[m.MarketName] = m.MinTradeSize
	}
	return sizes, nil
}

// Balances returns the currencies with a positive available balance.
func (b *BittrexClient) Balances(ctx context.Context) ([]model.Balance, error) {
	var raw []bittrexBalance
	if err := b.private(ctx, "account/getbalances", nil, &raw); err != nil {
		return nil, err
	}
	balances := make([]model.Balance, 0, len(raw))
	for _, r := range raw {
		if r.Available > 0 {
			balances = append(balances, model.Balance{Currency: r.Currency, Available: r.Available})
		}
	}
	return balances, nil
}

// OrderBook returns both sides of a market. A null side becomes empty.
func (b *BittrexClient) OrderBook(ctx context.Context, market string) (model.OrderBook, error) {
	var raw bittrexBook
	query := url.Values{"market": {market}, "type": {"both"}}
	if err := b.public(ctx, "public/getorderbook", query, &raw); err != nil {
		return model.OrderBook{}, err
	}
	return model.OrderBook{
		Market: market,
		Buy:    convertLevels(raw.Buy),
		Sell:   convertLevels(raw.Sell),
	}, nil
}

func convertLevels(raw []bittrexLevel) []model.OrderBookLevel {
	levels := make([]model.OrderBookLevel, len(raw))
	for i, l := range raw {
		levels[i] = model.OrderBookLevel{Quantity: l.Quantity, Rate: l.Rate}
	}
	return levels
}

// OpenOrders returns the account's resting orders.
func (b *BittrexClient) OpenOrders(ctx context.Context) ([]OpenOrder, error) {
	var raw []bittrexOpenOrder
	if err := b.private(ctx, "market/getopenorders", nil, &raw); err != nil {
		return nil, err
	}
	orders := make([]OpenOrder, 0, len(raw))
	for _, o := range raw {
		opened, err := time.ParseInLocation(bittrexTimeLayout, o.Opened, time.UTC)
		if err != nil {
			b.logger.Warn("BittrexClient: bad open order timestamp", "order", o.OrderUUID, "error", err)
			continue
		}
		orders = append(orders, OpenOrder{ID: o.OrderUUID, Market: o.Exchange, Opened: opened})
	}
	return orders, nil
}

// CancelOrder cancels a resting order.
func (b *BittrexClient) CancelOrder(ctx context.Context, id string) error {
	return b.private(ctx, "market/cancel", url.Values{"uuid": {id}}, nil)
}

// PlaceLimitOrder submits a limit order at rate and returns its id. The
// quantity is truncated, never rounded up, to the exchange's precision.
func (b *BittrexClient) PlaceLimitOrder(ctx context.Context, order model.TradeInstruction, rate float64) (string, error) {
	method := "market/selllimit"
	if order.Side == model.SideBuy {
		method = "market/buylimit"
	}
	query := url.Values{
		"market":   {order.Market},
		"quantity": {decimal.NewFromFloat(order.Quantity).Truncate(quantityPlaces).String()},
		"rate":     {decimal.NewFromFloat(rate).StringFixed(quantityPlaces)},
	}
	var res bittrexOrderResult
	if err := b.private(ctx, method, query, &res); err != nil {
		return "", err
	}
	return res.UUID, nil
}

func (b *BittrexClient) public(ctx context.Context, method string, query url.Values, out any) error {
	endpoint := b.baseURL + "/" + method
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return b.do(ctx, method, endpoint, nil, out)
}

// private signs the full request URL, including apikey and nonce, with
// HMAC-SHA512 and sends the hex digest in the apisign header.
func (b *BittrexClient) private(ctx context.Context, method string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apikey", b.apiKey)
	query.Set("nonce", strconv.FormatInt(b.now().UnixMilli(), 10))
	endpoint := b.baseURL + "/" + method + "?" + query.Encode()
	return b.do(ctx, method, endpoint, map[string]string{"apisign": Sign(b.apiSecret, endpoint)}, out)
}

// Sign returns the hex HMAC-SHA512 of message keyed by secret.
func Sign(secret, message string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *BittrexClient) do(ctx context.Context, method, endpoint string, headers map[string]string, out any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", method, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Method: method, Status: resp.StatusCode, Message: string(body)}
	}

	var env bittrexEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s: decode envelope: %w", method, err)
	}
	if !env.Success {
		return &APIError{Method: method, Message: env.Message}
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}
