package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"triarb/pkg/ratelimit"
	"triarb/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	binanceName           = "binance"
	binanceDefaultBaseURL = "https://api.binance.com"

	// код Binance "Invalid symbol."
	binanceCodeInvalidSymbol = -1121
)

// Значения фильтров, если биржа их не вернула
const (
	DefaultStepSize    = 0.000001
	DefaultTickSize    = 0.000001
	DefaultMinNotional = 0.001
)

// Вес запросов Binance spot (REQUEST_WEIGHT)
const (
	weightExchangeInfo = 20
	weightAccount      = 20
	weightOrder        = 1
	weightQueryOrder   = 4
	weightCancelOrder  = 1
	weightBookTicker   = 2
	weightTicker24h    = 2
	weightDepth        = 5
)

// BinanceConfig - параметры клиента Binance
type BinanceConfig struct {
	APIKey     string
	SecretKey  string
	BaseURL    string
	RecvWindow time.Duration

	// Лимиты запросов: вес в секунду и ордера в секунду
	WeightPerSecond float64
	OrdersPerSecond float64

	HTTP HTTPClientConfig
}

// Binance реализует Exchange для спотового REST API Binance
type Binance struct {
	apiKey     string
	secretKey  string
	baseURL    string
	recvWindow int64

	httpClient *HTTPClient
	limiter    *ratelimit.MultiLimiter
	logger     *utils.Logger

	now func() time.Time
}

// NewBinance создаёт клиент Binance
func NewBinance(cfg BinanceConfig, logger *utils.Logger) *Binance {
	if cfg.BaseURL == "" {
		cfg.BaseURL = binanceDefaultBaseURL
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = 5 * time.Second
	}
	if cfg.HTTP.TotalTimeout == 0 {
		cfg.HTTP = DefaultHTTPClientConfig()
	}
	if logger == nil {
		logger = utils.L()
	}

	limiter := ratelimit.NewMultiLimiter()
	limiter.Add(ratelimit.CategoryWeight, cfg.WeightPerSecond, cfg.WeightPerSecond*2)
	limiter.Add(ratelimit.CategoryOrders, cfg.OrdersPerSecond, cfg.OrdersPerSecond*2)

	return &Binance{
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		recvWindow: cfg.RecvWindow.Milliseconds(),
		httpClient: NewHTTPClient(cfg.HTTP),
		limiter:    limiter,
		logger:     logger.WithExchange(binanceName),
		now:        time.Now,
	}
}

// sign - HMAC-SHA256 подпись query string секретным ключом
func (b *Binance) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest выполняет запрос к REST API, соблюдая лимиты по весу
func (b *Binance) doRequest(ctx context.Context, method, endpoint string, params url.Values, signed bool, weight int) ([]byte, error) {
	if err := b.limiter.WaitN(ctx, ratelimit.CategoryWeight, weight); err != nil {
		return nil, err
	}
	if method == http.MethodPost && endpoint == "/api/v3/order" {
		if err := b.limiter.WaitN(ctx, ratelimit.CategoryOrders, 1); err != nil {
			return nil, err
		}
	}

	if params == nil {
		params = url.Values{}
	}

	query := params.Encode()
	if signed {
		params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.FormatInt(b.recvWindow, 10))
		query = params.Encode()
		query += "&signature=" + b.sign(query)
	}

	reqURL := b.baseURL + endpoint
	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(query)
	} else if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", b.apiKey)
	}

	start := time.Now()
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: binanceName, Message: "request failed", Original: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExchangeError{Exchange: binanceName, HTTPStatus: resp.StatusCode, Message: "read body failed", Original: err}
	}

	b.logger.Debug("binance request",
		utils.String("method", method),
		utils.String("endpoint", endpoint),
		utils.Int("status", resp.StatusCode),
		utils.Latency(float64(time.Since(start).Microseconds())/1000))

	if resp.StatusCode != http.StatusOK {
		return nil, parseBinanceError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func parseBinanceError(status int, body []byte) error {
	var errResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Msg == "" {
		errResp.Msg = http.StatusText(status)
	}

	exErr := &ExchangeError{
		Exchange:   binanceName,
		HTTPStatus: status,
		Code:       strconv.Itoa(errResp.Code),
		Message:    errResp.Msg,
	}
	if errResp.Code == binanceCodeInvalidSymbol {
		exErr.Original = ErrSymbolNotFound
	}
	return exErr
}

// GetName возвращает имя биржи
func (b *Binance) GetName() string {
	return binanceName
}

type binanceAccount struct {
	Balances []struct {
		Asset  string  `json:"asset"`
		Free   float64 `json:"free,string"`
		Locked float64 `json:"locked,string"`
	} `json:"balances"`
}

func (b *Binance) account(ctx context.Context) (*binanceAccount, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/account", nil, true, weightAccount)
	if err != nil {
		return nil, err
	}
	var acc binanceAccount
	if err := json.Unmarshal(body, &acc); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &acc, nil
}

// GetAssetBalance возвращает свободный баланс актива (0, если актива нет)
func (b *Binance) GetAssetBalance(ctx context.Context, asset string) (float64, error) {
	acc, err := b.account(ctx)
	if err != nil {
		return 0, err
	}
	for _, bal := range acc.Balances {
		if bal.Asset == asset {
			return bal.Free, nil
		}
	}
	return 0, nil
}

// GetAccountBalances возвращает активы с ненулевым свободным балансом
func (b *Binance) GetAccountBalances(ctx context.Context) (map[string]float64, error) {
	acc, err := b.account(ctx)
	if err != nil {
		return nil, err
	}
	balances := make(map[string]float64)
	for _, bal := range acc.Balances {
		if bal.Free > 0 {
			balances[bal.Asset] = bal.Free
		}
	}
	return balances, nil
}

type binanceFilter struct {
	FilterType  string `json:"filterType"`
	StepSize    string `json:"stepSize"`
	TickSize    string `json:"tickSize"`
	MinNotional string `json:"minNotional"`
}

type binanceExchangeInfo struct {
	Symbols []struct {
		Symbol     string          `json:"symbol"`
		BaseAsset  string          `json:"baseAsset"`
		QuoteAsset string          `json:"quoteAsset"`
		Filters    []binanceFilter `json:"filters"`
	} `json:"symbols"`
}

// GetSymbolRules читает LOT_SIZE, PRICE_FILTER и MIN_NOTIONAL/NOTIONAL пары.
// Отсутствующий фильтр заменяется значением по умолчанию.
func (b *Binance) GetSymbolRules(ctx context.Context, symbol string) (*SymbolRules, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false, weightExchangeInfo)
	if err != nil {
		return nil, err
	}

	var info binanceExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode exchangeInfo: %w", err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		rules := &SymbolRules{
			Symbol:      s.Symbol,
			BaseAsset:   s.BaseAsset,
			QuoteAsset:  s.QuoteAsset,
			StepSize:    DefaultStepSize,
			TickSize:    DefaultTickSize,
			MinNotional: DefaultMinNotional,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				rules.StepSize = parseFloatOr(f.StepSize, DefaultStepSize)
			case "PRICE_FILTER":
				rules.TickSize = parseFloatOr(f.TickSize, DefaultTickSize)
			case "MIN_NOTIONAL", "NOTIONAL":
				rules.MinNotional = parseFloatOr(f.MinNotional, DefaultMinNotional)
			}
		}
		return rules, nil
	}

	return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
}

type binanceOrder struct {
	Symbol      string  `json:"symbol"`
	OrderID     int64   `json:"orderId"`
	Price       float64 `json:"price,string"`
	OrigQty     float64 `json:"origQty,string"`
	ExecutedQty float64 `json:"executedQty,string"`
	Status      string  `json:"status"`
	Side        string  `json:"side"`
	UpdateTime  int64   `json:"updateTime"`
}

func (o *binanceOrder) toOrder() *Order {
	updated := time.Now()
	if o.UpdateTime > 0 {
		updated = time.UnixMilli(o.UpdateTime)
	}
	return &Order{
		ID:        strconv.FormatInt(o.OrderID, 10),
		Symbol:    o.Symbol,
		Side:      strings.ToLower(o.Side),
		Price:     o.Price,
		Quantity:  o.OrigQty,
		FilledQty: o.ExecutedQty,
		Status:    o.Status,
		UpdatedAt: updated,
	}
}

func (b *Binance) decodeOrder(body []byte) (*Order, error) {
	var resp binanceOrder
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return resp.toOrder(), nil
}

// PlaceLimitOrder размещает LIMIT GTC ордер (newOrderRespType=FULL)
func (b *Binance) PlaceLimitOrder(ctx context.Context, symbol, side string, qty, price float64) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", strings.ToUpper(side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("quantity", formatDecimal(qty))
	params.Set("price", formatDecimal(price))
	params.Set("newOrderRespType", "FULL")

	body, err := b.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true, weightOrder)
	if err != nil {
		return nil, err
	}
	return b.decodeOrder(body)
}

// GetOrder запрашивает состояние ордера
func (b *Binance) GetOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/order", params, true, weightQueryOrder)
	if err != nil {
		return nil, err
	}
	return b.decodeOrder(body)
}

// CancelOrder отменяет ордер
func (b *Binance) CancelOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	body, err := b.doRequest(ctx, http.MethodDelete, "/api/v3/order", params, true, weightCancelOrder)
	if err != nil {
		return nil, err
	}
	return b.decodeOrder(body)
}

// GetTicker возвращает лучшие bid/ask из bookTicker
func (b *Binance) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/ticker/bookTicker", params, false, weightBookTicker)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbol   string  `json:"symbol"`
		BidPrice float64 `json:"bidPrice,string"`
		AskPrice float64 `json:"askPrice,string"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode bookTicker: %w", err)
	}

	return &Ticker{
		Symbol:    resp.Symbol,
		BidPrice:  resp.BidPrice,
		AskPrice:  resp.AskPrice,
		Timestamp: time.Now(),
	}, nil
}

// Get24hVolume возвращает объём за 24 часа в базовой валюте
func (b *Binance) Get24hVolume(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/ticker/24hr", params, false, weightTicker24h)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Volume float64 `json:"volume,string"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode 24hr ticker: %w", err)
	}
	return resp.Volume, nil
}

// GetOrderBook возвращает стакан глубины depth
func (b *Binance) GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(depth))

	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/depth", params, false, weightDepth)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode depth: %w", err)
	}

	return &OrderBook{
		Symbol:    symbol,
		Bids:      parseLevels(resp.Bids),
		Asks:      parseLevels(resp.Asks),
		Timestamp: time.Now(),
	}, nil
}

// Close закрывает idle соединения HTTP клиента
func (b *Binance) Close() error {
	b.httpClient.Close()
	return nil
}

func parseLevels(raw [][2]string) []PriceLevel {
	levels := make([]PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		price, err1 := strconv.ParseFloat(lvl[0], 64)
		volume, err2 := strconv.ParseFloat(lvl[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		levels = append(levels, PriceLevel{Price: price, Volume: volume})
	}
	return levels
}

func parseFloatOr(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

// formatDecimal форматирует число без экспоненты (1e-05 -> 0.00001)
func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
