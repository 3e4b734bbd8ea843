package exchange

import (
	"context"
	"errors"
	"time"
)

// Exchange - минимальный набор возможностей спотовой биржи, нужный движку
// треугольного арбитража. Все методы учитывают context: отмена запуска
// прерывает и сетевые запросы.
type Exchange interface {
	// GetName возвращает имя биржи
	GetName() string

	// GetAssetBalance возвращает свободный баланс актива
	GetAssetBalance(ctx context.Context, asset string) (float64, error)

	// GetAccountBalances возвращает свободные балансы всех активов с ненулевым free
	GetAccountBalances(ctx context.Context) (map[string]float64, error)

	// GetSymbolRules возвращает торговые правила пары или ErrSymbolNotFound
	GetSymbolRules(ctx context.Context, symbol string) (*SymbolRules, error)

	// PlaceLimitOrder размещает лимитный GTC ордер с полным ответом
	PlaceLimitOrder(ctx context.Context, symbol, side string, qty, price float64) (*Order, error)

	// GetOrder возвращает текущее состояние ордера
	GetOrder(ctx context.Context, symbol, orderID string) (*Order, error)

	// CancelOrder отменяет ордер
	CancelOrder(ctx context.Context, symbol, orderID string) (*Order, error)

	// GetTicker возвращает лучшие bid/ask
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)

	// Get24hVolume возвращает объём торгов за 24 часа в базовой валюте
	Get24hVolume(ctx context.Context, symbol string) (float64, error)

	// GetOrderBook возвращает стакан заданной глубины
	GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)

	// Close освобождает ресурсы клиента
	Close() error
}

// ErrSymbolNotFound - пара отсутствует в exchangeInfo
var ErrSymbolNotFound = errors.New("symbol not found")

// SymbolRules - торговые правила пары
type SymbolRules struct {
	Symbol      string  `json:"symbol"`
	BaseAsset   string  `json:"base_asset"`
	QuoteAsset  string  `json:"quote_asset"`
	StepSize    float64 `json:"step_size"`    // LOT_SIZE
	TickSize    float64 `json:"tick_size"`    // PRICE_FILTER
	MinNotional float64 `json:"min_notional"` // MIN_NOTIONAL / NOTIONAL
}

// Ticker - лучшие цены стакана
type Ticker struct {
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderBook - стакан ордеров
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// PriceLevel - уровень цены в стакане
type PriceLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// Order - ордер в терминах биржи
type Order struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	FilledQty float64   `json:"filled_qty"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExchangeError - ошибка, возвращённая API биржи
type ExchangeError struct {
	Exchange   string
	HTTPStatus int
	Code       string
	Message    string
	Original   error
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return e.Exchange + ": " + e.Message + " (code " + e.Code + ")"
	}
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Стороны ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Статусы ордера (как их возвращает спотовый API)
const (
	OrderStatusNew             = "NEW"
	OrderStatusPending         = "PENDING" // до первого ответа на запрос статуса
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusExpired         = "EXPIRED"
	OrderStatusRejected        = "REJECTED"
)

// IsTerminalNonFill - ордер завершён без исполнения
func IsTerminalNonFill(status string) bool {
	switch status {
	case OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}
