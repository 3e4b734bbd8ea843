package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"triarb/internal/exchange"
)

// ============ Мок биржи для тестов ============

// fillFull - исполнить весь объём ордера
const fillFull = -1

// orderStep - очередной статус, который вернёт GetOrder
type orderStep struct {
	status string
	filled float64 // fillFull = весь объём
}

type placedOrder struct {
	Symbol   string
	Side     string
	Quantity float64
	Price    float64
}

// mockExchange - spy с заранее заданными ответами.
// По умолчанию каждый ордер исполняется полностью при первом запросе статуса.
type mockExchange struct {
	mu sync.Mutex

	rules    map[string]*exchange.SymbolRules
	tickers  map[string]*exchange.Ticker
	volumes  map[string]float64
	books    map[string]*exchange.OrderBook
	balances map[string]float64

	balanceErr   error
	balanceFails int   // сколько первых запросов балансов вернут ошибку
	balanceFail  error // ошибка этих запросов; nil = временная недоступность
	tickerErr    error
	placeErr     map[string]error
	cancelErr    error
	statusErrors int // сколько первых запросов статуса вернут ошибку

	scripts map[string][]orderStep // по символу
	orders  map[string]*exchange.Order
	nextID  int

	placed        []placedOrder
	rulesCalls    int
	getOrderCalls int
	cancelCalls   int
	balanceCalls  int

	// onGetOrder вызывается перед ответом на запрос статуса (вне блокировки)
	onGetOrder func(symbol, orderID string)
}

func newMockExchange() *mockExchange {
	return &mockExchange{
		rules:    make(map[string]*exchange.SymbolRules),
		tickers:  make(map[string]*exchange.Ticker),
		volumes:  make(map[string]float64),
		books:    make(map[string]*exchange.OrderBook),
		balances: make(map[string]float64),
		placeErr: make(map[string]error),
		scripts:  make(map[string][]orderStep),
		orders:   make(map[string]*exchange.Order),
	}
}

// newTriangleExchange - треугольник USDT -> ETH -> BTC -> USDT
func newTriangleExchange() *mockExchange {
	m := newMockExchange()
	m.rules["ETHUSDT"] = &exchange.SymbolRules{
		Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT",
		StepSize: 0.0001, TickSize: 0.01, MinNotional: 10,
	}
	m.rules["ETHBTC"] = &exchange.SymbolRules{
		Symbol: "ETHBTC", BaseAsset: "ETH", QuoteAsset: "BTC",
		StepSize: 0.0001, TickSize: 0.00001, MinNotional: 0.0001,
	}
	m.rules["BTCUSDT"] = &exchange.SymbolRules{
		Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT",
		StepSize: 0.00001, TickSize: 0.01, MinNotional: 10,
	}
	m.balances["USDT"] = 1000
	return m
}

func (m *mockExchange) script(symbol string, steps ...orderStep) {
	m.mu.Lock()
	m.scripts[symbol] = steps
	m.mu.Unlock()
}

func (m *mockExchange) placedOrders() []placedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]placedOrder(nil), m.placed...)
}

func (m *mockExchange) statusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrderCalls
}

func (m *mockExchange) GetName() string { return "mock" }

func (m *mockExchange) GetAssetBalance(ctx context.Context, asset string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[asset], m.balanceErr
}

func (m *mockExchange) GetAccountBalances(ctx context.Context) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceCalls++
	if m.balanceFails > 0 {
		m.balanceFails--
		if m.balanceFail != nil {
			return nil, m.balanceFail
		}
		return nil, errors.New("balance temporarily unavailable")
	}
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	result := make(map[string]float64, len(m.balances))
	for k, v := range m.balances {
		result[k] = v
	}
	return result, nil
}

func (m *mockExchange) GetSymbolRules(ctx context.Context, symbol string) (*exchange.SymbolRules, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rulesCalls++
	rules, ok := m.rules[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, symbol)
	}
	copied := *rules
	return &copied, nil
}

func (m *mockExchange) PlaceLimitOrder(ctx context.Context, symbol, side string, qty, price float64) (*exchange.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.placeErr[symbol]; err != nil {
		return nil, err
	}
	m.nextID++
	m.placed = append(m.placed, placedOrder{Symbol: symbol, Side: side, Quantity: qty, Price: price})

	order := &exchange.Order{
		ID:       fmt.Sprintf("%d", m.nextID),
		Symbol:   symbol,
		Side:     side,
		Price:    price,
		Quantity: qty,
		Status:   exchange.OrderStatusNew,
	}
	m.orders[order.ID] = order
	copied := *order
	return &copied, nil
}

func (m *mockExchange) GetOrder(ctx context.Context, symbol, orderID string) (*exchange.Order, error) {
	m.mu.Lock()
	hook := m.onGetOrder
	m.mu.Unlock()
	if hook != nil {
		hook(symbol, orderID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrderCalls++
	if m.statusErrors > 0 {
		m.statusErrors--
		return nil, errors.New("connection reset by peer")
	}

	order, ok := m.orders[orderID]
	if !ok {
		return nil, errors.New("order does not exist")
	}
	if order.Status != exchange.OrderStatusCanceled {
		step := orderStep{status: exchange.OrderStatusFilled, filled: fillFull}
		if steps := m.scripts[symbol]; len(steps) > 0 {
			step = steps[0]
			if len(steps) > 1 {
				m.scripts[symbol] = steps[1:]
			}
		}
		order.Status = step.status
		order.FilledQty = step.filled
		if step.filled == fillFull {
			order.FilledQty = order.Quantity
		}
	}
	copied := *order
	return &copied, nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol, orderID string) (*exchange.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCalls++
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	order, ok := m.orders[orderID]
	if !ok {
		return nil, errors.New("unknown order")
	}
	order.Status = exchange.OrderStatusCanceled
	copied := *order
	return &copied, nil
}

func (m *mockExchange) GetTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tickerErr != nil {
		return nil, m.tickerErr
	}
	ticker, ok := m.tickers[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, symbol)
	}
	copied := *ticker
	return &copied, nil
}

func (m *mockExchange) Get24hVolume(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	volume, ok := m.volumes[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, symbol)
	}
	return volume, nil
}

func (m *mockExchange) GetOrderBook(ctx context.Context, symbol string, depth int) (*exchange.OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, symbol)
	}
	copied := *book
	if depth < len(copied.Bids) {
		copied.Bids = copied.Bids[:depth]
	}
	if depth < len(copied.Asks) {
		copied.Asks = copied.Asks[:depth]
	}
	return &copied, nil
}

func (m *mockExchange) Close() error { return nil }
