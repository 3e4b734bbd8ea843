package handlers

import (
	"context"
	"errors"
	"sync"

	"triarb/internal/bot"
	"triarb/internal/exchange"
	"triarb/internal/models"
	"triarb/internal/repository"
)

// ErrMockExchange - общая ошибка для тестов
var ErrMockExchange = errors.New("mock exchange error")

// ============ Mock Engine ============

// MockEngine мок для RunController
type MockEngine struct {
	mu sync.Mutex

	startErr  error
	planErr   error
	cancelErr error
	abortErr  error

	runID    string
	plan     *bot.TradePlan
	snapshot models.RunSnapshot

	lastRequest  bot.RunRequest
	lastCancelID string
	pausedCalls  []bool
}

// NewMockEngine создает мок контроллера с планом по умолчанию
func NewMockEngine() *MockEngine {
	return &MockEngine{
		runID: "run-1",
		plan: &bot.TradePlan{
			Amount: 1000,
			Legs: [3]bot.LegPlan{
				{Leg: 1, Symbol: "ETHUSDT", Side: exchange.SideBuy, Quantity: 0.3333, Price: 3000},
				{Leg: 2, Symbol: "ETHBTC", Side: exchange.SideSell, Quantity: 0.3333, Price: 0.05},
				{Leg: 3, Symbol: "BTCUSDT", Side: exchange.SideSell, Quantity: 0.01666, Price: 60000},
			},
		},
		snapshot: models.RunSnapshot{Status: models.RunStatusIdle},
	}
}

func (m *MockEngine) StartRun(ctx context.Context, req bot.RunRequest) (string, *bot.TradePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRequest = req
	if m.startErr != nil {
		return "", nil, m.startErr
	}
	return m.runID, m.plan, nil
}

func (m *MockEngine) Plan(ctx context.Context, req bot.RunRequest) (*bot.TradePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRequest = req
	if m.planErr != nil {
		return nil, m.planErr
	}
	return m.plan, nil
}

func (m *MockEngine) Status() models.RunSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

func (m *MockEngine) SetPaused(paused bool) models.RunSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pausedCalls = append(m.pausedCalls, paused)
	m.snapshot.Paused = paused
	return m.snapshot
}

func (m *MockEngine) CancelActiveOrder(ctx context.Context, orderID string) (*exchange.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCancelID = orderID
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	return &exchange.Order{ID: orderID, Symbol: "ETHUSDT", Status: exchange.OrderStatusCanceled}, nil
}

func (m *MockEngine) AbortRun() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.abortErr
}

// ============ Mock Market ============

// MockMarket мок для MarketService
type MockMarket struct {
	opportunity *bot.OpportunityCheck
	stability   *bot.StabilityCheck
	volumes     map[string]float64
	book        *exchange.OrderBook
	err         error

	lastDepthLimit int
	lastDepthPairs []string
}

// NewMockMarket создает мок проверок рынка
func NewMockMarket() *MockMarket {
	return &MockMarket{
		opportunity: &bot.OpportunityCheck{Valid: true},
		stability:   &bot.StabilityCheck{Stable: true, CurrentPrices: []float64{3000, 0.05, 60000}},
		volumes:     map[string]float64{"ETHUSDT": 1500},
		book: &exchange.OrderBook{
			Symbol: "ETHUSDT",
			Bids:   []exchange.PriceLevel{{Price: 2990, Volume: 1}},
			Asks:   []exchange.PriceLevel{{Price: 3000, Volume: 2}},
		},
	}
}

func (m *MockMarket) ValidateOpportunity(ctx context.Context, pairs []string, prices []float64) (*bot.OpportunityCheck, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.opportunity, nil
}

func (m *MockMarket) CheckPriceStability(ctx context.Context, pairs []string, expected []float64) (*bot.StabilityCheck, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stability, nil
}

func (m *MockMarket) TradingVolumes(ctx context.Context, pairs []string) (map[string]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.volumes, nil
}

func (m *MockMarket) OrderBookDepth(ctx context.Context, pairs []string, limit int) (map[string]*exchange.OrderBook, error) {
	m.lastDepthLimit = limit
	m.lastDepthPairs = pairs
	if m.err != nil {
		return nil, m.err
	}
	books := make(map[string]*exchange.OrderBook, len(pairs))
	for _, symbol := range pairs {
		book := *m.book
		book.Symbol = symbol
		books[symbol] = &book
	}
	return books, nil
}

// ============ Mock Balances ============

// MockBalances мок для BalanceSource
type MockBalances struct {
	balances map[string]float64
}

func (m *MockBalances) Snapshot() models.BalanceSnapshot {
	return models.BalanceSnapshot{Balances: m.balances}
}

func (m *MockBalances) Balance(asset string) float64 {
	return m.balances[asset]
}

// ============ Mock Run History ============

// MockHistory мок для RunHistory
type MockHistory struct {
	runs      []*models.RunRecord
	err       error
	lastLimit int
}

func (m *MockHistory) GetRecent(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.runs, nil
}

func (m *MockHistory) GetByID(ctx context.Context, id string) (*models.RunRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, run := range m.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, repository.ErrRunNotFound
}
