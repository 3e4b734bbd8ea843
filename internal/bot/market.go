package bot

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"triarb/internal/exchange"
	"triarb/pkg/utils"
)

// Допуски по умолчанию
const (
	DefaultPriceTolerance     = 0.01  // ValidateOpportunity: 1%
	DefaultStabilityTolerance = 0.005 // CheckPriceStability: 0.5%
	DefaultOrderBookDepth     = 5
)

// MarketConfig - допуски проверок рынка
type MarketConfig struct {
	PriceTolerance     float64
	StabilityTolerance float64
	OrderBookDepth     int
}

// PriceCheck - результат сравнения цены пары с рынком
type PriceCheck struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"` // ask или bid
	Given     float64 `json:"given"`
	Current   float64 `json:"current"`
	Deviation float64 `json:"deviation"` // доля, 0.01 = 1%
	OK        bool    `json:"ok"`
}

// OpportunityCheck - результат ValidateOpportunity
type OpportunityCheck struct {
	Valid  bool         `json:"valid"`
	Reason string       `json:"reason,omitempty"`
	Checks []PriceCheck `json:"checks"`
}

// StabilityCheck - результат CheckPriceStability
type StabilityCheck struct {
	Stable        bool         `json:"stable"`
	CurrentPrices []float64    `json:"current_prices"`
	Checks        []PriceCheck `json:"checks"`
}

// MarketChecker сравнивает цены вызывающего с лучшими ценами стакана.
//
// Первые две пары сравниваются с ask (покупка промежуточного актива и
// его оценка во втором активе), третья с bid (продажа в валюту расчётов).
// Котировки всех пар запрашиваются параллельно.
type MarketChecker struct {
	exchange exchange.Exchange
	cfg      MarketConfig
	logger   *utils.Logger
}

// NewMarketChecker создаёт проверку рынка; нулевые допуски заменяются значениями по умолчанию
func NewMarketChecker(ex exchange.Exchange, cfg MarketConfig, logger *utils.Logger) *MarketChecker {
	if cfg.PriceTolerance <= 0 {
		cfg.PriceTolerance = DefaultPriceTolerance
	}
	if cfg.StabilityTolerance <= 0 {
		cfg.StabilityTolerance = DefaultStabilityTolerance
	}
	if cfg.OrderBookDepth <= 0 {
		cfg.OrderBookDepth = DefaultOrderBookDepth
	}
	if logger == nil {
		logger = utils.L()
	}
	return &MarketChecker{
		exchange: ex,
		cfg:      cfg,
		logger:   logger.WithComponent("market"),
	}
}

// ValidateOpportunity проверяет, что цены вызывающего отклоняются от текущего
// рынка не более чем на PriceTolerance. Отклонение считается от рыночной цены.
func (mc *MarketChecker) ValidateOpportunity(ctx context.Context, pairs []string, prices []float64) (*OpportunityCheck, error) {
	if err := checkTriangleInput(pairs, prices); err != nil {
		return nil, err
	}

	tickers, err := mc.fetchTickers(ctx, pairs)
	if err != nil {
		return nil, err
	}

	result := &OpportunityCheck{Valid: true, Checks: make([]PriceCheck, len(pairs))}
	for i, ticker := range tickers {
		side, current := referencePrice(i, ticker)
		deviation := utils.RelativeDeviation(prices[i], current)
		ok := deviation <= mc.cfg.PriceTolerance

		result.Checks[i] = PriceCheck{
			Symbol:    pairs[i],
			Side:      side,
			Given:     prices[i],
			Current:   current,
			Deviation: deviation,
			OK:        ok,
		}
		if !ok && result.Valid {
			result.Valid = false
			result.Reason = fmt.Sprintf("price for %s (%v) deviates %.2f%% from current %s %v, limit %.2f%%",
				pairs[i], prices[i], deviation*100, side, current, mc.cfg.PriceTolerance*100)
		}
	}

	if !result.Valid {
		mc.logger.Info("opportunity rejected", utils.String("reason", result.Reason))
	}
	return result, nil
}

// CheckPriceStability проверяет, что текущие цены не ушли от ожидаемых более
// чем на StabilityTolerance. Отклонение считается от ожидаемой цены.
func (mc *MarketChecker) CheckPriceStability(ctx context.Context, pairs []string, expected []float64) (*StabilityCheck, error) {
	if err := checkTriangleInput(pairs, expected); err != nil {
		return nil, err
	}

	tickers, err := mc.fetchTickers(ctx, pairs)
	if err != nil {
		return nil, err
	}

	result := &StabilityCheck{
		Stable:        true,
		CurrentPrices: make([]float64, len(pairs)),
		Checks:        make([]PriceCheck, len(pairs)),
	}
	for i, ticker := range tickers {
		side, current := referencePrice(i, ticker)
		deviation := utils.RelativeDeviation(current, expected[i])
		ok := deviation <= mc.cfg.StabilityTolerance

		result.CurrentPrices[i] = current
		result.Checks[i] = PriceCheck{
			Symbol:    pairs[i],
			Side:      side,
			Given:     expected[i],
			Current:   current,
			Deviation: deviation,
			OK:        ok,
		}
		if !ok {
			result.Stable = false
		}
	}
	return result, nil
}

// TradingVolumes возвращает 24h объём по каждой паре
func (mc *MarketChecker) TradingVolumes(ctx context.Context, pairs []string) (map[string]float64, error) {
	var mu sync.Mutex
	volumes := make(map[string]float64, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range pairs {
		symbol := symbol
		g.Go(func() error {
			volume, err := mc.exchange.Get24hVolume(gctx, symbol)
			if err != nil {
				return fmt.Errorf("24h volume for %s: %w", symbol, err)
			}
			mu.Lock()
			volumes[symbol] = volume
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return volumes, nil
}

// OrderBookDepth возвращает стаканы пар по символу; limit <= 0 заменяется
// глубиной по умолчанию. Ошибка любой пары отменяет весь запрос.
func (mc *MarketChecker) OrderBookDepth(ctx context.Context, pairs []string, limit int) (map[string]*exchange.OrderBook, error) {
	if limit <= 0 {
		limit = mc.cfg.OrderBookDepth
	}

	var mu sync.Mutex
	books := make(map[string]*exchange.OrderBook, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range pairs {
		symbol := symbol
		g.Go(func() error {
			book, err := mc.exchange.GetOrderBook(gctx, symbol, limit)
			if err != nil {
				return fmt.Errorf("order book for %s: %w", symbol, err)
			}
			mu.Lock()
			books[symbol] = book
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return books, nil
}

// fetchTickers запрашивает котировки всех пар параллельно, сохраняя порядок
func (mc *MarketChecker) fetchTickers(ctx context.Context, pairs []string) ([]*exchange.Ticker, error) {
	tickers := make([]*exchange.Ticker, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range pairs {
		i, symbol := i, symbol
		g.Go(func() error {
			ticker, err := mc.exchange.GetTicker(gctx, symbol)
			if err != nil {
				return fmt.Errorf("ticker for %s: %w", symbol, err)
			}
			tickers[i] = ticker
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tickers, nil
}

// referencePrice выбирает сторону стакана для пары с индексом i
func referencePrice(i int, ticker *exchange.Ticker) (string, float64) {
	if i < 2 {
		return "ask", ticker.AskPrice
	}
	return "bid", ticker.BidPrice
}

func checkTriangleInput(pairs []string, prices []float64) error {
	if len(pairs) != 3 || len(prices) != 3 {
		return ErrInvalidPairs
	}
	for _, p := range prices {
		if p <= 0 {
			return ErrInvalidPairs
		}
	}
	return nil
}
