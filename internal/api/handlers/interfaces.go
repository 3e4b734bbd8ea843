package handlers

import (
	"context"

	"triarb/internal/bot"
	"triarb/internal/exchange"
	"triarb/internal/models"
)

// RunController - операции контроллера запусков (реализует *bot.Engine)
type RunController interface {
	StartRun(ctx context.Context, req bot.RunRequest) (string, *bot.TradePlan, error)
	Plan(ctx context.Context, req bot.RunRequest) (*bot.TradePlan, error)
	Status() models.RunSnapshot
	SetPaused(paused bool) models.RunSnapshot
	CancelActiveOrder(ctx context.Context, orderID string) (*exchange.Order, error)
	AbortRun() error
}

// MarketService - проверки рынка (реализует *bot.MarketChecker)
type MarketService interface {
	ValidateOpportunity(ctx context.Context, pairs []string, prices []float64) (*bot.OpportunityCheck, error)
	CheckPriceStability(ctx context.Context, pairs []string, expected []float64) (*bot.StabilityCheck, error)
	TradingVolumes(ctx context.Context, pairs []string) (map[string]float64, error)
	OrderBookDepth(ctx context.Context, pairs []string, limit int) (map[string]*exchange.OrderBook, error)
}

// BalanceSource - снимок балансов (реализует *bot.BalanceTracker)
type BalanceSource interface {
	Snapshot() models.BalanceSnapshot
	Balance(asset string) float64
}

// RunHistory - журнал завершённых запусков (реализует *repository.RunRepository)
type RunHistory interface {
	GetRecent(ctx context.Context, limit int) ([]*models.RunRecord, error)
	GetByID(ctx context.Context, id string) (*models.RunRecord, error)
}
