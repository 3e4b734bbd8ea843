package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"triarb/internal/config"
	"triarb/internal/exchange"
	"triarb/internal/models"
	"triarb/pkg/retry"
	"triarb/pkg/utils"
)

// Ошибки управления запуском
var (
	ErrRunActive     = errors.New("arbitrage run already in progress")
	ErrNoActiveRun   = errors.New("no arbitrage run in progress")
	ErrOrderNotFound = errors.New("order is not among active orders")
)

// WebSocketHub - интерфейс для отправки данных клиентам
//
// Реализуется пакетом internal/websocket/Hub.
// Вызовы должны быть неблокирующими: они выполняются в горутине запуска.
type WebSocketHub interface {
	// BroadcastRunUpdate отправляет снимок состояния запуска после каждого изменения
	BroadcastRunUpdate(snap models.RunSnapshot)

	// BroadcastBalanceUpdate отправляет новый снимок балансов
	BroadcastBalanceUpdate(snap models.BalanceSnapshot)
}

// RunRecorder сохраняет завершённые запуски (журнал аудита)
type RunRecorder interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
}

// EventPublisher рассылает события запусков внешним подписчикам
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, event *models.RunEvent) error
	PublishRunSummary(ctx context.Context, run *models.RunRecord) error
}

// RunRequest - параметры запуска треугольника
type RunRequest struct {
	Pairs  []string  `json:"pairs"`
	Amount float64   `json:"amount"`
	Prices []float64 `json:"prices"`
}

// Engine - контроллер запусков треугольного арбитража.
//
// Одновременно выполняется не более одного запуска. Предварительная проверка
// (правила пар, топология активов, minNotional всех трёх ног) выполняется
// синхронно в StartRun: отказ не меняет состояние. Сам запуск идёт в
// отдельной горутине, наружу видны только снимки RunState.
type Engine struct {
	cfg      config.BotConfig
	exchange exchange.Exchange
	state    *RunState
	executor *OrderExecutor
	balances *BalanceTracker
	logger   *utils.Logger

	wsHub     WebSocketHub
	recorder  RunRecorder
	publisher EventPublisher

	// Повторы сохранения записи: SaveRun идемпотентен (upsert по ID)
	saveRetry retry.Config

	// Контекст процесса: отменяется в Shutdown
	ctx    context.Context
	cancel context.CancelFunc

	runMu     sync.Mutex
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	newRunID func() string
}

// Option настраивает Engine
type Option func(*Engine)

// WithWebSocketHub подключает рассылку состояния клиентам
func WithWebSocketHub(hub WebSocketHub) Option {
	return func(e *Engine) { e.wsHub = hub }
}

// WithRecorder подключает сохранение запусков
func WithRecorder(r RunRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithPublisher подключает рассылку событий
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// NewEngine создаёт контроллер
func NewEngine(cfg config.BotConfig, ex exchange.Exchange, balances *BalanceTracker, logger *utils.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = utils.L()
	}
	if cfg.SettlementAsset == "" {
		cfg.SettlementAsset = "USDT"
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg,
		exchange: ex,
		state:    NewRunState(cfg.LogTail),
		balances: balances,
		logger:   logger.WithComponent("engine"),
		ctx:      ctx,
		cancel:   cancel,
		newRunID: uuid.NewString,

		saveRetry: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.executor = NewOrderExecutor(ex, e.state, ExecutorConfig{
		PollInterval:       cfg.PollInterval,
		PauseCheckInterval: cfg.PauseCheckInterval,
		ErrorBackoff:       cfg.ErrorBackoff,
		MaxOrderWait:       cfg.MaxOrderWait,
	}, logger)

	if e.wsHub != nil {
		e.state.SetObserver(e.wsHub.BroadcastRunUpdate)
	}
	return e
}

// Plan выполняет предварительную проверку без запуска
func (e *Engine) Plan(ctx context.Context, req RunRequest) (*TradePlan, error) {
	_, _, plan, err := e.preflight(ctx, req)
	return plan, err
}

// StartRun проверяет запрос и запускает исполнение в фоне.
// Ошибки ErrRunActive, ErrInvalidPairs, ErrInvalidAmount, ErrAssetFlow,
// ErrMinNotional и exchange.ErrSymbolNotFound возвращаются синхронно.
func (e *Engine) StartRun(ctx context.Context, req RunRequest) (string, *TradePlan, error) {
	if e.state.IsRunning() {
		return "", nil, ErrRunActive
	}

	req, rules, plan, err := e.preflight(ctx, req)
	if err != nil {
		e.logger.Info("run rejected", utils.Err(err))
		return "", nil, err
	}

	runID := e.newRunID()
	if !e.state.TryBegin(runID) {
		return "", nil, ErrRunActive
	}

	r := &run{
		id:      runID,
		req:     req,
		rules:   rules,
		plan:    plan,
		log:     e.logger.WithRunID(runID),
		started: time.Now(),
	}

	e.runMu.Lock()
	runCtx, cancel := context.WithCancel(e.ctx)
	e.runCancel = cancel
	e.runMu.Unlock()

	RunActive.Set(1)
	e.wg.Add(1)
	go e.execute(runCtx, cancel, r)

	return runID, plan, nil
}

// preflight нормализует запрос, получает правила и рассчитывает все три ноги.
// Возвращает нормализованную копию запроса.
func (e *Engine) preflight(ctx context.Context, req RunRequest) (RunRequest, []*exchange.SymbolRules, *TradePlan, error) {
	if len(req.Pairs) != 3 || len(req.Prices) != 3 {
		return req, nil, nil, ErrInvalidPairs
	}
	normalized := RunRequest{
		Pairs:  make([]string, 3),
		Prices: append([]float64(nil), req.Prices...),
		Amount: req.Amount,
	}
	for i, symbol := range req.Pairs {
		normalized.Pairs[i] = utils.NormalizeSymbol(symbol)
		if err := utils.ValidateSymbol(normalized.Pairs[i]); err != nil {
			return req, nil, nil, fmt.Errorf("%w: %v", ErrInvalidPairs, err)
		}
		if err := utils.ValidatePositive("price", req.Prices[i]); err != nil {
			return req, nil, nil, fmt.Errorf("%w: %v", ErrInvalidPairs, err)
		}
	}
	if err := utils.ValidatePositive("amount", req.Amount); err != nil {
		return req, nil, nil, ErrInvalidAmount
	}

	// Правила запрашиваются заново для каждого запуска
	resolver := NewRulesResolver(e.exchange)
	rules, err := resolver.ResolveAll(ctx, normalized.Pairs)
	if err != nil {
		return req, nil, nil, err
	}

	plan, err := BuildPlan(rules, normalized.Amount, normalized.Prices, e.cfg.SettlementAsset)
	if err != nil {
		return req, nil, nil, err
	}
	return normalized, rules, plan, nil
}

// Status возвращает снимок состояния текущего или последнего запуска
func (e *Engine) Status() models.RunSnapshot {
	return e.state.Snapshot()
}

// SetPaused включает или снимает паузу опроса ордеров.
// Ордер на бирже при этом остаётся активным.
func (e *Engine) SetPaused(paused bool) models.RunSnapshot {
	if paused != e.state.IsPaused() {
		if paused {
			e.state.AppendLog("Polling paused")
		} else {
			e.state.AppendLog("Polling resumed")
		}
	}
	e.state.SetPaused(paused)
	return e.state.Snapshot()
}

// CancelActiveOrder отменяет активный ордер запуска на бирже.
// Исполнитель увидит CANCELED при следующем опросе и запуск будет прерван.
func (e *Engine) CancelActiveOrder(ctx context.Context, orderID string) (*exchange.Order, error) {
	if !e.state.IsRunning() {
		return nil, ErrNoActiveRun
	}
	active, ok := e.state.ActiveOrder(orderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	order, err := e.exchange.CancelOrder(ctx, active.Symbol, orderID)
	if err != nil {
		e.state.AppendLog(fmt.Sprintf("Cancel of order %s failed: %v", orderID, err))
		return nil, fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	e.state.AppendLog(fmt.Sprintf("Order %s (%s) cancel requested", orderID, active.Step))
	e.logger.Info("order cancel requested", utils.OrderID(orderID), utils.Symbol(active.Symbol))
	return order, nil
}

// AbortRun прерывает ожидание текущего запуска.
// Размещённые ордера остаются на бирже и в списке активных ордеров.
func (e *Engine) AbortRun() error {
	e.runMu.Lock()
	cancel := e.runCancel
	e.runMu.Unlock()

	if cancel == nil || !e.state.IsRunning() {
		return ErrNoActiveRun
	}
	e.state.AppendLog("Abort requested by operator")
	cancel()
	return nil
}

// Wait блокируется до завершения текущего запуска
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown прерывает текущий запуск и ждёт его завершения
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
