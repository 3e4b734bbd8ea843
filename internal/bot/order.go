package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"triarb/internal/exchange"
	"triarb/pkg/utils"
)

// Ошибки исполнения ордера
var (
	ErrPlacementFailed   = errors.New("order placement failed")
	ErrOrderWaitExceeded = errors.New("order wait limit exceeded")
)

// ExecutorConfig - интервалы цикла ожидания исполнения
type ExecutorConfig struct {
	PollInterval       time.Duration // пауза между запросами статуса (2s)
	PauseCheckInterval time.Duration // проверка снятия паузы (1s)
	ErrorBackoff       time.Duration // пауза после ошибки запроса статуса (5s)
	MaxOrderWait       time.Duration // 0 = ждать бесконечно
}

// DefaultExecutorConfig возвращает интервалы по умолчанию
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		PollInterval:       2 * time.Second,
		PauseCheckInterval: time.Second,
		ErrorBackoff:       5 * time.Second,
	}
}

// OrderResult - итог ожидания ордера
type OrderResult struct {
	OrderID   string
	Status    string
	FilledQty float64
}

// OrderExecutor размещает лимитный ордер и ждёт его терминального статуса.
//
// Цикл ожидания не ограничен числом итераций: ошибки запроса статуса
// повторяются с фиксированной паузой, пока ордер жив на бирже.
// Выход из цикла: терминальный статус, отмена ctx или MaxOrderWait.
type OrderExecutor struct {
	exchange exchange.Exchange
	state    *RunState
	cfg      ExecutorConfig
	logger   *utils.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrderExecutor создаёт исполнитель
func NewOrderExecutor(ex exchange.Exchange, state *RunState, cfg ExecutorConfig, logger *utils.Logger) *OrderExecutor {
	defaults := DefaultExecutorConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.PauseCheckInterval <= 0 {
		cfg.PauseCheckInterval = defaults.PauseCheckInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaults.ErrorBackoff
	}
	if logger == nil {
		logger = utils.L()
	}

	return &OrderExecutor{
		exchange: ex,
		state:    state,
		cfg:      cfg,
		logger:   logger.WithComponent("executor"),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// sleepContext ждёт d или отмены ctx
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PlaceAndAwait размещает ордер ноги и блокируется до терминального статуса.
//
// FILLED возвращает исполненный объём; CANCELED/EXPIRED/REJECTED возвращают
// нулевой объём без ошибки: решение о провале ноги принимает контроллер.
// При отмене ctx или превышении MaxOrderWait ордер остаётся на бирже
// и в списке активных ордеров.
func (oe *OrderExecutor) PlaceAndAwait(ctx context.Context, leg LegPlan) (OrderResult, error) {
	log := oe.logger.WithSymbol(leg.Symbol).With(utils.Leg(leg.Leg))

	order, err := oe.exchange.PlaceLimitOrder(ctx, leg.Symbol, leg.Side, leg.Quantity, leg.Price)
	if err == nil && (order == nil || order.ID == "") {
		err = errors.New("exchange returned no order id")
	}
	if err != nil {
		RecordLeg(leg.Leg, "placement_failed")
		log.Error("order placement failed", utils.Err(err))
		return OrderResult{}, fmt.Errorf("%w: %s %s: %w", ErrPlacementFailed, leg.Label(), leg.Symbol, err)
	}

	result := OrderResult{OrderID: order.ID, Status: order.Status}
	log = log.WithOrderID(order.ID)
	log.Info("order placed", utils.Side(leg.Side), utils.Quantity(leg.Quantity), utils.Price(leg.Price))

	oe.state.AddActiveOrder(order.ID, leg.Symbol, leg.Label())
	oe.state.AppendLog(fmt.Sprintf("%s: placed %s %s qty %s @ %s, order %s",
		leg.Label(), leg.Side, leg.Symbol, formatAmount(leg.Quantity), formatAmount(leg.Price), order.ID))

	placedAt := oe.now()

	// FULL-ответ может уже содержать терминальный статус
	if done, res := oe.evaluate(leg, order, result, placedAt, log); done {
		return res, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			log.Warn("order wait interrupted, order left on exchange", utils.Err(err))
			return result, err
		}
		if oe.cfg.MaxOrderWait > 0 && oe.now().Sub(placedAt) >= oe.cfg.MaxOrderWait {
			oe.state.AppendLog(fmt.Sprintf("%s: order %s not filled within %s, left on exchange",
				leg.Label(), order.ID, oe.cfg.MaxOrderWait))
			RecordLeg(leg.Leg, "wait_exceeded")
			return result, fmt.Errorf("%w: %s order %s after %s", ErrOrderWaitExceeded, leg.Label(), order.ID, oe.cfg.MaxOrderWait)
		}

		if oe.state.IsPaused() {
			oe.sleep(ctx, oe.cfg.PauseCheckInterval)
			continue
		}

		current, err := oe.exchange.GetOrder(ctx, leg.Symbol, order.ID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			OrderStatusQueries.WithLabelValues("error").Inc()
			log.Warn("order status query failed, backing off", utils.Err(err), utils.Dur("backoff", oe.cfg.ErrorBackoff))
			oe.state.AppendLog(fmt.Sprintf("%s: status check failed for order %s: %v", leg.Label(), order.ID, err))
			oe.sleep(ctx, oe.cfg.ErrorBackoff)
			continue
		}
		OrderStatusQueries.WithLabelValues("ok").Inc()

		if done, res := oe.evaluate(leg, current, result, placedAt, log); done {
			return res, nil
		}
		result.Status = current.Status
		oe.state.UpdateOrderStatus(order.ID, current.Status)
		oe.sleep(ctx, oe.cfg.PollInterval)
	}
}

// evaluate обрабатывает терминальные статусы; false - ордер ещё ожидает исполнения
func (oe *OrderExecutor) evaluate(leg LegPlan, current *exchange.Order, result OrderResult, placedAt time.Time, log *utils.Logger) (bool, OrderResult) {
	switch {
	case current.Status == exchange.OrderStatusFilled:
		result.Status = current.Status
		result.FilledQty = current.FilledQty
		oe.state.RemoveActiveOrder(result.OrderID)
		oe.state.AppendLog(fmt.Sprintf("%s: order %s filled, qty %s",
			leg.Label(), result.OrderID, formatAmount(current.FilledQty)))
		RecordLeg(leg.Leg, "filled")
		RecordOrderWait(leg.Leg, oe.now().Sub(placedAt))
		log.Info("order filled", utils.Quantity(current.FilledQty))
		return true, result

	case exchange.IsTerminalNonFill(current.Status):
		result.Status = current.Status
		result.FilledQty = 0
		oe.state.RemoveActiveOrder(result.OrderID)
		oe.state.AppendLog(fmt.Sprintf("%s: order %s %s (executed %s)",
			leg.Label(), result.OrderID, current.Status, formatAmount(current.FilledQty)))
		RecordLeg(leg.Leg, "not_filled")
		log.Warn("order finished without fill", utils.String("status", current.Status), utils.Quantity(current.FilledQty))
		return true, result
	}
	return false, result
}

// formatAmount форматирует объём/цену без экспоненты и лишних нулей
func formatAmount(v float64) string {
	return fmt.Sprintf("%.8g", utils.RoundDecimals(v, utils.QuantityPrecision))
}
