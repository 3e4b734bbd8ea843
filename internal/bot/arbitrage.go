package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"triarb/internal/exchange"
	"triarb/internal/models"
	"triarb/pkg/retry"
	"triarb/pkg/utils"
)

// ============================================================
// Исполнение треугольника
// ============================================================
//
// Ноги исполняются строго последовательно:
//   1. BUY  pair1: валюта расчётов -> актив A, объём = amount / price1
//   2. SELL pair2: актив A -> актив B, объём = исполнено на ноге 1 (как есть)
//   3. SELL pair3: актив B -> валюта расчётов, объём = исполнено на ноге 2 × price2
//
// Перед каждой ногой объём и цена заново приводятся к правилам биржи
// (SizeLeg) и проверяются на minNotional. Нулевое исполнение любой ноги,
// включая третью, прерывает запуск. Компенсирующих сделок нет: прерывание
// после первой ноги завершается ABORTED_PARTIAL.

// eventTimeout ограничивает сохранение и рассылку событий запуска
const eventTimeout = 5 * time.Second

// ErrLegNotFilled - ордер ноги завершился без исполнения
var ErrLegNotFilled = errors.New("leg order finished without fill")

// run - данные одного запуска, принадлежат горутине запуска
type run struct {
	id      string
	req     RunRequest
	rules   []*exchange.SymbolRules
	plan    *TradePlan
	log     *utils.Logger
	started time.Time

	legs        []models.LegRecord
	finalAmount float64
}

// addLeg фиксирует результат ноги для журнала аудита
func (r *run) addLeg(plan LegPlan, res OrderResult, status string) {
	r.legs = append(r.legs, models.LegRecord{
		RunID:     r.id,
		Leg:       plan.Leg,
		Symbol:    plan.Symbol,
		Side:      plan.Side,
		OrderID:   res.OrderID,
		Quantity:  plan.Quantity,
		Price:     plan.Price,
		FilledQty: res.FilledQty,
		Status:    status,
		CreatedAt: time.Now(),
	})
}

// record собирает запись запуска
func (r *run) record(status models.RunStatus, runErr error, finishedAt time.Time) *models.RunRecord {
	rec := &models.RunRecord{
		ID:          r.id,
		Pairs:       r.req.Pairs,
		Prices:      r.req.Prices,
		Amount:      r.req.Amount,
		Status:      status,
		FinalAmount: r.finalAmount,
		StartedAt:   r.started,
		FinishedAt:  finishedAt,
		Legs:        r.legs,
	}
	if runErr != nil {
		rec.ErrorMessage = runErr.Error()
	}
	return rec
}

// execute - горутина запуска
func (e *Engine) execute(ctx context.Context, cancel context.CancelFunc, r *run) {
	defer e.wg.Done()
	defer cancel()

	r.log.Info("arbitrage run started",
		utils.String("pairs", strings.Join(r.req.Pairs, ",")),
		utils.Float64("amount", r.req.Amount))

	status, err := e.executeLegs(ctx, r)
	e.finish(r, status, err)
}

// executeLegs проводит запуск через три ноги и возвращает терминальный статус
func (e *Engine) executeLegs(ctx context.Context, r *run) (models.RunStatus, error) {
	e.emit(r, fmt.Sprintf("Starting arbitrage %s with %s %s",
		strings.Join(r.req.Pairs, " -> "), formatAmount(r.req.Amount), e.cfg.SettlementAsset))

	input := r.req.Amount / r.req.Prices[0]
	for i := 0; i < 3; i++ {
		leg := i + 1

		sized, err := SizeLeg(leg, r.rules[i], legSides[i], input, r.req.Prices[i])
		if err != nil {
			r.addLeg(sized, OrderResult{}, models.LegStatusFailed)
			RecordLeg(leg, "rejected")
			return AbortStatusFor(e.state.Status()), err
		}

		if err := e.state.Transition(pendingStatus(leg)); err != nil {
			return AbortStatusFor(e.state.Status()), err
		}
		e.state.SetStep(fmt.Sprintf("%s: %s %s %s @ %s", sized.Label(),
			strings.ToUpper(sized.Side), formatAmount(sized.Quantity), sized.Symbol, formatAmount(sized.Price)))
		e.emit(r, fmt.Sprintf("%s: notional %s (min %s)", sized.Label(),
			formatAmount(sized.Notional), formatAmount(sized.MinNotional)))

		res, err := e.executor.PlaceAndAwait(ctx, sized)
		if err != nil {
			status := res.Status
			if status == "" {
				status = models.LegStatusFailed
			}
			r.addLeg(sized, res, status)
			return AbortStatusFor(e.state.Status()), err
		}
		r.addLeg(sized, res, res.Status)

		if res.FilledQty <= 0 {
			return AbortStatusFor(e.state.Status()),
				fmt.Errorf("%w: %s order %s %s", ErrLegNotFilled, sized.Label(), res.OrderID, res.Status)
		}

		if err := e.state.Transition(filledStatus(leg)); err != nil {
			return AbortStatusFor(e.state.Status()), err
		}
		e.emit(r, fmt.Sprintf("%s filled: %s %s", sized.Label(), formatAmount(res.FilledQty), sized.Symbol))

		if leg == 3 {
			r.finalAmount = utils.RoundDecimals(res.FilledQty*sized.Price, utils.QuantityPrecision)
		}
		input = nextLegInput(leg, res.FilledQty, sized.Price)
	}

	return models.RunStatusCompleted, nil
}

// finish завершает запуск: журнал, балансы, снятие флага running, аудит
func (e *Engine) finish(r *run, status models.RunStatus, runErr error) {
	switch {
	case runErr == nil:
		e.state.AppendLog(fmt.Sprintf("Arbitrage completed: received %s %s",
			formatAmount(r.finalAmount), e.cfg.SettlementAsset))
		r.log.Info("arbitrage run completed", utils.Float64("final_amount", r.finalAmount))
	case status == models.RunStatusAbortedPartial:
		e.state.AppendLog(fmt.Sprintf("Arbitrage aborted: %v", runErr))
		e.state.AppendLog("Intermediate asset remains on the account, manual recovery required")
		r.log.Error("arbitrage run aborted after partial execution", utils.Err(runErr))
	default:
		e.state.AppendLog(fmt.Sprintf("Arbitrage aborted: %v", runErr))
		r.log.Warn("arbitrage run aborted", utils.Err(runErr))
	}

	// Контекст запуска мог быть отменён: дальнейшие запросы идут с собственным таймаутом
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if e.balances != nil {
		e.balances.Refresh(ctx)
	}

	e.state.Finish(status)
	RecordRunFinished(status)

	rec := r.record(status, runErr, time.Now())
	e.publishEvent(ctx, r, status, StateInfo(status))

	if e.recorder != nil {
		err := retry.Do(ctx, func() error {
			return e.recorder.SaveRun(ctx, rec)
		}, e.saveRetry)
		if err != nil {
			r.log.Error("failed to save run record", utils.Err(err))
		}
	}
	if e.publisher != nil {
		if err := e.publisher.PublishRunSummary(ctx, rec); err != nil {
			r.log.Warn("failed to publish run summary", utils.Err(err))
		}
	}
}

// emit добавляет запись в журнал и рассылает событие с текущим статусом
func (e *Engine) emit(r *run, message string) {
	e.state.AppendLog(message)

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	e.publishEvent(ctx, r, e.state.Status(), message)
}

func (e *Engine) publishEvent(ctx context.Context, r *run, status models.RunStatus, message string) {
	if e.publisher == nil {
		return
	}
	event := &models.RunEvent{
		RunID:     r.id,
		Status:    status,
		Step:      e.state.Snapshot().CurrentStep,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := e.publisher.PublishRunEvent(ctx, event); err != nil {
		r.log.Warn("failed to publish run event", utils.Err(err))
	}
}
