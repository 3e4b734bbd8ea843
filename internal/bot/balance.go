package bot

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"sync"
	"time"

	"triarb/internal/exchange"
	"triarb/internal/models"
	"triarb/pkg/retry"
	"triarb/pkg/utils"
)

// DefaultBalanceInterval - период фонового обновления балансов
const DefaultBalanceInterval = 3 * time.Second

// balanceRequestTimeout ограничивает один запрос балансов
const balanceRequestTimeout = 5 * time.Second

// BalanceTracker держит снимок свободных балансов счёта.
//
// Снимок заменяется целиком и только если содержимое изменилось:
// наблюдатель (WebSocket) не получает повторов одного и того же снимка.
// Фоновый цикл и контроллер могут обновлять снимок одновременно,
// побеждает последняя запись.
type BalanceTracker struct {
	exchange exchange.Exchange
	interval time.Duration
	logger   *utils.Logger

	mu       sync.RWMutex
	snapshot models.BalanceSnapshot
	observer func(models.BalanceSnapshot)
	// notifyMu упорядочивает замену снимка и вызов наблюдателя
	notifyMu sync.Mutex

	now        func() time.Time
	startRetry retry.Config
}

// NewBalanceTracker создаёт трекер; interval <= 0 заменяется на 3s
func NewBalanceTracker(ex exchange.Exchange, interval time.Duration, logger *utils.Logger) *BalanceTracker {
	if interval <= 0 {
		interval = DefaultBalanceInterval
	}
	if logger == nil {
		logger = utils.L()
	}
	return &BalanceTracker{
		exchange:   ex,
		interval:   interval,
		logger:     logger.WithComponent("balance"),
		snapshot:   models.BalanceSnapshot{Balances: map[string]float64{}},
		now:        time.Now,
		startRetry: retry.ConservativeConfig(),
	}
}

// SetObserver устанавливает callback, вызываемый при изменении снимка
func (bt *BalanceTracker) SetObserver(fn func(models.BalanceSnapshot)) {
	bt.mu.Lock()
	bt.observer = fn
	bt.mu.Unlock()
}

// Start выполняет синхронное обновление при старте процесса с повторами
func (bt *BalanceTracker) Start(ctx context.Context) error {
	balances, err := retry.DoWithResult(ctx, func() (map[string]float64, error) {
		balances, err := bt.fetch(ctx)
		// неверные ключи не исправятся повтором
		var exErr *exchange.ExchangeError
		if errors.As(err, &exErr) && (exErr.HTTPStatus == http.StatusUnauthorized || exErr.HTTPStatus == http.StatusForbidden) {
			return nil, retry.Permanent(err)
		}
		return balances, err
	}, bt.startRetry)
	if err != nil {
		BalanceRefreshTotal.WithLabelValues("error").Inc()
		bt.logger.Error("initial balance refresh failed", utils.Err(err))
		return err
	}
	bt.apply(balances)
	return nil
}

// Run обновляет балансы с периодом interval до отмены ctx
func (bt *BalanceTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(bt.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bt.Refresh(ctx)
		}
	}
}

// Refresh запрашивает балансы и заменяет снимок при изменении.
// Возвращает true, если снимок был заменён.
func (bt *BalanceTracker) Refresh(ctx context.Context) (bool, error) {
	balances, err := bt.fetch(ctx)
	if err != nil {
		BalanceRefreshTotal.WithLabelValues("error").Inc()
		bt.logger.Warn("balance refresh failed", utils.Err(err))
		return false, err
	}
	return bt.apply(balances), nil
}

func (bt *BalanceTracker) fetch(ctx context.Context) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, balanceRequestTimeout)
	defer cancel()
	return bt.exchange.GetAccountBalances(ctx)
}

// apply заменяет снимок, если содержимое отличается
func (bt *BalanceTracker) apply(balances map[string]float64) bool {
	next := make(map[string]float64, len(balances))
	for asset, free := range balances {
		if free > 0 {
			next[asset] = free
		}
	}

	bt.notifyMu.Lock()
	defer bt.notifyMu.Unlock()

	bt.mu.Lock()
	if maps.Equal(bt.snapshot.Balances, next) {
		bt.mu.Unlock()
		BalanceRefreshTotal.WithLabelValues("unchanged").Inc()
		return false
	}
	prev := bt.snapshot.Balances
	bt.snapshot = models.BalanceSnapshot{Balances: next, UpdatedAt: bt.now()}
	observer := bt.observer
	snap := bt.copyLocked()
	bt.mu.Unlock()

	BalanceRefreshTotal.WithLabelValues("changed").Inc()
	RecordBalances(prev, next)
	bt.logger.Debug("balances updated", utils.Int("assets", len(next)))

	if observer != nil {
		observer(snap)
	}
	return true
}

// Snapshot возвращает копию текущего снимка
func (bt *BalanceTracker) Snapshot() models.BalanceSnapshot {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return bt.copyLocked()
}

// Balance возвращает свободный баланс актива из снимка
func (bt *BalanceTracker) Balance(asset string) float64 {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return bt.snapshot.Balances[asset]
}

func (bt *BalanceTracker) copyLocked() models.BalanceSnapshot {
	return models.BalanceSnapshot{
		Balances:  maps.Clone(bt.snapshot.Balances),
		UpdatedAt: bt.snapshot.UpdatedAt,
	}
}
