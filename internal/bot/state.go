package bot

import (
	"sync"
	"time"

	"triarb/internal/exchange"
	"triarb/internal/models"
)

// DefaultLogTail - сколько последних записей журнала отдаётся наблюдателям
const DefaultLogTail = 20

// RunState - состояние текущего (или последнего) запуска.
//
// Единственная точка мутации состояния: все изменения идут под mu,
// внешние читатели получают только копию через Snapshot().
// Журнал хранится целиком, при чтении обрезается до logTail записей.
type RunState struct {
	mu sync.RWMutex
	// notifyMu удерживается от изменения до возврата наблюдателя:
	// наблюдатель получает снимки строго в порядке изменений
	notifyMu sync.Mutex

	runID        string
	running      bool
	paused       bool
	status       models.RunStatus
	currentStep  string
	logs         []string
	activeOrders map[string]models.ActiveOrder
	startedAt    time.Time
	finishedAt   time.Time

	logTail  int
	now      func() time.Time
	onChange func(models.RunSnapshot)
}

// NewRunState создаёт состояние в статусе IDLE
func NewRunState(logTail int) *RunState {
	if logTail <= 0 {
		logTail = DefaultLogTail
	}
	return &RunState{
		status:       models.RunStatusIdle,
		activeOrders: make(map[string]models.ActiveOrder),
		logTail:      logTail,
		now:          time.Now,
	}
}

// SetObserver устанавливает callback, вызываемый после каждого изменения.
// Вызывается вне mu (чтение состояния не блокируется), получает копию.
// Вызовы последовательны; callback не должен изменять RunState.
func (s *RunState) SetObserver(fn func(models.RunSnapshot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// mutate выполняет изменение под блокировкой; если fn вернула true,
// наблюдатель получает новую копию состояния
func (s *RunState) mutate(fn func() bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := fn()
	observer := s.onChange
	var snap models.RunSnapshot
	if changed && observer != nil {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if changed && observer != nil {
		observer(snap)
	}
}

// TryBegin атомарно занимает состояние под новый запуск.
// Возвращает false, если запуск уже выполняется; состояние при этом не меняется.
func (s *RunState) TryBegin(runID string) bool {
	began := false
	s.mutate(func() bool {
		if s.running {
			return false
		}
		s.runID = runID
		s.running = true
		s.paused = false
		s.status = models.RunStatusValidating
		s.currentStep = StateInfo(models.RunStatusValidating)
		s.logs = nil
		s.activeOrders = make(map[string]models.ActiveOrder)
		s.startedAt = s.now()
		s.finishedAt = time.Time{}
		began = true
		return true
	})
	return began
}

// Transition переводит запуск в новое состояние с проверкой допустимости
func (s *RunState) Transition(to models.RunStatus) error {
	var err error
	s.mutate(func() bool {
		if !CanTransition(s.status, to) {
			err = &StateTransitionError{From: s.status, To: to}
			return false
		}
		s.status = to
		return true
	})
	return err
}

// Finish завершает запуск с терминальным статусом и снимает флаг running.
// Активные ордера не удаляются: после прерывания они остаются на бирже.
func (s *RunState) Finish(status models.RunStatus) {
	s.mutate(func() bool {
		s.status = status
		s.running = false
		s.paused = false
		s.currentStep = StateInfo(status)
		s.finishedAt = s.now()
		return true
	})
}

// SetStep устанавливает текстовое описание текущего шага
func (s *RunState) SetStep(step string) {
	s.mutate(func() bool {
		s.currentStep = step
		return true
	})
}

// AppendLog добавляет запись в журнал с отметкой времени
func (s *RunState) AppendLog(msg string) {
	s.mutate(func() bool {
		s.logs = append(s.logs, "["+s.now().Format("15:04:05")+"] "+msg)
		return true
	})
}

// SetPaused включает/выключает паузу опроса ордеров
func (s *RunState) SetPaused(paused bool) {
	s.mutate(func() bool {
		changed := s.paused != paused
		s.paused = paused
		return changed
	})
}

// IsPaused возвращает флаг паузы
func (s *RunState) IsPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// IsRunning возвращает true пока запуск выполняется
func (s *RunState) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Status возвращает текущее состояние state machine
func (s *RunState) Status() models.RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// RunID возвращает идентификатор текущего запуска
func (s *RunState) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// AddActiveOrder регистрирует размещённый ордер со статусом PENDING
func (s *RunState) AddActiveOrder(orderID, symbol, step string) {
	s.mutate(func() bool {
		s.activeOrders[orderID] = models.ActiveOrder{
			Symbol: symbol,
			Step:   step,
			Status: exchange.OrderStatusPending,
		}
		return true
	})
}

// UpdateOrderStatus отражает статус ордера; повтор того же статуса не уведомляет
func (s *RunState) UpdateOrderStatus(orderID, status string) {
	s.mutate(func() bool {
		order, ok := s.activeOrders[orderID]
		if !ok || order.Status == status {
			return false
		}
		order.Status = status
		s.activeOrders[orderID] = order
		return true
	})
}

// RemoveActiveOrder удаляет ордер, достигший терминального статуса
func (s *RunState) RemoveActiveOrder(orderID string) {
	s.mutate(func() bool {
		if _, ok := s.activeOrders[orderID]; !ok {
			return false
		}
		delete(s.activeOrders, orderID)
		return true
	})
}

// ActiveOrder возвращает активный ордер по идентификатору
func (s *RunState) ActiveOrder(orderID string) (models.ActiveOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.activeOrders[orderID]
	return order, ok
}

// Snapshot возвращает неизменяемую копию состояния
func (s *RunState) Snapshot() models.RunSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *RunState) snapshotLocked() models.RunSnapshot {
	logs := s.logs
	if len(logs) > s.logTail {
		logs = logs[len(logs)-s.logTail:]
	}
	logsCopy := make([]string, len(logs))
	copy(logsCopy, logs)

	orders := make(map[string]models.ActiveOrder, len(s.activeOrders))
	for id, o := range s.activeOrders {
		orders[id] = o
	}

	snap := models.RunSnapshot{
		RunID:        s.runID,
		Running:      s.running,
		Paused:       s.paused,
		Status:       s.status,
		CurrentStep:  s.currentStep,
		Logs:         logsCopy,
		ActiveOrders: orders,
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}
