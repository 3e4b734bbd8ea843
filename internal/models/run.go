package models

import "time"

// RunStatus - состояние запуска треугольного арбитража (state machine)
type RunStatus string

// Состояния запуска
const (
	RunStatusIdle           RunStatus = "IDLE"
	RunStatusValidating     RunStatus = "VALIDATING"
	RunStatusLeg1Pending    RunStatus = "LEG1_PENDING"
	RunStatusLeg1Filled     RunStatus = "LEG1_FILLED"
	RunStatusLeg2Pending    RunStatus = "LEG2_PENDING"
	RunStatusLeg2Filled     RunStatus = "LEG2_FILLED"
	RunStatusLeg3Pending    RunStatus = "LEG3_PENDING"
	RunStatusCompleted      RunStatus = "COMPLETED"
	RunStatusAborted        RunStatus = "ABORTED"         // прерван до исполнения первой ноги
	RunStatusAbortedPartial RunStatus = "ABORTED_PARTIAL" // прерван после исполнения первой ноги
)

// IsTerminal возвращает true для завершающих состояний
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusAborted || s == RunStatusAbortedPartial
}

// ActiveOrder - ордер, находящийся в ожидании исполнения
type ActiveOrder struct {
	Symbol string `json:"symbol"`
	Step   string `json:"step"`   // метка ноги, например "Leg 2"
	Status string `json:"status"` // PENDING, NEW, PARTIALLY_FILLED
}

// RunSnapshot - неизменяемая копия состояния запуска для внешних наблюдателей
type RunSnapshot struct {
	RunID        string                 `json:"run_id,omitempty"`
	Running      bool                   `json:"running"`
	Paused       bool                   `json:"paused"`
	Status       RunStatus              `json:"status"`
	CurrentStep  string                 `json:"current_step"`
	Logs         []string               `json:"logs"`
	ActiveOrders map[string]ActiveOrder `json:"active_orders"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
}

// LegRecord - запись об одной ноге завершённого запуска
type LegRecord struct {
	ID        int64     `json:"id" db:"id"`
	RunID     string    `json:"run_id" db:"run_id"`
	Leg       int       `json:"leg" db:"leg"` // 1..3
	Symbol    string    `json:"symbol" db:"symbol"`
	Side      string    `json:"side" db:"side"`
	OrderID   string    `json:"order_id,omitempty" db:"order_id"`
	Quantity  float64   `json:"quantity" db:"quantity"`
	Price     float64   `json:"price" db:"price"`
	FilledQty float64   `json:"filled_qty" db:"filled_qty"`
	Status    string    `json:"status" db:"status"` // FILLED, CANCELED, EXPIRED, REJECTED, FAILED
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Статус ноги, до которой запуск не дошёл или которую не удалось разместить
const (
	LegStatusFailed = "FAILED"
)

// RunRecord - запись о запуске для аудита
type RunRecord struct {
	ID           string      `json:"id" db:"id"`
	Pairs        []string    `json:"pairs" db:"pairs"`
	Prices       []float64   `json:"prices" db:"prices"`
	Amount       float64     `json:"amount" db:"amount"`
	Status       RunStatus   `json:"status" db:"status"`
	FinalAmount  float64     `json:"final_amount" db:"final_amount"` // исполнено на третьей ноге × цена
	ErrorMessage string      `json:"error_message,omitempty" db:"error_message"`
	StartedAt    time.Time   `json:"started_at" db:"started_at"`
	FinishedAt   time.Time   `json:"finished_at" db:"finished_at"`
	Legs         []LegRecord `json:"legs,omitempty"`
}

// Duration возвращает длительность запуска
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunEvent - событие запуска для внешней рассылки (Redis, WebSocket)
type RunEvent struct {
	RunID     string    `json:"run_id"`
	Status    RunStatus `json:"status"`
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// BalanceSnapshot - свободные балансы активов с ненулевым free
type BalanceSnapshot struct {
	Balances  map[string]float64 `json:"balances"`
	UpdatedAt time.Time          `json:"updated_at"`
}
