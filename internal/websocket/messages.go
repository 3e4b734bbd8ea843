package websocket

import (
	"time"

	"triarb/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeRunUpdate - снимок состояния запуска.
	// Отправляется при каждом изменении состояния, логов или активных ордеров
	MessageTypeRunUpdate MessageType = "run_update"

	// MessageTypeBalanceUpdate - свободные балансы аккаунта.
	// Отправляется только когда набор балансов изменился
	MessageTypeBalanceUpdate MessageType = "balance_update"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// RunUpdateMessage - сообщение со снимком запуска
type RunUpdateMessage struct {
	BaseMessage
	Data models.RunSnapshot `json:"data"`
}

// BalanceUpdateMessage - сообщение с балансами всех активов
type BalanceUpdateMessage struct {
	BaseMessage
	Balances  map[string]float64 `json:"balances"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewRunUpdateMessage создает сообщение обновления запуска
func NewRunUpdateMessage(snap models.RunSnapshot) *RunUpdateMessage {
	return &RunUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeRunUpdate,
			Timestamp: time.Now(),
		},
		Data: snap,
	}
}

// NewBalanceUpdateMessage создает сообщение обновления балансов
func NewBalanceUpdateMessage(snap models.BalanceSnapshot) *BalanceUpdateMessage {
	return &BalanceUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeBalanceUpdate,
			Timestamp: time.Now(),
		},
		Balances:  snap.Balances,
		UpdatedAt: snap.UpdatedAt,
	}
}
