package websocket

import (
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"triarb/internal/models"
	"triarb/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// broadcastBufferSize - емкость очереди рассылки
const broadcastBufferSize = 256

// Hub управляет всеми активными WebSocket соединениями
//
// Рассылает клиентам снимки запуска (run_update) и балансы (balance_update).
// Последние сообщения каждого типа запоминаются и отправляются новому
// клиенту сразу после подключения, чтобы он не ждал следующего изменения.
//
// Использование:
//  1. hub := NewHub(logger, allowedOrigins)
//  2. go hub.Run()
//  3. hub.BroadcastRunUpdate(snapshot) / hub.BroadcastBalanceUpdate(balances)
//  4. hub.Stop() при остановке сервера
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex

	// последние снимки для новых клиентов
	lastMu      sync.RWMutex
	lastRun     []byte
	lastBalance []byte

	clientCount atomic.Int64
	dropped     atomic.Int64

	origins *OriginChecker
	logger  *utils.Logger
}

// NewHub создает новый Hub
func NewHub(logger *utils.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		origins:    NewOriginChecker(allowedOrigins),
		logger:     logger.WithComponent("websocket"),
	}
}

// Run запускает главный цикл Hub. Возвращается после Stop.
//
// Список клиентов копируется под коротким RLock, отправка идет без
// блокировки, медленные клиенты удаляются под Write Lock.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.clientCount.Store(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.clientCount.Store(int64(n))
			h.sendLast(client)
			h.logger.Debug("Client connected", zap.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.clientCount.Store(int64(n))
			h.logger.Debug("Client disconnected", zap.Int("clients", n))

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				n := len(h.clients)
				h.mu.Unlock()
				h.clientCount.Store(int64(n))
				h.logger.Warn("Removed slow clients", zap.Int("removed", len(toRemove)), zap.Int("clients", n))
			}
		}
	}
}

// sendLast отправляет новому клиенту последние известные снимки
func (h *Hub) sendLast(client *Client) {
	h.lastMu.RLock()
	defer h.lastMu.RUnlock()

	for _, msg := range [][]byte{h.lastRun, h.lastBalance} {
		if msg == nil {
			continue
		}
		select {
		case client.send <- msg:
		default:
		}
	}
}

// Stop останавливает цикл Run и закрывает каналы клиентов. Повторный вызов безопасен.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Broadcast сериализует сообщение и ставит его в очередь рассылки.
// Никогда не блокирует: при переполненной очереди сообщение отбрасывается.
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Error marshaling broadcast message", zap.Error(err))
		return
	}
	h.BroadcastRaw(data)
}

// BroadcastRaw ставит в очередь уже сериализованное сообщение
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastRunUpdate отправляет снимок запуска всем клиентам.
// Вызывается наблюдателем состояния, поэтому не должен блокировать.
func (h *Hub) BroadcastRunUpdate(snap models.RunSnapshot) {
	data, err := json.Marshal(NewRunUpdateMessage(snap))
	if err != nil {
		h.logger.Error("Error marshaling run update", zap.Error(err))
		return
	}
	h.lastMu.Lock()
	h.lastRun = data
	h.lastMu.Unlock()
	h.BroadcastRaw(data)
}

// BroadcastBalanceUpdate отправляет балансы всем клиентам
func (h *Hub) BroadcastBalanceUpdate(snap models.BalanceSnapshot) {
	data, err := json.Marshal(NewBalanceUpdateMessage(snap))
	if err != nil {
		h.logger.Error("Error marshaling balance update", zap.Error(err))
		return
	}
	h.lastMu.Lock()
	h.lastBalance = data
	h.lastMu.Unlock()
	h.BroadcastRaw(data)
}

// ClientCount возвращает количество подключенных клиентов (без блокировки)
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// DroppedMessages возвращает число сообщений, отброшенных из-за переполнения очереди
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
