package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"triarb/internal/bot"
	"triarb/internal/exchange"
	"triarb/internal/models"
)

// ArbitrageHandler обрабатывает HTTP запросы управления запуском.
//
// Endpoints:
// - POST /api/v1/arbitrage/start - проверить и запустить треугольник
// - POST /api/v1/arbitrage/plan - только предварительный расчет ног
// - GET /api/v1/arbitrage/status - снимок состояния запуска
// - POST /api/v1/arbitrage/pause - пауза/возобновление опроса ордеров
// - POST /api/v1/arbitrage/abort - прервать ожидание текущего запуска
// - POST /api/v1/orders/{id}/cancel - отменить активный ордер на бирже
type ArbitrageHandler struct {
	engine RunController
}

// NewArbitrageHandler создает новый ArbitrageHandler
func NewArbitrageHandler(engine RunController) *ArbitrageHandler {
	return &ArbitrageHandler{engine: engine}
}

// StartResponse - ответ на успешный запуск
type StartResponse struct {
	Message string         `json:"message"`
	RunID   string         `json:"run_id"`
	Plan    *bot.TradePlan `json:"plan"`
}

// PauseRequest - тело запроса паузы
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// CancelResponse - ответ на отмену ордера
type CancelResponse struct {
	Message string          `json:"message"`
	Order   *exchange.Order `json:"order"`
}

// StartArbitrage проверяет запрос и запускает исполнение в фоне.
//
// POST /api/v1/arbitrage/start
//
// Request:
//
//	{"pairs": ["ETHUSDT", "ETHBTC", "BTCUSDT"], "amount": 1000, "prices": [3000, 0.05, 60000]}
//
// Response 202 Accepted:
//
//	{"message": "Arbitrage started", "run_id": "...", "plan": {...}}
//
// Response 400 - ошибка проверки (пары, minNotional, топология активов)
// Response 409 - запуск уже выполняется
func (h *ArbitrageHandler) StartArbitrage(w http.ResponseWriter, r *http.Request) {
	var req bot.RunRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body", err)
		return
	}

	runID, plan, err := h.engine.StartRun(r.Context(), req)
	if err != nil {
		respondWithError(w, "failed to start arbitrage", err)
		return
	}

	respondJSON(w, http.StatusAccepted, StartResponse{
		Message: "Arbitrage started",
		RunID:   runID,
		Plan:    plan,
	})
}

// PlanArbitrage выполняет предварительную проверку без размещения ордеров.
//
// POST /api/v1/arbitrage/plan
func (h *ArbitrageHandler) PlanArbitrage(w http.ResponseWriter, r *http.Request) {
	var req bot.RunRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body", err)
		return
	}

	plan, err := h.engine.Plan(r.Context(), req)
	if err != nil {
		respondWithError(w, "pre-flight check failed", err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

// GetStatus возвращает снимок состояния.
//
// GET /api/v1/arbitrage/status
func (h *ArbitrageHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Status()
	if snap.Logs == nil {
		snap.Logs = []string{}
	}
	if snap.ActiveOrders == nil {
		snap.ActiveOrders = map[string]models.ActiveOrder{}
	}
	respondJSON(w, http.StatusOK, snap)
}

// SetPaused ставит или снимает паузу опроса.
//
// POST /api/v1/arbitrage/pause
//
// Request: {"paused": true}
func (h *ArbitrageHandler) SetPaused(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body", err)
		return
	}

	snap := h.engine.SetPaused(req.Paused)
	respondJSON(w, http.StatusOK, snap)
}

// AbortRun прерывает ожидание текущего запуска. Ордера остаются на бирже.
//
// POST /api/v1/arbitrage/abort
func (h *ArbitrageHandler) AbortRun(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.AbortRun(); err != nil {
		respondWithError(w, "failed to abort run", err)
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "Abort requested"})
}

// CancelOrder отменяет активный ордер текущего запуска.
//
// POST /api/v1/orders/{id}/cancel
//
// Response 404 - ордер не входит в список активных
// Response 409 - нет активного запуска
func (h *ArbitrageHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	if orderID == "" {
		respondBadRequest(w, "order id is required", nil)
		return
	}

	order, err := h.engine.CancelActiveOrder(r.Context(), orderID)
	if err != nil {
		respondWithError(w, "failed to cancel order", err)
		return
	}

	respondJSON(w, http.StatusOK, CancelResponse{
		Message: "Order cancel requested",
		Order:   order,
	})
}
