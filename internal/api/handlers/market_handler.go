package handlers

import (
	"net/http"
)

// MarketHandler обрабатывает запросы проверки рынка.
//
// Endpoints:
// - POST /api/v1/opportunity/validate - отклонение цен от рынка не более 1%
// - POST /api/v1/opportunity/stability - отклонение рынка от ожидаемых цен не более 0.5%
// - POST /api/v1/market/volume - 24h объемы торгов по парам
// - POST /api/v1/market/depth - стаканы по парам
type MarketHandler struct {
	market MarketService
}

// NewMarketHandler создает новый MarketHandler
func NewMarketHandler(market MarketService) *MarketHandler {
	return &MarketHandler{market: market}
}

// PricesRequest - пары и цены треугольника
type PricesRequest struct {
	Pairs  []string  `json:"pairs"`
	Prices []float64 `json:"prices"`
}

// VolumeRequest - пары для запроса объемов
type VolumeRequest struct {
	Pairs []string `json:"pairs"`
}

// DepthRequest - параметры запроса стакана
type DepthRequest struct {
	Pairs []string `json:"pairs"`
	Limit int      `json:"limit,omitempty"`
}

// ValidateOpportunity сравнивает цены с текущими лучшими ценами.
//
// POST /api/v1/opportunity/validate
//
// Response 200 OK:
//
//	{"valid": false, "reason": "ETHUSDT: price 3031 deviates 1.03% from ask 3000", "checks": [...]}
func (h *MarketHandler) ValidateOpportunity(w http.ResponseWriter, r *http.Request) {
	var req PricesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body", err)
		return
	}

	res, err := h.market.ValidateOpportunity(r.Context(), req.Pairs, req.Prices)
	if err != nil {
		respondWithError(w, "failed to validate opportunity", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// CheckPriceStability проверяет, что рынок не ушел от ожидаемых цен.
//
// POST /api/v1/opportunity/stability
func (h *MarketHandler) CheckPriceStability(w http.ResponseWriter, r *http.Request) {
	var req PricesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body", err)
		return
	}

	res, err := h.market.CheckPriceStability(r.Context(), req.Pairs, req.Prices)
	if err != nil {
		respondWithError(w, "failed to check price stability", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GetVolumes возвращает 24h объемы по парам.
//
// POST /api/v1/market/volume
//
// Response 200 OK: {"ETHUSDT": 1500.5, "ETHBTC": 800.1}
func (h *MarketHandler) GetVolumes(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body", err)
		return
	}
	if len(req.Pairs) == 0 {
		respondBadRequest(w, "pairs are required", nil)
		return
	}

	volumes, err := h.market.TradingVolumes(r.Context(), req.Pairs)
	if err != nil {
		respondWithError(w, "failed to get trading volumes", err)
		return
	}
	respondJSON(w, http.StatusOK, volumes)
}

// GetDepth возвращает стаканы пар; limit по умолчанию 5.
//
// POST /api/v1/market/depth
//
// Request: {"pairs": ["ETHUSDT", "ETHBTC"], "limit": 5}
//
// Response 200 OK:
//
//	{"ETHUSDT": {"symbol": "ETHUSDT", "bids": [...], "asks": [...]}, "ETHBTC": {...}}
func (h *MarketHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	var req DepthRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body", err)
		return
	}
	if len(req.Pairs) == 0 {
		respondBadRequest(w, "pairs are required", nil)
		return
	}
	if req.Limit < 0 {
		respondBadRequest(w, "limit must not be negative", nil)
		return
	}

	books, err := h.market.OrderBookDepth(r.Context(), req.Pairs, req.Limit)
	if err != nil {
		respondWithError(w, "failed to get order book", err)
		return
	}
	respondJSON(w, http.StatusOK, books)
}
