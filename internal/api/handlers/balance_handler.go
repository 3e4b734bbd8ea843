package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// BalanceHandler отдает последний снимок балансов аккаунта.
// Снимок обновляет BalanceTracker, биржа здесь не запрашивается.
type BalanceHandler struct {
	balances BalanceSource
}

// NewBalanceHandler создает новый BalanceHandler
func NewBalanceHandler(balances BalanceSource) *BalanceHandler {
	return &BalanceHandler{balances: balances}
}

// AssetBalance - баланс одного актива
type AssetBalance struct {
	Asset string  `json:"asset"`
	Free  float64 `json:"free"`
}

// GetBalances возвращает все ненулевые балансы.
//
// GET /api/v1/balances
func (h *BalanceHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	snap := h.balances.Snapshot()
	if snap.Balances == nil {
		snap.Balances = map[string]float64{}
	}
	respondJSON(w, http.StatusOK, snap)
}

// GetBalance возвращает баланс одного актива; отсутствующий актив = 0.
//
// GET /api/v1/balances/{asset}
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	asset := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["asset"]))
	if asset == "" {
		respondBadRequest(w, "asset is required", nil)
		return
	}
	respondJSON(w, http.StatusOK, AssetBalance{Asset: asset, Free: h.balances.Balance(asset)})
}
