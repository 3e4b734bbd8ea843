package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"triarb/internal/bot"
	"triarb/internal/exchange"
	"triarb/internal/models"
)

// ============ ArbitrageHandler Tests ============

const startBody = `{"pairs":["ETHUSDT","ETHBTC","BTCUSDT"],"amount":1000,"prices":[3000,0.05,60000]}`

func TestArbitrageHandler_StartArbitrage(t *testing.T) {
	t.Run("starts run", func(t *testing.T) {
		engine := NewMockEngine()
		handler := NewArbitrageHandler(engine)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/arbitrage/start", strings.NewReader(startBody))
		w := httptest.NewRecorder()

		handler.StartArbitrage(w, req)

		if w.Code != http.StatusAccepted {
			t.Fatalf("expected status %d, got %d", http.StatusAccepted, w.Code)
		}

		var response StartResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.RunID != "run-1" {
			t.Errorf("expected run_id run-1, got %s", response.RunID)
		}
		if response.Plan == nil || response.Plan.Legs[2].Quantity != 0.01666 {
			t.Errorf("unexpected plan: %+v", response.Plan)
		}
		if engine.lastRequest.Amount != 1000 || engine.lastRequest.Pairs[1] != "ETHBTC" {
			t.Errorf("request not passed through: %+v", engine.lastRequest)
		}
	})

	t.Run("maps errors to status codes", func(t *testing.T) {
		tests := []struct {
			name     string
			err      error
			wantCode int
			wantAPI  string
		}{
			{"run active", bot.ErrRunActive, http.StatusConflict, CodeRunActive},
			{"min notional", fmt.Errorf("%w: leg 1 notional 0.5 < 10", bot.ErrMinNotional), http.StatusBadRequest, CodeValidationFailed},
			{"asset flow", bot.ErrAssetFlow, http.StatusBadRequest, CodeValidationFailed},
			{"unknown symbol", fmt.Errorf("DOGEBTC: %w", exchange.ErrSymbolNotFound), http.StatusBadRequest, CodeValidationFailed},
			{"exchange down", &exchange.ExchangeError{Exchange: "binance", HTTPStatus: 503, Message: "unavailable"}, http.StatusBadGateway, CodeExchangeError},
			{"unexpected", ErrMockExchange, http.StatusInternalServerError, CodeInternalError},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				engine := NewMockEngine()
				engine.startErr = tt.err
				handler := NewArbitrageHandler(engine)

				req := httptest.NewRequest(http.MethodPost, "/api/v1/arbitrage/start", strings.NewReader(startBody))
				w := httptest.NewRecorder()

				handler.StartArbitrage(w, req)

				if w.Code != tt.wantCode {
					t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
				}

				var response ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if response.Code != tt.wantAPI {
					t.Errorf("expected code %s, got %s", tt.wantAPI, response.Code)
				}
				if response.Details == "" {
					t.Error("details should carry the error text")
				}
			})
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		handler := NewArbitrageHandler(NewMockEngine())

		for _, body := range []string{`{invalid`, `{"pairs":[],"unknown":1}`} {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/arbitrage/start", strings.NewReader(body))
			w := httptest.NewRecorder()

			handler.StartArbitrage(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("body %q: expected status %d, got %d", body, http.StatusBadRequest, w.Code)
			}
		}
	})
}

func TestArbitrageHandler_PlanArbitrage(t *testing.T) {
	engine := NewMockEngine()
	handler := NewArbitrageHandler(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/arbitrage/plan", strings.NewReader(startBody))
	w := httptest.NewRecorder()
	handler.PlanArbitrage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var plan bot.TradePlan
	if err := json.NewDecoder(w.Body).Decode(&plan); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if plan.Legs[0].Side != exchange.SideBuy {
		t.Errorf("leg 1 side = %s", plan.Legs[0].Side)
	}

	engine.planErr = bot.ErrInvalidPairs
	w = httptest.NewRecorder()
	handler.PlanArbitrage(w, httptest.NewRequest(http.MethodPost, "/api/v1/arbitrage/plan", strings.NewReader(startBody)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestArbitrageHandler_GetStatus(t *testing.T) {
	engine := NewMockEngine()
	handler := NewArbitrageHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/arbitrage/status", nil)
	w := httptest.NewRecorder()
	handler.GetStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	// пустые коллекции отдаются как [] и {}, а не null
	body := w.Body.String()
	if !strings.Contains(body, `"logs":[]`) || !strings.Contains(body, `"active_orders":{}`) {
		t.Errorf("unexpected body: %s", body)
	}
	if !strings.Contains(body, `"status":"IDLE"`) {
		t.Errorf("status missing: %s", body)
	}
}

func TestArbitrageHandler_SetPaused(t *testing.T) {
	engine := NewMockEngine()
	handler := NewArbitrageHandler(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/arbitrage/pause", strings.NewReader(`{"paused":true}`))
	w := httptest.NewRecorder()
	handler.SetPaused(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var snap models.RunSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !snap.Paused {
		t.Error("expected paused snapshot")
	}
	if len(engine.pausedCalls) != 1 || !engine.pausedCalls[0] {
		t.Errorf("SetPaused calls = %v", engine.pausedCalls)
	}
}

func TestArbitrageHandler_AbortRun(t *testing.T) {
	engine := NewMockEngine()
	handler := NewArbitrageHandler(engine)

	w := httptest.NewRecorder()
	handler.AbortRun(w, httptest.NewRequest(http.MethodPost, "/api/v1/arbitrage/abort", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	engine.abortErr = bot.ErrNoActiveRun
	w = httptest.NewRecorder()
	handler.AbortRun(w, httptest.NewRequest(http.MethodPost, "/api/v1/arbitrage/abort", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
	}
}

func TestArbitrageHandler_CancelOrder(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"cancel requested", nil, http.StatusOK},
		{"no active run", bot.ErrNoActiveRun, http.StatusConflict},
		{"unknown order", fmt.Errorf("%w: 42", bot.ErrOrderNotFound), http.StatusNotFound},
		{"exchange rejects", fmt.Errorf("cancel order 42: %w", &exchange.ExchangeError{Exchange: "binance", HTTPStatus: 400, Code: "-2011", Message: "Unknown order sent."}), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewMockEngine()
			engine.cancelErr = tt.err
			handler := NewArbitrageHandler(engine)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/42/cancel", nil)
			req = mux.SetURLVars(req, map[string]string{"id": "42"})
			w := httptest.NewRecorder()

			handler.CancelOrder(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			if engine.lastCancelID != "42" {
				t.Errorf("expected cancel of 42, got %q", engine.lastCancelID)
			}
		})
	}
}
