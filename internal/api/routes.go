package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"triarb/internal/api/handlers"
	"triarb/internal/api/middleware"
	"triarb/pkg/utils"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Engine   handlers.RunController
	Market   handlers.MarketService
	Balances handlers.BalanceSource
	History  handlers.RunHistory // nil, если журнал в БД выключен

	// WebSocket endpoint, обычно (*websocket.Hub).ServeWS
	WebSocket http.HandlerFunc

	Auth           *middleware.TokenAuth
	AllowedOrigins []string
	Logger         *utils.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /arbitrage/
//	│   ├── POST /start - проверить и запустить треугольник
//	│   ├── POST /plan - предварительный расчет без ордеров
//	│   ├── GET /status - снимок состояния запуска
//	│   ├── POST /pause - пауза/возобновление опроса
//	│   └── POST /abort - прервать ожидание запуска
//	├── POST /orders/{id}/cancel - отменить активный ордер
//	├── /opportunity/
//	│   ├── POST /validate - цены против рынка (1%)
//	│   └── POST /stability - рынок против ожидаемых цен (0.5%)
//	├── /market/
//	│   ├── POST /volume - 24h объемы
//	│   └── POST /depth - стакан
//	├── GET /balances, GET /balances/{asset}
//	└── GET /runs, GET /runs/{id} - журнал запусков
//
// /ws/stream - WebSocket (run_update, balance_update)
// /metrics - Prometheus
// /health - проверка живости
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (API и WebSocket)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	auth := deps.Auth
	if auth == nil {
		auth = middleware.NewTokenAuth("", deps.Logger)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.Middleware)

	if deps.Engine != nil {
		h := handlers.NewArbitrageHandler(deps.Engine)
		api.HandleFunc("/arbitrage/start", h.StartArbitrage).Methods(http.MethodPost)
		api.HandleFunc("/arbitrage/plan", h.PlanArbitrage).Methods(http.MethodPost)
		api.HandleFunc("/arbitrage/status", h.GetStatus).Methods(http.MethodGet)
		api.HandleFunc("/arbitrage/pause", h.SetPaused).Methods(http.MethodPost)
		api.HandleFunc("/arbitrage/abort", h.AbortRun).Methods(http.MethodPost)
		api.HandleFunc("/orders/{id}/cancel", h.CancelOrder).Methods(http.MethodPost)
	}

	if deps.Market != nil {
		h := handlers.NewMarketHandler(deps.Market)
		api.HandleFunc("/opportunity/validate", h.ValidateOpportunity).Methods(http.MethodPost)
		api.HandleFunc("/opportunity/stability", h.CheckPriceStability).Methods(http.MethodPost)
		api.HandleFunc("/market/volume", h.GetVolumes).Methods(http.MethodPost)
		api.HandleFunc("/market/depth", h.GetDepth).Methods(http.MethodPost)
	}

	if deps.Balances != nil {
		h := handlers.NewBalanceHandler(deps.Balances)
		api.HandleFunc("/balances", h.GetBalances).Methods(http.MethodGet)
		api.HandleFunc("/balances/{asset}", h.GetBalance).Methods(http.MethodGet)
	}

	runs := handlers.NewRunHandler(deps.History)
	api.HandleFunc("/runs", runs.GetRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", runs.GetRun).Methods(http.MethodGet)

	if deps.WebSocket != nil {
		router.Handle("/ws/stream", auth.Middleware(deps.WebSocket))
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}
