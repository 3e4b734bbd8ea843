package bot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"triarb/internal/models"
)

// ============================================================
// Prometheus метрики движка треугольного арбитража
// ============================================================
//
// Отдаются через /metrics (promhttp) для Grafana и Alertmanager.
// Ключевой алерт: triarb_engine_runs_total{result="ABORTED_PARTIAL"} -
// на счёте остался промежуточный актив.

// RunsTotal - завершённые запуски по итоговому статусу
var RunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "triarb",
		Subsystem: "engine",
		Name:      "runs_total",
		Help:      "Total number of finished arbitrage runs by terminal status",
	},
	[]string{"result"}, // COMPLETED, ABORTED, ABORTED_PARTIAL
)

// LegsTotal - результаты ног
var LegsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "triarb",
		Subsystem: "engine",
		Name:      "legs_total",
		Help:      "Total number of executed legs by result",
	},
	[]string{"leg", "result"}, // result: filled, not_filled, placement_failed, rejected
)

// OrderWaitSeconds - время от размещения ордера до терминального статуса
var OrderWaitSeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "triarb",
		Subsystem: "engine",
		Name:      "order_wait_seconds",
		Help:      "Time from order placement to terminal status in seconds",
		Buckets:   []float64{1, 2, 5, 10, 30, 60, 300, 900, 3600},
	},
	[]string{"leg"},
)

// OrderStatusQueries - запросы статуса ордера
var OrderStatusQueries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "triarb",
		Subsystem: "engine",
		Name:      "order_status_queries_total",
		Help:      "Total number of order status queries by result",
	},
	[]string{"result"}, // ok, error
)

// RunActive - 1 пока запуск выполняется
var RunActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "triarb",
		Subsystem: "engine",
		Name:      "run_active",
		Help:      "1 while an arbitrage run is in progress",
	},
)

// BalanceRefreshTotal - обновления балансов
var BalanceRefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "triarb",
		Subsystem: "balance",
		Name:      "refresh_total",
		Help:      "Total number of balance refreshes by result",
	},
	[]string{"result"}, // changed, unchanged, error
)

// AssetBalance - свободный баланс актива
var AssetBalance = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "triarb",
		Subsystem: "balance",
		Name:      "asset_free",
		Help:      "Free balance per asset",
	},
	[]string{"asset"},
)

// ============ Вспомогательные функции ============

// RecordRunFinished записывает итог запуска
func RecordRunFinished(status models.RunStatus) {
	RunsTotal.WithLabelValues(string(status)).Inc()
	RunActive.Set(0)
}

// RecordLeg записывает результат ноги
func RecordLeg(leg int, result string) {
	LegsTotal.WithLabelValues(legLabel(leg), result).Inc()
}

// RecordOrderWait записывает время ожидания ордера
func RecordOrderWait(leg int, d time.Duration) {
	OrderWaitSeconds.WithLabelValues(legLabel(leg)).Observe(d.Seconds())
}

// RecordBalances обновляет gauge балансов; активы, пропавшие из снимка, обнуляются
func RecordBalances(prev, next map[string]float64) {
	for asset := range prev {
		if _, ok := next[asset]; !ok {
			AssetBalance.WithLabelValues(asset).Set(0)
		}
	}
	for asset, free := range next {
		AssetBalance.WithLabelValues(asset).Set(free)
	}
}

func legLabel(leg int) string {
	switch leg {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "unknown"
	}
}
