package bot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Отдаются на /metrics:
// - латентность саги и вызовов биржи
// - счетчики сигналов по исходу
// - заполненность очереди диспетчера

const metricsNamespace = "signaltrader"

// ============ Метрики латентности ============

// SagaDuration - время от начала саги до итогового результата
var SagaDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "saga",
		Name:      "duration_ms",
		Help:      "Time to run the position saga in milliseconds",
		Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
	},
	[]string{"action", "result"},
)

// ExchangeCallLatency - время одного вызова OKX
var ExchangeCallLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "exchange",
		Name:      "call_latency_ms",
		Help:      "OKX REST call latency in milliseconds",
		Buckets:   []float64{25, 50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"op"},
)

// ============ Счетчики событий ============

// SignalsReceived - принятые вебхуком сигналы
var SignalsReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "signals",
		Name:      "received_total",
		Help:      "Total number of accepted webhook signals",
	},
	[]string{"action"},
)

// SignalsRejected - отказы на входе (валидация, подпись, очередь)
var SignalsRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "signals",
		Name:      "rejected_total",
		Help:      "Total number of webhook signals rejected before dispatch",
	},
	[]string{"reason"},
)

// SagasTotal - итоги саг: success, simulated, risk_rejected, entry_failed
var SagasTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "saga",
		Name:      "total",
		Help:      "Total number of finished sagas by result",
	},
	[]string{"action", "result"},
)

// RiskRejections - отказы риск-лимитов по причине
var RiskRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "risk",
		Name:      "rejections_total",
		Help:      "Total number of risk limit rejections by reason",
	},
	[]string{"reason"},
)

// StepFailures - нефатальные ошибки шагов саги и SL/TP
var StepFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "saga",
		Name:      "step_failures_total",
		Help:      "Total number of non-fatal saga step failures",
	},
	[]string{"step"},
)

// ExchangeErrors - ошибки вызовов биржи по коду
var ExchangeErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "exchange",
		Name:      "errors_total",
		Help:      "Total number of failed OKX calls by operation and code",
	},
	[]string{"op", "code"},
)

// ============ Состояние ============

// DailyTrades - сделки за текущие сутки
var DailyTrades = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "risk",
		Name:      "daily_trades",
		Help:      "Number of confirmed entries for the current trading day",
	},
)

// TradingEnabled - 1 если ордера уходят на биржу
var TradingEnabled = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "trading_enabled",
		Help:      "Whether live order submission is enabled (1) or simulated (0)",
	},
)

// DispatchQueueSize - сигналы, ожидающие воркера
var DispatchQueueSize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "dispatch",
		Name:      "queue_size",
		Help:      "Number of signals waiting in the dispatch queue",
	},
)

// BufferOverflows - переполнения очередей (сигналы, уведомления)
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "buffer_overflows_total",
		Help:      "Total number of dropped items due to full buffers",
	},
	[]string{"buffer"},
)

// ============ Хелперы ============

func RecordSignal(action string) {
	SignalsReceived.WithLabelValues(action).Inc()
}

func RecordSignalRejected(reason string) {
	SignalsRejected.WithLabelValues(reason).Inc()
}

func RecordSaga(action, result string, d time.Duration) {
	SagasTotal.WithLabelValues(action, result).Inc()
	SagaDuration.WithLabelValues(action, result).Observe(float64(d.Milliseconds()))
}

func RecordRiskRejection(reason string) {
	RiskRejections.WithLabelValues(reason).Inc()
}

func RecordStepFailure(step string) {
	StepFailures.WithLabelValues(step).Inc()
}

// RecordExchangeCall подходит как exchange.CallObserver
func RecordExchangeCall(op string, ok bool, code string, elapsed time.Duration) {
	ExchangeCallLatency.WithLabelValues(op).Observe(float64(elapsed.Microseconds()) / 1000)
	if !ok {
		ExchangeErrors.WithLabelValues(op, code).Inc()
	}
}

func RecordBufferOverflow(bufferName string) {
	BufferOverflows.WithLabelValues(bufferName).Inc()
}

func UpdateDailyTrades(n int) {
	DailyTrades.Set(float64(n))
}

func UpdateTradingEnabled(enabled bool) {
	if enabled {
		TradingEnabled.Set(1)
		return
	}
	TradingEnabled.Set(0)
}

func UpdateQueueSize(n int) {
	DispatchQueueSize.Set(float64(n))
}
