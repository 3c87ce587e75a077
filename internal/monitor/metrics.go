package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики контура управления

// CycleDuration - гистограмма длительности цикла мониторинга
var CycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Subsystem: "monitor",
		Name:      "cycle_duration_seconds",
		Help:      "Monitoring cycle duration",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
	},
)

// InstancesProcessed - количество опрошенных инстансов
var InstancesProcessed = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "monitor",
		Name:      "instances_processed_total",
		Help:      "Total instances processed across cycles",
	},
)

// InstanceErrors - ошибки опроса инстансов
var InstanceErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "monitor",
		Name:      "instance_errors_total",
		Help:      "Total per-instance processing errors",
	},
	[]string{"stage"}, // settings, status, policy
)

// ActionsExecuted - исполненные действия по видам и исходу
var ActionsExecuted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "monitor",
		Name:      "actions_executed_total",
		Help:      "Total executed actions",
	},
	[]string{"kind", "result"}, // result: ok, error
)

// PriceCacheSize - количество записей в кэше цен
var PriceCacheSize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "monitor",
		Name:      "price_cache_entries",
		Help:      "Entries in the shared price cache",
	},
)

// CrashSignalGauge - текущее состояние сигнала обвала (0/1)
var CrashSignalGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "monitor",
		Name:      "crash_signal",
		Help:      "Whether the crash detector currently signals a market crash",
	},
)
