package placement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики размещения

// PoolsGauge - количество пулов по статусам
var PoolsGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "placement",
		Name:      "pools",
		Help:      "Number of pools by status",
	},
	[]string{"status"},
)

// PlacedInstancesGauge - количество размещённых инстансов
var PlacedInstancesGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "placement",
		Name:      "placed_instances",
		Help:      "Number of instances currently mapped to a pool",
	},
)

// ReconcileRuns - количество запусков сверки
var ReconcileRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "placement",
		Name:      "reconcile_runs_total",
		Help:      "Total reconciliation runs",
	},
	[]string{"result"}, // ok, error
)

// ReconcileRemoved - количество удалённых при сверке stale-записей
var ReconcileRemoved = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "placement",
		Name:      "reconcile_removed_total",
		Help:      "Total stale placements removed by reconciliation",
	},
)

// ReconcileOrphans - количество обнаруженных осиротевших ботов
var ReconcileOrphans = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "placement",
		Name:      "reconcile_orphans_total",
		Help:      "Total orphaned bot processes observed during reconciliation",
	},
)
