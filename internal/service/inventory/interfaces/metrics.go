// internal/service/inventory/interfaces/metrics.go
package interfaces

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 引擎核心路径的业务指标。按结果维度拆分，方便直接观察超卖防线的命中情况。
var (
	reserveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_reserve_total",
		Help: "Reserve requests by outcome (reserved, insufficient, busy, error).",
	}, []string{"outcome"})

	finalizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_finalize_total",
		Help: "Reservation finalizations by target status and outcome.",
	}, []string{"status", "outcome"})
)
