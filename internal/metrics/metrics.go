package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enginerelay_turns_total",
			Help: "Total number of chat turns relayed",
		},
		[]string{"mode", "status"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enginerelay_turn_duration_seconds",
			Help:    "Turn duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enginerelay_tokens_total",
			Help: "Total number of tokens reported by the engine",
		},
		[]string{"model", "type"},
	)

	EngineErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enginerelay_engine_errors_total",
			Help: "Total number of error responses from the engine",
		},
		[]string{"code"},
	)

	TransportFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enginerelay_transport_faults_total",
			Help: "Total number of transport-level faults reaching the engine",
		},
		[]string{"class"},
	)

	ModelDowngrades = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enginerelay_model_downgrades_total",
			Help: "Total number of turns where the engine downgraded the model",
		},
	)
)

func RecordTurn(mode, status string, durationSec float64) {
	TurnsTotal.WithLabelValues(mode, status).Inc()
	TurnDuration.WithLabelValues(mode).Observe(durationSec)
}

func RecordTokens(model string, promptTokens, completionTokens int) {
	TokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	TokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
}
