package planner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	buildSeconds   *prometheus.HistogramVec
	solveSeconds   *prometheus.HistogramVec
	variables      *prometheus.GaugeVec
	constraints    *prometheus.GaugeVec
	solveStatus    *prometheus.CounterVec
	resolvedPlants *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	buckets := prometheus.ExponentialBuckets(0.01, 4, 10)
	return &metrics{
		buildSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridplan_build_seconds",
			Help:    "Time spent building the model.",
			Buckets: buckets,
		}, []string{"mode"}),
		solveSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridplan_solve_seconds",
			Help:    "Time spent in the solver.",
			Buckets: buckets,
		}, []string{"mode"}),
		variables: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridplan_model_variables",
			Help: "Variables in the most recently built model.",
		}, []string{"mode"}),
		constraints: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridplan_model_constraints",
			Help: "Constraints in the most recently built model.",
		}, []string{"mode"}),
		solveStatus: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gridplan_solve_status_total",
			Help: "Planning runs by final status.",
		}, []string{"mode", "status"}),
		resolvedPlants: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gridplan_health_resolved_plants_total",
			Help: "Plants resolved by health-cost source.",
		}, []string{"source"}),
	}
}
