package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignaturesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_signatures_total",
			Help: "Settlement signatures issued by the verifier",
		},
		[]string{"kind"},
	)
	SignatureFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_signature_failures_total",
			Help: "Settlement requests that did not produce a signature",
		},
		[]string{"kind", "reason"},
	)
	ResultSubmissions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duel_result_submissions_total",
			Help: "Duel result upserts",
		},
	)
	ResultCleanups = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duel_result_cleanups_total",
			Help: "Duel result cleanups",
		},
	)
	DuelRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duel_records_total",
			Help: "Settled duels recorded",
		},
	)
)

func init() {
	prometheus.MustRegister(SignaturesIssued, SignatureFailures, ResultSubmissions, ResultCleanups, DuelRecords)
}
