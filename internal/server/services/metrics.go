package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// accessDecisionsTotal counts evaluator outcomes by reason.
	accessDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileshare_access_decisions_total",
			Help: "Access decisions made by the evaluator, by reason",
		},
		[]string{"reason"},
	)

	// accessErrorsTotal counts evaluations that failed closed on a storage error.
	accessErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileshare_access_errors_total",
		Help: "Access evaluations denied because storage failed",
	})

	sharesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileshare_shares_created_total",
			Help: "Share requests, by outcome (created, deduplicated)",
		},
		[]string{"outcome"},
	)

	shareResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileshare_share_resolutions_total",
			Help: "Share token resolutions, by result",
		},
		[]string{"result"},
	)

	uploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileshare_uploaded_bytes_total",
		Help: "Bytes accepted by uploads",
	})
)
