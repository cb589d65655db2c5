package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveclass_sessions_created_total",
		Help: "Total sessions created",
	})

	metricSessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveclass_sessions_started_total",
		Help: "Total sessions transitioned to live",
	})

	metricSessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveclass_sessions_ended_total",
		Help: "Total sessions ended (owner, moderator or stale sweep)",
	})

	metricSessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveclass_sessions_expired_total",
		Help: "Sessions force-ended by the stale sweep",
	})

	metricJoinsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveclass_joins_admitted_total",
		Help: "Join attempts that created a participant",
	})

	metricJoinsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liveclass_joins_rejected_total",
		Help: "Join attempts rejected, by reason",
	}, []string{"reason"})
)
