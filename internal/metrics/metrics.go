package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PositionsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locintel_positions_ingested_total",
		Help: "Position samples stored by the ingest path.",
	})
	IngestFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locintel_ingest_failures_total",
		Help: "Ingest calls that failed to store a sample.",
	})
	QueueDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "locintel_queue_drops_total",
		Help: "Tasks dropped because a pipeline queue was full.",
	}, []string{"queue"})

	GeofenceChecks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locintel_geofence_checks_total",
		Help: "Geofence evaluations run.",
	})
	GeofenceCheckFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locintel_geofence_check_failures_total",
		Help: "Geofence evaluations that failed and were dropped.",
	})
	GeofenceBreaches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locintel_geofence_breaches_total",
		Help: "Geofence breach alerts created.",
	})

	AnomalyChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "locintel_anomaly_checks_total",
		Help: "Anomaly pre-filter outcomes.",
	}, []string{"outcome"})
	JudgeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "locintel_judge_calls_total",
		Help: "Calls to the judgment service by result.",
	}, []string{"result"})

	HubChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "locintel_hub_channels",
		Help: "Subscriber channels currently registered.",
	})
	HubEventsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locintel_hub_events_sent_total",
		Help: "Events accepted by subscriber channels.",
	})
	HubChannelsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locintel_hub_channels_pruned_total",
		Help: "Channels removed after a failed send.",
	})

	PushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locintel_push_failures_total",
		Help: "Push notifications the gateway did not accept.",
	})
)
