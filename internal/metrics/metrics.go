package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 通知存储
	NotificationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "critical_alerts_notifications_active",
			Help: "Number of live critical notifications",
		},
	)

	NotificationMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critical_alerts_notification_mutations_total",
			Help: "Notification store mutations",
		},
		[]string{"kind"}, // added, updated, removed, cleared, rejected
	)

	PersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critical_alerts_persist_failures_total",
			Help: "Failed reads/writes of the persisted notification slot",
		},
		[]string{"op"}, // load, save, erase
	)

	// 队列轮询
	PollTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "critical_alerts_poll_ticks_total",
			Help: "Queue status poll ticks",
		},
	)

	PatientChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critical_alerts_patient_checks_total",
			Help: "Per-patient served checks by outcome",
		},
		[]string{"outcome"}, // served, not_served, skipped
	)

	PatientCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "critical_alerts_patient_check_duration_seconds",
			Help:    "Time taken to check one patient's queue status",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// 外部接口
	CollaboratorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critical_alerts_collaborator_errors_total",
			Help: "Errors returned by the hospital API",
		},
		[]string{"operation"},
	)

	// 启动扫描
	ScanNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "critical_alerts_scan_notifications_total",
			Help: "Notifications seeded by the initial critical-patient scan",
		},
	)

	// 广播
	BroadcastFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critical_alerts_broadcast_failures_total",
			Help: "Failed change broadcasts",
		},
		[]string{"sink"},
	)

	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critical_alerts_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
