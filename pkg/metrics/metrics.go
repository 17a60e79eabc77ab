package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_sessions_open",
			Help: "Number of container sessions currently open",
		},
	)

	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sessions_total",
			Help: "Total number of container sessions opened by rootfs mode",
		},
		[]string{"mode"},
	)

	SessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_session_duration_seconds",
			Help:    "Container session lifetime in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	// Command metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_commands_total",
			Help: "Total number of commands run in containers by outcome",
		},
		[]string{"outcome"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_command_duration_seconds",
			Help:    "Container command duration in seconds by outcome",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		},
		[]string{"outcome"},
	)

	// Mount stack metrics
	MountsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_mounts_active",
			Help: "Number of mounts currently held by open sessions",
		},
	)

	MountFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_mount_failures_total",
			Help: "Total number of failed mount operations by filesystem type",
		},
		[]string{"fstype"},
	)

	LoopDevicesAttached = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_loop_devices_attached",
			Help: "Number of loop devices currently attached by open sessions",
		},
	)

	// Snapshot metrics
	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_snapshots_total",
			Help: "Total number of rootfs snapshots by outcome",
		},
		[]string{"outcome"},
	)

	SnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_snapshot_duration_seconds",
			Help:    "Rootfs snapshot duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(SessionsOpen)
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(SessionDuration)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(MountsActive)
	prometheus.MustRegister(MountFailures)
	prometheus.MustRegister(LoopDevicesAttached)
	prometheus.MustRegister(SnapshotsTotal)
	prometheus.MustRegister(SnapshotDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
