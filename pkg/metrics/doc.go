/*
Package metrics provides Prometheus metrics collection and exposition for Burrow.

The metrics package defines and registers all Burrow metrics using the Prometheus
client library, providing observability into session lifecycle, external command
execution, mount stack health, and snapshot throughput. Metrics are exposed via
HTTP endpoint for scraping by Prometheus servers.

# Metric Groups

Session metrics track the container session lifecycle:

	burrow_sessions_open                Gauge of currently open sessions
	burrow_sessions_total               Counter of sessions by rootfs mode
	burrow_session_duration_seconds     Histogram of session lifetimes

Command metrics track commands launched inside containers:

	burrow_commands_total               Counter of commands by outcome
	burrow_command_duration_seconds     Histogram of command durations

Mount stack metrics track the layered rootfs resources:

	burrow_mounts_active                Gauge of mounts held by open sessions
	burrow_mount_failures_total         Counter of mount failures by fstype
	burrow_loop_devices_attached        Gauge of attached loop devices

Snapshot metrics track rootfs image production:

	burrow_snapshots_total              Counter of snapshots by outcome
	burrow_snapshot_duration_seconds    Histogram of snapshot durations

# Usage

Expose the metrics endpoint:

	http.Handle("/metrics", metrics.Handler())

Record a duration with the Timer helper:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SnapshotDuration)
*/
package metrics
