package metrics

import (
	"io"

	vm "github.com/VictoriaMetrics/metrics"
)

// Self-telemetry counters, exposed on /metrics/self.
var (
	ingestedTotal        = vm.NewCounter("sentinel_metrics_ingested_total")
	evaluationDropsTotal = vm.NewCounter("sentinel_evaluation_drops_total")

	EvaluationsTotal       = vm.NewCounter("sentinel_rule_evaluations_total")
	AlertsFiredTotal       = vm.NewCounter("sentinel_alerts_fired_total")
	NotificationsSent      = vm.NewCounter("sentinel_notifications_sent_total")
	NotificationsFailed    = vm.NewCounter("sentinel_notifications_failed_total")
	NotificationsRetried   = vm.NewCounter("sentinel_notifications_retried_total")
	InsightsGeneratedTotal = vm.NewCounter("sentinel_insights_generated_total")
	BackupsTotal           = vm.NewCounter("sentinel_backups_total")
	BackupFailuresTotal    = vm.NewCounter("sentinel_backup_failures_total")
)

// WriteSelfTelemetry writes all registered counters in Prometheus exposition
// format.
func WriteSelfTelemetry(w io.Writer) {
	vm.WritePrometheus(w, true)
}
