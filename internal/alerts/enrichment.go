package alerts

import "github.com/studystack/sentinel/pkg/models"

// Enrichment is the operator-facing context attached to a fired alert.
type Enrichment struct {
	BusinessContext    string
	RecommendedActions []string
	EscalationPolicy   string
}

// enrichmentCatalog maps metric names to business context and remediation
// steps. Unknown metrics fall back to generic text.
var enrichmentCatalog = map[string]Enrichment{
	"api_response_time": {
		BusinessContext: "Slow API responses directly delay lesson booking and tutor search; conversion drops measurably past 2s.",
		RecommendedActions: []string{
			"Check database query latency and connection pool saturation",
			"Review recent deployments for regressions",
			"Inspect upstream provider status (payments, CMS)",
		},
	},
	"error_rate": {
		BusinessContext: "Elevated errors surface to parents and students as failed bookings and broken dashboards.",
		RecommendedActions: []string{
			"Inspect error logs for the dominant failure signature",
			"Verify third-party service credentials and quotas",
			"Roll back the latest release if errors started after deploy",
		},
	},
	"health_db_response_time": {
		BusinessContext: "Database latency degrades every page and API call; sustained slowness precedes outages.",
		RecommendedActions: []string{
			"Check for long-running queries and lock contention",
			"Verify disk headroom on the database volume",
		},
	},
	"backup_age_hours": {
		BusinessContext: "A stale backup extends the recovery point; student records and booking history are at risk beyond the daily window.",
		RecommendedActions: []string{
			"Run a manual backup immediately",
			"Check the backup runner logs for failed dumps",
			"Verify the backup volume has free space",
		},
	},
	"memory_usage_percent": {
		BusinessContext: "Memory exhaustion ends in process restarts and dropped sessions during peak tutoring hours.",
		RecommendedActions: []string{
			"Capture a heap profile before restarting",
			"Check for recent traffic growth against instance sizing",
		},
	},
}

var genericEnrichment = Enrichment{
	BusinessContext: "Operational threshold breached; service quality may be degraded for students and tutors.",
	RecommendedActions: []string{
		"Inspect recent samples for the affected metric",
		"Correlate with deploys and upstream provider incidents",
	},
}

// escalationBySeverity maps rule severity to the on-call escalation step.
var escalationBySeverity = map[models.RuleSeverity]string{
	models.RuleSeverityLow:      "ticket-only",
	models.RuleSeverityMedium:   "notify-oncall",
	models.RuleSeverityHigh:     "page-oncall",
	models.RuleSeverityCritical: "page-oncall-and-lead",
}

func lookupEnrichment(metricName string, severity models.RuleSeverity) Enrichment {
	enrichment, found := enrichmentCatalog[metricName]
	if !found {
		enrichment = genericEnrichment
	}
	enrichment.EscalationPolicy = escalationBySeverity[severity]
	if enrichment.EscalationPolicy == "" {
		enrichment.EscalationPolicy = "notify-oncall"
	}
	return enrichment
}
