package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benchwire/hotlist/internal/model"
)

// Metrics holds all Prometheus metrics for the campaign engine
type Metrics struct {
	// Dispatch counters
	CandidatesSentTotal   prometheus.Counter
	SendFailuresTotal     prometheus.Counter
	SendSkippedTotal      prometheus.Counter
	DispatchPassesTotal   *prometheus.CounterVec
	EventsRecordedTotal   *prometheus.CounterVec
	CampaignTransitions   *prometheus.CounterVec
	LockConflictsTotal    prometheus.Counter

	// Campaign gauges
	CampaignsByStatus *prometheus.GaugeVec

	// API metrics
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		CandidatesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hotlist_candidates_sent_total",
				Help: "Total number of candidate representation emails sent",
			},
		),
		SendFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hotlist_send_failures_total",
				Help: "Total number of per-candidate send failures",
			},
		),
		SendSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hotlist_send_skipped_total",
				Help: "Total number of sends skipped because the idempotency key was already sent",
			},
		),
		DispatchPassesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotlist_dispatch_passes_total",
				Help: "Total number of dispatch passes by outcome",
			},
			[]string{"outcome"},
		),
		EventsRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotlist_events_recorded_total",
				Help: "Total number of analytics events recorded",
			},
			[]string{"event_type"},
		),
		CampaignTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotlist_campaign_transitions_total",
				Help: "Total number of campaign status transitions",
			},
			[]string{"from", "to"},
		),
		LockConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hotlist_lock_conflicts_total",
				Help: "Total number of rejected operations due to lock contention",
			},
		),
		CampaignsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hotlist_campaigns_by_status",
				Help: "Number of campaigns per lifecycle status",
			},
			[]string{"status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotlist_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hotlist_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.CandidatesSentTotal,
		m.SendFailuresTotal,
		m.SendSkippedTotal,
		m.DispatchPassesTotal,
		m.EventsRecordedTotal,
		m.CampaignTransitions,
		m.LockConflictsTotal,
		m.CampaignsByStatus,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTransition counts one campaign status transition
func (m *Metrics) RecordTransition(from, to model.CampaignStatus) {
	m.CampaignTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// SetCampaignCounts updates the per-status campaign gauges
func (m *Metrics) SetCampaignCounts(counts map[model.CampaignStatus]int) {
	for _, status := range []model.CampaignStatus{
		model.CampaignDraft, model.CampaignScheduled, model.CampaignSent,
		model.CampaignCompleted, model.CampaignCancelled,
	} {
		m.CampaignsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
