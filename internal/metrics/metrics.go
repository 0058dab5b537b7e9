package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	MessagesProcessed prometheus.Counter
	MailsRegistered   prometheus.Counter
	RecordsRegistered prometheus.Counter
	NonReports        prometheus.Counter
	MalformedResults  prometheus.Counter
	PersistFailures   prometheus.Counter
	SourceErrors      prometheus.Counter
	RunDuration       prometheus.Histogram
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "weekly_report_messages_processed_total",
			Help: "Total number of mails carried to a terminal processing state",
		}),
		MailsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "weekly_report_mails_registered_total",
			Help: "Total number of mails that produced at least one persisted record",
		}),
		RecordsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "weekly_report_records_registered_total",
			Help: "Total number of report records written to the store",
		}),
		NonReports: promauto.NewCounter(prometheus.CounterOpts{
			Name: "weekly_report_non_reports_total",
			Help: "Total number of mails the model classified as not a report",
		}),
		MalformedResults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "weekly_report_malformed_total",
			Help: "Total number of model responses that failed structural validation",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "weekly_report_persist_failures_total",
			Help: "Total number of mails whose records could not be persisted",
		}),
		SourceErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "weekly_report_source_errors_total",
			Help: "Total number of fatal mail-source failures",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "weekly_report_run_duration_seconds",
			Help:    "Duration of full ingestion sweeps",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
