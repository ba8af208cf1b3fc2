package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all pipeline metrics
type Metrics struct {
	// Webhook event pipeline
	EventsProcessed   prometheus.Counter
	EventsFailed      prometheus.Counter
	EventsDuplicate   prometheus.Counter
	ProcessingLatency prometheus.Histogram

	// Renderer
	PDFGenerated    prometheus.Counter
	PDFFallbacks    prometheus.Counter
	PDFTokenRetries *prometheus.CounterVec

	// Delivery
	EmailsSent   prometheus.Counter
	EmailsFailed prometheus.Counter

	// Poller
	PollerLearnersChecked prometheus.Counter
	PollerCompletions     prometheus.Counter
	PollerErrors          prometheus.Counter
}

// New creates and registers all pipeline metrics under a subsystem on the
// default registry.
func New(subsystem string) *Metrics {
	return NewWith(prometheus.DefaultRegisterer, subsystem)
}

// NewWith registers the metrics on a caller-supplied registerer; tests pass
// a fresh registry per instance.
func NewWith(reg prometheus.Registerer, subsystem string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "webhook_events_processed_total",
			Help:      "Total number of webhook events that reached processed",
		}),
		EventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "webhook_events_failed_total",
			Help:      "Total number of webhook events that reached failed",
		}),
		EventsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "webhook_events_duplicate_total",
			Help:      "Total number of already-processed events short-circuited",
		}),
		ProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "event_processing_duration_seconds",
			Help:      "Time spent turning one webhook event into a terminal state",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		PDFGenerated: factory.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "certificates_pdf_generated_total",
			Help:      "Total number of certificates rendered to PDF",
		}),
		PDFFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "certificates_html_fallback_total",
			Help:      "Total number of certificates delivered as HTML after PDF failure",
		}),
		PDFTokenRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "pdf_api_token_retries_total",
			Help:      "PDF conversion attempts per credential position",
		}, []string{"token_index"}),
		EmailsSent: factory.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "certificate_emails_sent_total",
			Help:      "Total number of certificate emails delivered",
		}),
		EmailsFailed: factory.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "certificate_emails_failed_total",
			Help:      "Total number of certificate email delivery failures",
		}),
		PollerLearnersChecked: factory.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "poller_learners_checked_total",
			Help:      "Total number of learners checked for completion",
		}),
		PollerCompletions: factory.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "poller_completions_total",
			Help:      "Total number of completions detected by the poller",
		}),
		PollerErrors: factory.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "poller_errors_total",
			Help:      "Total number of per-learner poller errors",
		}),
	}
}
