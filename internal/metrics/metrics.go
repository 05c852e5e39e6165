// Package metrics exposes workflow counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var transitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "erequisition_transitions_total",
		Help: "Successful workflow transitions by entity and action",
	},
	[]string{"entity", "action"},
)

var rejectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "erequisition_rejected_operations_total",
		Help: "Workflow operations rejected by a business rule, by kind",
	},
	[]string{"kind"},
)

var approvalTurnaround = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "erequisition_approval_turnaround_hours",
		Help:    "Hours between submission and the approval or denial decision",
		Buckets: []float64{1, 4, 8, 24, 48, 72, 168, 336},
	},
)

var notificationsDelivered = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "erequisition_notifications_delivered_total",
		Help: "Notification delivery attempts by channel and outcome",
	},
	[]string{"channel", "success"},
)

var remindersSent = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "erequisition_approval_reminders_total",
		Help: "Approval reminder notifications created by the scheduler",
	},
)

//nolint:gochecknoinits // collectors are registered once on the private registry
func init() {
	registry.MustRegister(transitionsTotal, rejectedTotal, approvalTurnaround, notificationsDelivered, remindersSent)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

func RecordTransition(entity, action string) {
	transitionsTotal.WithLabelValues(entity, action).Inc()
}

func RecordRejection(kind string) {
	rejectedTotal.WithLabelValues(kind).Inc()
}

func ObserveTurnaround(hours int) {
	approvalTurnaround.Observe(float64(hours))
}

func RecordDelivery(channel string, success bool) {
	notificationsDelivered.WithLabelValues(channel, strconv.FormatBool(success)).Inc()
}

func AddReminders(n int) {
	remindersSent.Add(float64(n))
}
