package util

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "casa"

var Registry = prometheus.NewRegistry()

var (
	MutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "mutations_total",
		Help:      "Device state changes by room and input source.",
	}, []string{"room", "source"})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "commands_total",
		Help:      "Text commands by outcome.",
	}, []string{"result"})

	GesturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "gestures_total",
		Help:      "Applied gesture classifications by label.",
	}, []string{"label"})

	MessagesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "messages_published_total",
		Help:      "Messages handed to the broker by channel.",
	}, []string{"channel"})

	PublishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "publish_failures_total",
		Help:      "Messages that did not reach the broker, by reason.",
	}, []string{"reason"})

	PublishQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "publish_queue_depth",
		Help:      "Snapshots waiting for the publish worker.",
	})

	PeerActuations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "peer_actuations_total",
		Help:      "Outputs driven by the peer actuator.",
	}, []string{"output"})

	PeerDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "peer_dropped_total",
		Help:      "Inbound peer payloads dropped as malformed.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		MutationsTotal,
		CommandsTotal,
		GesturesTotal,
		MessagesPublished,
		PublishFailures,
		PublishQueueDepth,
		PeerActuations,
		PeerDropped,
	)
}

func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
