// Package metrics exposes device pipeline events as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "logship"

// Collector implements ports.Recorder with Prometheus counters, gauges and
// histograms. No metric carries labels.
type Collector struct {
	messagesWritten   prometheus.Counter
	bytesWritten      prometheus.Counter
	batchesBuilt      prometheus.Counter
	messagesPerBatch  prometheus.Histogram
	requestsDropped   prometheus.Counter
	messagesDropped   prometheus.Counter
	requestsDelivered prometheus.Counter
	messagesDelivered prometheus.Counter
	requestsFailed    prometheus.Counter
	sendDuration      prometheus.Histogram
	connectionsOpened prometheus.Counter
	queueDepth        prometheus.Gauge
	inFlight          prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	c := &Collector{
		messagesWritten: counter("messages_written_total", "Messages accepted by Write"),
		bytesWritten:    counter("bytes_written_total", "Message bytes accepted by Write"),
		batchesBuilt:    counter("batches_built_total", "Batches turned into requests"),
		messagesPerBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "messages_per_batch",
			Help:      "Distribution of messages per built batch",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		requestsDropped:   counter("requests_dropped_total", "Requests discarded because the delivery queue was full"),
		messagesDropped:   counter("messages_dropped_total", "Messages inside dropped requests"),
		requestsDelivered: counter("requests_delivered_total", "Requests accepted by the collector"),
		messagesDelivered: counter("messages_delivered_total", "Messages inside delivered requests"),
		requestsFailed:    counter("requests_failed_total", "Failed send attempts"),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Time from send start to accepted response",
			Buckets:   prometheus.DefBuckets,
		}),
		connectionsOpened: counter("connections_opened_total", "Collector connections opened"),
		queueDepth:        gauge("queue_depth", "Requests waiting in the delivery queue"),
		inFlight:          gauge("in_flight_requests", "Requests currently being sent"),
	}

	if reg != nil {
		reg.MustRegister(c.collectors()...)
	}
	return c
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.messagesWritten, c.bytesWritten, c.batchesBuilt, c.messagesPerBatch,
		c.requestsDropped, c.messagesDropped, c.requestsDelivered, c.messagesDelivered,
		c.requestsFailed, c.sendDuration, c.connectionsOpened, c.queueDepth, c.inFlight,
	}
}

func (c *Collector) MessageWritten(bytes int) {
	c.messagesWritten.Inc()
	c.bytesWritten.Add(float64(bytes))
}

func (c *Collector) BatchBuilt(messages, bytes int) {
	c.batchesBuilt.Inc()
	c.messagesPerBatch.Observe(float64(messages))
}

func (c *Collector) RequestDropped(messages int) {
	c.requestsDropped.Inc()
	c.messagesDropped.Add(float64(messages))
}

func (c *Collector) RequestDelivered(messages int, d time.Duration) {
	c.requestsDelivered.Inc()
	c.messagesDelivered.Add(float64(messages))
	c.sendDuration.Observe(d.Seconds())
}

func (c *Collector) RequestFailed(messages int) {
	c.requestsFailed.Inc()
}

func (c *Collector) ConnectionOpened() {
	c.connectionsOpened.Inc()
}

func (c *Collector) QueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

func (c *Collector) InFlight(n int) {
	c.inFlight.Set(float64(n))
}
