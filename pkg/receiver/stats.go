// ABOUTME: Receive counters and Prometheus metrics
// ABOUTME: Counters survive across runs; metrics mirror them for scraping
package receiver

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/screamrx/screamrx/pkg/scream"
)

const metricsNamespace = "screamrx"

// Stats is a point-in-time copy of Counters
type Stats struct {
	Packets          int64 `json:"packets"`
	Malformed        int64 `json:"malformed"`
	Reconfigurations int64 `json:"reconfigurations"`
	PayloadBytes     int64 `json:"payload_bytes"`
	DroppedBytes     int64 `json:"dropped_bytes"`
}

// Counters tracks receive activity. Kept apart from Status so that dropping
// a packet never touches the status snapshot.
type Counters struct {
	packets          atomic.Int64
	malformed        atomic.Int64
	reconfigurations atomic.Int64
	payloadBytes     atomic.Int64
	droppedBytes     atomic.Int64
}

// Snapshot returns the current counter values
func (c *Counters) Snapshot() Stats {
	return Stats{
		Packets:          c.packets.Load(),
		Malformed:        c.malformed.Load(),
		Reconfigurations: c.reconfigurations.Load(),
		PayloadBytes:     c.payloadBytes.Load(),
		DroppedBytes:     c.droppedBytes.Load(),
	}
}

// Metrics exports receive activity to Prometheus. A nil *Metrics is valid.
type Metrics struct {
	packets          prometheus.Counter
	malformed        prometheus.Counter
	reconfigurations prometheus.Counter
	payloadBytes     prometheus.Counter
	droppedBytes     prometheus.Counter
	errors           *prometheus.CounterVec
	sampleRate       prometheus.Gauge
	channels         prometheus.Gauge
	running          prometheus.Gauge
}

// NewMetrics creates and registers the receiver metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "packets_total",
			Help: "Packets read from the multicast socket.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "malformed_packets_total",
			Help: "Packets dropped because they were shorter than the header.",
		}),
		reconfigurations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "reconfigurations_total",
			Help: "Output sinks opened after a format change.",
		}),
		payloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "payload_bytes_total",
			Help: "Payload bytes accepted by the output sink.",
		}),
		droppedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "dropped_bytes_total",
			Help: "Payload bytes dropped because the device buffer was full.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "errors_total",
			Help: "Pipeline errors by kind.",
		}, []string{"kind"}),
		sampleRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "sample_rate_hz",
			Help: "Sample rate of the active output, 0 when none.",
		}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "channels",
			Help: "Channel count of the active output, 0 when none.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "running",
			Help: "1 while the receive loop is running.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.packets, m.malformed, m.reconfigurations, m.payloadBytes,
			m.droppedBytes, m.errors, m.sampleRate, m.channels, m.running)
	}

	return m
}

func (m *Metrics) packet() {
	if m != nil {
		m.packets.Inc()
	}
}

func (m *Metrics) malformedPacket() {
	if m != nil {
		m.malformed.Inc()
	}
}

func (m *Metrics) written(accepted, dropped int) {
	if m != nil {
		m.payloadBytes.Add(float64(accepted))
		m.droppedBytes.Add(float64(dropped))
	}
}

func (m *Metrics) format(f *scream.Format) {
	if m == nil {
		return
	}
	if f == nil {
		m.sampleRate.Set(0)
		m.channels.Set(0)
		return
	}
	m.reconfigurations.Inc()
	m.sampleRate.Set(float64(f.SampleRate))
	m.channels.Set(float64(f.Channels))
}

func (m *Metrics) error(kind scream.ErrorKind) {
	if m != nil {
		m.errors.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) setRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
}
