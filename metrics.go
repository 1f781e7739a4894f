package av

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds pipeline counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	framesDecoded  *prometheus.CounterVec
	framesEncoded  *prometheus.CounterVec
	packetsWritten *prometheus.CounterVec
	writeErrors    *prometheus.CounterVec
	encodeFailures prometheus.Counter
	streamFlushes  prometheus.Counter
	bsfPackets     prometheus.Counter
	openStreams    prometheus.Gauge
}

// NewMetrics registers the pipeline counters with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		framesDecoded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "av",
			Name:      "frames_decoded_total",
			Help:      "Frames returned by StreamReader.ReadFrame",
		}, []string{"media_type"}),
		framesEncoded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "av",
			Name:      "frames_encoded_total",
			Help:      "Frames submitted to encoders by StreamWriter",
		}, []string{"media_type"}),
		packetsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "av",
			Name:      "packets_written_total",
			Help:      "Packets written to the output container",
		}, []string{"stream"}),
		writeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "av",
			Name:      "packet_write_errors_total",
			Help:      "Packets the output container rejected",
		}, []string{"stream"}),
		encodeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "av",
			Name:      "encode_failures_total",
			Help:      "Hard encoder failures",
		}),
		streamFlushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "av",
			Name:      "stream_flushes_total",
			Help:      "Output streams flushed",
		}),
		bsfPackets: f.NewCounter(prometheus.CounterOpts{
			Namespace: "av",
			Name:      "bsf_packets_total",
			Help:      "Packets produced by bitstream filters",
		}),
		openStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "av",
			Name:      "output_streams",
			Help:      "Output streams registered with open writers",
		}),
	}
}

func (m *Metrics) frameDecoded(t MediaType) {
	if m != nil {
		m.framesDecoded.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) frameEncoded(t MediaType) {
	if m != nil {
		m.framesEncoded.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) packetWritten(stream int) {
	if m != nil {
		m.packetsWritten.WithLabelValues(strconv.Itoa(stream)).Inc()
	}
}

func (m *Metrics) writeError(stream int) {
	if m != nil {
		m.writeErrors.WithLabelValues(strconv.Itoa(stream)).Inc()
	}
}

func (m *Metrics) encodeFailure() {
	if m != nil {
		m.encodeFailures.Inc()
	}
}

func (m *Metrics) streamFlushed() {
	if m != nil {
		m.streamFlushes.Inc()
	}
}

func (m *Metrics) bsfOutput(n int) {
	if m != nil {
		m.bsfPackets.Add(float64(n))
	}
}

func (m *Metrics) streamsOpened(n int) {
	if m != nil {
		m.openStreams.Add(float64(n))
	}
}
