// internal/engine/metrics.go
package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus counters for frame recovery. A nil
// *Metrics is valid and turns every observation into a no-op, so the
// engine can run without a registry in tests.
type Metrics struct {
	bytesIn     prometheus.Counter
	frames      *prometheus.CounterVec
	crcErrors   prometheus.Counter
	structural  prometheus.Counter
	resyncs     prometheus.Counter
	desyncs     prometheus.Counter
	unknownAddr prometheus.Counter
}

// NewMetrics creates and registers the engine metrics. Returns nil when
// no registerer is provided.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modbus_sniffer",
			Subsystem: "engine",
			Name:      "bytes_ingested_total",
			Help:      "Raw bytes pushed into the frame recovery engine",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modbus_sniffer",
			Subsystem: "engine",
			Name:      "frames_total",
			Help:      "CRC-valid frames recovered, by function code",
		}, []string{"function"}),
		crcErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modbus_sniffer",
			Subsystem: "engine",
			Name:      "crc_errors_total",
			Help:      "Candidate frames rejected by the CRC check",
		}),
		structural: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modbus_sniffer",
			Subsystem: "engine",
			Name:      "structural_errors_total",
			Help:      "Byte positions rejected before the CRC was attempted",
		}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modbus_sniffer",
			Subsystem: "engine",
			Name:      "resync_slides_total",
			Help:      "Single-byte slides performed to regain frame alignment",
		}),
		desyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modbus_sniffer",
			Subsystem: "engine",
			Name:      "desync_overflows_total",
			Help:      "Stream buffer truncations after exceeding the ceiling",
		}),
		unknownAddr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modbus_sniffer",
			Subsystem: "engine",
			Name:      "unknown_address_responses_total",
			Help:      "Read responses with no correlatable prior request",
		}),
	}

	reg.MustRegister(
		m.bytesIn, m.frames, m.crcErrors, m.structural,
		m.resyncs, m.desyncs, m.unknownAddr,
	)
	return m
}

func (m *Metrics) addBytes(n int) {
	if m != nil {
		m.bytesIn.Add(float64(n))
	}
}

func (m *Metrics) incFrame(function string) {
	if m != nil {
		m.frames.WithLabelValues(function).Inc()
	}
}

func (m *Metrics) incCRC() {
	if m != nil {
		m.crcErrors.Inc()
	}
}

func (m *Metrics) incStructural() {
	if m != nil {
		m.structural.Inc()
	}
}

func (m *Metrics) incResync() {
	if m != nil {
		m.resyncs.Inc()
	}
}

func (m *Metrics) incDesync() {
	if m != nil {
		m.desyncs.Inc()
	}
}

func (m *Metrics) incUnknownAddr() {
	if m != nil {
		m.unknownAddr.Inc()
	}
}
