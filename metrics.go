package wordwire

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts server-side protocol activity. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	requestBytes  prometheus.Counter
	responseBytes prometheus.Counter
	errors        *prometheus.CounterVec
	connections   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wordwire",
			Name:      "requests_total",
			Help:      "Request frames received, by action.",
		}, []string{"action"}),
		requestBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wordwire",
			Name:      "request_bytes_total",
			Help:      "Payload bytes received in request frames.",
		}),
		responseBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wordwire",
			Name:      "response_bytes_total",
			Help:      "Payload bytes sent in response frames.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wordwire",
			Name:      "errors_total",
			Help:      "Connection errors, by kind.",
		}, []string{"kind"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wordwire",
			Name:      "connections_active",
			Help:      "Connections currently running.",
		}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.requestBytes, m.responseBytes, m.errors, m.connections} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register metrics")
		}
	}
	return m, nil
}

func (m *Metrics) request(f Frame) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(f.Action.String()).Inc()
	m.requestBytes.Add(float64(f.Length()))
}

func (m *Metrics) response(n int) {
	if m == nil {
		return
	}
	m.responseBytes.Add(float64(n))
}

func (m *Metrics) failure(err error) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errorKind(err)).Inc()
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// errorKind maps an error to a stable label value.
func errorKind(err error) string {
	var te *TransportError
	switch {
	case errors.Is(err, ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, ErrConnectionClosed):
		return "connection_closed"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrInvalidAction):
		return "invalid_action"
	case errors.As(err, &te):
		return "transport"
	default:
		return "other"
	}
}
