// Package prom wires the ke and rotation observer interfaces to Prometheus.
package prom

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Phala-Network/phala-nts-go/ke/keerr"
)

// NewRegistry returns a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler returns a Prometheus HTTP handler bound to the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// HandshakeObserver exports NTS-KE client handshake metrics to Prometheus.
type HandshakeObserver struct {
	successTotal prometheus.Counter
	failureTotal *prometheus.CounterVec
	latency      prometheus.Histogram
}

// NewHandshakeObserver registers handshake metrics on the registry.
func NewHandshakeObserver(reg *prometheus.Registry) *HandshakeObserver {
	o := &HandshakeObserver{
		successTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ntske_handshakes_succeeded_total",
			Help: "NTS-KE client handshakes that completed successfully.",
		}),
		failureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ntske_handshakes_failed_total",
			Help: "NTS-KE client handshakes that failed, by stage and code.",
		}, []string{"stage", "code"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ntske_handshake_duration_seconds",
			Help:    "Duration of successful NTS-KE client handshakes.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(o.successTotal, o.failureTotal, o.latency)
	return o
}

func (o *HandshakeObserver) HandshakeSucceeded(d time.Duration) {
	o.successTotal.Inc()
	o.latency.Observe(d.Seconds())
}

func (o *HandshakeObserver) HandshakeFailed(stage keerr.Stage, code keerr.Code) {
	o.failureTotal.WithLabelValues(string(stage), string(code)).Inc()
}

// RotationObserver exports cookie key rotation metrics to Prometheus,
// mirroring the ROTATION_COUNTER / FAILURE_COUNTER pair the rotation engine
// was ported from.
type RotationObserver struct {
	rotationTotal prometheus.Counter
	failureTotal  prometheus.Counter
}

// NewRotationObserver registers rotation metrics on the registry.
func NewRotationObserver(reg *prometheus.Registry) *RotationObserver {
	o := &RotationObserver{
		rotationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ntp_key_rotations_total",
			Help: "Number of key rotations.",
		}),
		failureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ntp_key_rotations_failed_total",
			Help: "Number of failures in key rotation.",
		}),
	}
	reg.MustRegister(o.rotationTotal, o.failureTotal)
	return o
}

func (o *RotationObserver) RotationSucceeded() {
	o.rotationTotal.Inc()
}

func (o *RotationObserver) RotationFailed() {
	o.failureTotal.Inc()
}
