package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	connectionState *prometheus.GaugeVec
	reconnectTotal  *prometheus.CounterVec
	closeTotal      *prometheus.CounterVec

	qrEmissionsTotal prometheus.Counter
	pairingTotal     *prometheus.CounterVec

	inboundTotal   *prometheus.CounterVec
	broadcastTotal *prometheus.CounterVec

	observersConnected prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
	metricsReg  *prometheus.Registry
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			connectionState: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "connection_state",
					Help: "Current session lifecycle state (1 for the active state).",
				},
				[]string{"state"},
			),
			reconnectTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "reconnect_attempts_total",
					Help: "Total session creation attempts by outcome.",
				},
				[]string{"outcome"},
			),
			closeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "session_closes_total",
					Help: "Total session closes by reason.",
				},
				[]string{"reason"},
			),
			qrEmissionsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "qr_emissions_total",
					Help: "Total QR bootstrap artifacts issued.",
				},
			),
			pairingTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pairing_attempts_total",
					Help: "Total pairing code requests by outcome.",
				},
				[]string{"outcome"},
			),
			inboundTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inbound_messages_total",
					Help: "Total inbound message events by projection result.",
				},
				[]string{"result"},
			),
			broadcastTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "broadcasts_total",
					Help: "Total events broadcast to observers by event kind.",
				},
				[]string{"event"},
			),
			observersConnected: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "observers_connected",
					Help: "Currently attached observer channels.",
				},
			),
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			m.connectionState,
			m.reconnectTotal,
			m.closeTotal,
			m.qrEmissionsTotal,
			m.pairingTotal,
			m.inboundTotal,
			m.broadcastTotal,
			m.observersConnected,
		)

		metricsInst = m
		metricsReg = reg
	})
	return metricsInst
}

// EnsureRegistered forces metric registration at startup so the /metrics
// endpoint is complete before the first event fires.
func EnsureRegistered() {
	getMetrics()
}

// MetricsHandler returns the HTTP handler for the /metrics endpoint.
func MetricsHandler() http.Handler {
	getMetrics()
	return promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{})
}

// SetConnectionState marks the given lifecycle state as the active one.
func SetConnectionState(state string) {
	m := getMetrics()
	m.connectionState.Reset()
	m.connectionState.WithLabelValues(state).Set(1)
}

// RecordReconnectAttempt counts one session creation attempt.
func RecordReconnectAttempt(outcome string) {
	getMetrics().reconnectTotal.WithLabelValues(outcome).Inc()
}

// RecordSessionClose counts one session close by reason.
func RecordSessionClose(reason string) {
	getMetrics().closeTotal.WithLabelValues(reason).Inc()
}

// RecordQREmission counts one issued QR artifact.
func RecordQREmission() {
	getMetrics().qrEmissionsTotal.Inc()
}

// RecordPairingAttempt counts one pairing code request.
func RecordPairingAttempt(outcome string) {
	getMetrics().pairingTotal.WithLabelValues(outcome).Inc()
}

// RecordInboundMessage counts one raw inbound message by projection result.
func RecordInboundMessage(result string) {
	getMetrics().inboundTotal.WithLabelValues(result).Inc()
}

// RecordBroadcast counts one observer broadcast by event kind.
func RecordBroadcast(event string) {
	getMetrics().broadcastTotal.WithLabelValues(event).Inc()
}

// ObserverAttached increments the connected observer gauge.
func ObserverAttached() {
	getMetrics().observersConnected.Inc()
}

// ObserverDetached decrements the connected observer gauge.
func ObserverDetached() {
	getMetrics().observersConnected.Dec()
}
